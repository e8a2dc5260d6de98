package coordinator

import (
	"context"
	"errors"
	"testing"

	"Musync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRequestTagging_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		seed    func(s *memStore)
		wantErr error
	}{
		{
			name:    "no primary tag",
			seed:    func(s *memStore) {},
			wantErr: ErrPrimaryTagMissing,
		},
		{
			name: "primary still requested",
			seed: func(s *memStore) {
				s.addTag("f1", "youtube", true, model.StatusRequested)
			},
			wantErr: ErrPrimaryTagNotReady,
		},
		{
			name: "primary failed",
			seed: func(s *memStore) {
				s.addTag("f1", "youtube", true, model.StatusError)
			},
			wantErr: ErrPrimaryTagNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
			tt.seed(h.store)

			n, err := h.coordinator().RequestTagging(context.Background(), "f1")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, n)
			h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRequestTagging_RequestsEveryParsingSource(t *testing.T) {
	h := newHarness(t)
	h.allowTagPlugin()
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)

	n, err := h.coordinator().RequestTagging(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, src := range []string{"musicbrainz", "spotify"} {
		tag, err := h.store.GetTagByFileAndSource(context.Background(), "f1", src)
		require.NoError(t, err)
		require.NotNil(t, tag, src)
		assert.Equal(t, model.StatusRequested, tag.Status)
		assert.False(t, tag.IsPrimary)
		h.tags.AssertCalled(t, "ParseTags", mock.Anything, "f1", "plugin."+src)
	}
}

func TestRequestTagging_SkipsPrimarySource(t *testing.T) {
	h := newHarness(t)
	h.allowTagPlugin()
	h.store.addFile("f1", "u", "musicbrainz", model.StatusDownloaded)
	h.store.addTag("f1", "musicbrainz", true, model.StatusCompleted)

	n, err := h.coordinator().RequestTagging(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.tags.AssertCalled(t, "ParseTags", mock.Anything, "f1", "plugin.spotify")
	h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, "f1", "plugin.musicbrainz")
}

func TestRequestTagging_ExistingTagAborts(t *testing.T) {
	h := newHarness(t)
	h.allowTagPlugin()
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)
	h.store.addTag("f1", "spotify", false, model.StatusRequested)

	n, err := h.coordinator().RequestTagging(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrTaggingAlreadyRequested)
	assert.Zero(t, n)
	h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, "f1", "plugin.spotify")

	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Retryable())
}

func TestRequestTagging_PluginErrorPropagates(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("broker down")
	h.tags.On("ParseTags", mock.Anything, "f1", "plugin.musicbrainz").Return(nil).Maybe()
	h.tags.On("ParseTags", mock.Anything, "f1", "plugin.spotify").Return(boom)
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)

	_, err := h.coordinator().RequestTagging(context.Background(), "f1")
	assert.ErrorIs(t, err, boom)
}

func TestRequestTagging_NoParsingSources(t *testing.T) {
	h := newHarness(t, model.Source{ID: "youtube", Description: "plugin.youtube"})
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)

	n, err := h.coordinator().RequestTagging(context.Background(), "f1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, h.store.count("tags"))
}
