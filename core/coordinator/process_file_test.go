package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"Musync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// seedMergeableFile creates a downloaded file with a completed primary tag,
// two secondary tags and one mapping per user.
func seedMergeableFile(h *harness, users ...string) {
	s := h.store
	s.addFile("f1", "https://yt/1", "youtube", model.StatusDownloaded)
	p := s.addTag("f1", "youtube", true, model.StatusCompleted)
	p.Title = strPtr("yt title")
	mb := s.addTag("f1", "musicbrainz", false, model.StatusCompleted)
	mb.Title = strPtr("mb title")
	mb.Year = intPtr(1997)
	sp := s.addTag("f1", "spotify", false, model.StatusError)
	sp.Artist = strPtr("sp artist")

	for _, u := range users {
		m := model.NewTagMappingStub("map-"+u, u, "f1", "youtube")
		s.mappings[m.ID] = m
		s.addOwnedFile(u, "f1", "dev-"+u)
	}
}

func TestProcessFile_NotReadyIsNoop(t *testing.T) {
	for _, status := range []model.Status{model.StatusCreated, model.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			h.store.addFile("f1", "u", "youtube", status)
			h.store.addTag("f1", "youtube", true, model.StatusCompleted)

			require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))
			h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 1, h.store.count("tags"))
		})
	}
}

func TestProcessFile_UnknownFile(t *testing.T) {
	h := newHarness(t)
	err := h.coordinator().ProcessFile(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestProcessFile_NoTagsIsNoop(t *testing.T) {
	h := newHarness(t)
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))
	assert.EqualValues(t, 0, h.store.advances)
}

func TestProcessFile_SingleCompletedTagRequestsTagging(t *testing.T) {
	h := newHarness(t)
	h.allowTagPlugin()
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)
	m := model.NewTagMappingStub("m1", "u1", "f1", "youtube")
	h.store.mappings[m.ID] = m

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))

	h.tags.AssertCalled(t, "ParseTags", mock.Anything, "f1", "plugin.musicbrainz")
	h.tags.AssertCalled(t, "ParseTags", mock.Anything, "f1", "plugin.spotify")
	h.tags.AssertNumberOfCalls(t, "ParseTags", 2)

	tags, _ := h.store.GetTagsByFileID(context.Background(), "f1")
	require.Len(t, tags, 3)
	for _, tag := range tags {
		if !tag.IsPrimary {
			assert.Equal(t, model.StatusRequested, tag.Status)
		}
	}

	// no rebuild, no completion yet
	assert.False(t, h.store.mappings["m1"].AutoMerged)
	assert.Equal(t, model.StatusDownloaded, h.store.files["f1"].Status)
}

func TestProcessFile_SinglePendingTagIsNoop(t *testing.T) {
	h := newHarness(t)
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCreated)

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))
	h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessFile_NoParsingSourcesRebuildsInsteadOfFastPath(t *testing.T) {
	h := newHarness(t, model.Source{ID: "youtube", Description: "plugin.youtube"})
	h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
	h.store.addTag("f1", "youtube", true, model.StatusCompleted)
	m := model.NewTagMappingStub("m1", "u1", "f1", "youtube")
	h.store.mappings[m.ID] = m
	h.store.addOwnedFile("u1", "f1", "d1")

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))

	assert.True(t, h.store.mappings["m1"].AutoMerged)
	assert.Equal(t, model.StatusCompleted, h.store.files["f1"].Status)
}

func TestProcessFile_BarrierWaitsForEveryTag(t *testing.T) {
	orders := [][]string{
		{"musicbrainz", "spotify"},
		{"spotify", "musicbrainz"},
	}
	for _, order := range orders {
		t.Run(order[0]+"-first", func(t *testing.T) {
			h := newHarness(t)
			h.store.addFile("f1", "u", "youtube", model.StatusDownloaded)
			h.store.addTag("f1", "youtube", true, model.StatusCompleted)
			h.store.addTag("f1", "musicbrainz", false, model.StatusRequested)
			h.store.addTag("f1", "spotify", false, model.StatusRequested)
			m := model.NewTagMappingStub("m1", "u1", "f1", "youtube")
			h.store.mappings[m.ID] = m
			h.store.addOwnedFile("u1", "f1", "d1")
			ctx := context.Background()

			require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
			assert.False(t, h.store.mappings["m1"].AutoMerged, "no tag finished yet")

			h.store.tags["f1/"+order[0]].Status = model.StatusCompleted
			require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
			assert.False(t, h.store.mappings["m1"].AutoMerged, "one tag still requested")
			assert.Equal(t, model.StatusDownloaded, h.store.files["f1"].Status)

			h.store.tags["f1/"+order[1]].Status = model.StatusError
			require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
			assert.True(t, h.store.mappings["m1"].AutoMerged)
			assert.Equal(t, model.StatusCompleted, h.store.files["f1"].Status)
			h.tags.AssertNotCalled(t, "ParseTags", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessFile_RebuildsNonFixedMappingsOnly(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1", "u2")
	h.store.mappings["map-u2"].Fixed = true
	h.store.mappings["map-u2"].Title = "user-choice"
	h.store.priorities["u1"] = model.PriorityList{
		model.FieldTitle:  {"musicbrainz"},
		model.FieldArtist: {"spotify"},
	}

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))

	rebuilt := h.store.mappings["map-u1"]
	assert.True(t, rebuilt.AutoMerged)
	assert.False(t, rebuilt.Fixed)
	assert.Equal(t, "musicbrainz", rebuilt.Title)
	assert.Equal(t, "spotify", rebuilt.Artist)
	assert.Equal(t, "youtube", rebuilt.Year, "no priority for year, primary fallback")

	fixed := h.store.mappings["map-u2"]
	assert.Equal(t, "user-choice", fixed.Title)
	assert.False(t, fixed.AutoMerged)

	assert.Equal(t, 1, h.store.invalidations["uf-u1-f1"])
	assert.Zero(t, h.store.invalidations["uf-u2-f1"])

	sync := h.store.syncs["uf-u1-f1-dev-u1"]
	assert.False(t, sync.IsSynchronized)
	assert.True(t, sync.WasChanged)
	assert.True(t, h.store.syncs["uf-u2-f1-dev-u2"].IsSynchronized)
}

func TestProcessFile_DefaultPriorityFollowsRegistry(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1")
	// both secondary sources carry a title; musicbrainz has the lower priority number
	h.store.tags["f1/spotify"].Title = strPtr("sp title")
	h.store.tags["f1/spotify"].Status = model.StatusCompleted

	require.NoError(t, h.coordinator().ProcessFile(context.Background(), "f1"))

	m := h.store.mappings["map-u1"]
	assert.Equal(t, "musicbrainz", m.Title)
	assert.Equal(t, "spotify", m.Artist)
	assert.Equal(t, "musicbrainz", m.Year)
}

func TestProcessFile_AdvancesOnce(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1")
	ctx := context.Background()

	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))

	assert.EqualValues(t, 1, h.store.advances)
	assert.Equal(t, model.StatusCompleted, h.store.files["f1"].Status)
	assert.Equal(t, 1, h.store.invalidations["uf-u1-f1"])
}

func TestProcessFile_RedeliveryKeepsDevicesSynchronized(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1", "u2")
	ctx := context.Background()

	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
	require.Equal(t, 1, h.store.invalidations["uf-u1-f1"])

	// 设备已同步完最新映射
	for _, sync := range h.store.syncs {
		sync.IsSynchronized = true
		sync.WasChanged = false
	}
	before := *h.store.mappings["map-u1"]

	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))
	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))

	assert.Equal(t, 1, h.store.invalidations["uf-u1-f1"])
	assert.Equal(t, 1, h.store.invalidations["uf-u2-f1"])
	for id, sync := range h.store.syncs {
		assert.True(t, sync.IsSynchronized, id)
		assert.False(t, sync.WasChanged, id)
	}
	assert.Equal(t, before, *h.store.mappings["map-u1"])

	// 标签内容变化后仍会重新合并
	h.store.tags["f1/spotify"].Title = strPtr("sp title")
	h.store.priorities["u1"] = model.PriorityList{model.FieldTitle: {"spotify"}}
	require.NoError(t, h.coordinator().ProcessFile(ctx, "f1"))

	assert.Equal(t, "spotify", h.store.mappings["map-u1"].Title)
	assert.Equal(t, 2, h.store.invalidations["uf-u1-f1"])
	assert.Equal(t, 1, h.store.invalidations["uf-u2-f1"])
	assert.False(t, h.store.syncs["uf-u1-f1-dev-u1"].IsSynchronized)
}

func TestProcessFile_BusyLock(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1")
	release, ok, err := h.locker.Acquire(context.Background(), "file:f1")
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	err = h.coordinator().ProcessFile(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrFileBusy)
	assert.False(t, h.store.mappings["map-u1"].AutoMerged)
}

func TestProcessFile_ConcurrentCallsCompleteOnce(t *testing.T) {
	h := newHarness(t)
	seedMergeableFile(h, "u1", "u2")
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		busy int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.coordinator().ProcessFile(ctx, "f1"); err != nil {
				assert.ErrorIs(t, err, ErrFileBusy)
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, h.store.advances)
	assert.Equal(t, model.StatusCompleted, h.store.files["f1"].Status)
	assert.Less(t, int(busy), 8, "at least one call must win the lock")
}
