package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"Musync/core/plugin"
	"Musync/core/source"
	"Musync/model"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSources = []model.Source{
	{ID: "youtube", Name: "YouTube", Description: "plugin.youtube", Priority: 100},
	{ID: "musicbrainz", Name: "MusicBrainz", Description: "plugin.musicbrainz", AllowParsing: true, Priority: 10},
	{ID: "spotify", Name: "Spotify", Description: "plugin.spotify", AllowParsing: true, Priority: 20},
}

// fakeFilePlugin lowercases urls and attributes everything to youtube.
// Urls containing "bad" are unsupported.
type fakeFilePlugin struct {
	mu        sync.Mutex
	downloads []string
}

func (p *fakeFilePlugin) Name() string { return "fake" }

func (p *fakeFilePlugin) GetSource(_ context.Context, rawURL string) (string, error) {
	if strings.Contains(rawURL, "bad") {
		return "", plugin.ErrUnsupportedURL
	}
	if strings.Contains(rawURL, "unknown-source") {
		return "bandcamp", nil
	}
	return "youtube", nil
}

func (p *fakeFilePlugin) NormalizeURL(_ context.Context, rawURL string) (string, error) {
	if strings.Contains(rawURL, "bad") {
		return "", plugin.ErrUnsupportedURL
	}
	return strings.ToLower(strings.TrimSpace(rawURL)), nil
}

func (p *fakeFilePlugin) NormalizePlaylistURL(ctx context.Context, rawURL string) (string, error) {
	return p.NormalizeURL(ctx, rawURL)
}

func (p *fakeFilePlugin) DownloadFile(_ context.Context, file *model.File, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloads = append(p.downloads, file.SourceURL+"@"+routingKey)
	return nil
}

func (p *fakeFilePlugin) downloaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.downloads...)
}

type mockTagPlugin struct {
	mock.Mock
}

func (m *mockTagPlugin) Name() string { return "mock" }

func (m *mockTagPlugin) TagFile(ctx context.Context, file *model.File, routingKey string) error {
	return m.Called(ctx, file.ID, routingKey).Error(0)
}

func (m *mockTagPlugin) ParseTags(ctx context.Context, fileID string, routingKey string) error {
	return m.Called(ctx, fileID, routingKey).Error(0)
}

// memLocker is a process-local advisory lock.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) Acquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type fakePictures struct {
	err error
}

func (p *fakePictures) SavePicture(_ context.Context, fileID, sourceID, pictureURL string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("pictures/%s/%s.jpg", fileID, sourceID), nil
}

type harness struct {
	store    *memStore
	files    *fakeFilePlugin
	tags     *mockTagPlugin
	locker   *memLocker
	pictures *fakePictures
	registry *source.Registry
	deps     Dependencies
}

func newHarness(t *testing.T, sources ...model.Source) *harness {
	t.Helper()
	if sources == nil {
		sources = testSources
	}
	registry, err := source.NewRegistry(sources)
	require.NoError(t, err)

	h := &harness{
		store:    newMemStore(),
		files:    &fakeFilePlugin{},
		tags:     &mockTagPlugin{},
		locker:   newMemLocker(),
		pictures: &fakePictures{},
		registry: registry,
	}
	h.deps = Dependencies{
		Files:      h.store,
		Tags:       h.store,
		Playlists:  h.store,
		Sources:    registry,
		FilePlugin: h.files,
		TagPlugin:  h.tags,
		Locker:     h.locker,
		Pictures:   h.pictures,
		NewID:      h.store.nextID,
		Now:        func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return h
}

func (h *harness) coordinator() *FileCoordinator {
	return New(h.deps)
}

// allowTagPlugin accepts every tag plugin call.
func (h *harness) allowTagPlugin() {
	h.tags.On("ParseTags", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.tags.On("TagFile", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
