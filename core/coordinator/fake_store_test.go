package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"Musync/model"
	"Musync/repository"
)

var (
	_ repository.FileRepository     = (*memStore)(nil)
	_ repository.TagRepository      = (*memStore)(nil)
	_ repository.PlaylistRepository = (*memStore)(nil)
)

// memStore is an in-memory implementation of the three repositories.
type memStore struct {
	mu sync.Mutex

	files       map[string]*model.File
	tags        map[string]*model.Tag
	mappings    map[string]*model.TagMapping
	priorities  map[string]model.PriorityList
	playlists   map[string]*model.Playlist
	subs        map[string]*model.UserPlaylist
	memberships map[string]*model.UserPlaylistFile
	userFiles   map[string]*model.UserFile
	devices     map[string][]string
	syncs       map[string]*model.FileSynchronization

	invalidations map[string]int
	advances      int32
	seq           int64

	// deviceErrors makes GetDeviceIDsByUser fail for a user.
	deviceErrors map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		files:         map[string]*model.File{},
		tags:          map[string]*model.Tag{},
		mappings:      map[string]*model.TagMapping{},
		priorities:    map[string]model.PriorityList{},
		playlists:     map[string]*model.Playlist{},
		subs:          map[string]*model.UserPlaylist{},
		memberships:   map[string]*model.UserPlaylistFile{},
		userFiles:     map[string]*model.UserFile{},
		devices:       map[string][]string{},
		syncs:         map[string]*model.FileSynchronization{},
		invalidations: map[string]int{},
		deviceErrors:  map[string]error{},
	}
}

func (s *memStore) nextID() string {
	return fmt.Sprintf("id-%d", atomic.AddInt64(&s.seq, 1))
}

// ---- FileRepository ----

func (s *memStore) GetFileByID(_ context.Context, id string) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) GetFileByURL(_ context.Context, url string) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.SourceURL == url {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertFile(_ context.Context, file *model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.SourceURL == file.SourceURL {
			return repository.ErrDuplicate
		}
	}
	cp := *file
	s.files[file.ID] = &cp
	return nil
}

func (s *memStore) AdvanceFileStatus(_ context.Context, id string, from, to model.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok || f.Status != from {
		return false, nil
	}
	f.Status = to
	atomic.AddInt32(&s.advances, 1)
	return true, nil
}

func (s *memStore) GetUserFile(_ context.Context, userID, fileID string) (*model.UserFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uf := range s.userFiles {
		if uf.UserID == userID && uf.FileID == fileID {
			cp := *uf
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertUserFile(_ context.Context, userFile *model.UserFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uf := range s.userFiles {
		if uf.UserID == userFile.UserID && uf.FileID == userFile.FileID {
			return repository.ErrDuplicate
		}
	}
	cp := *userFile
	s.userFiles[userFile.ID] = &cp
	return nil
}

func (s *memStore) GetDeviceIDsByUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deviceErrors[userID]; err != nil {
		return nil, err
	}
	return append([]string(nil), s.devices[userID]...), nil
}

func (s *memStore) InsertSynchronization(_ context.Context, sync *model.FileSynchronization) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.syncs {
		if existing.UserFileID == sync.UserFileID && existing.DeviceID == sync.DeviceID {
			return false, nil
		}
	}
	cp := *sync
	s.syncs[sync.ID] = &cp
	return true, nil
}

func (s *memStore) InvalidateSynchronization(_ context.Context, userFileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sync := range s.syncs {
		if sync.UserFileID == userFileID {
			sync.IsSynchronized = false
			sync.WasChanged = true
			n++
		}
	}
	s.invalidations[userFileID]++
	return n, nil
}

// ---- TagRepository ----

func (s *memStore) GetTagsByFileID(_ context.Context, fileID string) ([]*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Tag
	for _, t := range s.tags {
		if t.FileID == fileID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *memStore) GetPrimaryTag(_ context.Context, fileID string) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.FileID == fileID && t.IsPrimary {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetTagByFileAndSource(_ context.Context, fileID, source string) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.FileID == fileID && t.Source == source {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertTag(_ context.Context, tag *model.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.FileID == tag.FileID && t.Source == tag.Source {
			return repository.ErrDuplicate
		}
	}
	cp := *tag
	s.tags[tag.ID] = &cp
	return nil
}

func (s *memStore) UpdateTagResult(_ context.Context, tag *model.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[tag.ID]; !ok {
		return fmt.Errorf("tag %s not found", tag.ID)
	}
	cp := *tag
	s.tags[tag.ID] = &cp
	return nil
}

func (s *memStore) GetTagMappings(_ context.Context, fileID string, fixed bool) ([]*model.TagMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TagMapping
	for _, m := range s.mappings {
		if m.FileID == fileID && m.Fixed == fixed {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) GetTagMapping(_ context.Context, userID, fileID string) (*model.TagMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.UserID == userID && m.FileID == fileID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertTagMapping(_ context.Context, mapping *model.TagMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.UserID == mapping.UserID && m.FileID == mapping.FileID {
			return repository.ErrDuplicate
		}
	}
	cp := *mapping
	s.mappings[mapping.ID] = &cp
	return nil
}

func (s *memStore) UpdateTagMapping(_ context.Context, mapping *model.TagMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.mappings[mapping.ID]
	if !ok || existing.Fixed {
		return nil
	}
	cp := *mapping
	s.mappings[mapping.ID] = &cp
	return nil
}

func (s *memStore) GetTagMappingPriority(_ context.Context, userID string) (model.PriorityList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.priorities[userID]; ok {
		return p, nil
	}
	return model.PriorityList{}, nil
}

// ---- PlaylistRepository ----

func (s *memStore) GetPlaylistByID(_ context.Context, id string) (*model.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.playlists[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) GetUserPlaylistsByPlaylistID(_ context.Context, playlistID string) ([]*model.UserPlaylist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.UserPlaylist
	for _, sub := range s.subs {
		if sub.PlaylistID == playlistID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) GetUserPlaylistFile(_ context.Context, userPlaylistID, fileID string) (*model.UserPlaylistFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserPlaylistID == userPlaylistID && m.FileID == fileID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertUserPlaylistFile(_ context.Context, membership *model.UserPlaylistFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserPlaylistID == membership.UserPlaylistID && m.FileID == membership.FileID {
			return repository.ErrDuplicate
		}
	}
	cp := *membership
	s.memberships[membership.ID] = &cp
	return nil
}

func (s *memStore) GetMembershipsWithURL(_ context.Context, userPlaylistID string) ([]*model.MembershipWithURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[userPlaylistID]
	var out []*model.MembershipWithURL
	for _, m := range s.memberships {
		if m.UserPlaylistID != userPlaylistID {
			continue
		}
		f := s.files[m.FileID]
		out = append(out, &model.MembershipWithURL{
			ID:                m.ID,
			UserPlaylistID:    m.UserPlaylistID,
			UserID:            sub.UserID,
			FileID:            m.FileID,
			SourceURL:         f.SourceURL,
			MissingFromRemote: m.MissingFromRemote,
		})
	}
	return out, nil
}

func (s *memStore) SetMissingFromRemote(_ context.Context, membershipID string, missing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memberships[membershipID]; ok {
		m.MissingFromRemote = missing
	}
	return nil
}

func (s *memStore) MarkPlaylistSynchronized(_ context.Context, playlistID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.playlists[playlistID]; ok {
		p.SynchronizedAt = &at
	}
	return nil
}

// ---- seeding helpers ----

func (s *memStore) addFile(id, url, source string, status model.Status) *model.File {
	f := &model.File{ID: id, Path: "path-" + id, SourceURL: url, Source: source, Status: status}
	s.files[id] = f
	return f
}

func (s *memStore) addTag(fileID, source string, primary bool, status model.Status) *model.Tag {
	t := &model.Tag{ID: fileID + "/" + source, FileID: fileID, Source: source, IsPrimary: primary, Status: status}
	s.tags[t.ID] = t
	return t
}

func (s *memStore) addSubscription(id, userID, playlistID string) {
	s.subs[id] = &model.UserPlaylist{ID: id, UserID: userID, PlaylistID: playlistID}
}

func (s *memStore) addOwnedFile(userID, fileID string, devices ...string) *model.UserFile {
	uf := &model.UserFile{ID: "uf-" + userID + "-" + fileID, UserID: userID, FileID: fileID}
	s.userFiles[uf.ID] = uf
	for _, d := range devices {
		id := uf.ID + "-" + d
		s.syncs[id] = &model.FileSynchronization{ID: id, UserFileID: uf.ID, DeviceID: d, IsSynchronized: true}
	}
	return uf
}

func (s *memStore) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "files":
		return len(s.files)
	case "tags":
		return len(s.tags)
	case "mappings":
		return len(s.mappings)
	case "memberships":
		return len(s.memberships)
	case "userFiles":
		return len(s.userFiles)
	case "syncs":
		return len(s.syncs)
	}
	return -1
}
