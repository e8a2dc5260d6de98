package repository

import "gorm.io/gorm"

// Store bundles the repositories the coordinator depends on.
type Store struct {
	Files     FileRepository
	Tags      TagRepository
	Playlists PlaylistRepository
}

// NewGormStore wires every repository to the same connection pool.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Files:     NewGormFileRepository(db),
		Tags:      NewGormTagRepository(db),
		Playlists: NewGormPlaylistRepository(db),
	}
}
