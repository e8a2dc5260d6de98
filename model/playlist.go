package model

import "time"

// Playlist 外部歌单
type Playlist struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	SourceURL      string     `json:"sourceUrl" gorm:"size:512;not null;uniqueIndex"`
	Source         string     `json:"source" gorm:"size:64;not null"`
	Status         Status     `json:"status" gorm:"size:2;not null;default:'CR'"`
	Title          string     `json:"title" gorm:"size:255"`
	SynchronizedAt *time.Time `json:"synchronizedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Playlist) TableName() string {
	return "playlists"
}

// UserPlaylist 用户订阅歌单
type UserPlaylist struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"userId" gorm:"size:36;not null;uniqueIndex:idx_user_playlist"`
	PlaylistID string    `json:"playlistId" gorm:"size:36;not null;uniqueIndex:idx_user_playlist;index"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (UserPlaylist) TableName() string {
	return "user_playlists"
}

// UserPlaylistFile 用户歌单中的一首，远端移除后只打标记不删除
type UserPlaylistFile struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	UserPlaylistID    string    `json:"userPlaylistId" gorm:"size:36;not null;uniqueIndex:idx_user_playlist_file"`
	FileID            string    `json:"fileId" gorm:"size:36;not null;uniqueIndex:idx_user_playlist_file;index"`
	MissingFromRemote bool      `json:"missingFromRemote" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (UserPlaylistFile) TableName() string {
	return "user_playlist_files"
}

// MembershipWithURL is a membership row joined with its file's url and user.
type MembershipWithURL struct {
	ID                string `json:"id"`
	UserPlaylistID    string `json:"userPlaylistId"`
	UserID            string `json:"userId"`
	FileID            string `json:"fileId"`
	SourceURL         string `json:"sourceUrl"`
	MissingFromRemote bool   `json:"missingFromRemote"`
}
