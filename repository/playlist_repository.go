package repository

import (
	"context"
	"time"

	"Musync/model"

	"gorm.io/gorm"
)

// PlaylistRepository 歌单、订阅与歌单成员的数据访问接口
type PlaylistRepository interface {
	GetPlaylistByID(ctx context.Context, id string) (*model.Playlist, error)
	GetUserPlaylistsByPlaylistID(ctx context.Context, playlistID string) ([]*model.UserPlaylist, error)

	GetUserPlaylistFile(ctx context.Context, userPlaylistID, fileID string) (*model.UserPlaylistFile, error)
	InsertUserPlaylistFile(ctx context.Context, membership *model.UserPlaylistFile) error
	// GetMembershipsWithURL joins the memberships of a subscription with file urls.
	GetMembershipsWithURL(ctx context.Context, userPlaylistID string) ([]*model.MembershipWithURL, error)
	SetMissingFromRemote(ctx context.Context, membershipID string, missing bool) error

	MarkPlaylistSynchronized(ctx context.Context, playlistID string, at time.Time) error
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository 创建 GORM 歌单仓库
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

func (r *gormPlaylistRepository) GetPlaylistByID(ctx context.Context, id string) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&playlist).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &playlist, nil
}

func (r *gormPlaylistRepository) GetUserPlaylistsByPlaylistID(ctx context.Context, playlistID string) ([]*model.UserPlaylist, error) {
	var subs []*model.UserPlaylist
	err := r.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

func (r *gormPlaylistRepository) GetUserPlaylistFile(ctx context.Context, userPlaylistID, fileID string) (*model.UserPlaylistFile, error) {
	var membership model.UserPlaylistFile
	err := r.db.WithContext(ctx).
		Where("user_playlist_id = ? AND file_id = ?", userPlaylistID, fileID).
		First(&membership).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &membership, nil
}

func (r *gormPlaylistRepository) InsertUserPlaylistFile(ctx context.Context, membership *model.UserPlaylistFile) error {
	return translateInsertError(r.db.WithContext(ctx).Create(membership).Error)
}

func (r *gormPlaylistRepository) GetMembershipsWithURL(ctx context.Context, userPlaylistID string) ([]*model.MembershipWithURL, error) {
	var rows []*model.MembershipWithURL
	err := r.db.WithContext(ctx).
		Table("user_playlist_files AS upf").
		Select("upf.id, upf.user_playlist_id, up.user_id, upf.file_id, f.source_url, upf.missing_from_remote").
		Joins("JOIN user_playlists AS up ON up.id = upf.user_playlist_id").
		Joins("JOIN files AS f ON f.id = upf.file_id").
		Where("upf.user_playlist_id = ?", userPlaylistID).
		Scan(&rows).Error
	return rows, err
}

func (r *gormPlaylistRepository) SetMissingFromRemote(ctx context.Context, membershipID string, missing bool) error {
	return r.db.WithContext(ctx).Model(&model.UserPlaylistFile{}).
		Where("id = ?", membershipID).
		Update("missing_from_remote", missing).Error
}

func (r *gormPlaylistRepository) MarkPlaylistSynchronized(ctx context.Context, playlistID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("id = ?", playlistID).
		Update("synchronized_at", at).Error
}
