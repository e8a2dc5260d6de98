package coordinator

import (
	"context"
	"fmt"
	"time"

	"Musync/core/plugin"
	"Musync/logger"
	"Musync/model"
	"Musync/repository"

	"github.com/google/uuid"
)

// SourceProvider 来源注册表能力
type SourceProvider interface {
	GetSource(ctx context.Context, id string) (*model.Source, error)
	GetSourcesWithParsingPermission(ctx context.Context) ([]*model.Source, error)
}

// Locker provides a per-key advisory lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// PictureSaver stores a picture reported by a tag plugin and returns its key.
type PictureSaver interface {
	SavePicture(ctx context.Context, fileID, sourceID, pictureURL string) (string, error)
}

// Dependencies 协调器依赖，Locker 与 Pictures 可为空
type Dependencies struct {
	Files     repository.FileRepository
	Tags      repository.TagRepository
	Playlists repository.PlaylistRepository
	Sources   SourceProvider

	FilePlugin plugin.FilePlugin
	TagPlugin  plugin.TagPlugin

	Locker   Locker
	LockKey  func(fileID string) string
	Pictures PictureSaver

	NewID func() string
	Now   func() time.Time
}

// FileCoordinator 文件协调器：合并多来源标签并维护用户库与设备同步状态
type FileCoordinator struct {
	files     repository.FileRepository
	tags      repository.TagRepository
	playlists repository.PlaylistRepository
	sources   SourceProvider

	filePlugin plugin.FilePlugin
	tagPlugin  plugin.TagPlugin

	locker   Locker
	lockKey  func(fileID string) string
	pictures PictureSaver

	newID func() string
	now   func() time.Time
}

// New 创建协调器
func New(deps Dependencies) *FileCoordinator {
	c := &FileCoordinator{
		files:      deps.Files,
		tags:       deps.Tags,
		playlists:  deps.Playlists,
		sources:    deps.Sources,
		filePlugin: deps.FilePlugin,
		tagPlugin:  deps.TagPlugin,
		locker:     deps.Locker,
		lockKey:    deps.LockKey,
		pictures:   deps.Pictures,
		newID:      deps.NewID,
		now:        deps.Now,
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.lockKey == nil {
		c.lockKey = func(fileID string) string { return "file:" + fileID }
	}
	return c
}

// Factory builds a fresh coordinator for every message.
type Factory func() *FileCoordinator

// NewFactory 返回按依赖构造协调器的工厂
func NewFactory(deps Dependencies) Factory {
	return func() *FileCoordinator {
		return New(deps)
	}
}

// invalidateUserFile marks the user's copy of the file changed on every device.
func (c *FileCoordinator) invalidateUserFile(ctx context.Context, userID, fileID string) error {
	userFile, err := c.files.GetUserFile(ctx, userID, fileID)
	if err != nil {
		return fmt.Errorf("get user file: %w", err)
	}
	if userFile == nil {
		logger.Warn("[Coordinator] no user file to invalidate", logger.UserID(userID), logger.FileID(fileID))
		return nil
	}
	n, err := c.files.InvalidateSynchronization(ctx, userFile.ID)
	if err != nil {
		return fmt.Errorf("invalidate synchronization: %w", err)
	}
	logger.Debug("[Coordinator] synchronization invalidated",
		logger.UserID(userID),
		logger.FileID(fileID),
		logger.Int64("devices", n))
	return nil
}
