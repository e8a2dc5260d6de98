package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"Musync/logger"
	"Musync/model"
	"Musync/repository"
)

// DownloadFile adds the file behind rawURL to playlistID for every subscribed user.
// The file row is shared across playlists: the first ingestion of a url creates it.
func (c *FileCoordinator) DownloadFile(ctx context.Context, playlistID, rawURL string) error {
	sourceID, err := c.filePlugin.GetSource(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("resolve source of %s: %w", rawURL, err)
	}
	normalized, err := c.filePlugin.NormalizeURL(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", rawURL, err)
	}

	file, err := c.ensureFile(ctx, sourceID, normalized)
	if err != nil {
		return err
	}

	subs, err := c.playlists.GetUserPlaylistsByPlaylistID(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("get subscriptions of playlist %s: %w", playlistID, err)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *model.UserPlaylist) {
			defer wg.Done()
			if err := c.ingestForUser(ctx, sub, file, sourceID); err != nil {
				logger.Error("[DownloadFile] user ingestion failed",
					logger.UserID(sub.UserID),
					logger.PlaylistID(playlistID),
					logger.FileID(file.ID),
					logger.ErrorField(err))
			}
		}(sub)
	}
	wg.Wait()
	return nil
}

// ensureFile returns the file for url, creating it with its primary tag stub if unseen.
// A file still in CR is handed to the plugins again, since an earlier request may never have reached them.
func (c *FileCoordinator) ensureFile(ctx context.Context, sourceID, url string) (*model.File, error) {
	existing, err := c.files.GetFileByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get file by url: %w", err)
	}
	if existing != nil {
		if existing.Status != model.StatusCreated {
			return existing, nil
		}
		logger.Info("[DownloadFile] file still created, requesting again", logger.FileID(existing.ID))
		if err := c.startFile(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	file := &model.File{
		ID:        c.newID(),
		Path:      c.newID(),
		SourceURL: url,
		Source:    sourceID,
		Status:    model.StatusCreated,
	}
	if err := c.files.InsertFile(ctx, file); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("insert file: %w", err)
		}
		// 并发导入同一 URL，以先写入者为准
		winner, err := c.files.GetFileByURL(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("get file by url: %w", err)
		}
		if winner == nil {
			return nil, fmt.Errorf("file for %s vanished after duplicate insert", url)
		}
		return winner, nil
	}

	logger.Info("[DownloadFile] new file", logger.FileID(file.ID), logger.SourceID(sourceID), logger.String("url", url))

	if err := c.startFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// startFile makes sure the primary tag stub exists and requests processing.
func (c *FileCoordinator) startFile(ctx context.Context, file *model.File) error {
	primary, err := c.tags.GetPrimaryTag(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("get primary tag: %w", err)
	}
	if primary == nil {
		primary = &model.Tag{
			ID:        c.newID(),
			FileID:    file.ID,
			Source:    file.Source,
			IsPrimary: true,
			Status:    model.StatusCreated,
		}
		if err := c.tags.InsertTag(ctx, primary); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("insert primary tag: %w", err)
		}
	}
	return c.RequestFileProcessing(ctx, file)
}

// ingestForUser gives the user the file and its per-device records. The membership row
// is written last, so a partial failure is repaired by the next ingestion of the url.
func (c *FileCoordinator) ingestForUser(ctx context.Context, sub *model.UserPlaylist, file *model.File, sourceID string) error {
	existing, err := c.playlists.GetUserPlaylistFile(ctx, sub.ID, file.ID)
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}

	userFile, err := c.ensureUserFile(ctx, sub.UserID, file.ID)
	if err != nil {
		return err
	}

	mapping, err := c.tags.GetTagMapping(ctx, sub.UserID, file.ID)
	if err != nil {
		return fmt.Errorf("get tag mapping: %w", err)
	}
	if mapping == nil {
		stub := model.NewTagMappingStub(c.newID(), sub.UserID, file.ID, sourceID)
		if err := c.tags.InsertTagMapping(ctx, stub); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("insert tag mapping: %w", err)
		}
	}

	devices, err := c.files.GetDeviceIDsByUser(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("get devices: %w", err)
	}
	for _, deviceID := range devices {
		_, err := c.files.InsertSynchronization(ctx, &model.FileSynchronization{
			ID:         c.newID(),
			UserFileID: userFile.ID,
			DeviceID:   deviceID,
		})
		if err != nil {
			return fmt.Errorf("insert synchronization for device %s: %w", deviceID, err)
		}
	}

	if existing != nil {
		return nil
	}
	membership := &model.UserPlaylistFile{
		ID:             c.newID(),
		UserPlaylistID: sub.ID,
		FileID:         file.ID,
	}
	if err := c.playlists.InsertUserPlaylistFile(ctx, membership); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("insert membership: %w", err)
	}

	logger.Debug("[DownloadFile] file added for user",
		logger.UserID(sub.UserID),
		logger.FileID(file.ID),
		logger.Int("devices", len(devices)))
	return nil
}

func (c *FileCoordinator) ensureUserFile(ctx context.Context, userID, fileID string) (*model.UserFile, error) {
	userFile, err := c.files.GetUserFile(ctx, userID, fileID)
	if err != nil {
		return nil, fmt.Errorf("get user file: %w", err)
	}
	if userFile != nil {
		return userFile, nil
	}

	userFile = &model.UserFile{ID: c.newID(), UserID: userID, FileID: fileID, AddedAt: c.now()}
	if err := c.files.InsertUserFile(ctx, userFile); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("insert user file: %w", err)
		}
		// 同一用户的两个歌单同时导入
		userFile, err = c.files.GetUserFile(ctx, userID, fileID)
		if err != nil {
			return nil, fmt.Errorf("get user file: %w", err)
		}
		if userFile == nil {
			return nil, fmt.Errorf("user file %s/%s vanished after duplicate insert", userID, fileID)
		}
	}
	return userFile, nil
}

// RequestFileProcessing hands a new file to the download plugin and then to the
// tag plugin for its primary tagging pass.
func (c *FileCoordinator) RequestFileProcessing(ctx context.Context, file *model.File) error {
	src, err := c.sources.GetSource(ctx, file.Source)
	if err != nil {
		return fmt.Errorf("get source %s: %w", file.Source, err)
	}
	if src == nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, file.Source)
	}

	if err := c.filePlugin.DownloadFile(ctx, file, src.Description); err != nil {
		return fmt.Errorf("request download of %s: %w", file.ID, err)
	}
	if err := c.tagPlugin.TagFile(ctx, file, src.Description); err != nil {
		return fmt.Errorf("request tagging of %s: %w", file.ID, err)
	}
	return nil
}
