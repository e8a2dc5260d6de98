package coordinator

import (
	"context"
	"fmt"

	"Musync/logger"
	"Musync/model"
)

// ProcessFile reconciles a file against its current persisted tag state.
// It is safe to call on every status change; calls that find nothing to do are no-ops.
func (c *FileCoordinator) ProcessFile(ctx context.Context, fileID string) error {
	if c.locker != nil {
		release, acquired, err := c.locker.Acquire(ctx, c.lockKey(fileID))
		if err != nil {
			return fmt.Errorf("lock file %s: %w", fileID, err)
		}
		if !acquired {
			return fmt.Errorf("%w: %s", ErrFileBusy, fileID)
		}
		defer release()
	}
	return c.processFile(ctx, fileID)
}

func (c *FileCoordinator) processFile(ctx context.Context, fileID string) error {
	file, err := c.files.GetFileByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get file %s: %w", fileID, err)
	}
	if file == nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if file.Status != model.StatusDownloaded && file.Status != model.StatusCompleted {
		logger.Debug("[ProcessFile] file not ready", logger.FileID(fileID), logger.String("status", string(file.Status)))
		return nil
	}

	tags, err := c.tags.GetTagsByFileID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get tags for %s: %w", fileID, err)
	}
	if len(tags) == 0 {
		return nil
	}

	if len(tags) == 1 {
		if tags[0].Status != model.StatusCompleted {
			return nil
		}
		requested, err := c.RequestTagging(ctx, fileID)
		if err != nil {
			return err
		}
		if requested > 0 {
			logger.Info("[ProcessFile] secondary tagging requested",
				logger.FileID(fileID), logger.Int("sources", requested))
			return nil
		}
		// 没有允许解析的来源，主标签即完整标签集
	} else {
		for _, t := range tags {
			if !t.Status.IsTerminal() {
				logger.Debug("[ProcessFile] waiting for tags", logger.FileID(fileID), logger.SourceID(t.Source))
				return nil
			}
		}
	}

	if err := c.rebuildMappings(ctx, fileID, tags); err != nil {
		return err
	}

	if file.Status == model.StatusDownloaded {
		advanced, err := c.files.AdvanceFileStatus(ctx, fileID, model.StatusDownloaded, model.StatusCompleted)
		if err != nil {
			return fmt.Errorf("advance file %s: %w", fileID, err)
		}
		if advanced {
			logger.Info("[ProcessFile] file completed", logger.FileID(fileID))
		}
	}
	return nil
}

func (c *FileCoordinator) rebuildMappings(ctx context.Context, fileID string, tags []*model.Tag) error {
	mappings, err := c.tags.GetTagMappings(ctx, fileID, false)
	if err != nil {
		return fmt.Errorf("get tag mappings for %s: %w", fileID, err)
	}

	var defaults model.PriorityList
	fallback := func() (model.PriorityList, error) {
		if defaults != nil {
			return defaults, nil
		}
		p, err := c.defaultPriority(ctx)
		if err != nil {
			return nil, err
		}
		defaults = p
		return p, nil
	}

	changed := 0
	for _, mapping := range mappings {
		priority, err := c.priorityFor(ctx, mapping.UserID, fallback)
		if err != nil {
			return err
		}
		rebuilt, err := RebuildTagMapping(mapping, priority, tags)
		if err != nil {
			return err
		}
		// 重复投递时结果不变，不再使设备同步失效
		if mapping.AutoMerged && mapping.SameSources(rebuilt) {
			continue
		}
		if err := c.tags.UpdateTagMapping(ctx, rebuilt); err != nil {
			return fmt.Errorf("update tag mapping %s: %w", mapping.ID, err)
		}
		if err := c.invalidateUserFile(ctx, mapping.UserID, fileID); err != nil {
			return err
		}
		changed++
	}

	logger.Info("[ProcessFile] tag mappings rebuilt", logger.FileID(fileID),
		logger.Int("mappings", len(mappings)), logger.Int("changed", changed))
	return nil
}
