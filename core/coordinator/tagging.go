package coordinator

import (
	"context"
	"errors"
	"fmt"

	"Musync/logger"
	"Musync/model"
	"Musync/repository"

	"golang.org/x/sync/errgroup"
)

// RequestTagging asks every parse-permitted source to extract tags for the file.
// An existing tag row for any requested source aborts the whole fan-out.
// It returns the number of sources asked.
func (c *FileCoordinator) RequestTagging(ctx context.Context, fileID string) (int, error) {
	primary, err := c.tags.GetPrimaryTag(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("get primary tag for %s: %w", fileID, err)
	}
	if primary == nil {
		return 0, fmt.Errorf("%w: file %s", ErrPrimaryTagMissing, fileID)
	}
	if primary.Status != model.StatusCompleted {
		return 0, fmt.Errorf("%w: file %s is %s", ErrPrimaryTagNotReady, fileID, primary.Status)
	}

	sources, err := c.sources.GetSourcesWithParsingPermission(ctx)
	if err != nil {
		return 0, fmt.Errorf("list parsing sources: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	requested := 0
	for _, src := range sources {
		// 主来源已经有标签行
		if src.ID == primary.Source {
			continue
		}
		requested++
		g.Go(func() error {
			return c.requestSourceTagging(gctx, fileID, src)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("[RequestTagging] fan-out aborted", logger.FileID(fileID), logger.ErrorField(err))
		return 0, err
	}
	return requested, nil
}

func (c *FileCoordinator) requestSourceTagging(ctx context.Context, fileID string, src *model.Source) error {
	existing, err := c.tags.GetTagByFileAndSource(ctx, fileID, src.ID)
	if err != nil {
		return fmt.Errorf("get tag %s/%s: %w", fileID, src.ID, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: file %s source %s", ErrTaggingAlreadyRequested, fileID, src.ID)
	}

	tag := &model.Tag{
		ID:     c.newID(),
		FileID: fileID,
		Source: src.ID,
		Status: model.StatusRequested,
	}
	if err := c.tags.InsertTag(ctx, tag); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("%w: file %s source %s", ErrTaggingAlreadyRequested, fileID, src.ID)
		}
		return fmt.Errorf("insert tag %s/%s: %w", fileID, src.ID, err)
	}

	if err := c.tagPlugin.ParseTags(ctx, fileID, src.Description); err != nil {
		return fmt.Errorf("parse tags %s/%s: %w", fileID, src.ID, err)
	}
	logger.Debug("[RequestTagging] source requested", logger.FileID(fileID), logger.SourceID(src.ID))
	return nil
}
