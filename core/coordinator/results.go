package coordinator

import (
	"context"
	"fmt"

	"Musync/logger"
	"Musync/model"
)

// FileResult is reported by the download plugin once a download ends.
type FileResult struct {
	FileID string       `json:"file_id"`
	Status model.Status `json:"status"`
}

// TagResult is reported by a tag plugin once extraction for one source ends.
type TagResult struct {
	FileID      string       `json:"file_id"`
	SourceID    string       `json:"source_id"`
	Status      model.Status `json:"status"`
	Title       *string      `json:"title,omitempty"`
	Artist      *string      `json:"artist,omitempty"`
	Album       *string      `json:"album,omitempty"`
	Year        *int         `json:"year,omitempty"`
	TrackNumber *int         `json:"track_number,omitempty"`
	PictureURL  string       `json:"picture_url,omitempty"`
}

// ApplyFileResult records a download outcome and re-runs reconciliation.
// Results that would move the file backwards are stale redeliveries and are ignored.
func (c *FileCoordinator) ApplyFileResult(ctx context.Context, res FileResult) error {
	if res.Status != model.StatusDownloaded && res.Status != model.StatusError {
		return fmt.Errorf("%w: file result %q", ErrInvalidResult, res.Status)
	}

	file, err := c.files.GetFileByID(ctx, res.FileID)
	if err != nil {
		return fmt.Errorf("get file %s: %w", res.FileID, err)
	}
	if file == nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, res.FileID)
	}
	if !file.Status.CanTransitionFile(res.Status) {
		logger.Warn("[ApplyFileResult] stale result ignored",
			logger.FileID(res.FileID),
			logger.String("current", string(file.Status)),
			logger.String("reported", string(res.Status)))
		return nil
	}

	if file.Status != res.Status {
		advanced, err := c.files.AdvanceFileStatus(ctx, file.ID, file.Status, res.Status)
		if err != nil {
			return fmt.Errorf("update file %s status: %w", file.ID, err)
		}
		if !advanced {
			logger.Warn("[ApplyFileResult] file changed concurrently", logger.FileID(file.ID))
		}
	}

	return c.ProcessFile(ctx, file.ID)
}

// ApplyTagResult stores the values extracted by one source and re-runs reconciliation.
func (c *FileCoordinator) ApplyTagResult(ctx context.Context, res TagResult) error {
	if res.Status != model.StatusCompleted && res.Status != model.StatusError {
		return fmt.Errorf("%w: tag result %q", ErrInvalidResult, res.Status)
	}

	tag, err := c.tags.GetTagByFileAndSource(ctx, res.FileID, res.SourceID)
	if err != nil {
		return fmt.Errorf("get tag %s/%s: %w", res.FileID, res.SourceID, err)
	}
	if tag == nil {
		return fmt.Errorf("%w: file %s source %s", ErrTagNotFound, res.FileID, res.SourceID)
	}
	if !tag.Status.CanTransitionTag(res.Status) {
		logger.Warn("[ApplyTagResult] stale result ignored",
			logger.FileID(res.FileID),
			logger.SourceID(res.SourceID),
			logger.String("current", string(tag.Status)),
			logger.String("reported", string(res.Status)))
		return nil
	}

	tag.Status = res.Status
	if res.Status == model.StatusCompleted {
		tag.Title = res.Title
		tag.Artist = res.Artist
		tag.Album = res.Album
		tag.Year = res.Year
		tag.TrackNumber = res.TrackNumber
		if res.PictureURL != "" && c.pictures != nil {
			key, err := c.pictures.SavePicture(ctx, res.FileID, res.SourceID, res.PictureURL)
			if err != nil {
				logger.Warn("[ApplyTagResult] picture not stored",
					logger.FileID(res.FileID),
					logger.SourceID(res.SourceID),
					logger.ErrorField(err))
			} else {
				tag.PicturePath = &key
			}
		}
	}

	if err := c.tags.UpdateTagResult(ctx, tag); err != nil {
		return fmt.Errorf("update tag %s: %w", tag.ID, err)
	}
	return c.ProcessFile(ctx, res.FileID)
}
