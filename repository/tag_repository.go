package repository

import (
	"context"

	"Musync/model"

	"gorm.io/gorm"
)

// TagRepository 标签、标签映射与优先级的数据访问接口
type TagRepository interface {
	GetTagsByFileID(ctx context.Context, fileID string) ([]*model.Tag, error)
	GetPrimaryTag(ctx context.Context, fileID string) (*model.Tag, error)
	GetTagByFileAndSource(ctx context.Context, fileID, source string) (*model.Tag, error)
	// InsertTag returns ErrDuplicate when (file, source) already has a row.
	InsertTag(ctx context.Context, tag *model.Tag) error
	// UpdateTagResult persists status and extracted values reported by a tag plugin.
	UpdateTagResult(ctx context.Context, tag *model.Tag) error

	// GetTagMappings lists the mappings of a file with the given fixed flag.
	GetTagMappings(ctx context.Context, fileID string, fixed bool) ([]*model.TagMapping, error)
	GetTagMapping(ctx context.Context, userID, fileID string) (*model.TagMapping, error)
	InsertTagMapping(ctx context.Context, mapping *model.TagMapping) error
	UpdateTagMapping(ctx context.Context, mapping *model.TagMapping) error

	// GetTagMappingPriority returns an empty list for users without rows.
	GetTagMappingPriority(ctx context.Context, userID string) (model.PriorityList, error)
}

type gormTagRepository struct {
	db *gorm.DB
}

// NewGormTagRepository 创建 GORM 标签仓库
func NewGormTagRepository(db *gorm.DB) TagRepository {
	return &gormTagRepository{db: db}
}

func (r *gormTagRepository) GetTagsByFileID(ctx context.Context, fileID string) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("created_at ASC").
		Find(&tags).Error
	return tags, err
}

func (r *gormTagRepository) GetPrimaryTag(ctx context.Context, fileID string) (*model.Tag, error) {
	var tag model.Tag
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND is_primary = ?", fileID, true).
		First(&tag).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &tag, nil
}

func (r *gormTagRepository) GetTagByFileAndSource(ctx context.Context, fileID, source string) (*model.Tag, error) {
	var tag model.Tag
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND source = ?", fileID, source).
		First(&tag).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &tag, nil
}

func (r *gormTagRepository) InsertTag(ctx context.Context, tag *model.Tag) error {
	return translateInsertError(r.db.WithContext(ctx).Create(tag).Error)
}

func (r *gormTagRepository) UpdateTagResult(ctx context.Context, tag *model.Tag) error {
	return r.db.WithContext(ctx).Model(&model.Tag{}).
		Where("id = ?", tag.ID).
		Updates(map[string]interface{}{
			"status":       tag.Status,
			"title":        tag.Title,
			"artist":       tag.Artist,
			"album":        tag.Album,
			"year":         tag.Year,
			"track_number": tag.TrackNumber,
			"picture_path": tag.PicturePath,
		}).Error
}

func (r *gormTagRepository) GetTagMappings(ctx context.Context, fileID string, fixed bool) ([]*model.TagMapping, error) {
	var mappings []*model.TagMapping
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND fixed = ?", fileID, fixed).
		Find(&mappings).Error
	return mappings, err
}

func (r *gormTagRepository) GetTagMapping(ctx context.Context, userID, fileID string) (*model.TagMapping, error) {
	var mapping model.TagMapping
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		First(&mapping).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &mapping, nil
}

func (r *gormTagRepository) InsertTagMapping(ctx context.Context, mapping *model.TagMapping) error {
	return translateInsertError(r.db.WithContext(ctx).Create(mapping).Error)
}

// UpdateTagMapping 只更新未被用户锁定的映射，避免覆盖并发的手动编辑
func (r *gormTagRepository) UpdateTagMapping(ctx context.Context, mapping *model.TagMapping) error {
	return r.db.WithContext(ctx).Model(&model.TagMapping{}).
		Where("id = ? AND fixed = ?", mapping.ID, false).
		Updates(map[string]interface{}{
			"title":        mapping.Title,
			"artist":       mapping.Artist,
			"album":        mapping.Album,
			"picture":      mapping.Picture,
			"year":         mapping.Year,
			"track_number": mapping.TrackNumber,
			"auto_merged":  mapping.AutoMerged,
		}).Error
}

func (r *gormTagRepository) GetTagMappingPriority(ctx context.Context, userID string) (model.PriorityList, error) {
	var rows []model.TagMappingPriority
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("field ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return BuildPriorityList(rows), nil
}

// BuildPriorityList groups priority rows by field in position order.
func BuildPriorityList(rows []model.TagMappingPriority) model.PriorityList {
	list := make(model.PriorityList)
	for _, row := range rows {
		list[row.Field] = append(list[row.Field], row.SourceID)
	}
	return list
}
