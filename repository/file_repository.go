package repository

import (
	"context"
	"time"

	"Musync/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileRepository 文件、用户文件与设备同步记录的数据访问接口
type FileRepository interface {
	GetFileByID(ctx context.Context, id string) (*model.File, error)
	GetFileByURL(ctx context.Context, sourceURL string) (*model.File, error)
	// InsertFile returns ErrDuplicate when the url is already known.
	InsertFile(ctx context.Context, file *model.File) error
	// AdvanceFileStatus moves the file from -> to and reports whether this call did it.
	AdvanceFileStatus(ctx context.Context, id string, from, to model.Status) (bool, error)

	GetUserFile(ctx context.Context, userID, fileID string) (*model.UserFile, error)
	InsertUserFile(ctx context.Context, userFile *model.UserFile) error

	GetDeviceIDsByUser(ctx context.Context, userID string) ([]string, error)
	// InsertSynchronization is insert-if-absent on (user file, device).
	InsertSynchronization(ctx context.Context, sync *model.FileSynchronization) (bool, error)
	// InvalidateSynchronization marks every device record of the user file unsynchronized and changed.
	InvalidateSynchronization(ctx context.Context, userFileID string) (int64, error)
}

type gormFileRepository struct {
	db *gorm.DB
}

// NewGormFileRepository 创建 GORM 文件仓库
func NewGormFileRepository(db *gorm.DB) FileRepository {
	return &gormFileRepository{db: db}
}

func (r *gormFileRepository) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &file, nil
}

func (r *gormFileRepository) GetFileByURL(ctx context.Context, sourceURL string) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).Where("source_url = ?", sourceURL).First(&file).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &file, nil
}

func (r *gormFileRepository) InsertFile(ctx context.Context, file *model.File) error {
	return translateInsertError(r.db.WithContext(ctx).Create(file).Error)
}

// AdvanceFileStatus 条件更新，保证同一迁移最多成功一次
func (r *gormFileRepository) AdvanceFileStatus(ctx context.Context, id string, from, to model.Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormFileRepository) GetUserFile(ctx context.Context, userID, fileID string) (*model.UserFile, error) {
	var uf model.UserFile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		First(&uf).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &uf, nil
}

func (r *gormFileRepository) InsertUserFile(ctx context.Context, userFile *model.UserFile) error {
	return translateInsertError(r.db.WithContext(ctx).Create(userFile).Error)
}

func (r *gormFileRepository) GetDeviceIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Device{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *gormFileRepository) InsertSynchronization(ctx context.Context, sync *model.FileSynchronization) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sync)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormFileRepository) InvalidateSynchronization(ctx context.Context, userFileID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.FileSynchronization{}).
		Where("user_file_id = ?", userFileID).
		Updates(map[string]interface{}{
			"is_synchronized": false,
			"was_changed":     true,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
