package model

import "time"

// File 规范化后的外部媒体文件，按 SourceURL 去重
type File struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Path      string    `json:"path" gorm:"size:64;not null"`
	SourceURL string    `json:"sourceUrl" gorm:"size:512;not null;uniqueIndex"`
	Source    string    `json:"source" gorm:"size:64;not null;index"`
	Status    Status    `json:"status" gorm:"size:2;not null;default:'CR';index"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (File) TableName() string {
	return "files"
}

// UserFile 用户对文件的拥有记录，同步记录挂在它下面
type UserFile struct {
	ID      string    `json:"id" gorm:"primaryKey;size:36"`
	UserID  string    `json:"userId" gorm:"size:36;not null;uniqueIndex:idx_user_file"`
	FileID  string    `json:"fileId" gorm:"size:36;not null;uniqueIndex:idx_user_file;index"`
	AddedAt time.Time `json:"addedAt"`
}

func (UserFile) TableName() string {
	return "user_files"
}

// Device 用户注册的同步设备
type Device struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId" gorm:"size:36;not null;index"`
	Name      string    `json:"name" gorm:"size:100"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Device) TableName() string {
	return "devices"
}

// FileSynchronization 每个 (user file, device) 的同步标记
type FileSynchronization struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	UserFileID     string    `json:"userFileId" gorm:"size:36;not null;uniqueIndex:idx_sync_user_file_device"`
	DeviceID       string    `json:"deviceId" gorm:"size:36;not null;uniqueIndex:idx_sync_user_file_device"`
	IsSynchronized bool      `json:"isSynchronized" gorm:"not null;default:false"`
	WasChanged     bool      `json:"wasChanged" gorm:"not null;default:false"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (FileSynchronization) TableName() string {
	return "file_synchronizations"
}
