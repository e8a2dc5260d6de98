package model

import "time"

// Tag 单个来源对一个文件的标签提取结果，(FileID, Source) 唯一
type Tag struct {
	ID          string  `json:"id" gorm:"primaryKey;size:36"`
	FileID      string  `json:"fileId" gorm:"size:36;not null;uniqueIndex:idx_tag_file_source"`
	Source      string  `json:"source" gorm:"size:64;not null;uniqueIndex:idx_tag_file_source"`
	IsPrimary   bool    `json:"isPrimary" gorm:"not null;default:false"`
	Status      Status  `json:"status" gorm:"size:2;not null;default:'CR'"`
	Title       *string `json:"title,omitempty" gorm:"size:255"`
	Artist      *string `json:"artist,omitempty" gorm:"size:255"`
	Album       *string `json:"album,omitempty" gorm:"size:255"`
	Year        *int    `json:"year,omitempty"`
	TrackNumber *int    `json:"trackNumber,omitempty"`
	PicturePath *string `json:"picturePath,omitempty" gorm:"size:255"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Tag) TableName() string {
	return "tags"
}

// HasValue reports whether the tag carries a non-null value for field.
func (t *Tag) HasValue(field Field) bool {
	switch field {
	case FieldTitle:
		return t.Title != nil
	case FieldArtist:
		return t.Artist != nil
	case FieldAlbum:
		return t.Album != nil
	case FieldPicture:
		return t.PicturePath != nil
	case FieldYear:
		return t.Year != nil
	case FieldTrackNumber:
		return t.TrackNumber != nil
	}
	return false
}

// Field 可合并的标签字段
type Field string

const (
	FieldTitle       Field = "title"
	FieldArtist      Field = "artist"
	FieldAlbum       Field = "album"
	FieldPicture     Field = "picture"
	FieldYear        Field = "year"
	FieldTrackNumber Field = "track_number"
)

// Fields lists the mergeable fields in a stable order.
var Fields = []Field{FieldTitle, FieldArtist, FieldAlbum, FieldPicture, FieldYear, FieldTrackNumber}

// TagMapping 每个 (user, file) 的合并视图，字段存放的是来源 ID 而不是值
type TagMapping struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	UserID      string `json:"userId" gorm:"size:36;not null;uniqueIndex:idx_mapping_user_file"`
	FileID      string `json:"fileId" gorm:"size:36;not null;uniqueIndex:idx_mapping_user_file;index"`
	Title       string `json:"title" gorm:"size:64"`
	Artist      string `json:"artist" gorm:"size:64"`
	Album       string `json:"album" gorm:"size:64"`
	Picture     string `json:"picture" gorm:"size:64"`
	Year        string `json:"year" gorm:"size:64"`
	TrackNumber string `json:"trackNumber" gorm:"size:64"`
	// Fixed 用户手动编辑过，自动合并不再覆盖
	Fixed bool `json:"fixed" gorm:"not null;default:false;index"`
	// AutoMerged 由协调器根据完整标签集合并生成
	AutoMerged bool `json:"autoMerged" gorm:"not null;default:false"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (TagMapping) TableName() string {
	return "tag_mappings"
}

// NewTagMappingStub builds a mapping with every field pointing at source.
func NewTagMappingStub(id, userID, fileID, source string) *TagMapping {
	m := &TagMapping{ID: id, UserID: userID, FileID: fileID}
	for _, f := range Fields {
		m.Set(f, source)
	}
	return m
}

// Get returns the source id selected for field.
func (m *TagMapping) Get(field Field) string {
	switch field {
	case FieldTitle:
		return m.Title
	case FieldArtist:
		return m.Artist
	case FieldAlbum:
		return m.Album
	case FieldPicture:
		return m.Picture
	case FieldYear:
		return m.Year
	case FieldTrackNumber:
		return m.TrackNumber
	}
	return ""
}

// Set selects source for field.
func (m *TagMapping) Set(field Field, source string) {
	switch field {
	case FieldTitle:
		m.Title = source
	case FieldArtist:
		m.Artist = source
	case FieldAlbum:
		m.Album = source
	case FieldPicture:
		m.Picture = source
	case FieldYear:
		m.Year = source
	case FieldTrackNumber:
		m.TrackNumber = source
	}
}

// SameSources reports whether both mappings select the same source for every field.
func (m *TagMapping) SameSources(other *TagMapping) bool {
	for _, f := range Fields {
		if m.Get(f) != other.Get(f) {
			return false
		}
	}
	return true
}

// TagMappingPriority 一行表示某用户某字段优先级列表中的一个位置
type TagMappingPriority struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	UserID   string `json:"userId" gorm:"size:36;not null;uniqueIndex:idx_priority_user_field_pos"`
	Field    Field  `json:"field" gorm:"size:16;not null;uniqueIndex:idx_priority_user_field_pos"`
	SourceID string `json:"sourceId" gorm:"size:64;not null"`
	Position int    `json:"position" gorm:"not null;uniqueIndex:idx_priority_user_field_pos"`
}

func (TagMappingPriority) TableName() string {
	return "tag_mapping_priorities"
}

// PriorityList is the per-field ordered source preference of one user.
type PriorityList map[Field][]string

// Empty reports whether no field carries any preference.
func (p PriorityList) Empty() bool {
	for _, v := range p {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// UniformPriority uses the same ordering for every field.
func UniformPriority(sources []string) PriorityList {
	p := make(PriorityList, len(Fields))
	for _, f := range Fields {
		p[f] = append([]string(nil), sources...)
	}
	return p
}
