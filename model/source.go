package model

// Source 标签/文件来源描述，来自注册表文件而非数据库
type Source struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"` // routing key
	AllowParsing bool     `json:"allowParsing" yaml:"allow_parsing"`
	Hosts        []string `json:"hosts,omitempty" yaml:"hosts"`
	Priority     int      `json:"priority" yaml:"priority"`
}

// AllModels returns every table managed by migrations.
func AllModels() []interface{} {
	return []interface{}{
		&File{},
		&Tag{},
		&TagMapping{},
		&TagMappingPriority{},
		&Playlist{},
		&UserPlaylist{},
		&UserPlaylistFile{},
		&UserFile{},
		&Device{},
		&FileSynchronization{},
	}
}
