package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"Musync/model"
)

// FilePlugin 负责识别来源、规范化 URL 并提交下载任务
type FilePlugin interface {
	// Name 插件标识，对应配置项 FILE_PLUGIN
	Name() string

	// GetSource 返回 URL 所属的来源 ID
	GetSource(ctx context.Context, rawURL string) (string, error)

	// NormalizeURL 返回文件的规范 URL，同一首歌的不同写法必须得到相同结果
	NormalizeURL(ctx context.Context, rawURL string) (string, error)

	// NormalizePlaylistURL 返回歌单的规范 URL
	NormalizePlaylistURL(ctx context.Context, rawURL string) (string, error)

	// DownloadFile 提交下载任务，完成情况通过 file-result 消息回报
	DownloadFile(ctx context.Context, file *model.File, routingKey string) error
}

// TagPlugin 负责提交标签提取任务
type TagPlugin interface {
	Name() string

	// TagFile 对主来源做首次标签提取
	TagFile(ctx context.Context, file *model.File, routingKey string) error

	// ParseTags 请求次要来源解析标签，结果通过 tag-result 消息回报
	ParseTags(ctx context.Context, fileID string, routingKey string) error
}

// Manager 插件管理器
type Manager struct {
	mu          sync.RWMutex
	filePlugins map[string]FilePlugin
	tagPlugins  map[string]TagPlugin
}

// NewManager 创建插件管理器
func NewManager() *Manager {
	return &Manager{
		filePlugins: make(map[string]FilePlugin),
		tagPlugins:  make(map[string]TagPlugin),
	}
}

// RegisterFile 注册文件插件
func (m *Manager) RegisterFile(p FilePlugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filePlugins[p.Name()] = p
}

// RegisterTag 注册标签插件
func (m *Manager) RegisterTag(p TagPlugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagPlugins[p.Name()] = p
}

// File 获取指定名称的文件插件
func (m *Manager) File(name string) (FilePlugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.filePlugins[name]
	if !ok {
		return nil, fmt.Errorf("file plugin %q not registered (available: %v)", name, keys(m.filePlugins))
	}
	return p, nil
}

// Tag 获取指定名称的标签插件
func (m *Manager) Tag(name string) (TagPlugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.tagPlugins[name]
	if !ok {
		return nil, fmt.Errorf("tag plugin %q not registered (available: %v)", name, keys(m.tagPlugins))
	}
	return p, nil
}

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
