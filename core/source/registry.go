package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"Musync/logger"
	"Musync/model"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// registryFile 注册表文件结构
type registryFile struct {
	Sources []model.Source `yaml:"sources"`
}

// Registry keeps the known sources in memory and reloads them when the file changes.
type Registry struct {
	path string

	mu      sync.RWMutex
	sources map[string]*model.Source
	ordered []*model.Source
}

// NewRegistry builds a registry from an in-memory list.
func NewRegistry(sources []model.Source) (*Registry, error) {
	r := &Registry{}
	if err := r.replace(sources); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRegistry 从 YAML 文件加载来源注册表
func LoadRegistry(path string) (*Registry, error) {
	sources, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	if err := r.replace(sources); err != nil {
		return nil, err
	}
	logger.Info("[SourceRegistry] loaded", logger.String("path", path), logger.Int("sources", len(sources)))
	return r, nil
}

func readFile(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a registry document.
func Parse(data []byte) ([]model.Source, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse source registry: %w", err)
	}
	return file.Sources, nil
}

func validate(sources []model.Source) error {
	seen := make(map[string]struct{}, len(sources))
	for i, s := range sources {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("source #%d: id is required", i)
		}
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("source %s: description (routing key) is required", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func (r *Registry) replace(sources []model.Source) error {
	if err := validate(sources); err != nil {
		return err
	}

	byID := make(map[string]*model.Source, len(sources))
	ordered := make([]*model.Source, 0, len(sources))
	for i := range sources {
		s := sources[i]
		byID[s.ID] = &s
		ordered = append(ordered, &s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	r.mu.Lock()
	r.sources = byID
	r.ordered = ordered
	r.mu.Unlock()
	return nil
}

// Reload re-reads the backing file. An invalid file keeps the previous state.
func (r *Registry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("source registry has no backing file")
	}
	sources, err := readFile(r.path)
	if err != nil {
		return err
	}
	return r.replace(sources)
}

// GetSource returns a copy of the source, or nil when unknown.
func (r *Registry) GetSource(_ context.Context, id string) (*model.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// GetSourcesWithParsingPermission lists parse-permitted sources by ascending priority.
func (r *Registry) GetSourcesWithParsingPermission(_ context.Context) ([]*model.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Source
	for _, s := range r.ordered {
		if s.AllowParsing {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// All returns every source by ascending priority.
func (r *Registry) All() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Source, 0, len(r.ordered))
	for _, s := range r.ordered {
		out = append(out, *s)
	}
	return out
}

// SourceForHost 根据 URL 的 host 找到对应来源
func (r *Registry) SourceForHost(host string) (*model.Source, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.ordered {
		for _, h := range s.Hosts {
			if strings.ToLower(strings.TrimPrefix(h, "www.")) == host {
				cp := *s
				return &cp, true
			}
		}
	}
	return nil, false
}

// Watch reloads the registry whenever its file changes, until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("source registry has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}

	// 监听目录而不是文件本身，编辑器保存时常常是重命名替换
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听目录失败: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(r.path)

		// 合并短时间内的多次写事件
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(100 * time.Millisecond)
				}
			case <-pending:
				pending = nil
				if err := r.Reload(); err != nil {
					logger.Error("[SourceRegistry] reload failed, keeping previous sources",
						logger.String("path", r.path), logger.ErrorField(err))
					continue
				}
				logger.Info("[SourceRegistry] reloaded", logger.String("path", r.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("[SourceRegistry] watcher error", logger.ErrorField(err))
			}
		}
	}()
	return nil
}
