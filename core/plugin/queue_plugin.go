package plugin

import (
	"context"
	"fmt"

	"Musync/logger"
	"Musync/model"
)

// Job actions understood by the external download and tagging workers.
const (
	ActionDownload  = "download"
	ActionTag       = "tag"
	ActionParseTags = "parse_tags"
)

// Job 投递给外部插件 worker 的任务
type Job struct {
	Action    string `json:"action"`
	FileID    string `json:"file_id"`
	SourceURL string `json:"source_url,omitempty"`
	Path      string `json:"path,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Publisher pushes a payload onto a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload interface{}) (string, error)
}

// QueuePlugin 把下载与标签请求投递到来源的路由队列，由外部 worker 执行
type QueuePlugin struct {
	resolver  *URLResolver
	publisher Publisher
}

// NewQueuePlugin 创建基于队列分发的插件
func NewQueuePlugin(resolver *URLResolver, publisher Publisher) *QueuePlugin {
	return &QueuePlugin{resolver: resolver, publisher: publisher}
}

// Name 返回插件标识
func (p *QueuePlugin) Name() string {
	return "queue"
}

func (p *QueuePlugin) GetSource(_ context.Context, rawURL string) (string, error) {
	return p.resolver.Source(rawURL)
}

func (p *QueuePlugin) NormalizeURL(_ context.Context, rawURL string) (string, error) {
	return p.resolver.NormalizeFileURL(rawURL)
}

func (p *QueuePlugin) NormalizePlaylistURL(_ context.Context, rawURL string) (string, error) {
	return p.resolver.NormalizePlaylistURL(rawURL)
}

func (p *QueuePlugin) DownloadFile(ctx context.Context, file *model.File, routingKey string) error {
	return p.dispatch(ctx, routingKey, Job{
		Action:    ActionDownload,
		FileID:    file.ID,
		SourceURL: file.SourceURL,
		Path:      file.Path,
		Source:    file.Source,
	})
}

func (p *QueuePlugin) TagFile(ctx context.Context, file *model.File, routingKey string) error {
	return p.dispatch(ctx, routingKey, Job{
		Action:    ActionTag,
		FileID:    file.ID,
		SourceURL: file.SourceURL,
		Path:      file.Path,
		Source:    file.Source,
	})
}

func (p *QueuePlugin) ParseTags(ctx context.Context, fileID string, routingKey string) error {
	return p.dispatch(ctx, routingKey, Job{Action: ActionParseTags, FileID: fileID})
}

func (p *QueuePlugin) dispatch(ctx context.Context, routingKey string, job Job) error {
	if routingKey == "" {
		return fmt.Errorf("empty routing key for %s job on file %s", job.Action, job.FileID)
	}
	id, err := p.publisher.Publish(ctx, routingKey, job)
	if err != nil {
		return fmt.Errorf("failed to dispatch %s job: %w", job.Action, err)
	}
	logger.Debug("[QueuePlugin] job dispatched",
		logger.String("action", job.Action),
		logger.FileID(job.FileID),
		logger.Queue(routingKey),
		logger.String("messageId", id))
	return nil
}

// DryRunPlugin resolves URLs like QueuePlugin but only logs the jobs it would dispatch.
type DryRunPlugin struct {
	resolver *URLResolver
}

// NewDryRunPlugin 创建只打印日志的插件，用于本地调试
func NewDryRunPlugin(resolver *URLResolver) *DryRunPlugin {
	return &DryRunPlugin{resolver: resolver}
}

func (p *DryRunPlugin) Name() string { return "dryrun" }

func (p *DryRunPlugin) GetSource(_ context.Context, rawURL string) (string, error) {
	return p.resolver.Source(rawURL)
}

func (p *DryRunPlugin) NormalizeURL(_ context.Context, rawURL string) (string, error) {
	return p.resolver.NormalizeFileURL(rawURL)
}

func (p *DryRunPlugin) NormalizePlaylistURL(_ context.Context, rawURL string) (string, error) {
	return p.resolver.NormalizePlaylistURL(rawURL)
}

func (p *DryRunPlugin) DownloadFile(_ context.Context, file *model.File, routingKey string) error {
	logger.Info("[DryRunPlugin] download", logger.FileID(file.ID), logger.Queue(routingKey))
	return nil
}

func (p *DryRunPlugin) TagFile(_ context.Context, file *model.File, routingKey string) error {
	logger.Info("[DryRunPlugin] tag", logger.FileID(file.ID), logger.Queue(routingKey))
	return nil
}

func (p *DryRunPlugin) ParseTags(_ context.Context, fileID string, routingKey string) error {
	logger.Info("[DryRunPlugin] parse tags", logger.FileID(fileID), logger.Queue(routingKey))
	return nil
}
