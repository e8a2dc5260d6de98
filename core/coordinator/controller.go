package coordinator

import (
	"context"
	"encoding/json"

	"Musync/logger"
	"Musync/queue"
)

// FileCheckMessage asks for a file to be reconciled.
type FileCheckMessage struct {
	FileID string `json:"file_id"`
}

// PlaylistParseMessage carries the current remote contents of a playlist.
type PlaylistParseMessage struct {
	PlaylistID string   `json:"playlist_id"`
	Files      []string `json:"files"`
}

// Controller 消息入口：校验消息体，按队列分发给新建的协调器
type Controller struct {
	newCoordinator Factory
}

// NewController 创建消息控制器
func NewController(factory Factory) *Controller {
	return &Controller{newCoordinator: factory}
}

// Handle implements queue.Handler. Malformed messages are logged and dropped.
func (c *Controller) Handle(ctx context.Context, queueName string, body []byte) error {
	var err error
	switch queueName {
	case queue.FileCheck:
		var msg FileCheckMessage
		if !decode(queueName, body, &msg) {
			return nil
		}
		if msg.FileID == "" {
			drop(queueName, "file_id is required")
			return nil
		}
		err = c.newCoordinator().ProcessFile(ctx, msg.FileID)

	case queue.PlaylistParse:
		var msg PlaylistParseMessage
		if !decode(queueName, body, &msg) {
			return nil
		}
		if msg.PlaylistID == "" || msg.Files == nil {
			drop(queueName, "playlist_id and files are required")
			return nil
		}
		err = c.newCoordinator().ProcessPlaylist(ctx, msg.PlaylistID, msg.Files)

	case queue.FileResult:
		var msg FileResult
		if !decode(queueName, body, &msg) {
			return nil
		}
		if msg.FileID == "" || !msg.Status.Valid() {
			drop(queueName, "file_id and a known status are required")
			return nil
		}
		err = c.newCoordinator().ApplyFileResult(ctx, msg)

	case queue.TagResult:
		var msg TagResult
		if !decode(queueName, body, &msg) {
			return nil
		}
		if msg.FileID == "" || msg.SourceID == "" || !msg.Status.Valid() {
			drop(queueName, "file_id, source_id and a known status are required")
			return nil
		}
		err = c.newCoordinator().ApplyTagResult(ctx, msg)

	default:
		drop(queueName, "unknown queue")
		return nil
	}

	if err != nil {
		logger.Error("[Controller] message failed", logger.Queue(queueName), logger.ErrorField(err))
	}
	return err
}

func decode(queueName string, body []byte, v interface{}) bool {
	if err := json.Unmarshal(body, v); err != nil {
		logger.Warn("[Controller] dropping undecodable message", logger.Queue(queueName), logger.ErrorField(err))
		return false
	}
	return true
}

func drop(queueName, reason string) {
	logger.Warn("[Controller] dropping malformed message", logger.Queue(queueName), logger.String("reason", reason))
}
