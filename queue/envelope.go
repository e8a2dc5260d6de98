package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 协调器消费的队列
const (
	FileCheck     = "file-check"
	PlaylistParse = "playlist-parse"
	FileResult    = "file-result"
	TagResult     = "tag-result"
)

// InboundQueues lists every queue the worker consumes.
var InboundQueues = []string{FileCheck, PlaylistParse, FileResult, TagResult}

// Envelope 队列中传输的消息外壳
type Envelope struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Body       json.RawMessage `json:"body"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewEnvelope wraps payload for queue. A []byte or json.RawMessage payload is used as-is.
func NewEnvelope(queue string, payload interface{}) (*Envelope, error) {
	var body json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		body = p
	case []byte:
		body = json.RawMessage(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for %s: %w", queue, err)
		}
		body = data
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("payload for %s is not valid JSON", queue)
	}

	return &Envelope{
		ID:         uuid.NewString(),
		Queue:      queue,
		EnqueuedAt: time.Now().UTC(),
		Body:       body,
	}, nil
}

// DecodeEnvelope parses a raw list entry.
func DecodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// DeadLetterQueue 死信队列名
func DeadLetterQueue(queue string) string {
	return queue + ":dead"
}
