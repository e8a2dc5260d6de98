package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Musync/config"

	"github.com/redis/go-redis/v9"
)

// Client 基于 Redis list 的消息队列，LPUSH 入队，BRPOP 出队
type Client struct {
	rdb *redis.Client
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Connect 根据配置创建队列客户端
func Connect(ctx context.Context, cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect queue redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish wraps payload in an envelope and enqueues it, returning the message id.
func (c *Client) Publish(ctx context.Context, queue string, payload interface{}) (string, error) {
	env, err := NewEnvelope(queue, payload)
	if err != nil {
		return "", err
	}
	if err := c.push(ctx, queue, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

func (c *Client) push(ctx context.Context, queue string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := c.rdb.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next envelope on any of queues.
// It returns nil, nil when nothing arrived.
func (c *Client) Pop(ctx context.Context, timeout time.Duration, queues ...string) (*Envelope, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res = [key, value]
	env, err := DecodeEnvelope(res[1])
	if err != nil {
		return nil, err
	}
	if env.Queue == "" {
		env.Queue = res[0]
	}
	return env, nil
}

// Retry requeues the envelope at the back of its queue with attempt incremented.
func (c *Client) Retry(ctx context.Context, env *Envelope, cause error) error {
	next := *env
	next.Attempt++
	if cause != nil {
		next.LastError = cause.Error()
	}
	return c.push(ctx, env.Queue, &next)
}

// Release puts the envelope back without spending an attempt.
func (c *Client) Release(ctx context.Context, env *Envelope, cause error) error {
	next := *env
	if cause != nil {
		next.LastError = cause.Error()
	}
	return c.push(ctx, env.Queue, &next)
}

// DeadLetter moves the envelope to <queue>:dead.
func (c *Client) DeadLetter(ctx context.Context, env *Envelope, cause error) error {
	dead := *env
	if cause != nil {
		dead.LastError = cause.Error()
	}
	return c.push(ctx, DeadLetterQueue(env.Queue), &dead)
}

// Len returns the number of pending entries.
func (c *Client) Len(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, queue).Result()
}

// Requeue moves up to limit entries from the dead-letter list back to the live queue.
func (c *Client) Requeue(ctx context.Context, queue string, limit int) (int, error) {
	moved := 0
	for limit <= 0 || moved < limit {
		raw, err := c.rdb.RPop(ctx, DeadLetterQueue(queue)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, err
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			return moved, err
		}
		env.Attempt = 0
		env.LastError = ""
		if err := c.push(ctx, queue, env); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
