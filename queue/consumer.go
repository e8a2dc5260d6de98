package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"Musync/logger"
)

// Handler processes one message body from queue.
type Handler interface {
	Handle(ctx context.Context, queue string, body []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, queue string, body []byte) error

func (f HandlerFunc) Handle(ctx context.Context, queue string, body []byte) error {
	return f(ctx, queue, body)
}

// Source is the part of Client the consumer needs.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration, queues ...string) (*Envelope, error)
	Retry(ctx context.Context, env *Envelope, cause error) error
	Release(ctx context.Context, env *Envelope, cause error) error
	DeadLetter(ctx context.Context, env *Envelope, cause error) error
}

// ConsumerOptions 消费者配置
type ConsumerOptions struct {
	Queues      []string
	Workers     int
	MaxRetries  int
	PollTimeout time.Duration
	// RetryDelay 首次重试前的等待，之后按尝试次数翻倍，最多 MaxRetryDelay
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// pushTimeout bounds putting a failed message back after shutdown began.
const pushTimeout = 5 * time.Second

// Consumer 多协程消费队列，失败的消息重试，超过次数进入死信队列
type Consumer struct {
	source  Source
	handler Handler
	opts    ConsumerOptions

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer 创建消费者
func NewConsumer(source Source, handler Handler, opts ConsumerOptions) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if len(opts.Queues) == 0 {
		opts.Queues = InboundQueues
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = 30 * time.Second
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = opts.RetryDelay
	}
	return &Consumer{
		source:   source,
		handler:  handler,
		opts:     opts,
		stopChan: make(chan struct{}),
	}
}

// Start 启动 worker 协程
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("[Consumer] starting",
		logger.Int("workers", c.opts.Workers),
		logger.Strings("queues", c.opts.Queues))
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.loop(ctx, i)
	}
}

// Stop 通知所有 worker 退出并等待当前消息处理完成
func (c *Consumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	logger.Info("[Consumer] stopped")
}

func (c *Consumer) loop(ctx context.Context, worker int) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		env, err := c.source.Pop(ctx, c.opts.PollTimeout, c.opts.Queues...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("[Consumer] pop failed", logger.Int("worker", worker), logger.ErrorField(err))
			select {
			case <-time.After(time.Second):
			case <-c.stopChan:
				return
			}
			continue
		}
		if env == nil {
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Consumer) dispatch(ctx context.Context, env *Envelope) {
	start := time.Now()
	err := c.handler.Handle(ctx, env.Queue, env.Body)
	if err == nil {
		logger.Debug("[Consumer] message handled",
			logger.Queue(env.Queue),
			logger.String("messageId", env.ID),
			logger.Duration("took", time.Since(start)))
		return
	}

	switch decide(env.Attempt, c.opts.MaxRetries, err, ctx.Err() != nil) {
	case actionRelease:
		logger.Warn("[Consumer] message deferred",
			logger.Queue(env.Queue),
			logger.String("messageId", env.ID),
			logger.ErrorField(err))
		c.wait(ctx, c.opts.RetryDelay)
		pushCtx, cancel := detached(ctx)
		defer cancel()
		if rerr := c.source.Release(pushCtx, env, err); rerr != nil {
			logger.Error("[Consumer] release failed", logger.String("messageId", env.ID), logger.ErrorField(rerr))
		}
	case actionRetry:
		logger.Warn("[Consumer] message failed, retrying",
			logger.Queue(env.Queue),
			logger.String("messageId", env.ID),
			logger.Int("attempt", env.Attempt+1),
			logger.ErrorField(err))
		c.wait(ctx, c.backoff(env.Attempt))
		pushCtx, cancel := detached(ctx)
		defer cancel()
		if rerr := c.source.Retry(pushCtx, env, err); rerr != nil {
			logger.Error("[Consumer] retry enqueue failed", logger.String("messageId", env.ID), logger.ErrorField(rerr))
		}
	case actionDeadLetter:
		logger.Error("[Consumer] message moved to dead letter queue",
			logger.Queue(env.Queue),
			logger.String("messageId", env.ID),
			logger.Int("attempt", env.Attempt+1),
			logger.ErrorField(err))
		pushCtx, cancel := detached(ctx)
		defer cancel()
		if derr := c.source.DeadLetter(pushCtx, env, err); derr != nil {
			logger.Error("[Consumer] dead letter enqueue failed", logger.String("messageId", env.ID), logger.ErrorField(derr))
		}
	}
}

// detached 消息已从队列取出，放回时不受关闭信号影响
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
}

// wait sleeps for d unless the consumer is shutting down.
func (c *Consumer) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.stopChan:
	case <-ctx.Done():
	}
}

func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.opts.RetryDelay
	for i := 0; i < attempt && d < c.opts.MaxRetryDelay; i++ {
		d *= 2
	}
	if d > c.opts.MaxRetryDelay {
		d = c.opts.MaxRetryDelay
	}
	return d
}

type action int

const (
	actionRetry action = iota
	actionRelease
	actionDeadLetter
)

// retryable is implemented by errors that know whether a redelivery can help.
type retryable interface {
	Retryable() bool
}

// busy marks contention that says nothing about the message itself.
type busy interface {
	Busy() bool
}

func decide(attempt, maxRetries int, err error, interrupted bool) action {
	if interrupted {
		return actionRelease
	}
	var b busy
	if errors.As(err, &b) && b.Busy() {
		return actionRelease
	}
	var r retryable
	if errors.As(err, &r) && !r.Retryable() {
		return actionDeadLetter
	}
	if attempt+1 >= maxRetries {
		return actionDeadLetter
	}
	return actionRetry
}
