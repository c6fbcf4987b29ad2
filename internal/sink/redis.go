package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/monitor"
	"github.com/muurk/openbci/internal/protocol"
)

// RedisClient is the part of *redis.Client the publisher uses
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisOptions configures a RedisPublisher
type RedisOptions struct {
	Channel    string // pub/sub channel for live samples
	HistoryKey string // list holding recent samples; empty disables
	History    int64  // list length cap
	QueueSize  int
	Timeout    time.Duration // per-sample command timeout
}

// DialRedis connects and pings the server
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	logging.Info("Redis connected", zap.String("addr", addr), zap.Int("db", db))
	return client, nil
}

// RedisPublisher republishes samples to Redis from a worker goroutine.
// HandleSample never blocks; when the queue is full the sample is dropped
// and counted.
type RedisPublisher struct {
	client RedisClient
	opts   RedisOptions

	queue     chan protocol.Sample
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisPublisher starts the publishing worker
func NewRedisPublisher(client RedisClient, opts RedisOptions) *RedisPublisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	p := &RedisPublisher{
		client: client,
		opts:   opts,
		queue:  make(chan protocol.Sample, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// HandleSample queues s for publishing. It is a bus subscriber.
func (p *RedisPublisher) HandleSample(s protocol.Sample) {
	select {
	case <-p.quit:
		return
	default:
	}
	select {
	case p.queue <- s:
	default:
		monitor.ConsumerDrops.WithLabelValues("redis").Inc()
	}
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case s := <-p.queue:
			if err := p.publish(s); err != nil {
				logging.Warn("Redis publish failed",
					zap.String("channel", p.opts.Channel),
					zap.Error(err),
				)
			}
		}
	}
}

func (p *RedisPublisher) publish(s protocol.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.opts.Channel, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if p.opts.HistoryKey == "" || p.opts.History <= 0 {
		return nil
	}
	if err := p.client.LPush(ctx, p.opts.HistoryKey, data).Err(); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	if err := p.client.LTrim(ctx, p.opts.HistoryKey, 0, p.opts.History-1).Err(); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// Close stops the worker and closes the client. Queued samples that
// were not yet published are dropped.
func (p *RedisPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
		err = p.client.Close()
	})
	return err
}
