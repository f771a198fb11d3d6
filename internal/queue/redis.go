package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ragportal/pkg/domain"
)

// RedisScheduler delivers jobs through a redis stream with a consumer group.
// Jobs enqueued before a crash stay pending and are reclaimed by XAutoClaim
// once a worker comes back.
type RedisScheduler struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

// RedisConfig configures the stream scheduler. Zero values fall back to
// sensible defaults.
type RedisConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// NewRedisScheduler builds the scheduler and validates its addressing.
func NewRedisScheduler(cfg RedisConfig) (*RedisScheduler, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "ragportal:ingest"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "indexers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisScheduler{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue appends the job to the stream. The XAdd reply is the durability
// point: once it succeeds the job survives restarts.
func (q *RedisScheduler) Enqueue(ctx context.Context, job domain.IngestJob) error {
	if strings.TrimSpace(job.User) == "" || strings.TrimSpace(job.Filename) == "" {
		return errors.New("job user and filename required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":   job.ID,
			"user":     job.User,
			"filename": job.Filename,
			"enqueued": job.Enqueued.UTC().Format(time.RFC3339Nano),
		},
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisScheduler) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

// ensureGroup creates the consumer group from the beginning of the stream so
// jobs enqueued while no worker was running are still delivered.
func (q *RedisScheduler) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			// best-effort; errors will surface on consume
		}
	})
}

func (q *RedisScheduler) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

// claimPending takes over messages another consumer left idle, so a worker
// crash mid-job does not strand the job.
func (q *RedisScheduler) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// handleMessage runs the handler once and acknowledges. The handler records
// failures in the status registry, so there is no redelivery on error.
func (q *RedisScheduler) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	job := decodeJob(msg)
	if job.User == "" || job.Filename == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	handler(ctx, job)
	q.ackAndDel(ctx, msg.ID)
}

func (q *RedisScheduler) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func decodeJob(msg redis.XMessage) domain.IngestJob {
	job := domain.IngestJob{}
	job.ID, _ = msg.Values["job_id"].(string)
	job.User, _ = msg.Values["user"].(string)
	job.Filename, _ = msg.Values["filename"].(string)
	if v, _ := msg.Values["enqueued"].(string); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.Enqueued = t
		}
	}
	return job
}
