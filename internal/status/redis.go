package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ragportal/internal/util"
	"ragportal/pkg/domain"
)

const defaultRecordTTL = 7 * 24 * time.Hour

// Redis keeps status records in one hash per (user, filename) key so they
// survive restarts and are visible to every process sharing the instance.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures the durable registry.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	TTL      time.Duration
}

// NewRedis builds a redis-backed registry.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "ragportal:status"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (r *Redis) key(user, filename string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, util.UserSlug(user), filename)
}

// Set overwrites the record hash for (user, filename).
func (r *Redis) Set(ctx context.Context, user, filename string, state domain.IndexState, detail string) error {
	key := r.key(user, filename)
	payload := map[string]any{
		"user":      user,
		"filename":  filename,
		"state":     string(state),
		"detail":    detail,
		"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.client.HSet(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	_ = r.client.Expire(ctx, key, r.ttl).Err()
	return nil
}

// Get returns the record for (user, filename).
func (r *Redis) Get(ctx context.Context, user, filename string) (domain.StatusRecord, error) {
	data, err := r.client.HGetAll(ctx, r.key(user, filename)).Result()
	if err != nil {
		return domain.StatusRecord{}, fmt.Errorf("read status: %w", err)
	}
	if len(data) == 0 {
		return domain.StatusRecord{}, domain.ErrNotFound
	}
	record := domain.StatusRecord{
		User:     data["user"],
		Filename: data["filename"],
		State:    domain.IndexState(data["state"]),
		Detail:   data["detail"],
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			record.UpdatedAt = t
		}
	}
	return record, nil
}
