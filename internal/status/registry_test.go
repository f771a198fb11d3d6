package status

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"ragportal/pkg/domain"
)

func TestMemorySetGetOverwrites(t *testing.T) {
	registry := NewMemory()
	ctx := context.Background()

	if err := registry.Set(ctx, "alice@example.com", "report.pdf", domain.StateQueued, ""); err != nil {
		t.Fatalf("set queued: %v", err)
	}
	record, err := registry.Get(ctx, "alice@example.com", "report.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != domain.StateQueued {
		t.Fatalf("state = %q, want queued", record.State)
	}

	if err := registry.Set(ctx, "alice@example.com", "report.pdf", domain.StateError, "open pdf: bad header"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	record, err = registry.Get(ctx, "alice@example.com", "report.pdf")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if record.State != domain.StateError {
		t.Fatalf("state = %q, want error", record.State)
	}
	if record.Detail == "" {
		t.Fatalf("expected error detail to be kept")
	}
}

func TestMemoryGetUnknownKeyIsNotFound(t *testing.T) {
	registry := NewMemory()
	_, err := registry.Get(context.Background(), "alice@example.com", "never-uploaded.pdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryKeysAreScopedPerUser(t *testing.T) {
	registry := NewMemory()
	ctx := context.Background()

	if err := registry.Set(ctx, "alice@example.com", "doc.pdf", domain.StateDone, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := registry.Get(ctx, "bob@example.com", "doc.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected bob's lookup to miss, got %v", err)
	}
}

func TestRedisSetGet(t *testing.T) {
	srv := miniredis.RunT(t)
	registry, err := NewRedis(RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis registry: %v", err)
	}
	ctx := context.Background()

	if err := registry.Set(ctx, "alice@example.com", "report.pdf", domain.StateProcessing, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	record, err := registry.Get(ctx, "alice@example.com", "report.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != domain.StateProcessing {
		t.Fatalf("state = %q, want processing", record.State)
	}
	if record.Filename != "report.pdf" {
		t.Fatalf("filename = %q", record.Filename)
	}
	if record.UpdatedAt.IsZero() {
		t.Fatalf("expected updatedAt to be set")
	}
}

func TestRedisGetUnknownKeyIsNotFound(t *testing.T) {
	srv := miniredis.RunT(t)
	registry, err := NewRedis(RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis registry: %v", err)
	}
	_, err = registry.Get(context.Background(), "alice@example.com", "missing.pdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
