package docstore

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestLocalSaveFetchRemove(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	payload := "pdf bytes"
	if err := store.Save(ctx, "alice@example.com", "report.pdf", strings.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("save: %v", err)
	}

	path, cleanup, err := store.Fetch(ctx, "alice@example.com", "report.pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer cleanup()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("staged content = %q, want %q", data, payload)
	}

	if err := store.Remove(ctx, "alice@example.com", "report.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := store.Fetch(ctx, "alice@example.com", "report.pdf"); err == nil {
		t.Fatalf("expected fetch to fail after remove")
	}

	// Removing twice is fine.
	if err := store.Remove(ctx, "alice@example.com", "report.pdf"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestLocalIsolatesUsers(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "alice@example.com", "doc.txt", strings.NewReader("alice"), 5); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, _, err := store.Fetch(ctx, "bob@example.com", "doc.txt"); err == nil {
		t.Fatalf("expected bob's fetch of alice's file to fail")
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		"  spaced.pdf  ":    "spaced.pdf",
		"":                  "upload",
		"/abs/path/doc.pdf": "doc.pdf",
	}
	for in, want := range cases {
		if got := SafeFilename(in); got != want {
			t.Fatalf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
