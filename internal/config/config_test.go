package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\ntokenSecret: s3cret\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 2200 || cfg.ChunkOverlap != 400 || cfg.TopK != 12 {
		t.Fatalf("unexpected defaults: size=%d overlap=%d topK=%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.TopK)
	}
	if cfg.IndexBackend != "local" || cfg.QueueBackend != "local" || cfg.StatusBackend != "memory" {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
	if cfg.LLMProvider != "ollama" {
		t.Fatalf("llmProvider = %q", cfg.LLMProvider)
	}
}

func TestLoadEnvOverridesSecret(t *testing.T) {
	t.Setenv("RAGPORTAL_TOKEN_SECRET", "from-env")
	path := writeConfig(t, "port: \"8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenSecret != "from-env" {
		t.Fatalf("tokenSecret = %q", cfg.TokenSecret)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("RAGPORTAL_TOKEN_SECRET", "")
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing port",
			"tokenSecret: s\n",
			"port is required",
		},
		{
			"missing secret",
			"port: \"8080\"\n",
			"tokenSecret is required",
		},
		{
			"overlap too large",
			"port: \"8080\"\ntokenSecret: s\nchunkSize: 100\nchunkOverlap: 100\n",
			"chunkOverlap",
		},
		{
			"postgres without dsn",
			"port: \"8080\"\ntokenSecret: s\nindexBackend: postgres\nembeddingDim: 768\n",
			"databaseURL is required",
		},
		{
			"postgres without dim",
			"port: \"8080\"\ntokenSecret: s\nindexBackend: postgres\ndatabaseURL: postgres://x\n",
			"embeddingDim is required",
		},
		{
			"unknown queue backend",
			"port: \"8080\"\ntokenSecret: s\nqueueBackend: kafka\n",
			"unknown queueBackend",
		},
		{
			"redis queue without addr",
			"port: \"8080\"\ntokenSecret: s\nqueueBackend: redis\n",
			"redisAddr is required",
		},
		{
			"minio without endpoint",
			"port: \"8080\"\ntokenSecret: s\ndocStoreBackend: minio\n",
			"minioEndpoint",
		},
		{
			"openai without base url",
			"port: \"8080\"\ntokenSecret: s\nllmProvider: openai\n",
			"openaiBaseURL is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
