package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STAGE_TIMEOUT", "MAX_TRANSCRIPT_CHARS", "WORKER_CONCURRENCY", "AI_PROVIDER", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.StageTimeout != 60*time.Second {
		t.Fatalf("unexpected stage timeout: %s", cfg.StageTimeout)
	}
	if cfg.MaxTranscriptChars != 500000 {
		t.Fatalf("unexpected max transcript chars: %d", cfg.MaxTranscriptChars)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("unexpected worker concurrency: %d", cfg.WorkerConcurrency)
	}
	if cfg.AIProvider != "openai" {
		t.Fatalf("unexpected ai provider: %q", cfg.AIProvider)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STAGE_TIMEOUT", "15")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("AI_PROVIDER", " Ollama ")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if cfg.StageTimeout != 15*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.StageTimeout)
	}
	if cfg.RateLimitWindow != 2*time.Minute {
		t.Fatalf("unexpected rate limit window: %s", cfg.RateLimitWindow)
	}
	if cfg.WorkerConcurrency != 50 {
		t.Fatalf("expected concurrency clamp to 50, got %d", cfg.WorkerConcurrency)
	}
	if cfg.AIProvider != "ollama" {
		t.Fatalf("expected normalized provider, got %q", cfg.AIProvider)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}
