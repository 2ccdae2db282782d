package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("THREADLOOM_CRAWL_MAX_LEVELS", "")
	t.Setenv("THREADLOOM_SUBREDDITS", "")
	t.Setenv("ARCHIVE_S3_ENDPOINT", "")
	t.Setenv("THREADLOOM_SESSION_TTL_HOURS", "")

	cfg := Load()

	if cfg.CrawlMaxLevels != 5 {
		t.Errorf("expected default max levels 5, got %d", cfg.CrawlMaxLevels)
	}
	if cfg.FetchTimeout <= 0 {
		t.Errorf("expected a positive fetch timeout, got %s", cfg.FetchTimeout)
	}
	if len(cfg.Subreddits) != 0 {
		t.Errorf("expected no subreddits, got %v", cfg.Subreddits)
	}
	if cfg.Archive.Enabled() {
		t.Errorf("archive must be disabled without an endpoint")
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h sessions, got %s", cfg.SessionTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("THREADLOOM_CRAWL_MAX_LEVELS", "3")
	t.Setenv("THREADLOOM_FETCH_TIMEOUT_SECONDS", "2")
	t.Setenv("THREADLOOM_SUBREDDITS", " golang, rust ,,")
	t.Setenv("REDDIT_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("ARCHIVE_S3_USE_SSL", "true")

	cfg := Load()

	if cfg.CrawlMaxLevels != 3 {
		t.Errorf("expected 3, got %d", cfg.CrawlMaxLevels)
	}
	if cfg.FetchTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %s", cfg.FetchTimeout)
	}
	if len(cfg.Subreddits) != 2 || cfg.Subreddits[0] != "golang" || cfg.Subreddits[1] != "rust" {
		t.Errorf("unexpected subreddits %v", cfg.Subreddits)
	}
	if cfg.RedditRPS != 0.5 {
		t.Errorf("expected 0.5 rps, got %v", cfg.RedditRPS)
	}
	if !cfg.Archive.UseSSL {
		t.Errorf("expected SSL on")
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("THREADLOOM_CRAWL_MAX_LEVELS", "many")
	if got := Load().CrawlMaxLevels; got != 5 {
		t.Errorf("expected fallback 5, got %d", got)
	}
}
