package config

import (
	"strings"
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.PostgresHost != "localhost" || cfg.PostgresPort != 5432 {
		t.Errorf("postgres defaults = %s:%d", cfg.PostgresHost, cfg.PostgresPort)
	}
	if cfg.QueueDBPath == "" {
		t.Error("queue db path default missing")
	}
	if cfg.RobotsMinInterval != 10*time.Second {
		t.Errorf("RobotsMinInterval = %v, want 10s", cfg.RobotsMinInterval)
	}
	if cfg.TotalWorkers != 8 || cfg.PerSourceLimit != 2 {
		t.Errorf("worker defaults = %d/%d", cfg.TotalWorkers, cfg.PerSourceLimit)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %s", cfg.ListenAddr)
	}

	// Only 1001tracklists scrapes out of the box.
	if !cfg.Sources[domain.SourceTracklists1001].Enabled {
		t.Error("1001tracklists should default enabled")
	}
	for _, src := range []domain.Source{domain.SourceMixesDB, domain.SourceSetlistFM, domain.SourceReddit} {
		if cfg.Sources[src].Enabled {
			t.Errorf("%s should default disabled", src)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Load()
	cfg.PostgresHost = ""
	cfg.PostgresPort = 0
	cfg.SeedMatchMode = "fuzzy"
	cfg.LogLevel = "verbose"
	cfg.TotalWorkers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{
		"POSTGRES_HOST",
		"POSTGRES_PORT",
		"SEED_MATCH_MODE",
		"LOG_LEVEL",
		"WORKERS_TOTAL",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %s: %s", want, msg)
		}
	}
}

func TestValidateSourceIntervals(t *testing.T) {
	cfg := Load()
	sc := cfg.Sources[domain.SourceTracklists1001]
	sc.MinInterval = 2 * time.Hour
	sc.MaxInterval = time.Hour
	cfg.Sources[domain.SourceTracklists1001] = sc

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_interval") {
		t.Errorf("inverted intervals not rejected: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "db.internal",
		PostgresPort:     5433,
		PostgresDatabase: "setgraph",
		PostgresUser:     "svc",
		PostgresPassword: "secret",
		PostgresSSLMode:  "require",
	}
	want := "host=db.internal port=5433 dbname=setgraph user=svc password=secret sslmode=require"
	if got := cfg.PostgresDSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestRedisAddr(t *testing.T) {
	cfg := &Config{RedisPort: 6379}
	if got := cfg.RedisAddr(); got != "" {
		t.Errorf("unset redis host gave addr %q", got)
	}
	cfg.RedisHost = "cache.internal"
	if got := cfg.RedisAddr(); got != "cache.internal:6379" {
		t.Errorf("RedisAddr = %q", got)
	}
}

func TestSourceConfigForFallback(t *testing.T) {
	cfg := &Config{Sources: map[domain.Source]SourceConfig{}}
	sc := cfg.SourceConfigFor(domain.SourceSetlistFM)
	if sc.MinInterval != 6*time.Hour || sc.MaxConcurrentPages != 2 {
		t.Errorf("fallback config = %+v", sc)
	}
}
