package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/setgraph/setgraph/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Postgres (silver, bronze, audit)
	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Local durable state (work queue + response cache)
	QueueDBPath string

	// Optional Redis cache tier
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// External APIs
	SpotifyClientID     string
	SpotifyClientSecret string
	TidalAPIToken       string
	DiscogsAPIToken     string
	LastFMAPIKey        string
	GetSongBPMAPIKey    string
	MusicBrainzUserAgent string

	// Scraping
	Sources           map[domain.Source]SourceConfig
	RobotsMinInterval time.Duration
	SeedMatchMode     string // exact | ilike

	// Workers
	TotalWorkers   int
	PerSourceLimit int

	// Control surface
	ListenAddr string

	LogLevel  string
	LogFormat string
}

// SourceConfig is the per-source scheduling policy.
type SourceConfig struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	Priority           int
	Enabled            bool
	RespectRobots      bool
	AdaptiveScheduling bool
	MaxConcurrentPages int
	RetryOnFailure     bool
}

func defaultSourceConfig() SourceConfig {
	return SourceConfig{
		MinInterval:        6 * time.Hour,
		MaxInterval:        48 * time.Hour,
		Priority:           5,
		Enabled:            false,
		RespectRobots:      true,
		AdaptiveScheduling: true,
		MaxConcurrentPages: 2,
		RetryOnFailure:     true,
	}
}

// scrapedSources are the sources the scheduler can drive directly.
var scrapedSources = []domain.Source{
	domain.SourceTracklists1001,
	domain.SourceMixesDB,
	domain.SourceSetlistFM,
	domain.SourceReddit,
}

// Load reads configuration from an optional .env file, an optional
// config.yaml, and the environment. Env names mirror config keys
// (postgres.host -> POSTGRES_HOST).
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "setgraph")
	v.SetDefault("postgres.user", "setgraph")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("queue.db_path", "./data/setgraph-queue.db")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("musicbrainz.user_agent", "setgraph/1.0 (https://github.com/setgraph/setgraph)")
	v.SetDefault("robots.min_interval", "10s")
	v.SetDefault("seed.match_mode", "exact")
	v.SetDefault("workers.total", 8)
	v.SetDefault("workers.per_source", 2)
	v.SetDefault("listen.addr", ":8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	for _, src := range scrapedSources {
		key := "sources." + string(src)
		v.SetDefault(key+".min_interval", "6h")
		v.SetDefault(key+".max_interval", "48h")
		v.SetDefault(key+".priority", 5)
		v.SetDefault(key+".enabled", src == domain.SourceTracklists1001)
		v.SetDefault(key+".respect_robots", true)
		v.SetDefault(key+".adaptive_scheduling", true)
		v.SetDefault(key+".max_concurrent_pages", 2)
		v.SetDefault(key+".retry_on_failure", true)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	cfg := &Config{
		PostgresHost:         v.GetString("postgres.host"),
		PostgresPort:         v.GetInt("postgres.port"),
		PostgresDatabase:     v.GetString("postgres.database"),
		PostgresUser:         v.GetString("postgres.user"),
		PostgresPassword:     v.GetString("postgres.password"),
		PostgresSSLMode:      v.GetString("postgres.sslmode"),
		QueueDBPath:          v.GetString("queue.db_path"),
		RedisHost:            v.GetString("redis.host"),
		RedisPort:            v.GetInt("redis.port"),
		RedisPassword:        v.GetString("redis.password"),
		SpotifyClientID:      v.GetString("spotify.client_id"),
		SpotifyClientSecret:  v.GetString("spotify.client_secret"),
		TidalAPIToken:        v.GetString("tidal.api_token"),
		DiscogsAPIToken:      v.GetString("discogs.api_token"),
		LastFMAPIKey:         v.GetString("lastfm.api_key"),
		GetSongBPMAPIKey:     v.GetString("getsongbpm.api_key"),
		MusicBrainzUserAgent: v.GetString("musicbrainz.user_agent"),
		RobotsMinInterval:    v.GetDuration("robots.min_interval"),
		SeedMatchMode:        v.GetString("seed.match_mode"),
		TotalWorkers:         v.GetInt("workers.total"),
		PerSourceLimit:       v.GetInt("workers.per_source"),
		ListenAddr:           v.GetString("listen.addr"),
		LogLevel:             v.GetString("log.level"),
		LogFormat:            v.GetString("log.format"),
		Sources:              make(map[domain.Source]SourceConfig),
	}

	for _, src := range scrapedSources {
		key := "sources." + string(src)
		sc := defaultSourceConfig()
		sc.MinInterval = v.GetDuration(key + ".min_interval")
		sc.MaxInterval = v.GetDuration(key + ".max_interval")
		sc.Priority = v.GetInt(key + ".priority")
		sc.Enabled = v.GetBool(key + ".enabled")
		sc.RespectRobots = v.GetBool(key + ".respect_robots")
		sc.AdaptiveScheduling = v.GetBool(key + ".adaptive_scheduling")
		sc.MaxConcurrentPages = v.GetInt(key + ".max_concurrent_pages")
		sc.RetryOnFailure = v.GetBool(key + ".retry_on_failure")
		cfg.Sources[src] = sc
	}

	return cfg
}

// Validate validates the configuration and returns detailed errors.
func (c *Config) Validate() error {
	var errs []string

	if c.PostgresHost == "" {
		errs = append(errs, "POSTGRES_HOST cannot be empty")
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		errs = append(errs, fmt.Sprintf("POSTGRES_PORT must be between 1 and 65535, got: %d", c.PostgresPort))
	}
	if c.PostgresDatabase == "" {
		errs = append(errs, "POSTGRES_DATABASE cannot be empty")
	}
	if c.PostgresUser == "" {
		errs = append(errs, "POSTGRES_USER cannot be empty")
	}
	if c.QueueDBPath == "" {
		errs = append(errs, "QUEUE_DB_PATH cannot be empty")
	}
	if c.MusicBrainzUserAgent == "" {
		errs = append(errs, "MUSICBRAINZ_USER_AGENT cannot be empty")
	}
	if c.RobotsMinInterval <= 0 {
		errs = append(errs, "ROBOTS_MIN_INTERVAL must be positive")
	}
	if c.SeedMatchMode != "exact" && c.SeedMatchMode != "ilike" {
		errs = append(errs, fmt.Sprintf("SEED_MATCH_MODE must be one of: exact, ilike, got: %s", c.SeedMatchMode))
	}
	if c.TotalWorkers < 1 {
		errs = append(errs, fmt.Sprintf("WORKERS_TOTAL must be at least 1, got: %d", c.TotalWorkers))
	}
	if c.PerSourceLimit < 1 {
		errs = append(errs, fmt.Sprintf("WORKERS_PER_SOURCE must be at least 1, got: %d", c.PerSourceLimit))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	for src, sc := range c.Sources {
		if sc.MinInterval <= 0 {
			errs = append(errs, fmt.Sprintf("sources.%s.min_interval must be positive", src))
		}
		if sc.MaxInterval < sc.MinInterval {
			errs = append(errs, fmt.Sprintf("sources.%s.max_interval must be >= min_interval", src))
		}
		if sc.MaxConcurrentPages < 1 {
			errs = append(errs, fmt.Sprintf("sources.%s.max_concurrent_pages must be at least 1", src))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDatabase, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

// RedisAddr returns host:port, or empty when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// SourceConfigFor returns the policy for a source, falling back to defaults.
func (c *Config) SourceConfigFor(src domain.Source) SourceConfig {
	if sc, ok := c.Sources[src]; ok {
		return sc
	}
	return defaultSourceConfig()
}
