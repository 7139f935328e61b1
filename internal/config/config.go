package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/feedgen/common/messaging"
	"github.com/telhawk-systems/feedgen/internal/jetstream"
	"github.com/telhawk-systems/feedgen/internal/models"
	"github.com/telhawk-systems/feedgen/internal/poller"
)

// Backend names accepted in configuration.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendNone     = "none"

	ClassifierAcceptAll = "accept_all"
	ClassifierKeyword   = "keyword"
	ClassifierHTTP      = "http"

	SinkLog  = "log"
	SinkNATS = "nats"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Jetstream  JetstreamConfig  `mapstructure:"jetstream" yaml:"jetstream"`
	Poller     PollerConfig     `mapstructure:"poller" yaml:"poller"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Sink       SinkConfig       `mapstructure:"sink" yaml:"sink"`
	NATS       NATSConfig       `mapstructure:"nats" yaml:"nats"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit" yaml:"ratelimit"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// URL takes precedence over the discrete postgres settings.
	URL         string         `mapstructure:"url" yaml:"url"`
	Postgres    PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	MaxConns    int32          `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns    int32          `mapstructure:"min_conns" yaml:"min_conns"`
	AutoMigrate bool           `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type JetstreamConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Collections    []string      `mapstructure:"collections" yaml:"collections"`
	WantedDIDs     []string      `mapstructure:"wanted_dids" yaml:"wanted_dids"`
	Lookback       time.Duration `mapstructure:"lookback" yaml:"lookback"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	BatchLimit  int           `mapstructure:"batch_limit" yaml:"batch_limit"`
	StartPolicy string        `mapstructure:"start_policy" yaml:"start_policy"`
	Consumer    string        `mapstructure:"consumer" yaml:"consumer"`
	Checkpoint  string        `mapstructure:"checkpoint" yaml:"checkpoint"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

type ClassifierConfig struct {
	Type      string        `mapstructure:"type" yaml:"type"`
	Keywords  []string      `mapstructure:"keywords" yaml:"keywords"`
	Languages []string      `mapstructure:"languages" yaml:"languages"`
	URL       string        `mapstructure:"url" yaml:"url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SinkConfig struct {
	Types         []string `mapstructure:"types" yaml:"types"`
	Subject       string   `mapstructure:"subject" yaml:"subject"`
	PerCollection bool     `mapstructure:"per_collection" yaml:"per_collection"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Name          string        `mapstructure:"name" yaml:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Username      string        `mapstructure:"username" yaml:"username"`
	Password      string        `mapstructure:"password" yaml:"password"`
	Token         string        `mapstructure:"token" yaml:"token"`
}

type RedisConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age" yaml:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "feedgen")
	v.SetDefault("database.postgres.user", "feedgen")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("store.backend", BackendPostgres)
	v.SetDefault("jetstream.url", jetstream.DefaultURL)
	v.SetDefault("jetstream.collections", []string{models.DefaultCollection})
	v.SetDefault("jetstream.wanted_dids", []string{})
	v.SetDefault("jetstream.lookback", "2h")
	v.SetDefault("jetstream.max_message_size", jetstream.DefaultMaxMessageSize)
	v.SetDefault("jetstream.backoff_base", "1s")
	v.SetDefault("jetstream.backoff_cap", "30s")
	v.SetDefault("poller.interval", "10s")
	v.SetDefault("poller.batch_limit", 200)
	v.SetDefault("poller.start_policy", string(poller.StartBeginning))
	v.SetDefault("poller.consumer", "poller")
	v.SetDefault("poller.checkpoint", BackendPostgres)
	v.SetDefault("poller.backoff_base", "1s")
	v.SetDefault("poller.backoff_cap", "30s")
	v.SetDefault("classifier.type", ClassifierAcceptAll)
	v.SetDefault("classifier.keywords", []string{})
	v.SetDefault("classifier.languages", []string{})
	v.SetDefault("classifier.url", "")
	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("sink.types", []string{SinkLog})
	v.SetDefault("sink.subject", messaging.SubjectPostsAccepted)
	v.SetDefault("sink.per_collection", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.name", "feedgen")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests", 120)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 300)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedgen")
	}

	// Environment variables override (FEEDGEN_SERVER_PORT, etc.)
	v.SetEnvPrefix("FEEDGEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unprefixed names used by existing deployments
	_ = v.BindEnv("database.url", "FEEDGEN_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("jetstream.url", "FEEDGEN_JETSTREAM_URL", "JETSTREAM_BASE")
	_ = v.BindEnv("jetstream.collections", "FEEDGEN_JETSTREAM_COLLECTIONS", "WANTED_COLLECTIONS")

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Jetstream.Collections = splitAll(cfg.Jetstream.Collections)
	cfg.Jetstream.WantedDIDs = splitAll(cfg.Jetstream.WantedDIDs)
	cfg.Sink.Types = splitAll(cfg.Sink.Types)

	return &cfg, nil
}

// ConnString returns database.url or a postgres URL assembled from the parts.
func (c DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:   "/" + c.Postgres.Database,
	}
	if c.Postgres.Password != "" {
		u.User = url.UserPassword(c.Postgres.User, c.Postgres.Password)
	} else if c.Postgres.User != "" {
		u.User = url.User(c.Postgres.User)
	}
	if c.Postgres.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.Postgres.SSLMode)
	}
	return u.String()
}

// Collection is the collection the poller and read API serve.
func (c JetstreamConfig) Collection() string {
	if len(c.Collections) == 0 {
		return ""
	}
	return c.Collections[0]
}

// NeedsRedis reports whether any enabled component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.RateLimit.Enabled || c.Poller.Checkpoint == BackendRedis
}

// NeedsNATS reports whether a NATS sink is configured.
func (c *Config) NeedsNATS() bool {
	for _, t := range c.Sink.Types {
		if t == SinkNATS {
			return true
		}
	}
	return false
}

// Validate rejects settings the components would otherwise have to guess about.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("server.port %d out of range", c.Server.Port)
	}

	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		fail("store.backend %q: want postgres or memory", c.Store.Backend)
	}

	if len(c.Jetstream.Collections) == 0 {
		fail("jetstream.collections must name at least one collection")
	}
	if c.Jetstream.Lookback < 0 {
		fail("jetstream.lookback must not be negative")
	}

	if _, err := poller.ParseStartPolicy(c.Poller.StartPolicy); err != nil {
		errs = append(errs, fmt.Errorf("%w: poller.start_policy: %w", ErrInvalid, err))
	}
	if c.Poller.BatchLimit < 1 || c.Poller.BatchLimit > 10000 {
		fail("poller.batch_limit %d: want 1..10000", c.Poller.BatchLimit)
	}
	if c.Poller.Interval <= 0 {
		fail("poller.interval must be positive")
	}
	switch c.Poller.Checkpoint {
	case BackendPostgres:
		if c.Store.Backend != BackendPostgres {
			fail("poller.checkpoint postgres requires store.backend postgres")
		}
	case BackendRedis, BackendMemory, BackendNone:
	default:
		fail("poller.checkpoint %q: want postgres, redis, memory or none", c.Poller.Checkpoint)
	}

	switch c.Classifier.Type {
	case ClassifierAcceptAll, ClassifierKeyword:
	case ClassifierHTTP:
		if c.Classifier.URL == "" {
			fail("classifier.url is required for the http classifier")
		}
	default:
		fail("classifier.type %q: want accept_all, keyword or http", c.Classifier.Type)
	}

	if len(c.Sink.Types) == 0 {
		fail("sink.types must name at least one sink")
	}
	for _, t := range c.Sink.Types {
		if t != SinkLog && t != SinkNATS {
			fail("sink.types entry %q: want log or nats", t)
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		fail("ratelimit.requests and ratelimit.window must be positive when enabled")
	}
	if c.NeedsRedis() && c.Redis.URL == "" {
		fail("redis.url is required")
	}

	return errors.Join(errs...)
}

// splitAll flattens entries that arrive as one comma separated env value.
func splitAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, jetstream.SplitList(s)...)
	}
	return out
}
