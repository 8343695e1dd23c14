// Package config loads the typed application configuration named by
// spec §6: DATABASE_URL, JWT_SECRET, a cache backend selector and its
// connection string, a storage backend selector, and a plugin directory
// path. Values come from environment variables, a config file, or
// explicit defaults, in that order of precedence, via spf13/viper.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds process-wide identity and environment fields,
// referenced throughout the codebase as cfg.App.*.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
	DemoMode bool   `mapstructure:"demo_mode"`
}

// JWTConfig configures internal/auth.JWTManager construction.
type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SessionConfig configures internal/session.Policy construction.
type SessionConfig struct {
	Lifetime           time.Duration `mapstructure:"lifetime"`
	MaxSessionsPerUser int           `mapstructure:"max_sessions_per_user"`
	ExtensionThreshold time.Duration `mapstructure:"extension_threshold"`
	ExtendOnActivity   bool          `mapstructure:"extend_on_activity"`
	CookieName         string        `mapstructure:"cookie_name"`
	CookieSecure       bool          `mapstructure:"cookie_secure"`
	CookieSameSite     string        `mapstructure:"cookie_same_site"`
}

// AuthConfig groups the authentication core's sub-configs.
type AuthConfig struct {
	JWT     JWTConfig     `mapstructure:"jwt"`
	Session SessionConfig `mapstructure:"session"`
}

// DatabaseConfig configures the SQL connection pool.
type DatabaseConfig struct {
	URL                 string        `mapstructure:"url"`
	MaxOpenConns        int           `mapstructure:"max_open_conns"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	SlowQueryThreshold  time.Duration `mapstructure:"slow_query_threshold"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
}

// CacheConfig selects and configures the cache backend (spec §6's "cache
// backend selector and its connection string").
type CacheConfig struct {
	Backend          string        `mapstructure:"backend"` // "memory" or "redis"
	ConnectionString string        `mapstructure:"connection_string"`
	Prefix           string        `mapstructure:"prefix"`
	MaxItems         int           `mapstructure:"max_items"` // memory backend only
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// StorageConfig selects the storage backend (spec §6's "storage backend
// selector").
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "local", "s3", ...
	Root    string `mapstructure:"root"`
}

// PluginConfig configures plugin discovery and the sandbox runtime.
type PluginConfig struct {
	Directory   string        `mapstructure:"directory"`
	HotReload   bool          `mapstructure:"hot_reload"`
	HookTimeout time.Duration `mapstructure:"hook_timeout"`
}

// RunnerConfig configures the background sweeper schedules.
type RunnerConfig struct {
	SessionCleanupSchedule string        `mapstructure:"session_cleanup_schedule"`
	ReleaseStaleSchedule   string        `mapstructure:"release_stale_schedule"`
	ReleaseStaleOlderThan  time.Duration `mapstructure:"release_stale_older_than"`
	CacheReconcileSchedule string        `mapstructure:"cache_reconcile_schedule"`
}

// QueueConfig configures the job queue worker pool (spec §4.4's worker
// loop: poll backoff, stale-reservation sweep, retry backoff).
type QueueConfig struct {
	Queues             []string      `mapstructure:"queues"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	StaleSweepInterval time.Duration `mapstructure:"stale_sweep_interval"`
	StaleOlderThan     time.Duration `mapstructure:"stale_older_than"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryCeiling       time.Duration `mapstructure:"retry_ceiling"`
}

// SMTPSettings configures the outbound mail relay.
type SMTPSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	AuthType   string `mapstructure:"auth_type"`
	TLS        bool   `mapstructure:"tls"`
	SkipVerify bool   `mapstructure:"skip_verify"`
}

// EmailConfig configures the notifications.EmailProvider used by the
// plugin host API's SendEmail call.
type EmailConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	From    string       `mapstructure:"from"`
	SMTP    SMTPSettings `mapstructure:"smtp"`
}

// Config is the top-level application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Plugin   PluginConfig   `mapstructure:"plugin"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Email    EmailConfig    `mapstructure:"email"`
}

var (
	current *Config
	once    sync.Once
	mu      sync.RWMutex
)

func defaults(v *viper.Viper) {
	v.SetDefault("app.name", "rustpress")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.demo_mode", false)

	v.SetDefault("auth.jwt.issuer", "rustpress")
	v.SetDefault("auth.jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.jwt.refresh_token_ttl", 30*24*time.Hour)

	v.SetDefault("auth.session.lifetime", 24*time.Hour)
	v.SetDefault("auth.session.max_sessions_per_user", 5)
	v.SetDefault("auth.session.extension_threshold", 15*time.Minute)
	v.SetDefault("auth.session.extend_on_activity", true)
	v.SetDefault("auth.session.cookie_name", "rustpress_session")
	v.SetDefault("auth.session.cookie_secure", true)
	v.SetDefault("auth.session.cookie_same_site", "Lax")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.health_check_interval", 30*time.Second)
	v.SetDefault("database.slow_query_threshold", 500*time.Millisecond)
	v.SetDefault("database.max_retries", 2)
	v.SetDefault("database.retry_backoff", 50*time.Millisecond)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_items", 10000)
	v.SetDefault("cache.cleanup_interval", time.Minute)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "./storage")

	v.SetDefault("plugin.directory", "./plugins")
	v.SetDefault("plugin.hot_reload", true)
	v.SetDefault("plugin.hook_timeout", 5*time.Second)

	v.SetDefault("runner.session_cleanup_schedule", "0 */5 * * * *")
	v.SetDefault("runner.release_stale_schedule", "0 * * * * *")
	v.SetDefault("runner.release_stale_older_than", 5*time.Minute)
	v.SetDefault("runner.cache_reconcile_schedule", "0 0 * * * *")

	v.SetDefault("queue.queues", []string{"default"})
	v.SetDefault("queue.poll_interval", 500*time.Millisecond)
	v.SetDefault("queue.stale_sweep_interval", time.Minute)
	v.SetDefault("queue.stale_older_than", 5*time.Minute)
	v.SetDefault("queue.retry_base_delay", time.Second)
	v.SetDefault("queue.retry_ceiling", 5*time.Minute)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.auth_type", "plain")
	v.SetDefault("email.smtp.tls", true)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Named explicitly by spec §6 under their conventional names rather
	// than the dotted mapstructure path.
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("auth.jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.connection_string", "CACHE_URL")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("plugin.directory", "PLUGIN_DIR")
	_ = v.BindEnv("app.env", "APP_ENV")
	_ = v.BindEnv("email.smtp.password", "SMTP_PASSWORD")
}

// Load reads configuration from configPath (if non-empty and present),
// environment variables, and defaults, in viper's standard precedence
// (explicit Set > flag > env > config file > default). It does not
// memoize; callers that want the process-wide singleton should use Get
// after calling Init.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	defaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Init loads configuration from configPath and installs it as the
// process-wide singleton returned by Get. Safe to call once at startup;
// subsequent calls are no-ops.
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var cfg *Config
		cfg, err = Load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		current = cfg
		mu.Unlock()
	})
	return err
}

// Get returns the process-wide configuration singleton, or nil if Init
// has not been called yet.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetForTesting installs cfg as the singleton, bypassing Init's once
// guard. Intended for test setup only.
func SetForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}
