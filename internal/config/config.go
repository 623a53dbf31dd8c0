package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all server configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// HTTPConfig configures the JSON API listener
type HTTPConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig configures the health service listener. An empty address
// disables it.
type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

// WebSocketConfig configures the session update stream
type WebSocketConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StorageConfig selects the session store
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig holds pgxpool settings, shared by the session store and the
// postgres catalog.
type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// SQLiteConfig holds the database file location
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// Catalog sources
const (
	SourceStatic    = "static"
	SourceMarvelCDB = "marvelcdb"
	SourcePostgres  = "postgres"
)

// CatalogConfig selects where decks and cards are resolved
type CatalogConfig struct {
	Source      string          `mapstructure:"source"`
	FixturePath string          `mapstructure:"fixture_path"`
	MarvelCDB   MarvelCDBConfig `mapstructure:"marvelcdb"`
	CacheTTL    time.Duration   `mapstructure:"cache_ttl"`
}

// MarvelCDBConfig configures the public card database client
type MarvelCDBConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// CoordinatorConfig tunes per-session command execution
type CoordinatorConfig struct {
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	HistoryLimit int           `mapstructure:"history_limit"`
	ReplayDir    string        `mapstructure:"replay_dir"`
}

// SweeperConfig configures the abandoned session cleanup job
type SweeperConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	LobbyTTL    time.Duration `mapstructure:"lobby_ttl"`
	FinishedTTL time.Duration `mapstructure:"finished_ttl"`
}

// Load reads configuration from path (optional), a .env file in the working
// directory (optional) and TABLETOP_* environment variables, in increasing
// priority.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TABLETOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_header_timeout", 5*time.Second)
	v.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.websocket.write_wait", 10*time.Second)
	v.SetDefault("server.websocket.pong_wait", 60*time.Second)
	v.SetDefault("server.websocket.send_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 1)
	v.SetDefault("storage.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.postgres.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("storage.sqlite.path", "data/tabletop.db")

	v.SetDefault("catalog.source", SourceStatic)
	v.SetDefault("catalog.fixture_path", "config/decks.json")
	v.SetDefault("catalog.marvelcdb.base_url", "https://marvelcdb.com")
	v.SetDefault("catalog.marvelcdb.request_delay", 250*time.Millisecond)
	v.SetDefault("catalog.marvelcdb.timeout", 10*time.Second)
	v.SetDefault("catalog.cache_ttl", 30*time.Minute)

	v.SetDefault("coordinator.lock_timeout", 5*time.Second)
	v.SetDefault("coordinator.history_limit", 200)
	v.SetDefault("coordinator.replay_dir", "")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", 5*time.Minute)
	v.SetDefault("sweeper.lobby_ttl", 2*time.Hour)
	v.SetDefault("sweeper.finished_ttl", 24*time.Hour)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" {
			return errors.New("storage.postgres.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLite.Path == "" {
		return errors.New("storage.sqlite.path is required for the sqlite driver")
	}

	switch c.Catalog.Source {
	case SourceStatic, SourceMarvelCDB:
	case SourcePostgres:
		if c.Storage.Postgres.URL == "" {
			return errors.New("storage.postgres.url is required for the postgres catalog")
		}
	default:
		return fmt.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	if c.Coordinator.LockTimeout <= 0 {
		return errors.New("coordinator.lock_timeout must be positive")
	}
	if c.Coordinator.HistoryLimit < 0 {
		return errors.New("coordinator.history_limit must not be negative")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return errors.New("sweeper.interval must be positive when the sweeper is enabled")
	}
	if c.Server.WebSocket.SendBuffer <= 0 {
		return errors.New("server.websocket.send_buffer must be positive")
	}
	return nil
}
