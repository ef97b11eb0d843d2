package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	WS      WSConfig      `mapstructure:"ws"`
	Call    CallConfig    `mapstructure:"call"`
	Store   StoreConfig   `mapstructure:"store"`
	Limiter LimiterConfig `mapstructure:"limiter"`
}

type WSConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type CallConfig struct {
	// RingTimeout of zero leaves unanswered calls pending until ended,
	// rejected or a party disconnects.
	RingTimeout time.Duration `mapstructure:"ring_timeout"`
	ICEServers  []string      `mapstructure:"ice_servers"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver  string        `mapstructure:"driver"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LimiterConfig struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PAIRLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", defaultSecret)
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.read_limit", 65536)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "5s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.allowed_origins", []string{})

	v.SetDefault("call.ring_timeout", "0s")
	v.SetDefault("call.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/pairline.db")
	v.SetDefault("store.timeout", "5s")

	v.SetDefault("limiter.events", 50)
	v.SetDefault("limiter.interval", "1s")
	return v
}

func fileName() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

// Load reads config/config.<CONFIG_ENV>.yaml when present and falls back
// to defaults and PAIRLINE_* environment variables otherwise.
func Load() (*Config, error) {
	cfg, _, err := load(fileName())
	return cfg, err
}

// LoadAndWatch is Load plus a watcher that re-applies the log level when
// the config file changes on disk.
func LoadAndWatch() (*Config, error) {
	cfg, v, err := load(fileName())
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log_level")
		if err := ApplyLogLevel(level); err != nil {
			log.Warn().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload log level")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", level).Msg("config reloaded")
	})
	v.WatchConfig()
	return cfg, nil
}

func load(path string) (*Config, *viper.Viper, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
		// Keep ConfigFileUsed empty so nothing gets watched.
		v.SetConfigFile("")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Msg("effective config")
	return &cfg, v, nil
}

const defaultSecret = "change-me"

func (c *Config) validate() error {
	if c.Mode == "release" && (c.Secret == "" || c.Secret == defaultSecret) {
		return fmt.Errorf("secret must be set in release mode")
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive, got %d", c.WS.SendBuffer)
	}
	if c.Limiter.Events <= 0 || c.Limiter.Interval <= 0 {
		return fmt.Errorf("limiter needs positive events and interval")
	}
	return nil
}

// ApplyLogLevel sets the zerolog global level from its textual name.
func ApplyLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
