package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CODECOLLAB"

// Keys shared by viper, flags and the environment
const (
	KeyPort          = "port"
	KeyDBPath        = "db_path"
	KeyStaticDir     = "static_dir"
	KeySeedFile      = "seed_file"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
	KeyIdleTTL       = "idle_ttl"
	KeySweepInterval = "sweep_interval"
	KeyWSRate        = "ws_rate"
	KeyWSBurst       = "ws_burst"
	KeyHTTPRate      = "http_rate"
	KeyHTTPBurst     = "http_burst"
)

type Config struct {
	Port          int
	DBPath        string
	StaticDir     string
	SeedFile      string
	LogLevel      string
	LogFormat     string
	IdleTTL       time.Duration
	SweepInterval time.Duration
	WSRate        float64
	WSBurst       int
	HTTPRate      float64
	HTTPBurst     int
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 5000)
	v.SetDefault(KeyDBPath, "./data/codecollab.db")
	v.SetDefault(KeyStaticDir, "./client/dist")
	v.SetDefault(KeySeedFile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyIdleTTL, 2*time.Hour)
	v.SetDefault(KeySweepInterval, time.Minute)
	v.SetDefault(KeyWSRate, 100.0)
	v.SetDefault(KeyWSBurst, 200)
	v.SetDefault(KeyHTTPRate, 20.0)
	v.SetDefault(KeyHTTPBurst, 40)
}

// New returns a viper instance with defaults and CODECOLLAB_* environment
// variables wired in. A non-empty cfgFile is read on top.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// Load reads every setting out of v and validates it
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:          v.GetInt(KeyPort),
		DBPath:        v.GetString(KeyDBPath),
		StaticDir:     v.GetString(KeyStaticDir),
		SeedFile:      v.GetString(KeySeedFile),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:     strings.ToLower(v.GetString(KeyLogFormat)),
		IdleTTL:       v.GetDuration(KeyIdleTTL),
		SweepInterval: v.GetDuration(KeySweepInterval),
		WSRate:        v.GetFloat64(KeyWSRate),
		WSBurst:       v.GetInt(KeyWSBurst),
		HTTPRate:      v.GetFloat64(KeyHTTPRate),
		HTTPBurst:     v.GetInt(KeyHTTPBurst),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.IdleTTL < 0 {
		errs = append(errs, fmt.Errorf("idle_ttl must not be negative, got %s", c.IdleTTL))
	}
	if c.IdleTTL > 0 && c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval))
	}
	if c.WSRate <= 0 || c.WSBurst <= 0 {
		errs = append(errs, errors.New("ws_rate and ws_burst must be positive"))
	}
	if c.HTTPRate <= 0 || c.HTTPBurst <= 0 {
		errs = append(errs, errors.New("http_rate and http_burst must be positive"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger from LogLevel and LogFormat
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
