package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr       = ":8080"
	defaultDBPath           = "silky.db"
	defaultReceiveTimeoutMS = 500

	envListenAddr    = "SILKY_LISTEN_ADDR"
	envDBPath        = "SILKY_DB_PATH"
	envLogLevel      = "SILKY_LOG_LEVEL"
	envEngineBin     = "SILKY_ENGINE_BIN"
	envSessionPath   = "SILKY_SESSION_PATH"
	envRoot          = "SILKY_ROOT"
	envRecvTimeoutMS = "SILKY_RECV_TIMEOUT_MS"
	envConfigFile    = "SILKY_CONFIG"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// Root is the installation directory holding the engine and its libraries.
	Root string
	// EngineBin overrides the engine binary derived from Root.
	EngineBin   string
	SessionPath string
	LibraryDirs []string

	ReceiveTimeout time.Duration
}

// fileConfig is the YAML form of Config. Empty fields leave defaults alone.
type fileConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	DBPath           string   `yaml:"db_path"`
	LogLevel         string   `yaml:"log_level"`
	Root             string   `yaml:"root"`
	EngineBin        string   `yaml:"engine_bin"`
	SessionPath      string   `yaml:"session_path"`
	LibraryDirs      []string `yaml:"library_dirs"`
	ReceiveTimeoutMS int      `yaml:"receive_timeout_ms"`
}

// Load builds the configuration from defaults, then the YAML file named by
// SILKY_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		SessionPath:    filepath.Join(os.TempDir(), "silky-session"),
		ReceiveTimeout: defaultReceiveTimeoutMS * time.Millisecond,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envRoot); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(envEngineBin); v != "" {
		cfg.EngineBin = v
	}
	if v := os.Getenv(envSessionPath); v != "" {
		cfg.SessionPath = v
	}
	if v := os.Getenv(envRecvTimeoutMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("invalid %s %q: must be a positive integer", envRecvTimeoutMS, v)
		}
		cfg.ReceiveTimeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && err != io.EOF {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.Root != "" {
		c.Root = fc.Root
	}
	if fc.EngineBin != "" {
		c.EngineBin = fc.EngineBin
	}
	if fc.SessionPath != "" {
		c.SessionPath = fc.SessionPath
	}
	if len(fc.LibraryDirs) > 0 {
		c.LibraryDirs = fc.LibraryDirs
	}
	if fc.ReceiveTimeoutMS < 0 {
		return fmt.Errorf("parse config file %s: receive_timeout_ms must be positive", path)
	}
	if fc.ReceiveTimeoutMS > 0 {
		c.ReceiveTimeout = time.Duration(fc.ReceiveTimeoutMS) * time.Millisecond
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	return parseLogLevel(s)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
