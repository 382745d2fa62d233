// Package config resolves driver settings from flags, environment and an
// optional swiftdriver.yaml file.
//
// Precedence follows viper: explicit flags, then SWIFTDRIVER_* environment
// variables, then the config file, then Defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Setting keys.
const (
	KeyJobs                  = "jobs"
	KeyContinueAfterErrors   = "continue-after-errors"
	KeyResponseFileThreshold = "response-file-threshold"
	KeyStateDB               = "state-db"
	KeyShowIncremental       = "show-incremental"
	KeyLogLevel              = "log-level"
	KeyLogFormat             = "log-format"
)

// EnvPrefix prefixes environment overrides: SWIFTDRIVER_JOBS=4.
const EnvPrefix = "SWIFTDRIVER"

// FileName is the config file searched for, without extension.
const FileName = "swiftdriver"

// Settings are the resolved driver settings.
type Settings struct {
	Jobs                  int
	ContinueAfterErrors   bool
	ResponseFileThreshold int
	StateDB               string
	ShowIncremental       bool
	LogLevel              string
	LogFormat             string
}

// Defaults registers the default of every key on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyJobs, runtime.NumCPU())
	v.SetDefault(KeyContinueAfterErrors, false)
	v.SetDefault(KeyResponseFileThreshold, 32*1024)
	v.SetDefault(KeyStateDB, ".build/swiftdriver.db")
	v.SetDefault(KeyShowIncremental, false)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads path, or when path is empty searches dir for
// swiftdriver.yaml. A missing searched file is not an error.
func ReadFile(v *viper.Viper, path, dir string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves and validates settings from v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		Jobs:                  v.GetInt(KeyJobs),
		ContinueAfterErrors:   v.GetBool(KeyContinueAfterErrors),
		ResponseFileThreshold: v.GetInt(KeyResponseFileThreshold),
		StateDB:               v.GetString(KeyStateDB),
		ShowIncremental:       v.GetBool(KeyShowIncremental),
		LogLevel:              strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:             strings.ToLower(v.GetString(KeyLogFormat)),
	}
	if s.Jobs < 1 {
		return s, fmt.Errorf("%s must be at least 1, got %d", KeyJobs, s.Jobs)
	}
	if s.ResponseFileThreshold < 0 {
		return s, fmt.Errorf("%s must not be negative, got %d", KeyResponseFileThreshold, s.ResponseFileThreshold)
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return s, err
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return s, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, s.LogFormat)
	}
	return s, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%s must be debug, info, warn or error, got %q", KeyLogLevel, s)
}
