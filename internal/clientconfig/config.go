// Package clientconfig loads the attempt client's TOML settings.
package clientconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is what cmd/attempt needs to reach the API and write its log.
type Config struct {
	ServerURL   string
	Token       string
	LogFile     string
	LogLevel    string
	SaveTimeout time.Duration
}

const (
	DefaultPath = "~/.config/exstem/attempt.toml"

	defaultServerURL   = "http://127.0.0.1:8080"
	defaultLogFile     = "~/.local/state/exstem/attempt.log"
	defaultLogLevel    = "info"
	defaultSaveTimeout = 10 * time.Second
)

// Load parses the config at path (DefaultPath when empty), falling back to
// defaults for a missing file or missing keys.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL:   defaultServerURL,
		LogFile:     mustExpand(defaultLogFile),
		LogLevel:    defaultLogLevel,
		SaveTimeout: defaultSaveTimeout,
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL          string `toml:"server_url"`
		Token              string `toml:"token"`
		LogFile            string `toml:"log_file"`
		LogLevel           string `toml:"log_level"`
		SaveTimeoutSeconds int    `toml:"save_timeout_seconds"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.ServerURL); v != "" {
		cfg.ServerURL = v
	}
	cfg.Token = strings.TrimSpace(raw.Token)
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if raw.SaveTimeoutSeconds > 0 {
		cfg.SaveTimeout = time.Duration(raw.SaveTimeoutSeconds) * time.Second
	}
	return cfg, nil
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
