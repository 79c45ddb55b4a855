// Package config loads the emulator settings from a TOML file layered over defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gregLibert/cardemu/pkg/dispatch"
	"github.com/gregLibert/cardemu/pkg/history"
	"github.com/gregLibert/cardemu/pkg/relay"
)

const DefaultOracleListen = "localhost:12345"

// Config is the resolved runtime configuration.
type Config struct {
	Mode         dispatch.Mode
	Table        string
	Relay        relay.Config
	LogLevel     string
	History      history.Options
	OracleListen string
}

func Default() Config {
	return Config{
		Mode:         dispatch.ModeLocalTable,
		Relay:        relay.DefaultConfig(),
		LogLevel:     "info",
		History:      history.Options{MaxSizeMB: 10, MaxBackups: 3, Annotate: true},
		OracleListen: DefaultOracleListen,
	}
}

type fileConfig struct {
	Mode              string `toml:"mode"`
	Table             string `toml:"table"`
	RelayHost         string `toml:"relay_host"`
	RelayPort         int    `toml:"relay_port"`
	DialTimeout       string `toml:"dial_timeout"`
	IOTimeout         string `toml:"io_timeout"`
	LogLevel          string `toml:"log_level"`
	HistoryFile       string `toml:"history_file"`
	HistoryMaxSizeMB  int    `toml:"history_max_size_mb"`
	HistoryMaxBackups int    `toml:"history_max_backups"`
	HistoryAnnotate   bool   `toml:"history_annotate"`
	OracleListen      string `toml:"oracle_listen"`
}

// Load reads path and overlays every key it defines on Default().
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return apply(Default(), raw, meta)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("mode") {
		mode, err := dispatch.ParseMode(raw.Mode)
		if err != nil {
			return Config{}, fmt.Errorf("parse mode: %w", err)
		}
		cfg.Mode = mode
	}

	if meta.IsDefined("table") {
		cfg.Table = strings.TrimSpace(raw.Table)
	}

	if meta.IsDefined("relay_host") {
		cfg.Relay.Host = strings.TrimSpace(raw.RelayHost)
	}

	if meta.IsDefined("relay_port") {
		if raw.RelayPort <= 0 || raw.RelayPort > 65535 {
			return Config{}, fmt.Errorf("relay_port out of range: %d", raw.RelayPort)
		}
		cfg.Relay.Port = raw.RelayPort
	}

	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.Relay.DialTimeout = d
	}

	if meta.IsDefined("io_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IOTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse io_timeout: %w", err)
		}
		cfg.Relay.IOTimeout = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("history_file") {
		cfg.History.File = strings.TrimSpace(raw.HistoryFile)
	}

	if meta.IsDefined("history_max_size_mb") {
		cfg.History.MaxSizeMB = raw.HistoryMaxSizeMB
	}

	if meta.IsDefined("history_max_backups") {
		cfg.History.MaxBackups = raw.HistoryMaxBackups
	}

	if meta.IsDefined("history_annotate") {
		cfg.History.Annotate = raw.HistoryAnnotate
	}

	if meta.IsDefined("oracle_listen") {
		cfg.OracleListen = strings.TrimSpace(raw.OracleListen)
	}

	return cfg, nil
}
