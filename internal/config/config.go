// Package config loads the aggregator's TOML config file and layers
// environment overrides on top of it, following the same
// file-then-env-then-default priority the teacher's config loader
// uses, adapted to a real on-disk file format this service owns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the fully resolved set of tunables spec.md §6 names, plus
// the ambient keys the daemon needs to wire its collaborators.
type Config struct {
	Agent struct {
		MetricTTL     time.Duration
		PollerTimeout time.Duration
		ResyncPeriod  time.Duration
		PeerQueryCap  int
	}

	LogLevel    string
	BusDSN      string
	AdminListen string
	RedisAddr   string
}

// fileShape mirrors the on-disk [agent] table; durations are stored in
// seconds, matching how spec.md documents the config keys.
type fileShape struct {
	Agent struct {
		MetricTTL     int64 `toml:"metric_ttl"`
		PollerTimeout int64 `toml:"poller_timeout"`
		ResyncPeriod  int64 `toml:"resync_period"`
		PeerQueryCap  int   `toml:"peer_query_cap"`
	} `toml:"agent"`

	LogLevel    string `toml:"log_level"`
	BusDSN      string `toml:"bus_dsn"`
	AdminListen string `toml:"admin_listen"`
	RedisAddr   string `toml:"redis_addr"`
}

// Defaults match spec.md §6 exactly.
const (
	DefaultMetricTTL     = 720 * time.Second
	DefaultPollerTimeout = 180 * time.Second
	DefaultResyncPeriod  = 43200 * time.Second
	DefaultPeerQueryCap  = 32
)

// Load reads path (if non-empty and present), then layers environment
// overrides, then built-in defaults for anything still unset.
func Load(path string) (*Config, error) {
	var fs fileShape
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &fs); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	cfg.Agent.MetricTTL = durationOrDefault(fs.Agent.MetricTTL, "FTY_ALERT_STATS_METRIC_TTL", DefaultMetricTTL)
	cfg.Agent.PollerTimeout = durationOrDefault(fs.Agent.PollerTimeout, "FTY_ALERT_STATS_POLLER_TIMEOUT", DefaultPollerTimeout)
	cfg.Agent.ResyncPeriod = durationOrDefault(fs.Agent.ResyncPeriod, "FTY_ALERT_STATS_RESYNC_PERIOD", DefaultResyncPeriod)
	cfg.Agent.PeerQueryCap = intOrDefault(fs.Agent.PeerQueryCap, "FTY_ALERT_STATS_PEER_QUERY_CAP", DefaultPeerQueryCap)

	cfg.LogLevel = stringOrDefault(fs.LogLevel, "FTY_ALERT_STATS_LOG_LEVEL", "info")
	cfg.BusDSN = stringOrDefault(fs.BusDSN, "FTY_ALERT_STATS_BUS_DSN", "postgres://localhost/fty?sslmode=disable")
	cfg.AdminListen = stringOrDefault(fs.AdminListen, "FTY_ALERT_STATS_ADMIN_LISTEN", ":8099")
	cfg.RedisAddr = stringOrDefault(fs.RedisAddr, "FTY_ALERT_STATS_REDIS_ADDR", "")

	return cfg, nil
}

func stringOrDefault(fileVal, envKey, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

func intOrDefault(fileVal int, envKey string, def int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if fileVal != 0 {
		return fileVal
	}
	return def
}

func durationOrDefault(fileSeconds int64, envKey string, def time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if fileSeconds != 0 {
		return time.Duration(fileSeconds) * time.Second
	}
	return def
}
