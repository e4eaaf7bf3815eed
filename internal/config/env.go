package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides, SHADOWSYNC_<KEY>-style.
const (
	EnvConfig                   = "SHADOWSYNC_CONFIG"
	EnvDirection                = "SHADOWSYNC_DIRECTION"
	EnvStrategyType             = "SHADOWSYNC_STRATEGY_TYPE"
	EnvMaxDiskUtilizationMB     = "SHADOWSYNC_MAX_DISK_UTILIZATION_MB"
	EnvMaxOutboundUpdatesPerSec = "SHADOWSYNC_MAX_OUTBOUND_UPDATES_PER_SECOND"
)

// ApplyEnvOverrides layers recognized environment variables over cfg,
// applied after the file so env always wins. Malformed numeric
// overrides are ignored (the file/default value wins) rather than
// promoted to a startup error.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDirection); v != "" {
		cfg.Synchronize.Direction = v
	}

	if v := os.Getenv(EnvStrategyType); v != "" {
		cfg.Strategy.Type = v
	}

	if v := os.Getenv(EnvMaxDiskUtilizationMB); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDiskUtilizationMegaBytes = n
		}
	}

	if v := os.Getenv(EnvMaxOutboundUpdatesPerSec); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimits.MaxOutboundUpdatesPerSecond = n
		}
	}
}

// ResolveConfigPath determines the config file path: explicit cli value,
// then SHADOWSYNC_CONFIG, then def.
func ResolveConfigPath(cliPath, def string) string {
	if cliPath != "" {
		return cliPath
	}

	if v := os.Getenv(EnvConfig); v != "" {
		return v
	}

	return def
}
