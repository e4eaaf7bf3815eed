package config

import "github.com/greengrass-edge/shadow-sync/internal/sync"

const (
	// DefaultMaxOutboundUpdatesPerSecond is the default rate limit applied
	// when rateLimits.maxOutboundUpdatesPerSecond is unset.
	DefaultMaxOutboundUpdatesPerSecond = 100

	// DefaultStrategyType is used when strategy.type is unset.
	DefaultStrategyType = "realTime"
)

// DefaultConfig returns a Config populated with every default value,
// supporting the zero-config case where no file exists.
func DefaultConfig() *Config {
	return &Config{
		Synchronize: SynchronizeConfig{
			Direction: "betweenDeviceAndCloud",
		},
		Strategy: StrategyConfig{
			Type: DefaultStrategyType,
		},
		RateLimits: RateLimitsConfig{
			MaxOutboundUpdatesPerSecond: DefaultMaxOutboundUpdatesPerSecond,
		},
		ShadowDocumentSizeLimitBytes: sync.DefaultMaxDocumentSize,
		MaxDiskUtilizationMegaBytes:  sync.DefaultMaxDiskUtilizationMB,
	}
}
