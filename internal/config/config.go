// Package config implements TOML configuration loading, validation, and
// environment-variable overlay for the shadow sync engine.
package config

// Config is the top-level configuration structure.
type Config struct {
	Synchronize                 SynchronizeConfig `toml:"synchronize"`
	Strategy                    StrategyConfig    `toml:"strategy"`
	RateLimits                  RateLimitsConfig  `toml:"rateLimits"`
	ShadowDocumentSizeLimitBytes int              `toml:"shadowDocumentSizeLimitBytes"`
	MaxDiskUtilizationMegaBytes  int              `toml:"maxDiskUtilizationMegaBytes"`
}

// ThingSpec describes one enrolled thing in list form
// (synchronize.shadowDocuments).
type ThingSpec struct {
	ThingName    string   `toml:"thingName"`
	Classic      bool     `toml:"classic"`
	NamedShadows []string `toml:"namedShadows"`
}

// ThingSpecMap describes one enrolled thing's shadow set in map form
// (synchronize.shadowDocumentsMap), keyed by thing name in the map itself.
type ThingSpecMap struct {
	Classic      bool     `toml:"classic"`
	NamedShadows []string `toml:"namedShadows"`
}

// SynchronizeConfig controls which shadows are enrolled and in which
// direction.
type SynchronizeConfig struct {
	ShadowDocuments    []ThingSpec             `toml:"shadowDocuments"`
	ShadowDocumentsMap map[string]ThingSpecMap `toml:"shadowDocumentsMap"`
	CoreThing          string                  `toml:"coreThing"`
	Direction          string                  `toml:"direction"`
	ProvideSyncStatus  bool                    `toml:"provideSyncStatus"`
}

// StrategyConfig selects the sync scheduler and its tuning knob.
type StrategyConfig struct {
	Type  string `toml:"type"`  // "realTime" | "periodic"
	Delay int    `toml:"delay"` // seconds, periodic only
}

// RateLimitsConfig caps outbound and inbound request rates.
type RateLimitsConfig struct {
	MaxOutboundUpdatesPerSecond       int `toml:"maxOutboundUpdatesPerSecond"`
	MaxTotalLocalRequestsRate         int `toml:"maxTotalLocalRequestsRate"`
	MaxLocalRequestsPerSecondPerThing int `toml:"maxLocalRequestsPerSecondPerThing"`
}
