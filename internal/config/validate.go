package config

import (
	"errors"
	"fmt"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

// Validate checks all configuration values and returns every error found,
// not just the first, so a user sees a complete report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSynchronize(&cfg.Synchronize)...)
	errs = append(errs, validateStrategy(&cfg.Strategy)...)
	errs = append(errs, validateRateLimits(&cfg.RateLimits)...)
	errs = append(errs, validateSizeAndDisk(cfg)...)

	return errors.Join(errs...)
}

func validateSynchronize(s *SynchronizeConfig) []error {
	var errs []error

	switch s.Direction {
	case "", "betweenDeviceAndCloud", "deviceToCloud", "cloudToDevice":
	default:
		errs = append(errs, fmt.Errorf("synchronize.direction: unrecognized value %q", s.Direction))
	}

	for _, t := range s.ShadowDocuments {
		errs = append(errs, validateThingName(t.ThingName)...)

		for _, name := range t.NamedShadows {
			errs = append(errs, validateShadowName(name)...)
		}
	}

	for thing, spec := range s.ShadowDocumentsMap {
		errs = append(errs, validateThingName(thing)...)

		for _, name := range spec.NamedShadows {
			errs = append(errs, validateShadowName(name)...)
		}
	}

	return errs
}

func validateThingName(name string) []error {
	if err := shadowid.ValidateThingName(name); err != nil {
		return []error{fmt.Errorf("synchronize: %w", err)}
	}

	return nil
}

func validateShadowName(name string) []error {
	if err := shadowid.ValidateShadowName(name); err != nil {
		return []error{fmt.Errorf("synchronize: %w", err)}
	}

	return nil
}

func validateStrategy(s *StrategyConfig) []error {
	var errs []error

	switch s.Type {
	case "", "realTime", "periodic":
	default:
		errs = append(errs, fmt.Errorf("strategy.type: unrecognized value %q", s.Type))
	}

	if s.Type == "periodic" && s.Delay < 0 {
		errs = append(errs, fmt.Errorf("strategy.delay: must be >= 0, got %d", s.Delay))
	}

	return errs
}

func validateRateLimits(r *RateLimitsConfig) []error {
	var errs []error

	if r.MaxOutboundUpdatesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("rateLimits.maxOutboundUpdatesPerSecond: must be > 0, got %d", r.MaxOutboundUpdatesPerSecond))
	}

	if r.MaxTotalLocalRequestsRate < 0 {
		errs = append(errs, fmt.Errorf("rateLimits.maxTotalLocalRequestsRate: must be >= 0, got %d", r.MaxTotalLocalRequestsRate))
	}

	if r.MaxLocalRequestsPerSecondPerThing < 0 {
		errs = append(errs, fmt.Errorf("rateLimits.maxLocalRequestsPerSecondPerThing: must be >= 0, got %d", r.MaxLocalRequestsPerSecondPerThing))
	}

	return errs
}

func validateSizeAndDisk(cfg *Config) []error {
	var errs []error

	if cfg.ShadowDocumentSizeLimitBytes <= 0 || cfg.ShadowDocumentSizeLimitBytes > sync.MaxDocumentSizeCeiling {
		errs = append(errs, fmt.Errorf("shadowDocumentSizeLimitBytes: must be in (0, %d], got %d",
			sync.MaxDocumentSizeCeiling, cfg.ShadowDocumentSizeLimitBytes))
	}

	if cfg.MaxDiskUtilizationMegaBytes <= 0 {
		errs = append(errs, fmt.Errorf("maxDiskUtilizationMegaBytes: must be > 0, got %d", cfg.MaxDiskUtilizationMegaBytes))
	}

	return errs
}

// ToSyncConfiguration expands cfg's synchronize section into the
// internal/sync Configuration the Sync Handler consumes, preferring the
// map form when both the list and map forms are set.
func ToSyncConfiguration(cfg *Config) sync.Configuration {
	direction := directionFromString(cfg.Synchronize.Direction)

	var things []sync.NamedShadowSet

	if len(cfg.Synchronize.ShadowDocumentsMap) > 0 {
		for name, spec := range cfg.Synchronize.ShadowDocumentsMap {
			things = append(things, sync.NamedShadowSet{ThingName: name, Classic: spec.Classic, NamedShadows: spec.NamedShadows})
		}
	} else {
		for _, t := range cfg.Synchronize.ShadowDocuments {
			things = append(things, sync.NamedShadowSet{ThingName: t.ThingName, Classic: t.Classic, NamedShadows: t.NamedShadows})
		}
	}

	return sync.Configuration{Things: things, Direction: direction}
}

func directionFromString(s string) sync.Direction {
	switch s {
	case "deviceToCloud":
		return sync.DeviceToCloud
	case "cloudToDevice":
		return sync.CloudToDevice
	default:
		return sync.BetweenDeviceAndCloud
	}
}
