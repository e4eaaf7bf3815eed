package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file using a two-pass decode,
// applies the environment overlay, validates the result, and returns the
// resulting Config. Pass 1 decodes into the typed
// Config. Pass 2 decodes into a raw map, used to detect unknown top-level
// keys, which are logged as a warning and otherwise ignored. A warning is
// also logged when both shadowDocuments forms are present.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownTopLevelKeys(raw); err != nil {
		logger.Warn("ignoring unknown config keys", slog.String("path", path), slog.String("detail", err.Error()))
	}

	warnBothShadowDocumentForms(cfg, logger)

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns defaults with
// the environment overlay applied — the zero-config first-run path.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		cfg := DefaultConfig()
		ApplyEnvOverrides(cfg)

		return cfg, Validate(cfg)
	}

	return Load(path, logger)
}

// warnBothShadowDocumentForms logs when both the list and map forms of
// synchronize.shadowDocuments are present, and prefers the map form.
func warnBothShadowDocumentForms(cfg *Config, logger *slog.Logger) {
	if len(cfg.Synchronize.ShadowDocuments) > 0 && len(cfg.Synchronize.ShadowDocumentsMap) > 0 {
		logger.Warn("both synchronize.shadowDocuments and synchronize.shadowDocumentsMap are set; preferring the map form")

		cfg.Synchronize.ShadowDocuments = nil
	}
}
