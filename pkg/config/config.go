package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/vectorvault/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .vectorvault/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in the order
// of the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"storage.driver",
		"storage.sqlite_dir",
		"storage.postgres_dsn",
		"operator.listen",
		"operator.identity_header",
		"coordinator.identity",
		"coordinator.operators",
		"coordinator.listen",
		"coordinator.ledger_path",
		"coordinator.task_size",
		"coordinator.min_len",
		"coordinator.max_len",
		"coordinator.updates",
		"coordinator.delete_probability",
		"coordinator.replace_probability",
		"coordinator.interval",
		"coordinator.operations_per_sec",
		"coordinator.create_timeout",
		"coordinator.read_timeout",
		"coordinator.update_timeout",
		"coordinator.delete_timeout",
		"vector_index.provider",
		"vector_index.target",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"content.provider",
		"content.target",
		"content.categories",
		"paraphrase.provider",
		"paraphrase.target",
		"paraphrase.model",
		"events.provider",
		"events.brokers",
		"events.topic",
	}

	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .vectorvault/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func setIfEmpty(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setIfZero[T uint | float64](dst *T, def T) {
	if *dst == 0 {
		*dst = def
	}
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	setIfEmpty(&cfg.Storage.Driver, d.Storage.Driver)

	setIfEmpty(&cfg.Operator.Listen, d.Operator.Listen)
	setIfEmpty(&cfg.Operator.IdentityHeader, d.Operator.IdentityHeader)

	co, dco := &cfg.Coordinator, d.Coordinator
	setIfEmpty(&co.Identity, dco.Identity)
	setIfEmpty(&co.Listen, dco.Listen)
	setIfZero(&co.TaskSize, dco.TaskSize)
	setIfZero(&co.MinLen, dco.MinLen)
	setIfZero(&co.MaxLen, dco.MaxLen)
	setIfZero(&co.Updates, dco.Updates)
	setIfZero(&co.DeleteProbability, dco.DeleteProbability)
	setIfEmpty(&co.Interval, dco.Interval)
	setIfZero(&co.OperationsPerSec, dco.OperationsPerSec)
	setIfEmpty(&co.CreateTimeout, dco.CreateTimeout)
	setIfEmpty(&co.ReadTimeout, dco.ReadTimeout)
	setIfEmpty(&co.UpdateTimeout, dco.UpdateTimeout)
	setIfEmpty(&co.DeleteTimeout, dco.DeleteTimeout)

	setIfEmpty(&cfg.VectorIndex.Provider, d.VectorIndex.Provider)

	setIfEmpty(&cfg.Embedding.Provider, d.Embedding.Provider)
	setIfEmpty(&cfg.Embedding.Target, d.Embedding.Target)
	setIfEmpty(&cfg.Embedding.Model, d.Embedding.Model)
	setIfZero(&cfg.Embedding.Dimensions, d.Embedding.Dimensions)

	setIfEmpty(&cfg.Content.Provider, d.Content.Provider)
	setIfEmpty(&cfg.Content.Target, d.Content.Target)
	if len(cfg.Content.Categories) == 0 {
		cfg.Content.Categories = d.Content.Categories
	}

	setIfEmpty(&cfg.Paraphrase.Provider, d.Paraphrase.Provider)
	setIfEmpty(&cfg.Paraphrase.Target, d.Paraphrase.Target)
	setIfEmpty(&cfg.Paraphrase.Model, d.Paraphrase.Model)

	setIfEmpty(&cfg.Events.Provider, d.Events.Provider)
	setIfEmpty(&cfg.Events.Topic, d.Events.Topic)
}

// SaveConfig persists the configuration to config.toml in the target .vectorvault/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
