package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent vectorvault configuration stored as
// config.toml in the .vectorvault/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Operator    OperatorConfig    `toml:"operator"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	VectorIndex VectorIndexConfig `toml:"vector_index"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Content     ContentConfig     `toml:"content"`
	Paraphrase  ParaphraseConfig  `toml:"paraphrase"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig selects the operator's hierarchy store.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLiteDir   string `toml:"sqlite_dir,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// OperatorConfig holds operator server settings.
type OperatorConfig struct {
	Listen string `toml:"listen,omitempty"`

	// IdentityHeader carries the verified coordinator identity set by the
	// fronting transport. Requests without it are rejected.
	IdentityHeader string `toml:"identity_header,omitempty"`
}

// CoordinatorConfig holds audit cycle settings.
type CoordinatorConfig struct {
	Identity           string   `toml:"identity,omitempty"`
	Operators          []string `toml:"operators,omitempty"`
	Listen             string   `toml:"listen,omitempty"`
	LedgerPath         string   `toml:"ledger_path,omitempty"`
	TaskSize           uint     `toml:"task_size,omitempty"`
	MinLen             uint     `toml:"min_len,omitempty"`
	MaxLen             uint     `toml:"max_len,omitempty"`
	Updates            uint     `toml:"updates,omitempty"`
	DeleteProbability  float64  `toml:"delete_probability,omitempty"`
	ReplaceProbability float64  `toml:"replace_probability,omitempty"`
	Interval           string   `toml:"interval,omitempty"`
	OperationsPerSec   float64  `toml:"operations_per_sec,omitempty"`
	CreateTimeout      string   `toml:"create_timeout,omitempty"`
	ReadTimeout        string   `toml:"read_timeout,omitempty"`
	UpdateTimeout      string   `toml:"update_timeout,omitempty"`
	DeleteTimeout      string   `toml:"delete_timeout,omitempty"`
}

// VectorIndexConfig selects the optional approximate index the operator keeps
// next to its hierarchy store.
type VectorIndexConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// ContentConfig selects where the coordinator fetches source documents.
type ContentConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Target is the MediaWiki API URL, or a JSON file for the static provider.
	Target string `toml:"target,omitempty"`

	// Categories are drawn from when creating a namespace.
	Categories []string `toml:"categories,omitempty"`
}

// ParaphraseConfig selects the query paraphrase generator.
type ParaphraseConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EventsConfig selects where cycle reports are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// Duration parses one of the coordinator's duration strings, falling back to
// def when the value is empty.
func Duration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// listKey stores comma separated values.
func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			var out []string
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			*field(c) = out
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_dir":   stringKey(func(c *Config) *string { return &c.Storage.SQLiteDir }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"operator.listen":          stringKey(func(c *Config) *string { return &c.Operator.Listen }),
	"operator.identity_header": stringKey(func(c *Config) *string { return &c.Operator.IdentityHeader }),

	"coordinator.identity":            stringKey(func(c *Config) *string { return &c.Coordinator.Identity }),
	"coordinator.operators":           listKey(func(c *Config) *[]string { return &c.Coordinator.Operators }),
	"coordinator.listen":              stringKey(func(c *Config) *string { return &c.Coordinator.Listen }),
	"coordinator.ledger_path":         stringKey(func(c *Config) *string { return &c.Coordinator.LedgerPath }),
	"coordinator.task_size":           uintKey("coordinator.task_size", func(c *Config) *uint { return &c.Coordinator.TaskSize }),
	"coordinator.min_len":             uintKey("coordinator.min_len", func(c *Config) *uint { return &c.Coordinator.MinLen }),
	"coordinator.max_len":             uintKey("coordinator.max_len", func(c *Config) *uint { return &c.Coordinator.MaxLen }),
	"coordinator.updates":             uintKey("coordinator.updates", func(c *Config) *uint { return &c.Coordinator.Updates }),
	"coordinator.delete_probability":  floatKey("coordinator.delete_probability", func(c *Config) *float64 { return &c.Coordinator.DeleteProbability }),
	"coordinator.replace_probability": floatKey("coordinator.replace_probability", func(c *Config) *float64 { return &c.Coordinator.ReplaceProbability }),
	"coordinator.interval":            durationKey("coordinator.interval", func(c *Config) *string { return &c.Coordinator.Interval }),
	"coordinator.operations_per_sec":  floatKey("coordinator.operations_per_sec", func(c *Config) *float64 { return &c.Coordinator.OperationsPerSec }),
	"coordinator.create_timeout":      durationKey("coordinator.create_timeout", func(c *Config) *string { return &c.Coordinator.CreateTimeout }),
	"coordinator.read_timeout":        durationKey("coordinator.read_timeout", func(c *Config) *string { return &c.Coordinator.ReadTimeout }),
	"coordinator.update_timeout":      durationKey("coordinator.update_timeout", func(c *Config) *string { return &c.Coordinator.UpdateTimeout }),
	"coordinator.delete_timeout":      durationKey("coordinator.delete_timeout", func(c *Config) *string { return &c.Coordinator.DeleteTimeout }),

	"vector_index.provider": stringKey(func(c *Config) *string { return &c.VectorIndex.Provider }),
	"vector_index.target":   stringKey(func(c *Config) *string { return &c.VectorIndex.Target }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"content.provider":   stringKey(func(c *Config) *string { return &c.Content.Provider }),
	"content.target":     stringKey(func(c *Config) *string { return &c.Content.Target }),
	"content.categories": listKey(func(c *Config) *[]string { return &c.Content.Categories }),

	"paraphrase.provider": stringKey(func(c *Config) *string { return &c.Paraphrase.Provider }),
	"paraphrase.target":   stringKey(func(c *Config) *string { return &c.Paraphrase.Target }),
	"paraphrase.model":    stringKey(func(c *Config) *string { return &c.Paraphrase.Model }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
