package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/vectorvault/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the VAULT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (VAULT_OPERATOR_LISTEN, VAULT_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_dir", d.Storage.SQLiteDir)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Operator
	v.SetDefault("operator.listen", d.Operator.Listen)
	v.SetDefault("operator.identity_header", d.Operator.IdentityHeader)

	// Coordinator
	c := d.Coordinator
	v.SetDefault("coordinator.identity", c.Identity)
	v.SetDefault("coordinator.operators", c.Operators)
	v.SetDefault("coordinator.listen", c.Listen)
	v.SetDefault("coordinator.ledger_path", c.LedgerPath)
	v.SetDefault("coordinator.task_size", c.TaskSize)
	v.SetDefault("coordinator.min_len", c.MinLen)
	v.SetDefault("coordinator.max_len", c.MaxLen)
	v.SetDefault("coordinator.updates", c.Updates)
	v.SetDefault("coordinator.delete_probability", c.DeleteProbability)
	v.SetDefault("coordinator.replace_probability", c.ReplaceProbability)
	v.SetDefault("coordinator.interval", c.Interval)
	v.SetDefault("coordinator.operations_per_sec", c.OperationsPerSec)
	v.SetDefault("coordinator.create_timeout", c.CreateTimeout)
	v.SetDefault("coordinator.read_timeout", c.ReadTimeout)
	v.SetDefault("coordinator.update_timeout", c.UpdateTimeout)
	v.SetDefault("coordinator.delete_timeout", c.DeleteTimeout)

	// Vector index
	v.SetDefault("vector_index.provider", d.VectorIndex.Provider)
	v.SetDefault("vector_index.target", d.VectorIndex.Target)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Content
	v.SetDefault("content.provider", d.Content.Provider)
	v.SetDefault("content.target", d.Content.Target)
	v.SetDefault("content.categories", d.Content.Categories)

	// Paraphrase
	v.SetDefault("paraphrase.provider", d.Paraphrase.Provider)
	v.SetDefault("paraphrase.target", d.Paraphrase.Target)
	v.SetDefault("paraphrase.model", d.Paraphrase.Model)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
