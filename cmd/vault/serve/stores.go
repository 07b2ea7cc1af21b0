package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/storage"
	"github.com/papercomputeco/vectorvault/pkg/storage/inmemory"
	"github.com/papercomputeco/vectorvault/pkg/storage/postgres"
	"github.com/papercomputeco/vectorvault/pkg/storage/sqlite"
	"github.com/papercomputeco/vectorvault/pkg/vector"
	vectorutils "github.com/papercomputeco/vectorvault/pkg/vector/utils"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type openerConfig struct {
	Driver      string
	SQLiteDir   string
	PostgresDSN string

	VectorIndexProvider string

	// VectorIndexTarget is a directory for sqlitevec and host:port for qdrant.
	VectorIndexTarget string

	Dimensions uint
	Logger     *slog.Logger
}

func defaultStoresDir(dotdir string) string {
	return filepath.Join(dotdir, "stores")
}

// newOpener returns the operator.Opener for the configured storage driver.
func newOpener(c openerConfig) (operator.Opener, error) {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	var openDriver func(ctx context.Context, name string) (storage.Driver, error)

	switch c.Driver {
	case driverSQLite:
		if c.SQLiteDir == "" {
			return nil, fmt.Errorf("sqlite storage requires a directory")
		}
		if err := os.MkdirAll(c.SQLiteDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		openDriver = func(ctx context.Context, name string) (storage.Driver, error) {
			return sqlite.NewSQLiteDriver(ctx, filepath.Join(c.SQLiteDir, name+".db"))
		}

	case driverPostgres:
		if c.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a connection string")
		}
		openDriver = func(ctx context.Context, name string) (storage.Driver, error) {
			return postgres.NewDriver(ctx, c.PostgresDSN, name)
		}

	case driverMemory:
		// In-memory drivers outlive their stores so a released identity
		// finds its hierarchy again.
		var mu sync.Mutex
		drivers := map[string]*inmemory.Driver{}
		openDriver = func(_ context.Context, name string) (storage.Driver, error) {
			mu.Lock()
			defer mu.Unlock()
			d, ok := drivers[name]
			if !ok {
				d = inmemory.NewDriver()
				drivers[name] = d
			}
			return d, nil
		}

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}

	return func(ctx context.Context, identity string) (*operator.Store, error) {
		name := operator.StoreName(identity)

		driver, err := openDriver(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("opening %s store: %w", c.Driver, err)
		}

		index, err := c.openIndex(ctx, name)
		if err != nil {
			driver.Close()
			return nil, err
		}

		c.Logger.Debug("opened store",
			"identity", identity,
			"store", name,
			"driver", c.Driver,
		)
		return operator.NewStore(identity, driver, index), nil
	}, nil
}

func (c openerConfig) openIndex(ctx context.Context, name string) (vector.Driver, error) {
	opts := &vectorutils.NewVectorDriverOpts{
		ProviderType: c.VectorIndexProvider,
		Dimensions:   c.Dimensions,
		Logger:       c.Logger,
	}

	switch c.VectorIndexProvider {
	case vectorutils.ProviderSQLiteVec:
		dir := c.VectorIndexTarget
		if dir == "" {
			dir = c.SQLiteDir
		}
		if dir == "" {
			return nil, fmt.Errorf("sqlitevec index requires a directory")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		opts.TargetURL = filepath.Join(dir, name+"-vec.db")
	case vectorutils.ProviderQdrant:
		opts.TargetURL = c.VectorIndexTarget
		opts.Collection = "vectorvault_" + name
	}

	index, err := vectorutils.NewVectorDriver(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	return index, nil
}
