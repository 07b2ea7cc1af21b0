// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/papercomputeco/vectorvault/pkg/vector"
	"github.com/papercomputeco/vectorvault/pkg/vector/qdrant"
	"github.com/papercomputeco/vectorvault/pkg/vector/sqlitevec"
)

// Providers understood by NewVectorDriver. "none" disables the index.
const (
	ProviderNone      = "none"
	ProviderSQLiteVec = "sqlitevec"
	ProviderQdrant    = "qdrant"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is a database path for sqlitevec and host:port for qdrant.
	TargetURL string

	// Collection names the qdrant collection.
	Collection string

	Dimensions uint
	Logger     *slog.Logger
}

// NewVectorDriver returns nil without error for ProviderNone.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "", ProviderNone:
		return nil, nil
	case ProviderSQLiteVec:
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case ProviderQdrant:
		host, portStr, err := net.SplitHostPort(o.TargetURL)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant target %q: %w", o.TargetURL, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:       host,
			Port:       port,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
