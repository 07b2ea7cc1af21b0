// Package servecmder provides the serve command that runs an operator server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/vectorvault/api"
	"github.com/papercomputeco/vectorvault/api/mcp"
	"github.com/papercomputeco/vectorvault/pkg/config"
	"github.com/papercomputeco/vectorvault/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/vectorvault/pkg/embeddings/utils"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/operator"
)

type serveCommander struct {
	flags config.FlagSet

	listen         string
	identityHeader string

	storageDriver string
	sqliteDir     string
	postgresDSN   string

	vectorIndexProvider string
	vectorIndexTarget   string

	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDimensions uint

	configDir string
	debug     bool
	logFile   string
	logger    *slog.Logger
}

var serveFlags = config.FlagSet{
	config.FlagOperatorListen: {Name: "listen", Shorthand: "l", ViperKey: "operator.listen", Description: "Address for the operator server to listen on"},
	config.FlagIdentityHeader: {Name: "identity-header", ViperKey: "operator.identity_header", Description: "Header carrying the coordinator identity"},
	config.FlagStorageDriver:  {Name: "storage-driver", ViperKey: "storage.driver", Description: "Hierarchy store (sqlite, postgres, memory)"},
	config.FlagSQLiteDir:      {Name: "sqlite-dir", ViperKey: "storage.sqlite_dir", Description: "Directory holding one SQLite database per coordinator (default: .vectorvault/stores)"},
	config.FlagPostgresDSN:    {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string; each coordinator gets its own schema"},
	config.FlagVectorIndexProv: {
		Name: "vector-index-provider", ViperKey: "vector_index.provider", Description: "Approximate index next to the store (none, sqlitevec, qdrant)",
	},
	config.FlagVectorIndexTgt: {
		Name: "vector-index-target", ViperKey: "vector_index.target", Description: "Index directory for sqlitevec or host:port for qdrant",
	},
	config.FlagEmbeddingProv:  {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, hashing)"},
	config.FlagEmbeddingTgt:   {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	config.FlagEmbeddingModel: {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name (e.g., nomic-embed-text)"},
	config.FlagEmbeddingDims:  {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
}

const serveLongDesc string = `Run an operator server.

The operator answers create, read, update and delete requests from
coordinators over HTTP. Every request carries the coordinator identity in
a header, and each identity gets its own hierarchy store:

  sqlite     one database file per coordinator under --sqlite-dir
  postgres   one schema per coordinator in --postgres-dsn
  memory     volatile in-process stores

An optional approximate vector index narrows reads before exact re-ranking.
The MCP endpoint at /mcp exposes namespace search to agents.`

const serveShortDesc string = "Run an operator server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{flags: serveFlags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, []string{
				config.FlagOperatorListen,
				config.FlagIdentityHeader,
				config.FlagStorageDriver,
				config.FlagSQLiteDir,
				config.FlagPostgresDSN,
				config.FlagVectorIndexProv,
				config.FlagVectorIndexTgt,
				config.FlagEmbeddingProv,
				config.FlagEmbeddingTgt,
				config.FlagEmbeddingModel,
				config.FlagEmbeddingDims,
			})
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagOperatorListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagIdentityHeader, &cmder.identityHeader)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLiteDir, &cmder.sqliteDir)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagVectorIndexProv, &cmder.vectorIndexProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagVectorIndexTgt, &cmder.vectorIndexTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, cmder.flags, config.FlagEmbeddingDims, &cmder.embeddingDimensions)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// load copies the resolved flag > env > file > default values.
func (c *serveCommander) load(v *viper.Viper) {
	c.listen = v.GetString("operator.listen")
	c.identityHeader = v.GetString("operator.identity_header")
	c.storageDriver = v.GetString("storage.driver")
	c.sqliteDir = v.GetString("storage.sqlite_dir")
	c.postgresDSN = v.GetString("storage.postgres_dsn")
	c.vectorIndexProvider = v.GetString("vector_index.provider")
	c.vectorIndexTarget = v.GetString("vector_index.target")
	c.embeddingProvider = v.GetString("embedding.provider")
	c.embeddingTarget = v.GetString("embedding.target")
	c.embeddingModel = v.GetString("embedding.model")
	c.embeddingDimensions = v.GetUint("embedding.dimensions")
}

func (c *serveCommander) run(ctx context.Context) error {
	log, closer, err := logger.Service("operator", c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	c.logger = log

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.embeddingProvider,
		TargetURL:    c.embeddingTarget,
		Model:        c.embeddingModel,
		Dimensions:   c.embeddingDimensions,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	if c.storageDriver == driverSQLite && c.sqliteDir == "" {
		dir, err := dotdir.NewManager().Ensure(c.configDir)
		if err != nil {
			return err
		}
		c.sqliteDir = defaultStoresDir(dir)
	}

	open, err := newOpener(openerConfig{
		Driver:              c.storageDriver,
		SQLiteDir:           c.sqliteDir,
		PostgresDSN:         c.postgresDSN,
		VectorIndexProvider: c.vectorIndexProvider,
		VectorIndexTarget:   c.vectorIndexTarget,
		Dimensions:          c.embeddingDimensions,
		Logger:              c.logger,
	})
	if err != nil {
		return err
	}
	stores := operator.NewStores(open)
	defer stores.Close()

	engine := operator.New(operator.Config{
		Embedder: embedder,
		Logger:   c.logger,
	})

	mcpServer, err := mcp.NewServer(mcp.Config{
		Engine: engine,
		Stores: stores,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:     c.listen,
		IdentityHeader: c.identityHeader,
		MCPHandler:     mcpServer.Handler(),
	}, engine, stores, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting operator",
		"listen", c.listen,
		"storage", c.storageDriver,
		"vector_index", c.vectorIndexProvider,
		"embedding_model", c.embeddingModel,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down operator")
		return server.Shutdown()
	}
}
