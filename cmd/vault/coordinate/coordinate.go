// Package coordinatecmder provides the coordinate command that audits a set
// of operators.
package coordinatecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/vectorvault/pkg/cliui"
	"github.com/papercomputeco/vectorvault/pkg/config"
	"github.com/papercomputeco/vectorvault/pkg/content/static"
	"github.com/papercomputeco/vectorvault/pkg/coordinator"
	"github.com/papercomputeco/vectorvault/pkg/dotdir"
	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	embeddingutils "github.com/papercomputeco/vectorvault/pkg/embeddings/utils"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/transport"
)

type coordinateCommander struct {
	flags config.FlagSet

	identity       string
	identityHeader string
	operators      []string
	listen         string
	ledgerPath     string
	once           bool

	taskSize           uint
	minLen             uint
	maxLen             uint
	updates            uint
	deleteProbability  float64
	replaceProbability float64
	interval           string
	operationsPerSec   float64
	timeouts           [4]string

	contentProvider   string
	contentTarget     string
	contentCategories []string

	paraphraseProvider string
	paraphraseTarget   string
	paraphraseModel    string

	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDimensions uint

	eventsProvider string
	eventsBrokers  []string
	eventsTopic    string

	configDir string
	debug     bool
	logFile   string
	logger    *slog.Logger
}

var coordinateFlags = config.FlagSet{
	config.FlagIdentity:          {Name: "identity", ViperKey: "coordinator.identity", Description: "Identity this coordinator presents to operators"},
	config.FlagIdentityHeader:    {Name: "identity-header", ViperKey: "operator.identity_header", Description: "Header carrying the coordinator identity"},
	config.FlagOperators:         {Name: "operators", ViperKey: "coordinator.operators", Description: "Operator base URLs to audit (comma separated)"},
	config.FlagCoordinatorListen: {Name: "listen", Shorthand: "l", ViperKey: "coordinator.listen", Description: "Address for the ledger status server"},
	config.FlagLedgerPath:        {Name: "ledger", ViperKey: "coordinator.ledger_path", Description: "Path to the SQLite ledger (default: .vectorvault/ledger.db)"},
	config.FlagTaskSize:          {Name: "task-size", ViperKey: "coordinator.task_size", Description: "Documents per create or update"},
	config.FlagInterval:          {Name: "interval", ViperKey: "coordinator.interval", Description: "Pause between audit rounds"},
	config.FlagDeleteProbability: {Name: "delete-probability", ViperKey: "coordinator.delete_probability", Description: "Chance a cycle issues a delete"},
	config.FlagContentProv:       {Name: "content-provider", ViperKey: "content.provider", Description: "Source documents provider (wikipedia, static)"},
	config.FlagContentTgt:        {Name: "content-target", ViperKey: "content.target", Description: "MediaWiki API URL or static document file"},
	config.FlagContentCategories: {Name: "content-categories", ViperKey: "content.categories", Description: "Categories drawn from for new namespaces"},
	config.FlagParaphraseProv:    {Name: "paraphrase-provider", ViperKey: "paraphrase.provider", Description: "Read query generator (ollama, excerpt)"},
	config.FlagParaphraseTgt:     {Name: "paraphrase-target", ViperKey: "paraphrase.target", Description: "Paraphrase provider URL"},
	config.FlagParaphraseModel:   {Name: "paraphrase-model", ViperKey: "paraphrase.model", Description: "Paraphrase model name"},
	config.FlagEmbeddingProv:     {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, hashing)"},
	config.FlagEmbeddingTgt:      {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	config.FlagEmbeddingModel:    {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name; must match the operators"},
	config.FlagEventsProv:        {Name: "events-provider", ViperKey: "events.provider", Description: "Cycle report sink (nop, kafka)"},
	config.FlagEventsBrokers:     {Name: "events-brokers", ViperKey: "events.brokers", Description: "Kafka brokers (comma separated)"},
	config.FlagEventsTopic:       {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for cycle reports"},
}

var coordinateFlagKeys = []string{
	config.FlagIdentity,
	config.FlagIdentityHeader,
	config.FlagOperators,
	config.FlagCoordinatorListen,
	config.FlagLedgerPath,
	config.FlagTaskSize,
	config.FlagInterval,
	config.FlagDeleteProbability,
	config.FlagContentProv,
	config.FlagContentTgt,
	config.FlagContentCategories,
	config.FlagParaphraseProv,
	config.FlagParaphraseTgt,
	config.FlagParaphraseModel,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEventsProv,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

const coordinateLongDesc string = `Audit a set of operators.

Each round runs one audit cycle per operator in parallel:

  create   a namespace seeded with source documents
  update   the configured number of times with more documents
  delete   drawn with --delete-probability against a sampled namespace
  read     a paraphrased query whose answer the ledger knows

Every response is checked against the audit ledger, which holds only ids,
names and estimated sizes. The cycle score feeds the operator's reward.
The ledger is exposed read-only on --listen.`

const coordinateShortDesc string = "Audit operators in rounds of cycles"

func NewCoordinateCmd() *cobra.Command {
	cmder := &coordinateCommander{flags: coordinateFlags}

	cmd := &cobra.Command{
		Use:   "coordinate",
		Short: coordinateShortDesc,
		Long:  coordinateLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, coordinateFlagKeys)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context(), cmd)
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagIdentity, &cmder.identity)
	config.AddStringFlag(cmd, cmder.flags, config.FlagIdentityHeader, &cmder.identityHeader)
	config.AddStringSliceFlag(cmd, cmder.flags, config.FlagOperators, &cmder.operators)
	config.AddStringFlag(cmd, cmder.flags, config.FlagCoordinatorListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLedgerPath, &cmder.ledgerPath)
	config.AddUintFlag(cmd, cmder.flags, config.FlagTaskSize, &cmder.taskSize)
	config.AddStringFlag(cmd, cmder.flags, config.FlagInterval, &cmder.interval)
	config.AddFloatFlag(cmd, cmder.flags, config.FlagDeleteProbability, &cmder.deleteProbability)
	config.AddStringFlag(cmd, cmder.flags, config.FlagContentProv, &cmder.contentProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagContentTgt, &cmder.contentTarget)
	config.AddStringSliceFlag(cmd, cmder.flags, config.FlagContentCategories, &cmder.contentCategories)
	config.AddStringFlag(cmd, cmder.flags, config.FlagParaphraseProv, &cmder.paraphraseProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagParaphraseTgt, &cmder.paraphraseTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagParaphraseModel, &cmder.paraphraseModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventsProv, &cmder.eventsProvider)
	config.AddStringSliceFlag(cmd, cmder.flags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventsTopic, &cmder.eventsTopic)

	cmd.Flags().BoolVar(&cmder.once, "once", false, "Run a single round and exit")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *coordinateCommander) load(v *viper.Viper) {
	c.identity = v.GetString("coordinator.identity")
	c.identityHeader = v.GetString("operator.identity_header")
	c.operators = v.GetStringSlice("coordinator.operators")
	c.listen = v.GetString("coordinator.listen")
	c.ledgerPath = v.GetString("coordinator.ledger_path")
	c.taskSize = v.GetUint("coordinator.task_size")
	c.minLen = v.GetUint("coordinator.min_len")
	c.maxLen = v.GetUint("coordinator.max_len")
	c.updates = v.GetUint("coordinator.updates")
	c.deleteProbability = v.GetFloat64("coordinator.delete_probability")
	c.replaceProbability = v.GetFloat64("coordinator.replace_probability")
	c.interval = v.GetString("coordinator.interval")
	c.operationsPerSec = v.GetFloat64("coordinator.operations_per_sec")
	c.timeouts = [4]string{
		v.GetString("coordinator.create_timeout"),
		v.GetString("coordinator.update_timeout"),
		v.GetString("coordinator.delete_timeout"),
		v.GetString("coordinator.read_timeout"),
	}
	c.contentProvider = v.GetString("content.provider")
	c.contentTarget = v.GetString("content.target")
	c.contentCategories = v.GetStringSlice("content.categories")
	c.paraphraseProvider = v.GetString("paraphrase.provider")
	c.paraphraseTarget = v.GetString("paraphrase.target")
	c.paraphraseModel = v.GetString("paraphrase.model")
	c.embeddingProvider = v.GetString("embedding.provider")
	c.embeddingTarget = v.GetString("embedding.target")
	c.embeddingModel = v.GetString("embedding.model")
	c.embeddingDimensions = v.GetUint("embedding.dimensions")
	c.eventsProvider = v.GetString("events.provider")
	c.eventsBrokers = v.GetStringSlice("events.brokers")
	c.eventsTopic = v.GetString("events.topic")
}

func (c *coordinateCommander) cycleTimeouts() (coordinator.Timeouts, error) {
	defaults := [4]time.Duration{
		coordinator.DefaultCreateTimeout,
		coordinator.DefaultUpdateTimeout,
		coordinator.DefaultDeleteTimeout,
		coordinator.DefaultReadTimeout,
	}

	var parsed [4]time.Duration
	for i, raw := range c.timeouts {
		d, err := config.Duration(raw, defaults[i])
		if err != nil {
			return coordinator.Timeouts{}, err
		}
		parsed[i] = d
	}

	return coordinator.Timeouts{
		Create: parsed[0],
		Update: parsed[1],
		Delete: parsed[2],
		Read:   parsed[3],
	}, nil
}

func (c *coordinateCommander) run(ctx context.Context, cmd *cobra.Command) error {
	log, closer, err := logger.Service("coordinator", c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	c.logger = log

	if len(c.operators) == 0 {
		return errors.New("no operators configured: pass --operators or set coordinator.operators")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval, err := config.Duration(c.interval, 2*time.Minute)
	if err != nil {
		return err
	}
	timeouts, err := c.cycleTimeouts()
	if err != nil {
		return err
	}

	seed := uint64(time.Now().UnixNano())

	dir, err := dotdir.NewManager().Ensure(c.configDir)
	if err != nil {
		return err
	}
	ledgerDriver, err := newLedger(ctx, ledgerPath(c.ledgerPath, dir))
	if err != nil {
		return err
	}
	defer ledgerDriver.Close()

	source, err := newContentSource(c.contentProvider, c.contentTarget, seed, c.logger)
	if err != nil {
		return err
	}
	defer source.Close()

	if watched, ok := source.(*static.Source); ok {
		go func() {
			err := watched.Watch(ctx, c.contentTarget, func(err error) {
				c.logger.Warn("reloading documents failed", "path", c.contentTarget, "error", err)
			})
			if err != nil {
				c.logger.Error("document watcher stopped", "error", err)
			}
		}()
	}

	paraphraser, err := newParaphraser(c.paraphraseProvider, c.paraphraseTarget, c.paraphraseModel, seed)
	if err != nil {
		return err
	}
	defer paraphraser.Close()

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

	publisher, err := newPublisher(c.eventsProvider, c.eventsBrokers, c.eventsTopic, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	operators := make([]coordinator.Operator, 0, len(c.operators))
	for _, url := range c.operators {
		client, err := transport.NewClient(transport.Config{
			BaseURL:        url,
			Identity:       c.identity,
			IdentityHeader: c.identityHeader,
		})
		if err != nil {
			return fmt.Errorf("operator %s: %w", url, err)
		}

		// An unreachable operator still gets audited and scores zero.
		_ = cliui.Step(cmd.ErrOrStderr(), "Reaching "+url, func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		})
		operators = append(operators, client)
	}

	generator := coordinator.NewGenerator(coordinator.GeneratorConfig{
		Source:             source,
		Paraphrase:         paraphraser,
		Ledger:             ledgerDriver,
		Categories:         c.contentCategories,
		TaskSize:           int(c.taskSize),
		MinLen:             int(c.minLen),
		MaxLen:             int(c.maxLen),
		ReplaceProbability: c.replaceProbability,
		Seed:               seed,
		Logger:             c.logger,
	})

	runner := coordinator.NewRunner(coordinator.RunnerConfig{
		Identity:          c.identity,
		Ledger:            ledgerDriver,
		Generator:         generator,
		Embedder:          embedder,
		Publisher:         publisher,
		Timeouts:          timeouts,
		Updates:           int(c.updates),
		DeleteProbability: c.deleteProbability,
		OperationsPerSec:  c.operationsPerSec,
		Seed:              seed ^ 0x9e3779b97f4a7c15,
		Logger:            c.logger,
	})

	coord := coordinator.New(coordinator.Config{
		Runner:    runner,
		Operators: operators,
		Interval:  interval,
		Logger:    c.logger,
	})

	if c.once {
		round, err := coord.RunRound(ctx)
		if err != nil {
			return err
		}
		printRound(cmd, round)
		return nil
	}

	status := coordinator.NewStatusServer(ledgerDriver, c.logger)
	go func() {
		if err := status.Run(c.listen); err != nil {
			c.logger.Error("status server stopped", "error", err)
		}
	}()
	defer func() {
		if err := status.Shutdown(); err != nil {
			c.logger.Error("shutting down status server", "error", err)
		}
	}()

	return coord.Run(ctx)
}

func printRound(cmd *cobra.Command, round *coordinator.Round) {
	out := cmd.OutOrStdout()
	for _, r := range round.Reports {
		failed := failedOperations(r)
		var mark error
		if failed > 0 {
			mark = fmt.Errorf("%d operations failed", failed)
		}
		fmt.Fprintf(out, "  %s %s  reward %.4f  tier %s  cycles %d\n",
			cliui.Mark(mark),
			r.OperatorID,
			r.Reward,
			r.Tier,
			r.PassedCycles,
		)
	}
	fmt.Fprintln(out, cliui.StepStyle.Render(fmt.Sprintf(
		"%d cycles, %d aborted, %d bytes accounted",
		len(round.Reports), round.Failed, round.StorageBytes,
	)))
}

func failedOperations(r *eventstream.CycleReport) int {
	n := 0
	for _, op := range r.Operations {
		if !op.Success {
			n++
		}
	}
	return n
}
