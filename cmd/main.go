package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"truck-event-scorer/internal/artifact"
	"truck-event-scorer/internal/config"
	"truck-event-scorer/internal/db"
	"truck-event-scorer/internal/enrich"
	"truck-event-scorer/internal/logging"
	"truck-event-scorer/internal/metrics"
	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/modelstore"
	"truck-event-scorer/internal/parser"
	"truck-event-scorer/internal/scoring"
	"truck-event-scorer/internal/sink"
	"truck-event-scorer/internal/transport"
)

var (
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "truck-scorer",
		Short: "Truck Event Scorer - Real-time driver violation prediction",
		Long: `A streaming operator that enriches truck events with driver and weather
data, scores them with a logistic regression model and emits the prediction
downstream. Violations are written to the artifact store as audit reports.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(modelCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(generateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads the config file and builds the logger
func initConfig(*cobra.Command, []string) error {
	var err error

	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err = logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging error: %w", err)
	}

	return nil
}

// connectNATS opens a NATS connection with a JetStream context
func connectNATS() (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("truck-event-scorer"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return nc, js, nil
}

// openArtifacts returns the configured artifact store. The nats backend
// connects on demand when js is nil; the returned close func releases it.
func openArtifacts(ctx context.Context, js jetstream.JetStream) (artifact.Store, func(), error) {
	if cfg.Artifacts.Backend != config.ArtifactsNATS {
		return artifact.NewDirStore(cfg.Artifacts.Root), func() {}, nil
	}

	closeFn := func() {}
	if js == nil {
		nc, conn, err := connectNATS()
		if err != nil {
			return nil, nil, err
		}
		js, closeFn = conn, nc.Close
	}

	store, err := artifact.NewObjectStore(ctx, js, cfg.Artifacts.Bucket)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// pipeline is everything the operator is built from
type pipeline struct {
	operator *scoring.Operator
	sink     *sink.AuditSink
	parser   *parser.Parser
}

// buildPipeline loads the model and wires the operator around emitter
func buildPipeline(ctx context.Context, store artifact.Store, emitter scoring.Emitter, reg prometheus.Registerer) (*pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	p := parser.NewParser(loc)

	model, err := modelstore.NewLoader(store, logger).Load(ctx, cfg.Model.Location)
	if err != nil {
		return nil, err
	}

	var enricher enrich.Enricher = enrich.NewSource(
		enrich.SQLDialer(cfg.KeyedStore.Driver, cfg.KeyedStore.DSN()), logger)
	if cfg.ProfileCacheSize > 0 {
		enricher, err = enrich.NewCachedProfiles(enricher, cfg.ProfileCacheSize)
		if err != nil {
			return nil, err
		}
	}

	m := metrics.New(reg)

	var sinkOpts []sink.Option
	if cfg.Audit.UniqueNames {
		sinkOpts = append(sinkOpts, sink.WithUniqueNames())
	}
	auditSink := sink.New(store, cfg.Audit.Base, m, logger, sinkOpts...)

	op, err := scoring.NewOperator(scoring.Config{
		TargetEventType: cfg.Scoring.TargetEventType,
		LookupTimeout:   time.Duration(cfg.Scoring.LookupTimeout),
	}, scoring.Dependencies{
		Model:    model,
		Enricher: enricher,
		Weather:  enrich.NewBiasedWeather(cfg.Weather, time.Now().UnixNano()),
		Emitter:  emitter,
		Sink:     auditSink,
		Parser:   p,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline{operator: op, sink: auditSink, parser: p}, nil
}

// outcome records the ack decision for one locally scored payload
type outcome struct {
	acked bool
}

func (o *outcome) Ack() error { o.acked = true; return nil }
func (o *outcome) Nak() error { o.acked = false; return nil }

// countingEmitter counts records passed to the wrapped emitter
type countingEmitter struct {
	next    scoring.Emitter
	emitted int
}

func (c *countingEmitter) Emit(ctx context.Context, rec *models.EmittedRecord) error {
	if err := c.next.Emit(ctx, rec); err != nil {
		return err
	}
	c.emitted++
	return nil
}

// scoreCmd scores event files through the full pipeline without NATS
func scoreCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "score [file...]",
		Short: "Score pipe-delimited event files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			store, closeStore, err := openArtifacts(ctx, nil)
			if err != nil {
				return err
			}
			defer closeStore()

			emitter := &countingEmitter{next: transport.NewWriterEmitter(out)}
			pl, err := buildPipeline(ctx, store, emitter, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			acked, failed := 0, 0
			for _, file := range args {
				fmt.Fprintf(os.Stderr, "Processing %s...\n", file)
				start := time.Now()

				payloads, err := parser.ReadFile(file)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
					failed++
					continue
				}

				for _, payload := range payloads {
					o := &outcome{}
					if err := pl.operator.Handle(ctx, payload, o); err != nil {
						fmt.Fprintf(os.Stderr, "  ✗ %v\n", err)
					}
					if o.acked {
						acked++
					} else {
						failed++
					}
				}

				elapsed := time.Since(start)
				fmt.Fprintf(os.Stderr, "  ✓ Handled %d events in %v (%.0f events/sec)\n",
					len(payloads), elapsed, float64(len(payloads))/elapsed.Seconds())
			}

			fmt.Fprintf(os.Stderr, "\nTotal: %d scored, %d filtered", emitter.emitted, acked-emitter.emitted)
			if failed > 0 {
				fmt.Fprintf(os.Stderr, ", %d failed", failed)
			}
			fmt.Fprintln(os.Stderr)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write emitted records to file instead of stdout")
	return cmd
}

// modelCmd prints the loaded model
func modelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Show the model loaded from the artifact store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, closeStore, err := openArtifacts(ctx, nil)
			if err != nil {
				return err
			}
			defer closeStore()

			model, err := modelstore.Load(ctx, store, cfg.Model.Location)
			if err != nil {
				return err
			}

			fmt.Printf("Model at %s\n", cfg.Model.Location)
			fmt.Println("==========================================")
			for i, w := range model.Weights() {
				name := "unused"
				if i < len(featureNames) {
					name = featureNames[i]
				}
				fmt.Printf("  w[%d] %-14s %v\n", i, name, w)
			}
			fmt.Printf("  intercept           %v\n", model.Intercept())
			if n := model.NumFeatures(); n != models.FeatureCount {
				fmt.Printf("\n  ⚠️  Model has %d weights, expected %d\n", n, models.FeatureCount)
			}

			return nil
		},
	}
}

var featureNames = []string{"certified", "wage_plan", "hours_logged", "miles_logged", "foggy", "rainy", "windy"}

// statsCmd shows keyed store statistics
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show keyed store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cmd.Context(), cfg.KeyedStore.Driver, cfg.KeyedStore.DSN())
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}

			fmt.Println("📊 Keyed Store Statistics")
			fmt.Println("=====================================")
			fmt.Printf("  Drivers:     %v\n", stats["total_drivers"])
			fmt.Printf("  Timesheets:  %v\n", stats["total_timesheets"])
			fmt.Printf("  Driver:      %s\n", cfg.KeyedStore.Driver)

			return nil
		},
	}
}
