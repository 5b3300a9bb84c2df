package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"truck-event-scorer/internal/api"
	"truck-event-scorer/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// serveCmd consumes events from JetStream and serves the status API
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume and score events from NATS JetStream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nc, js, err := connectNATS()
			if err != nil {
				return err
			}
			defer nc.Close()

			if _, err := transport.EnsureStream(ctx, js, cfg.NATS.Stream, cfg.NATS.Subject); err != nil {
				return err
			}
			if _, err := transport.EnsureStream(ctx, js, cfg.NATS.OutputStream, cfg.NATS.OutputSubject); err != nil {
				return err
			}

			store, closeStore, err := openArtifacts(ctx, js)
			if err != nil {
				return err
			}
			defer closeStore()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			pl, err := buildPipeline(ctx, store, transport.NewPublisher(js, cfg.NATS.OutputSubject), reg)
			if err != nil {
				return err
			}

			consumer, err := transport.NewConsumer(ctx, js, transport.ConsumerConfig{
				Stream:     cfg.NATS.Stream,
				Consumer:   cfg.NATS.Consumer,
				Subject:    cfg.NATS.Subject,
				MaxDeliver: cfg.NATS.MaxDeliver,
				AckWait:    time.Duration(cfg.NATS.AckWait),
				BatchSize:  cfg.NATS.BatchSize,
				Workers:    cfg.Scoring.Workers,
			}, logger)
			if err != nil {
				return err
			}

			server := api.NewServer(pl.operator, pl.sink, pl.parser, reg, logger)
			httpServer := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			logger.Info().
				Str("stream", cfg.NATS.Stream).
				Str("subject", cfg.NATS.Subject).
				Str("output_subject", cfg.NATS.OutputSubject).
				Str("http_addr", cfg.HTTP.Addr).
				Int("workers", cfg.Scoring.Workers).
				Msg("Truck event scorer started")

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return consumer.Run(gctx, pl.operator)
			})

			g.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			logger.Info().Msg("Truck event scorer stopped")
			return err
		},
	}

	return cmd
}
