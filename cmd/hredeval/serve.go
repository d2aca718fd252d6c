package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// sourceRetryDelay is how long the evaluation loop waits after the batch
// source fails before starting the next pass.
const sourceRetryDelay = time.Second

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Evaluate batches from Kafka and serve reports over HTTP and RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// serve runs the evaluation loop, the HTTP API, the RPC server and the
// metrics server until ctx is cancelled or one of them fails.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	l := logger.WithComponent("hredeval")
	l.Info().
		Int("port", cfg.Server.Port).
		Str("profile", cfg.Model.Profile).
		Str("topic", cfg.Kafka.Topics.DecodedBatches).
		Msg("starting evaluation service")

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	sc, err := a.newScoring(m)
	if err != nil {
		return err
	}
	defer sc.Close()
	if sc.redis != nil {
		checker.Register("redis", health.PingCheck(sc.redis.Ping, true))
	}
	vocab, err := a.vocabulary()
	if err != nil {
		return err
	}

	memory := report.NewMemory(0)
	var reports report.Reader = memory
	sink := report.NewSink(cfg.Evaluation.SinkTimeout, m).Add("memory", memory)
	if cfg.Evaluation.PersistReports {
		store, db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping, false))
		sink.Add("postgres", store)
		reports = store
	}
	if cfg.Evaluation.PublishReports {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.EvaluationReports)
		defer producer.Close()
		sink.Add("kafka", report.NewPublisher(producer, m))
	}

	ev, err := a.evaluator("", sc.scorer, vocab, m)
	if err != nil {
		return err
	}
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DecodedBatches)
	defer consumer.Close()
	src := dataset.NewKafkaSource(consumer)

	scores, err := a.scoreService(sc.scorer, vocab)
	if err != nil {
		return err
	}
	var invalidator report.CacheInvalidator
	if sc.cache != nil {
		invalidator = sc.cache
	}

	mux := http.NewServeMux()
	report.NewHandler(reports, scores, invalidator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Logging(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.Metrics(m)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runEvaluationLoop(gctx, ev, src, sink)
	})
	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.RPC.Enabled {
		rpc := grpc.NewServer()
		report.NewRPCService(reports, scores).Register(rpc)
		g.Go(func() error {
			return rpc.Serve(fmt.Sprintf(":%d", cfg.RPC.Port))
		})
		g.Go(func() error {
			<-gctx.Done()
			rpc.Stop()
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Metrics.Port))
		if err != nil {
			return fmt.Errorf("listening for metrics: %w", err)
		}
		g.Go(func() error {
			return metrics.Serve(gctx, ln, cfg.Server.ShutdownTimeout)
		})
	}

	err = g.Wait()
	l.Info().Msg("evaluation service stopped")
	return err
}

// passRunner is the part of the Evaluator the loop drives.
type passRunner interface {
	Run(ctx context.Context, src dataset.Source, opts evaluation.RunOptions) (*evaluation.Report, error)
}

// passSource is a batch source that is reused across passes.
type passSource interface {
	dataset.Source
	Reset()
	Flush(ctx context.Context) error
}

// reportWriter receives finished reports.
type reportWriter interface {
	Save(ctx context.Context, rep *evaluation.Report) error
}

// runEvaluationLoop evaluates one pass after another until ctx is done. A
// pass ends at a final batch. Passes without scorable examples are skipped.
// A pass aborted by malformed input is drained to its final batch so the
// next pass starts clean. Source failures are retried after a delay.
func runEvaluationLoop(ctx context.Context, ev passRunner, src passSource, sink reportWriter) error {
	l := logger.WithComponent("evaluation-loop")
	for {
		rep, err := ev.Run(ctx, src, evaluation.RunOptions{})
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case errors.Is(err, evaluation.ErrNoExamples):
			l.Warn().Msg("pass ended without scorable examples")
		case errors.Is(err, apperrors.ErrInvalidInput):
			l.Error().Err(err).Msg("pass aborted on malformed batch")
			if err := drainPass(ctx, src); err != nil && ctx.Err() == nil {
				l.Error().Err(err).Msg("draining aborted pass")
			}
		case err != nil:
			l.Error().Err(err).Msg("pass failed")
			if !sleep(ctx, sourceRetryDelay) {
				return nil
			}
		default:
			if err := sink.Save(ctx, rep); err != nil {
				l.Error().Err(err).Str("run_id", rep.RunID).Msg("saving report")
			}
			l.Info().
				Str("run_id", rep.RunID).
				Int("epoch", rep.Epoch).
				Int("examples", rep.ExamplesScored).
				Int("skipped", rep.SkippedTotal()).
				Msg("pass evaluated")
		}
		if err := src.Flush(ctx); err != nil && ctx.Err() == nil {
			l.Warn().Err(err).Msg("committing pass")
		}
		src.Reset()
	}
}

// drainPass discards batches up to the end of the current pass.
func drainPass(ctx context.Context, src dataset.Source) error {
	for {
		_, err := src.Next(ctx)
		if errors.Is(err, dataset.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
