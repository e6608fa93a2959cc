package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"relay/internal/app"
	"relay/internal/jobs/dispatcher"
	"relay/internal/jobs/listener"
	jobsmetrics "relay/internal/jobs/metrics"
	"relay/internal/jobs/transport"
	"relay/internal/notify"
	"relay/internal/platform/config"
	"relay/internal/platform/httpserver"
	"relay/internal/platform/kafka"
	"relay/internal/platform/logger"
	"relay/internal/realtime"
	"relay/internal/realtime/propagator"
	httptransport "relay/internal/transport/http"
)

// main runs the worker tier: it consumes job topics from Kafka, executes
// listener actions and reports completions to the audit store.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return kafka.ErrNoBrokers
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	jobMetrics := jobsmetrics.New()

	producer, err := kafka.NewProducer(cfg.Kafka, log, kafka.WithFailureCounter(jobMetrics))
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(context.Background()); err != nil {
			log.Error("producer close failed", "error", err)
		}
	}()
	infra.Health["kafka"] = producer.Health

	d := dispatcher.New(infra.Audit, producer, log, dispatcher.WithMetrics(jobMetrics))

	// The worker holds no sockets; its propagator only publishes.
	prop := propagator.New(infra.Bus, cfg.Bus.Channel, realtime.NewRegistry(), realtime.NewRooms(), log)

	notifyListener, err := notify.New(prop, log).Listener(cfg.App, d, listener.WithGateCounter(jobMetrics))
	if err != nil {
		return err
	}
	router := transport.NewRouter(log)
	router.Register(notify.Topic, notifyListener)

	if err := kafka.EnsureTopics(ctx, cfg.Kafka, router.Topics()...); err != nil {
		return err
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka, router, log, router.Topics()...)
	if err != nil {
		return err
	}
	defer consumer.Close()

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Health: infra.Health,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting relay worker",
			"addr", cfg.Addr,
			"app", cfg.App,
			"topics", router.Topics(),
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down relay worker")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
