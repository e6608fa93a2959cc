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
	jobshandler "relay/internal/jobs/handler"
	"relay/internal/jobs/listener"
	jobsmetrics "relay/internal/jobs/metrics"
	"relay/internal/jobs/transport"
	jwttoken "relay/internal/jwt_token"
	"relay/internal/notify"
	"relay/internal/platform/config"
	"relay/internal/platform/httpserver"
	"relay/internal/platform/kafka"
	"relay/internal/platform/logger"
	"relay/internal/realtime"
	"relay/internal/realtime/gate"
	rtmetrics "relay/internal/realtime/metrics"
	"relay/internal/realtime/propagator"
	"relay/internal/realtime/wsserver"
	httptransport "relay/internal/transport/http"
)

// main runs the web tier: websockets, event propagation and the admin job API.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	jobMetrics := jobsmetrics.New()
	rtMetrics := rtmetrics.New()

	registry := realtime.NewRegistry()
	rooms := realtime.NewRooms()
	prop := propagator.New(infra.Bus, cfg.Bus.Channel, registry, rooms, log, propagator.WithMetrics(rtMetrics))

	// Without brokers jobs stay in process and the notify listener runs here.
	var emitter dispatcher.Emitter
	var router *transport.Router
	if len(cfg.Kafka.Brokers) > 0 {
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
		emitter = producer
	} else {
		log.Warn("KAFKA_BROKERS not set, dispatching jobs in process")
		router = transport.NewRouter(log)
		mem := transport.NewMemory(router, log)
		defer mem.Close()
		emitter = mem
	}

	d := dispatcher.New(infra.Audit, emitter, log, dispatcher.WithMetrics(jobMetrics))

	if router != nil {
		notifyListener, err := notify.New(prop, log).Listener(cfg.App, d, listener.WithGateCounter(jobMetrics))
		if err != nil {
			return err
		}
		router.Register(notify.Topic, notifyListener)
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	verifier := jwttoken.NewVerifierAdapter(jwt)
	sockets := wsserver.New(
		gate.New(verifier, infra.Accounts, cfg.Socket.HandshakeTimeout, log),
		registry, rooms, cfg.Socket, log,
		wsserver.WithMetrics(rtMetrics),
	)

	handler := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Sockets:   sockets,
		Admin:     []httptransport.Registrar{jobshandler.New(d, cfg.App, log)},
		Verifier:  verifier,
		Accounts:  infra.Accounts,
		AdminRole: cfg.Auth.AdminRole,
		Health:    infra.Health,
	})
	srv := httpserver.New(cfg.Addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting relay server", "addr", cfg.Addr, "app", cfg.App, "bus", cfg.Bus.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return prop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down relay server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
