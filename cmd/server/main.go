package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/trafficwatch/backend/internal/config"
	"github.com/trafficwatch/backend/internal/frontend"
	"github.com/trafficwatch/backend/internal/generator"
	"github.com/trafficwatch/backend/internal/health"
	"github.com/trafficwatch/backend/internal/ingest"
	"github.com/trafficwatch/backend/internal/logger"
	"github.com/trafficwatch/backend/internal/metrics"
	"github.com/trafficwatch/backend/internal/pipeline"
	"github.com/trafficwatch/backend/internal/relay"
	"github.com/trafficwatch/backend/internal/stats"
	"github.com/trafficwatch/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	noGenerator := flag.Bool("no-generator", false, "Disable the synthetic traffic generator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *noGenerator {
		cfg.Generator.Enabled = false
	}

	logger.Setup(cfg.Logging)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	agg := stats.NewAggregator(cfg.Stats.MilestoneInterval)
	broadcaster := ws.NewBroadcaster(agg, cfg.Broadcast.QueueSize, cfg.Broadcast.MaxSessions, m)
	pipe := pipeline.New(agg, broadcaster, m)
	endpoint := ingest.NewEndpoint(pipe, cfg.Ingest.MaxBodyBytes, m)

	idem, err := ingest.NewIdempotency(cfg.Ingest.IdempotencyCacheBytes, cfg.Ingest.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency cache: %w", err)
	}
	defer idem.Close()

	server := ws.NewServer(broadcaster, agg, ws.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteTimeout:   cfg.Broadcast.WriteTimeout,
		PingInterval:   cfg.Broadcast.PingInterval,
		Ingest:         idem.Middleware(endpoint),
		Health:         health.NewReporter(agg, broadcaster),
		Metrics:        m.Handler(),
		Frontend:       frontendHandler(cfg.Frontend.Dir),
	})

	// No WriteTimeout: websocket responses are long-lived.
	httpSrv := &http.Server{
		Addr:              ws.Addr(cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var gen *generator.Generator
	if cfg.Generator.Enabled {
		if gen, err = generator.New(cfg.Generator, pipe); err != nil {
			return err
		}
	}

	if cfg.Relay.NATS.Enabled {
		r, err := relay.Connect(cfg.Relay.NATS.URL, cfg.Relay.NATS.Subject)
		if err != nil {
			return err
		}
		if _, err := broadcaster.Attach(r, "nats:"+r.Subject()); err != nil {
			return fmt.Errorf("attach nats relay: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		broadcaster.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if gen != nil {
		g.Go(func() error {
			if err := gen.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Info().Msg("generator disabled")
	}

	if cfg.Ingest.Redis.Enabled {
		src := ingest.NewRedisSource(cfg.Ingest.Redis, endpoint)
		defer src.Close()
		g.Go(func() error {
			// The redis feed is optional; losing it must not stop the server.
			if err := src.Run(gctx); err != nil {
				log.Error().Err(err).Msg("redis ingest stopped")
			}
			return nil
		})
	}

	return g.Wait()
}

func frontendHandler(dir string) http.Handler {
	if h := frontend.Handler(); h != nil {
		log.Info().Msg("serving embedded frontend")
		return h
	}
	if dir == "" {
		return nil
	}
	h, err := frontend.Dir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("frontend directory unavailable")
		return nil
	}
	log.Info().Str("dir", dir).Msg("serving frontend from filesystem")
	return h
}
