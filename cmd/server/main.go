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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/duo/internal/adapters/http"
	sig "github.com/dkeye/duo/internal/adapters/signal"
	"github.com/dkeye/duo/internal/app"
	"github.com/dkeye/duo/internal/app/orch"
	"github.com/dkeye/duo/internal/config"
	"github.com/dkeye/duo/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	m := metrics.New()
	sessions := app.NewSessionRegistry(time.Now)
	m.ObserveSessions(sessions.Len)

	o := orch.New(sessions, app.NewConnRegistry(), app.SimplePolicy{}, m)
	ctrl := sig.NewSignalWSController(o,
		sig.NewRoomRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval),
		sig.Options{SendBuffer: cfg.SendBuffer, ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
	)
	sweeper := &app.Sweeper{
		Sessions:  sessions,
		Interval:  cfg.Session.SweepInterval,
		Retention: cfg.Session.Retention,
		Metrics:   m,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, ctrl, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Duo relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
