// Package main runs the entry gate service: the candidate feed, the risk
// gate, the single-flight execution queue, post-entry monitors and the HTTP
// API in one process.
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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-entry-gate/internal/api"
	"solana-entry-gate/internal/config"
	"solana-entry-gate/internal/feed"
	"solana-entry-gate/internal/logging"
	"solana-entry-gate/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse/Redis")
	httpPort := flag.Int("http-port", 0, "HTTP API port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.UseMemory = true
	}
	if *httpPort > 0 {
		cfg.HTTPPort = *httpPort
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	base, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	logger := base.WithField("user_id", cfg.UserID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Entry) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	orch, err := buildOrchestrator(cfg, st, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var client *feed.WSClient
	if cfg.Feed.Enabled {
		wsCfg := feed.DefaultWSConfig()
		wsCfg.Venues = cfg.Feed.Venues
		client, err = feed.NewWSClient(gctx, cfg.Feed.URL, &wsCfg, logger)
		if err != nil {
			return fmt.Errorf("connect feed: %w", err)
		}
	}

	if err := orch.Start(gctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	g.Go(func() error {
		orch.Wait()
		return nil
	})

	if client != nil {
		g.Go(func() error {
			<-gctx.Done()
			return client.Close()
		})
		g.Go(func() error {
			pumpFeed(gctx, client, orch, cfg.Orchestrator.AutoExecute, logger)
			return nil
		})
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.New(orch, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// pumpFeed hands feed candidates to the orchestrator. Without auto-execute
// candidates are only admitted and logged.
func pumpFeed(ctx context.Context, client feed.Client, orch *orchestrator.Orchestrator, autoExecute bool, logger *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-client.Candidates():
			if !ok {
				return
			}
			if !autoExecute {
				d := orch.Admit(ctx, c)
				logger.WithFields(logrus.Fields{
					"mint":     c.Address,
					"admitted": d.Admitted,
					"penalty":  d.TotalPenalty,
				}).Info("candidate evaluated")
				continue
			}
			res := orch.Process(ctx, c)
			logger.WithFields(logrus.Fields{
				"mint":     res.Mint,
				"enqueued": res.Enqueued,
				"reason":   res.Reason,
			}).Debug("candidate processed")
		}
	}
}
