package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dropfeed/internal/api"
	"github.com/kalambet/dropfeed/internal/broadcast"
	"github.com/kalambet/dropfeed/internal/config"
	"github.com/kalambet/dropfeed/internal/poller"
	"github.com/kalambet/dropfeed/internal/source"
	"github.com/kalambet/dropfeed/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dropfeed server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "dropfeed version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	keywords := cfg.KeywordSet()
	slog.Info("keyword set loaded", "keywords", keywords.Len())

	src := source.NewMastodonSource(source.MastodonConfig{
		Server:      cfg.Mastodon.Server,
		AccessToken: cfg.Mastodon.AccessToken,
		Account:     cfg.Mastodon.Account,
	})

	broadcaster := broadcast.New(cfg.Server.EventBuffer)
	loop := poller.New(src, store, keywords, broadcaster, poller.Options{
		Interval:  time.Duration(cfg.Ingest.IntervalSeconds) * time.Second,
		BatchSize: cfg.Ingest.BatchSize,
		TopN:      cfg.Ingest.TopN,
	})

	handler := api.NewHandler(api.Deps{
		Store:       store,
		Poller:      loop,
		Broadcaster: broadcaster,
		ResultLimit: cfg.Server.ResultLimit,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("dropfeed listening", "addr", addr, "account", cfg.Mastodon.Account)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
