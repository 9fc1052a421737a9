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

	"github.com/conorfennell/learnhub/internal/catalog"
	"github.com/conorfennell/learnhub/internal/config"
	"github.com/conorfennell/learnhub/internal/identity"
	"github.com/conorfennell/learnhub/internal/storage"
	"github.com/conorfennell/learnhub/internal/sync"
	"github.com/conorfennell/learnhub/internal/web"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("learnhub failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Parse flags and load configuration
	fs := config.NewFlagSet("learnhub")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if cfg.Session.Secret == config.DefaultSessionSecret {
		slog.Warn("Using the development session secret; set LEARNHUB_SESSION_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the database
	db, err := storage.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("Database opened successfully", "driver", cfg.DB.Driver)

	// 3. One-shot catalog commands
	if path, _ := fs.GetString("add-source"); path != "" {
		_, err := sync.AddSource(ctx, db, path)
		return err
	}
	if doSync, _ := fs.GetBool("sync"); doSync {
		report, err := sync.RunSync(ctx, db, cfg.Catalog.Workdir)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources: %d courses parsed, %d changed, %d stale, %d errors.\n",
			report.Sources, report.Parsed, report.Changed, report.Stale, len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("- %s\n", e)
		}
		return nil
	}

	// 4. Serve
	ids := identity.NewProvider([]byte(cfg.Session.Secret), cfg.Session.Name, logger)
	srv, err := web.NewServer(catalog.NewService(db, logger), ids, cfg.API.Origins, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
