// Command afhe-server serves one afhe context over HTTP.
//
//	afhe-server --addr :8448 --scheme bfv --poly-degree 4096 --plain-bits 20 --relin-keys
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/afhe/internal/config"
	"github.com/luxfi/afhe/internal/storage"
	"github.com/luxfi/afhe/server"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "afhe-server",
		Short:         "Serve homomorphic encryption over HTTP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			var cfg Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	addFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg Config) error {
	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	b, params, mode, err := cfg.Context.Resolve()
	if err != nil {
		return err
	}

	var store storage.Storage
	if cfg.Storage == "memory" {
		store = storage.NewMemoryStorage(cfg.StorageCapacityMB)
	} else if store, err = storage.NewFileStorage(cfg.Storage); err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	log.Info("afhe server starting",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.Stringer("backend", b),
		zap.Stringer("scheme", params.Scheme),
	)

	srv, err := server.New(server.Config{
		Backend:     b,
		Parameters:  params,
		Compression: mode,
		RelinKeys:   cfg.RelinKeys,
		GaloisKeys:  cfg.GaloisKeys,
	}, store, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	return nil
}
