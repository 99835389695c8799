package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

// Exit codes returned to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfig)
	}

	code := exitOK
	rootCmd := &cobra.Command{
		Use:           "groupchat",
		Short:         "Group chat server",
		Long:          "groupchat serves a browser chat page and relays every message to all connected participants over WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var runErr error
			code, runErr = run(cmd.Context(), &cfg)
			return runErr
		},
	}
	cfg.BindFlags(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "groupchat terminated with error: %v\n", err)
		if code == exitOK {
			code = exitConfig
		}
	}
	os.Exit(code)
}

// run wires the hub and HTTP server, then blocks until a termination signal
// or a listener failure.
func run(ctx context.Context, cfg *config.Config) (int, error) {
	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)

	hub := chat.NewHub(chat.NewRegistry(), logger, chat.Options{
		SendTimeout:     cfg.SendTimeout,
		FanoutWorkers:   cfg.FanoutWorkers,
		DuplicatePolicy: chat.DuplicatePolicy(cfg.DuplicatePolicy),
	})
	srv := server.New(*cfg, hub, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return exitRuntime, fmt.Errorf("http server: %w", err)
		}
		return exitOK, nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown: %w", err)
	}
	return exitOK, nil
}
