package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agentic insights REST server",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		cfg := server.DefaultConfig()
		if servePort != 0 {
			cfg.Port = servePort
		}
		setupLogging(cfg.LogLevel)

		srv := server.New(cfg, client)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				fatal("%v", err)
			}
		case sig := <-sigCh:
			slog.Info("received signal", "signal", sig)
			if err := srv.Shutdown(context.Background()); err != nil {
				fatal("shutdown failed: %v", err)
			}
		}
	},
}

var servePort int

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (defaults to INSIGHTS_PORT or 5100)")
}
