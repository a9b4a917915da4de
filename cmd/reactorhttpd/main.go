package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avarga/reactorhttpd/internal/config"
	"github.com/avarga/reactorhttpd/internal/dbpool"
	"github.com/avarga/reactorhttpd/internal/httpconn"
	"github.com/avarga/reactorhttpd/internal/metrics"
	"github.com/avarga/reactorhttpd/internal/rlog"
	"github.com/avarga/reactorhttpd/internal/server"
)

var rootCmd = &cobra.Command{
	Use:     "reactorhttpd",
	Short:   "An epoll-based, single-process HTTP/1.1 static file server",
	Version: "0.1.0",
	RunE:    run,
}

func init() {
	config.BindFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.LogDisabled {
		cfg.Logging.Level = "error"
	}

	logger := rlog.New(rlog.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithComponent("reactorhttpd")

	root := httpconn.NewRootDir(cfg.DocumentRoot)
	if err := root.Ensure(); err != nil {
		return fmt.Errorf("document root: %w", err)
	}

	pool, err := dbpool.New[int](cfg.PoolSize,
		func() (int, error) { return 1, nil },
		nil,
	)
	if err != nil {
		return fmt.Errorf("resource pool: %w", err)
	}
	defer pool.Close()

	counters := metrics.New(0)

	srv, err := server.New(server.Options{
		Config:   cfg,
		Logger:   logger,
		Counters: counters,
		Pool:     pool,
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Stop()
	}()

	logger.InfoContext(context.Background(), "listening", "port", cfg.Port, "actor_model", cfg.ActorModel, "trigger_mode", cfg.TriggerMode)
	return srv.Run()
}
