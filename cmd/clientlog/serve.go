package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerlexov/clientlog/pkg/collector"
	"github.com/kerlexov/clientlog/pkg/config"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the log collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			log, err := newZapLogger(debug)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := collector.NewStore(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			var search *collector.SearchIndex
			if cfg.Search.Enabled {
				search, err = collector.NewSearchIndex(cfg.Search.IndexPath)
				if err != nil {
					return fmt.Errorf("failed to initialize search index: %w", err)
				}
				defer search.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := collector.NewServer(cfg, store, search, log)
			if err := server.Start(ctx); err != nil {
				return err
			}
			log.Info("collector stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to collector YAML config")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the listen port")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every request")

	return cmd
}

func newZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
