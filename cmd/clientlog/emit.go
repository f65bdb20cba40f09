package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerlexov/clientlog/pkg/logger"
	"github.com/kerlexov/clientlog/pkg/retention"
	"github.com/kerlexov/clientlog/pkg/storage"
)

func emitCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		level      string
		tag        string
		data       []string
		batch      bool
		beacon     bool
		compress   bool
		storeURL   string
		maxLogs    int
	)

	cmd := &cobra.Command{
		Use:   "emit MESSAGE",
		Short: "Emit one log entry through the client logger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := logger.LoadConfig(configPath)
			if err != nil {
				return err
			}

			lvl, err := logger.ParseLevel(level)
			if err != nil {
				return err
			}

			fields, err := parseFields(data)
			if err != nil {
				return err
			}
			if tag != "" {
				fields = append(fields, logger.Tag(tag))
			}

			var opts []logger.Option

			if storeURL != "" {
				kv, err := storage.Open(cmd.Context(), storeURL)
				if err != nil {
					return err
				}
				defer kv.Close()
				opts = append(opts, logger.UseRetention(retention.New(kv)))
				cfg.UseLocalStorage = true
				if maxLogs > 0 {
					cfg.MaxLocalLogs = maxLogs
				}
			}

			if serverURL != "" {
				cfg.ReportToServer = true
				cfg.ServerURL = serverURL
				cfg.BatchReport = batch

				transportConfig := logger.HTTPTransportConfig{Timeout: cfg.HTTPTimeout, Compress: compress}
				if beacon {
					transportConfig.Beacon = logger.NewQueueBeacon(0, cfg.HTTPTimeout, nil)
				}
				opts = append(opts, logger.UseTransport(logger.NewHTTPTransport(transportConfig)))
			}

			l, err := logger.New(cfg, opts...)
			if err != nil {
				return err
			}

			l.Log(lvl, args[0], fields...)
			return l.Close()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to logger YAML config")
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "report endpoint, e.g. http://localhost:8080/v1/logs")
	cmd.Flags().StringVarP(&level, "level", "l", "info", "debug, info, warn or error")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "entry tag")
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "key=value data, repeatable")
	cmd.Flags().BoolVar(&batch, "batch", false, "queue the entry and flush it on exit")
	cmd.Flags().BoolVar(&beacon, "beacon", false, "deliver through the background beacon")
	cmd.Flags().BoolVar(&compress, "gzip", false, "gzip direct POST bodies")
	cmd.Flags().StringVar(&storeURL, "store", "", "retain the entry locally, e.g. bolt:///tmp/clientlog.db")
	cmd.Flags().IntVar(&maxLogs, "max-local-logs", 0, "local retention capacity")

	return cmd
}

// parseFields turns key=value pairs into fields. Values that parse as
// numbers, booleans or durations keep that type.
func parseFields(pairs []string) ([]logger.Field, error) {
	fields := make([]logger.Field, 0, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q, expected key=value", pair)
		}
		fields = append(fields, logger.F(key, parseValue(value)))
	}
	return fields, nil
}

func parseValue(value string) interface{} {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d.String()
	}
	return value
}

func openRetention(ctx context.Context, storeURL, key string) (*retention.Store, func() error, error) {
	kv, err := storage.Open(ctx, storeURL)
	if err != nil {
		return nil, nil, err
	}
	return retention.New(kv, retention.WithKey(key)), kv.Close, nil
}
