package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kerlexov/clientlog/pkg/logger"
	"github.com/kerlexov/clientlog/pkg/retention"
)

func logsCmd() *cobra.Command {
	var (
		storeURL string
		key      string
		asJSON   bool
		minLevel string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print locally retained log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openRetention(cmd.Context(), storeURL, key)
			if err != nil {
				return err
			}
			defer closeStore()

			threshold := logger.LevelDebug
			if minLevel != "" {
				if threshold, err = logger.ParseLevel(minLevel); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, entry := range store.All(cmd.Context()) {
				if entry.Level < threshold {
					continue
				}
				if asJSON {
					line, err := json.Marshal(entry)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
					continue
				}
				fmt.Fprintln(out, formatEntry(entry))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeURL, "store", "bolt://clientlog.db", "key/value store URL")
	cmd.Flags().StringVar(&key, "key", retention.DefaultKey, "retention slot")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	cmd.Flags().StringVarP(&minLevel, "level", "l", "", "only print entries at or above this level")

	return cmd
}

func formatEntry(entry logger.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s]", entry.Timestamp, strings.ToUpper(entry.Level.String()))
	if entry.Tag != "" {
		fmt.Fprintf(&b, " [%s]", entry.Tag)
	}
	fmt.Fprintf(&b, ": %s", entry.Message)
	if len(entry.Data) > 0 {
		if data, err := json.Marshal(entry.Data); err == nil {
			b.WriteByte(' ')
			b.Write(data)
		}
	}
	return b.String()
}

func clearCmd() *cobra.Command {
	var (
		storeURL string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove locally retained log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openRetention(cmd.Context(), storeURL, key)
			if err != nil {
				return err
			}
			defer closeStore()

			store.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}

	cmd.Flags().StringVar(&storeURL, "store", "bolt://clientlog.db", "key/value store URL")
	cmd.Flags().StringVar(&key, "key", retention.DefaultKey, "retention slot")

	return cmd
}
