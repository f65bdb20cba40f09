// Package main implements the clientlog CLI: a collector server and tools for
// emitting and inspecting client logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clientlog",
		Short:         "Client log collector and tools",
		Long:          `clientlog runs a collector for client log reports and emits or inspects locally retained logs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(emitCmd())
	cmd.AddCommand(logsCmd())
	cmd.AddCommand(clearCmd())

	return cmd
}
