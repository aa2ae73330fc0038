// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/onsale/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "onsale",
		Short:         "Ticket on-sale ingestion and Discord notification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv(config.ConfigPathEnvVar, configPath); err != nil {
					return fmt.Errorf("failed to set %s: %w", config.ConfigPathEnvVar, err)
				}
			}
			if logLevel != "" {
				if err := os.Setenv("LOG_LEVEL", logLevel); err != nil {
					return fmt.Errorf("failed to set LOG_LEVEL: %w", err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")

	root.AddCommand(
		runCmd(),
		pollCmd(),
		dispatchCmd(),
		remindersCmd(),
		linkCheckCmd(),
		migrateCmd(),
		regionsCmd(),
		eventsCmd(),
		remindCmd(),
		artistsCmd(),
		tokenCmd(),
	)
	return root
}
