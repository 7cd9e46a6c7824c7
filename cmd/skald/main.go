// Package main is the entry point for the skald CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/pkg/app"

	// Compiled-in modules; each registers itself with the core registry.
	_ "github.com/mgrall/skald/internal/gateway"
	_ "github.com/mgrall/skald/modules/activity"
	_ "github.com/mgrall/skald/modules/corecmd"
	_ "github.com/mgrall/skald/modules/mockplatform"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skald",
		Short:         "A module-hosting chat automation runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("skald %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				if mod.Core {
					fmt.Printf("  %s (core)\n", mod.ID)
				} else {
					fmt.Printf("  %s\n", mod.ID)
				}
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start skald with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			levelName, _ := cmd.Flags().GetString("log-level")

			var level slog.Level
			if err := level.UnmarshalText([]byte(levelName)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", levelName, err)
			}

			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				LogLevel:   level,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("log-level", "info", "Minimum log level (debug, info, warn, error)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg, core.HasModule); err != nil {
				return err
			}

			fmt.Printf("Configuration OK (%d configured modules)\n", len(cfg.Modules))
			for id := range cfg.Modules {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
