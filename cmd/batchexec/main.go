// Package main is the entry point for the batchexec CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/batchexec/internal/config"
	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/app"
	"github.com/spf13/cobra"

	// Compiled-in modules and transforms.
	_ "github.com/flemzord/batchexec/internal/cron"
	_ "github.com/flemzord/batchexec/internal/gateway"
	_ "github.com/flemzord/batchexec/modules/ledger/sqlite"
	_ "github.com/flemzord/batchexec/modules/transform/basic"
	_ "github.com/flemzord/batchexec/modules/transform/cast"
	_ "github.com/flemzord/batchexec/modules/transform/cutout"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "batchexec",
		Short:         "Feed datasets through a pool of transform workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			config.LoadEnv()
		},
	}
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(versionCmd(), runCmd(), workerCmd(), transformsCmd(), configCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("batchexec %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured epochs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, params)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Persistent data directory")
	return cmd
}

// runParams builds app.RunParams from the run and service flags.
func runParams(cmd *cobra.Command) (app.RunParams, error) {
	level, err := logLevel(cmd)
	if err != nil {
		return app.RunParams{}, err
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}, nil
}

// workerCmd is the child side of process mode. stdout carries result
// frames, so it must never be written to by anything else.
func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Serve jobs from a batchexec parent process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logLevel(cmd)
			if err != nil {
				return err
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			fn, err := cfg.Transform.Build()
			if err != nil {
				return err
			}

			logger := app.NewLogger(cfg, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return executor.ServeWorker(ctx, os.Stdin, os.Stdout, executor.WorkerInfoFromEnv(), fn, logger)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func transformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transforms",
		Short: "List compiled transforms",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, info := range transform.All() {
				fmt.Fprintf(out, "  %-10s %s\n", info.Name, info.Description)
			}
		},
	}
}

// logLevel parses the --log-level flag.
func logLevel(cmd *cobra.Command) (slog.Level, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}
	return level, nil
}
