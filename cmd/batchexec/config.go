package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/batchexec/internal/config"
	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/transform"
	"github.com/flemzord/batchexec/pkg/app"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if _, err := cfg.Transform.Build(); err != nil {
				return fmt.Errorf("transform: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))
			appCtx := core.NewAppContext(logger, app.DefaultDataDir())
			appCtx = appCtx.WithModuleConfigs(cfg.Modules)

			application := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s mode, %d workers, %d modules)\n",
				cfg.Run.Mode, cfg.Executor.Workers, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var (
		output      string
		interactive bool
		answers     = defaultAnswers()
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interactive {
				if err := askAnswers(&answers); err != nil {
					return err
				}
			}
			cfg, err := config.Init(answers)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Write(cfg, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "batchexec.yaml", "Where to write the configuration")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Ask with an interactive form")
	cmd.Flags().IntVar(&answers.Workers, "workers", answers.Workers, "Number of workers")
	cmd.Flags().StringVar(&answers.Mode, "mode", answers.Mode, "Worker mode (process, goroutine)")
	cmd.Flags().StringVar(&answers.Transform, "transform", answers.Transform, "Transform name")
	cmd.Flags().StringVar(&answers.Dataset, "dataset", answers.Dataset, "JSONL dataset path")
	cmd.Flags().StringVar(&answers.Output, "results", answers.Output, "JSONL results path")
	cmd.Flags().StringVar(&answers.RunMode, "run-mode", answers.RunMode, "Run mode (stream, reservoir)")
	cmd.Flags().BoolVar(&answers.Metrics, "metrics", answers.Metrics, "Export Prometheus metrics")
	cmd.Flags().StringVar(&answers.GatewayBind, "gateway", answers.GatewayBind, "Admin gateway bind address (empty disables)")
	cmd.Flags().StringVar(&answers.LedgerPath, "ledger", answers.LedgerPath, "Run ledger database path (empty disables)")
	return cmd
}

func defaultAnswers() config.Answers {
	return config.Answers{
		Workers:     4,
		Mode:        config.ModeProcess,
		Transform:   "identity",
		Dataset:     "data.jsonl",
		Output:      "out.jsonl",
		RunMode:     config.RunStream,
		Metrics:     true,
		GatewayBind: "127.0.0.1:8080",
		LedgerPath:  "batchexec.db",
	}
}

// askAnswers runs the interactive form, starting from the values in a.
func askAnswers(a *config.Answers) error {
	workers := strconv.Itoa(a.Workers)

	var transforms []huh.Option[string]
	for _, info := range transform.All() {
		transforms = append(transforms, huh.NewOption(info.Name+" - "+info.Description, info.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dataset").
				Description("JSON Lines file, one batch per line").
				Value(&a.Dataset).
				Validate(notEmpty("dataset")),
			huh.NewInput().
				Title("Results").
				Description("Leave empty to discard results").
				Value(&a.Output),
			huh.NewSelect[string]().
				Title("Transform").
				Options(transforms...).
				Value(&a.Transform),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("0 runs every batch synchronously").
				Value(&workers).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return errors.New("workers must be a non-negative integer")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Worker mode").
				Options(huh.NewOptions(config.ModeProcess, config.ModeGoroutine)...).
				Value(&a.Mode),
			huh.NewSelect[string]().
				Title("Run mode").
				Options(huh.NewOptions(config.RunStream, config.RunReservoir)...).
				Value(&a.RunMode),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Export Prometheus metrics?").
				Value(&a.Metrics),
			huh.NewInput().
				Title("Admin gateway address").
				Description("Leave empty to disable").
				Value(&a.GatewayBind),
			huh.NewInput().
				Title("Run ledger database").
				Description("Leave empty to disable").
				Value(&a.LedgerPath),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	a.Workers, _ = strconv.Atoi(workers)
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
