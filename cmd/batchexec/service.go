package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/batchexec/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program runs batchexec under a service manager.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan struct{}
	logger service.Logger
}

// Start implements service.Interface. It must not block.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		err := app.Run(ctx, p.params)
		if ctx.Err() != nil {
			return
		}
		// The run ended on its own; the service has nothing left to do.
		if err != nil {
			_ = p.logger.Error(err)
			os.Exit(1)
		}
		_ = p.logger.Info("run complete")
		os.Exit(0)
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Manage batchexec as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(service.ControlAction[:], "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			svcConfig, err := serviceConfig(params)
			if err != nil {
				return err
			}

			prg := &program{params: params}
			svc, err := service.New(prg, svcConfig)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}
			prg.logger, err = svc.Logger(nil)
			if err != nil {
				return fmt.Errorf("service: logger: %w", err)
			}

			if args[0] == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Persistent data directory")
	return cmd
}

// serviceConfig describes the installed service. The config path is made
// absolute because service managers start from an unrelated directory.
func serviceConfig(params app.RunParams) (*service.Config, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	args = append(args, "--log-level", params.LogLevel.String())

	return &service.Config{
		Name:        "batchexec",
		DisplayName: "batchexec",
		Description: "Feeds datasets through a pool of transform workers.",
		Arguments:   args,
	}, nil
}
