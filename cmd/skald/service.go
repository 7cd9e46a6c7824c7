package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/mgrall/skald/pkg/app"
)

// program adapts the application loop to the service manager contract.
type program struct {
	cfgPath string
	stop    chan struct{}
	done    chan error
}

func (p *program) Start(service.Service) error {
	p.stop = make(chan struct{})
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Run(app.RunParams{
			ConfigPath: p.cfgPath,
			Version:    version,
			Commit:     commit,
			Date:       date,
			Shutdown:   p.stop,
		})
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	close(p.stop)
	return <-p.done
}

func newService(cfgPath string) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        "skald",
		DisplayName: "skald",
		Description: "Module-hosting chat automation runtime",
		Arguments:   []string{"service", "run"},
	}
	if cfgPath != "" {
		svcConfig.Arguments = append(svcConfig.Arguments, "-c", cfgPath)
	}
	return service.New(&program{cfgPath: cfgPath}, svcConfig)
}

// serviceCmd manages skald as a system service (systemd, launchd, SCM).
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run or manage skald as a system service",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			switch action {
			case "install":
				if err := svc.Install(); err != nil {
					return err
				}
				fmt.Println("Service installed.")
			case "uninstall":
				if err := svc.Uninstall(); err != nil {
					return err
				}
				fmt.Println("Service uninstalled.")
			case "start":
				return svc.Start()
			case "stop":
				return svc.Stop()
			case "run":
				return svc.Run()
			}
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "install", Short: "Install the system service", RunE: run("install")},
		&cobra.Command{Use: "uninstall", Short: "Remove the system service", RunE: run("uninstall")},
		&cobra.Command{Use: "start", Short: "Start the installed service", RunE: run("start")},
		&cobra.Command{Use: "stop", Short: "Stop the installed service", RunE: run("stop")},
		&cobra.Command{Use: "run", Short: "Run in service mode (used by the service manager)", RunE: run("run")},
	)
	return cmd
}
