package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"nanoweb/pkg/auth"
	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
	"nanoweb/pkg/metrics"
	"nanoweb/pkg/state"
	"nanoweb/pkg/webui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Long: `Run the nanoweb gateway: the REST and WebSocket API the console uses.

The gateway logs in to nanobot hosts over SSH on behalf of console users.
It can run in the foreground or be installed as a system service.

Examples:
  # Run in foreground
  nanoweb serve

  # Install and control the system service (requires sudo/admin privileges)
  sudo nanoweb service install
  sudo nanoweb service start
  nanoweb service status`,
	RunE: runServe,
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the gateway system service",
	Long: `Manage the nanoweb gateway as a system service:
- Linux: systemd
- macOS: launchd
- Windows: Windows Service Manager`,
}

// serviceActions maps subcommand names to service controls.
var serviceActions = []struct {
	name  string
	short string
	run   func(service.Service) error
	done  string
}{
	{"install", "Install the gateway as a system service", func(s service.Service) error { return s.Install() }, "Service installed successfully!"},
	{"uninstall", "Uninstall the gateway service", func(s service.Service) error { return s.Uninstall() }, "Service uninstalled successfully!"},
	{"start", "Start the gateway service", func(s service.Service) error { return s.Start() }, "Service started successfully!"},
	{"stop", "Stop the gateway service", func(s service.Service) error { return s.Stop() }, "Service stopped successfully!"},
	{"restart", "Restart the gateway service", func(s service.Service) error { return s.Restart() }, "Service restarted successfully!"},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the gateway service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSystemService()
		if err != nil {
			return err
		}
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("getting service status: %w", err)
		}
		fmt.Printf("Service Status: %s\n", serviceStatusText(status))
		return nil
	},
}

func init() {
	for _, action := range serviceActions {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newSystemService()
				if err != nil {
					return err
				}
				if err := action.run(s); err != nil {
					fmt.Fprintln(os.Stderr, "Note: managing system services requires administrator privileges.")
					return fmt.Errorf("%s service: %w", action.name, err)
				}
				fmt.Println(action.done)
				return nil
			},
		})
	}
	serviceCmd.AddCommand(serviceStatusCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serviceCmd)
}

func serviceStatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	}
	return "Unknown"
}

// gatewayOptions is the fx graph of the gateway.
func gatewayOptions() []fx.Option {
	return []fx.Option{
		fx.Supply(config.Path(configPath)),
		config.Module,
		logger.Module,
		state.Module,
		auth.Module,
		metrics.Module,
		webui.Module,
		fx.NopLogger,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if !service.Interactive() {
		return runAsService()
	}
	// Run blocks until SIGINT/SIGTERM and stops the app gracefully.
	app := fx.New(gatewayOptions()...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

// gatewayProgram adapts the fx app to service.Interface.
type gatewayProgram struct {
	app    *fx.App
	logger service.Logger
}

func (p *gatewayProgram) Start(s service.Service) error {
	if p.logger != nil {
		p.logger.Info("Starting nanoweb gateway service")
	}
	p.app = fx.New(gatewayOptions()...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.app.Start(ctx)
}

func (p *gatewayProgram) Stop(s service.Service) error {
	if p.logger != nil {
		p.logger.Info("Stopping nanoweb gateway service")
	}
	if p.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.app.Stop(ctx)
}

// ServiceConfig describes the system service. The config path is passed
// through so the service reads the same file as the installing user.
func ServiceConfig() *service.Config {
	args := []string{}
	path := configPath
	if path == "" {
		path = os.Getenv(config.ConfigPathEnv)
	}
	if path != "" {
		args = append(args, "-c", path)
	}
	args = append(args, "serve")

	return &service.Config{
		Name:        "nanoweb",
		DisplayName: "nanoweb Gateway",
		Description: "Remote management console gateway for nanobot",
		Arguments:   args,
	}
}

func newSystemService() (service.Service, error) {
	s, err := service.New(&gatewayProgram{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return s, nil
}

func runAsService() error {
	prg := &gatewayProgram{}
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	svcLogger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = svcLogger

	if err := s.Run(); err != nil {
		svcLogger.Error(err)
		return err
	}
	return nil
}
