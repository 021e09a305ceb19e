package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/inovacc/labelr/internal/application"
	"github.com/inovacc/labelr/internal/config"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var (
	serviceStart     bool
	serviceStop      bool
	serviceInstall   bool
	serviceUninstall bool
	serviceStatus    bool
	serviceRun       bool
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage labelr as a system service",
	Long: `Install, uninstall, start, stop, or check the status of labelr as a system service.

On Windows, this creates/manages a Windows Service.
On Linux/macOS, this creates/manages a systemd/launchd service.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.Flags().BoolVar(&serviceStart, "start", false, "Start the labelr service")
	serviceCmd.Flags().BoolVar(&serviceStop, "stop", false, "Stop the labelr service")
	serviceCmd.Flags().BoolVar(&serviceInstall, "install", false, "Install labelr as a system service")
	serviceCmd.Flags().BoolVar(&serviceUninstall, "uninstall", false, "Uninstall the labelr system service")
	serviceCmd.Flags().BoolVar(&serviceStatus, "status", false, "Check labelr service status")
	serviceCmd.Flags().BoolVar(&serviceRun, "run", false, "Run under the service manager")
	_ = serviceCmd.Flags().MarkHidden("run")
}

// program implements service.Interface around serve
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(_ service.Service) error {
	// Start should not block
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		if err := serve(ctx, p.cfg); err != nil {
			slog.Error("service exited with error", "error", err)
		}
	}()

	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done

	return nil
}

func runService(_ *cobra.Command, _ []string) error {
	flags := []bool{serviceStart, serviceStop, serviceInstall, serviceUninstall, serviceStatus, serviceRun}

	flagCount := 0

	for _, set := range flags {
		if set {
			flagCount++
		}
	}

	if flagCount == 0 {
		return errors.New("please specify one of: --start, --stop, --install, --uninstall, --status")
	}

	if flagCount > 1 {
		return errors.New("please specify only one operation at a time")
	}

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	path, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	svcConfig := &service.Config{
		Name:        application.ServiceName,
		DisplayName: "Labelr Issue Classifier",
		Description: "Trains issue classifiers and labels GitHub issues",
		Arguments:   []string{"service", "--run", "--config", path},
	}

	prg := &program{}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	switch {
	case serviceRun:
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prg.cfg = cfg

		return s.Run()
	case serviceInstall:
		return installService(s, path)
	case serviceUninstall:
		return uninstallService(s)
	case serviceStart:
		return startService(s)
	case serviceStop:
		return stopService(s)
	case serviceStatus:
		return statusService(s)
	}

	return nil
}

func installService(s service.Service, configFile string) error {
	fmt.Printf("Installing %s service...\n", application.ServiceName)
	fmt.Printf("Config: %s\n", configFile)

	if err := s.Install(); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	fmt.Println("✓ Service installed successfully!")
	fmt.Println("\nTo start the service, run:")
	fmt.Println("  labelr service --start")

	return nil
}

func uninstallService(s service.Service) error {
	fmt.Printf("Uninstalling %s service...\n", application.ServiceName)

	// Try to stop first
	_ = s.Stop()

	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall service: %w", err)
	}

	fmt.Println("✓ Service uninstalled successfully!")

	return nil
}

func startService(s service.Service) error {
	fmt.Printf("Starting %s service...\n", application.ServiceName)

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("✓ Service started successfully!")

	return nil
}

func stopService(s service.Service) error {
	fmt.Printf("Stopping %s service...\n", application.ServiceName)

	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	fmt.Println("✓ Service stopped successfully!")

	return nil
}

func statusService(s service.Service) error {
	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("failed to get service status: %w", err)
	}

	switch status {
	case service.StatusRunning:
		fmt.Println("Service status: running")
	case service.StatusStopped:
		fmt.Println("Service status: stopped")
	default:
		fmt.Println("Service status: unknown")
	}

	return nil
}
