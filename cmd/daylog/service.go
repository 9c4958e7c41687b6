package main

import (
	"github.com/spf13/cobra"

	"github.com/chris/daylog/internal/service"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the launchd service running `daylog run`",
	}
	actions := []struct {
		use, short string
		run        func() error
	}{
		{"install", "Install the binary and load the launchd agent", service.Install},
		{"uninstall", "Unload the agent and remove the binary", service.Uninstall},
		{"start", "Start the service", service.Start},
		{"stop", "Stop the service", service.Stop},
		{"restart", "Restart the service", service.Restart},
		{"status", "Show launchd status", service.Status},
		{"logs", "Follow the service logs", service.Logs},
	}
	for _, act := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   act.use,
			Short: act.short,
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return act.run() },
		})
	}
	return cmd
}
