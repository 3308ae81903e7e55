package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/cxlctl/internal/config"
	"github.com/danmuck/cxlctl/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		listen  string
		refresh time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP view of the switch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(cmd); err != nil {
				return err
			}
			opts := server.Options{
				Addr:        a.cfg.Serve.Listen,
				CorsOrigins: a.cfg.Serve.CorsOrigins,
				Refresh:     a.cfg.Serve.Refresh,
			}
			if cmd.Flags().Changed("listen") {
				opts.Addr = listen
			}
			if cmd.Flags().Changed("refresh") {
				opts.Refresh = refresh
			}

			s, closeBus, err := a.connect(cmd.Context())
			defer closeBus()
			if err != nil {
				return err
			}
			if !a.cfg.NoInit {
				opts.Refresher = s
			}
			return server.New(s.State(), opts).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default from config)")
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "cache refresh interval, 0 disables (default from config)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.flags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return group("config", "Manage the cxlctl config file", initCmd)
}
