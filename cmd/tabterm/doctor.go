package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/appconfig"
	"pkt.systems/tabterm/internal/persist"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run tabterm diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)
			cfg, err := appconfig.Load(configPath)
			if err != nil {
				return err
			}
			logger.Info("doctor config ok", "tmux_integration", cfg.Features.TmuxIntegration, "crosh_host", cfg.Launch.CroshHost, "ssh_path", cfg.Launch.SSHPath)

			store, err := persist.OpenReadOnly(cfg.StoragePath(), logger)
			if err != nil {
				return fmt.Errorf("storage %s: %w", cfg.StoragePath(), err)
			}
			records := store.Keys(core.ActiveTerminalKeyPrefix)
			logger.Info("doctor storage ok", "path", store.Path(), "active_terminal_records", len(records))

			listener, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				logger.Warn("doctor http addr busy", "addr", cfg.HTTP.Addr, "err", err)
			} else {
				_ = listener.Close()
				logger.Info("doctor http addr ok", "addr", cfg.HTTP.Addr)
			}
			logger.Info("doctor done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
