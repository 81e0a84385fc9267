package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/appconfig"
	"pkt.systems/tabterm/internal/persist"
	"pkt.systems/tabterm/schema"
)

func newActiveCmd() *cobra.Command {
	var cfgPath string
	var storagePath string
	cmd := &cobra.Command{
		Use:   "active WINDOW_ID",
		Short: "Print the active terminal recorded for a window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			windowID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: window id %q", schema.ErrInvalidRequest, args[0])
			}
			path := storagePath
			if path == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				path = cfg.StoragePath()
			}
			store, err := persist.OpenReadOnly(path, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			record := core.ReadWindowActiveTerminal(store, schema.WindowID(windowID))
			if record == nil {
				return fmt.Errorf("%w: window %d", schema.ErrNoRecord, windowID)
			}
			return printJSON(cmd, record)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&storagePath, "storage", "", "path to the storage file (overrides config)")
	return cmd
}
