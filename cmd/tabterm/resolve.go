package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/appconfig"
	"pkt.systems/tabterm/schema"
)

func newResolveCmd() *cobra.Command {
	var cfgPath string
	var parentJSON string
	var tmux bool
	cmd := &cobra.Command{
		Use:   "resolve URL",
		Short: "Resolve how a terminal URL would launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			tmuxEnabled := cfg.Features.TmuxIntegration
			if cmd.Flags().Changed("tmux") {
				tmuxEnabled = tmux
			}
			var parent *schema.TerminalInfo
			if parentJSON != "" {
				parent = &schema.TerminalInfo{}
				if err := json.Unmarshal([]byte(parentJSON), parent); err != nil {
					return fmt.Errorf("%w: parent: %v", schema.ErrInvalidRequest, err)
				}
			}
			launch, err := core.NewResolver(cfg.ServiceConfig()).Resolve(args[0], parent, tmuxEnabled)
			if err != nil {
				return err
			}
			return printJSON(cmd, launch)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&parentJSON, "parent", "", "parent terminal info as JSON")
	cmd.Flags().BoolVar(&tmux, "tmux", false, "override features.tmux_integration")
	return cmd
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
