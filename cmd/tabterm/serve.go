package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabterm"
	"pkt.systems/tabterm/httpapi"
	"pkt.systems/tabterm/internal/appconfig"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var tmux bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the extension bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("tmux") {
				cfg.Features.TmuxIntegration = tmux
			}

			serverCfg := toServerConfig(cfg)
			opts := []tabterm.ServerOption{tabterm.WithHTTP()}
			if cfg.Storage.Watch {
				opts = append(opts, tabterm.WithStorageWatch())
			}
			server, err := tabterm.New(serverCfg, tabterm.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	cmd.Flags().BoolVar(&tmux, "tmux", false, "override features.tmux_integration")
	return cmd
}

func toServerConfig(cfg appconfig.Config) tabterm.ServerConfig {
	return tabterm.ServerConfig{
		Service:     cfg.ServiceConfig(),
		HTTP:        toHTTPConfig(cfg.HTTP),
		StoragePath: cfg.StoragePath(),
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.Addr,
		BasePath:        cfg.BasePath,
		AllowedOrigins:  cfg.AllowedOrigins,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
	}
}
