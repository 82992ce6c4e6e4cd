package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/edumesh"
	"github.com/hupe1980/edumesh/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tutor over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := edumesh.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			srv := server.New(m, func(o *server.Options) {
				o.Logger = m.Logger()
				o.DefaultUserID = cfg.App.DefaultUserID
				o.ReadTimeout = cfg.Server.ReadTimeout
				o.WriteTimeout = cfg.Server.WriteTimeout
			})
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
