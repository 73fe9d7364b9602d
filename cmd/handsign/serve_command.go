package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dataset inventory, balance history and metrics over HTTP",
		Long: `Serve exposes the dataset and audit endpoints without opening a camera.
Use infer --serve to add the live preview and prediction feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				StaticDir: cfg.Server.StaticDir,
				Store:     st,
				Datasets: map[string]dataset.SampleStore{
					"raw":       dataset.NewDirStore(cfg.Paths.RawDir),
					"processed": dataset.NewDirStore(cfg.Paths.ProcessedDir),
				},
				Metrics: ctx.metricsValue(),
				Logger:  ctx.componentLog("server"),
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", displayAddr(addr))
			return srv.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}
