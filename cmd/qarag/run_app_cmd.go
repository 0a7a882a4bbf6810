package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"qarag/internal/app"
)

func newRunAppCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "run-app",
		Short: "Serve the question answering API and web page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			srv, err := a.Server(addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("qarag "+version))
			fmt.Fprintf(out, "Server:  http://%s\n", addr)
			fmt.Fprintf(out, "Docs:    http://%s/docs\n", addr)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host")
	cmd.Flags().IntVar(&port, "port", 8000, "listen port")
	return cmd
}
