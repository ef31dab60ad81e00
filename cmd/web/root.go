package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the Auburn hazmat removal website",
		Long: `web assembles the site's pages on the server: shared header, footer and service
sidebar fragments are mounted into every page, asset paths are fixed for nested pages and
the navigation and sidebar state is initialised before the page is sent. It also accepts
the quote form and relays it by mail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded below the process environment")
	cmd.AddCommand(newServeCmd(opts), newRenderCmd())
	return cmd
}
