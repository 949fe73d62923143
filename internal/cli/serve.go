package cli

import (
	"fmt"

	"github.com/harun/mnemo/internal/daemon"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mnemo web server",
		Long: `Run the web page for adding, recording and searching memories.
Runs in the foreground until interrupted; SIGINT or SIGTERM shuts it down
gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			d, err := daemon.New(a.cfg, a.log, a.service)
			if err != nil {
				return err
			}
			if err := d.Start(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving memories on http://%s\n", d.Addr())
			d.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
