package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/harun/mnemo/internal/daemon"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/spf13/cobra"
)

type statusOutput struct {
	Memory    memory.Status `json:"memory"`
	ServerPID int           `json:"server_pid,omitempty"`
	Serving   bool          `json:"serving"`
	Uptime    string        `json:"uptime,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory store and server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			status := statusOutput{Memory: a.service.Status(commandContext(cmd))}

			pidFile := daemon.PIDFilePath(a.cfg.DataDir)
			if pid, running := daemon.IsRunning(pidFile); running {
				status.Serving = true
				status.ServerPID = pid
				if info, err := os.Stat(pidFile); err == nil {
					status.Uptime = formatDuration(time.Since(info.ModTime()))
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Fprintf(out, "Store: %s\n", status.Memory.StorePath)
			fmt.Fprintf(out, "Memories: %d\n", status.Memory.Entries)
			fmt.Fprintf(out, "Cached embeddings: %d\n", status.Memory.CacheEntries)
			fmt.Fprintf(out, "Similarity threshold: %g\n", status.Memory.Threshold)
			if status.Serving {
				fmt.Fprintf(out, "Server: running (PID %d, up %s)\n", status.ServerPID, status.Uptime)
			} else {
				fmt.Fprintln(out, "Server: stopped")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
