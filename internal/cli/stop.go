package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/mnemo/internal/daemon"
	"github.com/spf13/cobra"
)

func newStopCmd(opts *rootOptions) *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running mnemo web server",
		Long: `Stop a mnemo web server started with "mnemo serve".
Sends SIGTERM and waits for it to shut down, then SIGKILL on timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pidFile := daemon.PIDFilePath(cfg.DataDir)

			pid, running := daemon.IsRunning(pidFile)
			if !running {
				fmt.Fprintln(out, "Server is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process: %w", err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send SIGTERM: %w", err)
			}

			deadline := time.Now().Add(time.Duration(timeout) * time.Second)
			for time.Now().Before(deadline) {
				if _, running := daemon.IsRunning(pidFile); !running {
					fmt.Fprintln(out, "Server stopped successfully")
					os.Remove(pidFile)
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}

			fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
			if err := process.Signal(syscall.SIGKILL); err != nil {
				return fmt.Errorf("failed to send SIGKILL: %w", err)
			}

			os.Remove(pidFile)
			fmt.Fprintln(out, "Server killed")
			return nil
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 30, "seconds to wait for the server to stop")
	return cmd
}
