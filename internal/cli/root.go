package cli

import (
	"context"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCmd builds the mnemo command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "mnemo",
		Short: "mnemo - a searchable memory log",
		Long: `mnemo keeps short text memories in a plain append-only file and finds
them again by keyword and by meaning. Memories can be added from the command
line, from a web page, or by voice.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.mnemo/mnemo.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newAddCmd(opts),
		newAddVoiceCmd(opts),
		newSearchCmd(opts),
		newListCmd(opts),
		newServeCmd(opts),
		newStatusCmd(opts),
		newStopCmd(opts),
		newConfigureCmd(opts),
	)

	return rootCmd
}

// Execute runs the command tree. It is called by main.main().
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
