package cli

import (
	"fmt"

	"github.com/harun/mnemo/internal/config"
	"github.com/spf13/cobra"
)

func newConfigureCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Run interactive configuration wizard",
		Long: `Run an interactive configuration wizard to set up mnemo.
The wizard asks for the OpenAI API key, the search threshold, the embedding
failure policy, the web server port and the log level. Press Enter to keep
the current value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(opts.configFile)

			base, err := loader.Load()
			if err != nil {
				return err
			}

			wizard := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout())
			cfg, err := wizard.Run(base)
			if err != nil {
				return fmt.Errorf("configuration failed: %w", err)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := loader.Save(cfg); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
			fmt.Fprintln(out, "\nYou can now start the web server with: mnemo serve")
			return nil
		},
	}
}
