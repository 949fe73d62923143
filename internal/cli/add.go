package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/harun/mnemo/pkg/memory"
	"github.com/spf13/cobra"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <memory text...>",
		Short: "Add a new memory",
		Long: `Add a new memory. All arguments are joined with spaces into one memory;
line breaks are replaced by spaces.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			err = a.service.Append(commandContext(cmd), strings.Join(args, " "))
			if errors.Is(err, memory.ErrEmptyMemory) {
				fmt.Fprintln(out, "Nothing to add.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Memory added.")
			return nil
		},
	}
}

func newAddVoiceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-voice <audio file>",
		Short: "Transcribe an audio recording and add it as a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open audio file: %w", err)
			}
			defer audio.Close()

			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			text, err := a.service.AppendVoice(commandContext(cmd), audio, args[0])
			if errors.Is(err, memory.ErrEmptyTranscription) {
				fmt.Fprintln(out, "Nothing was transcribed.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Memory added: %s\n", text)
			return nil
		},
	}
}
