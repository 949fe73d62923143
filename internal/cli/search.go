package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search your memories",
		Long: `Search your memories by keyword and by meaning. Arguments are joined
into one query. Without a query every memory is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()

			entries, err := a.service.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 && !asJSON {
				fmt.Fprintln(out, "No memories found. Add one first.")
				return nil
			}

			result, err := a.service.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if result.Memories == nil {
				result.Memories = []string{}
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if result.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "Semantic search is unavailable, showing keyword matches only.")
			}

			if len(result.Memories) == 0 {
				fmt.Fprintln(out, "No memories found matching your search.")
				return nil
			}

			fmt.Fprintln(out, "Found memories:")
			for _, m := range result.Memories {
				fmt.Fprintf(out, "- %s\n", m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all memories in the order they were added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.service.List(commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No memories yet.")
				return nil
			}
			for _, m := range entries {
				fmt.Fprintf(out, "- %s\n", m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print memories as JSON")
	return cmd
}
