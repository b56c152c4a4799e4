package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolchat/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return exitError(exitConfig, "tool-call history is disabled")
			}
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := history.NewSQLiteStore(cfg.History.Path)
			if err != nil {
				return exitError(exitRuntime, "%s", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return exitError(exitRuntime, "%s", err)
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().Int("limit", 20, "Number of entries to show")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No tool calls recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tSTATUS\tARGUMENTS\tRESULT")
	for _, e := range entries {
		status := "ok"
		if e.Failed {
			status = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Tool, status,
			history.Truncate(string(e.Arguments), 40), history.Truncate(oneLine(e.Result), 60))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '\n' || r == '\r' || r == '\t' {
			out[i] = ' '
		}
	}
	return string(out)
}
