package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolchat/internal/runner"
	"github.com/petasbytes/toolchat/internal/toolsession"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Connect to the tool server and list its tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			return listTools(cmd.Context(), cmd.OutOrStdout(), a.manager())
		},
	}
}

// listTools opens one session, prints the catalog and closes it.
func listTools(ctx context.Context, w io.Writer, sessions runner.Sessions) error {
	sess, err := sessions.Open(ctx)
	if err != nil {
		fmt.Fprintln(w, runner.DisplayText(err))
		return exitError(exitRuntime, "tool server connection failed")
	}
	defer sess.Close()

	descs, err := sess.DiscoverTools(ctx)
	if err != nil {
		fmt.Fprintln(w, runner.DisplayText(err))
		return exitError(exitRuntime, "tool discovery failed")
	}

	fmt.Fprintf(w, "✅ Connected: %d tool(s)\n\n", len(descs))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREQUIRED\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, strings.Join(d.InputSchema.Required, ","), firstLine(d.Description))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ runner.Sessions = (*toolsession.Manager)(nil)
