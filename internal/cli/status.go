package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitbutlerapp/butler/internal/graph"
	"github.com/gitbutlerapp/butler/internal/output"
	"github.com/gitbutlerapp/butler/internal/workspace"
)

func newStatusCmd() *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied stacks and their commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}

			splog := newSplog()
			if ws.TargetRef == "" {
				splog.Warn("no target branch configured")
			} else {
				splog.Info("target: %s", output.Styled(output.DimStyle, graph.ShortRefName(ws.TargetRef)))
			}

			for _, stack := range ws.Stacks {
				splog.Newline()
				renderStack(splog, stack)
			}
			if len(ws.Stacks) == 0 {
				splog.Info("no stacks applied")
			}

			if showStats {
				splog.Newline()
				splog.Info("%s", ws.Graph.Stats())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "Show graph statistics")
	return cmd
}

func renderStack(splog *output.Splog, stack *workspace.Stack) {
	for _, seg := range stack.Segments {
		name := seg.ShortName()
		if name == "" {
			name = "(anonymous)"
		}
		status := workspace.SegmentPushStatus(seg)
		splog.Info("%s %s", output.Styled(output.BranchStyle, name), output.Styled(output.DimStyle, status.String()))

		for _, c := range seg.Commits {
			subject, _, _ := strings.Cut(c.Message, "\n")
			line := fmt.Sprintf("  %s %s", output.Styled(output.CommitStyle, c.ID.String()[:7]), subject)
			if c.Conflicted {
				line += " " + output.Styled(output.ConflictStyle, "[conflicted]")
			}
			if c.Flags.Has(graph.Integrated) {
				line += " " + output.Styled(output.IntegratedStyle, "[integrated]")
			}
			splog.Info("%s", line)
		}
	}
}
