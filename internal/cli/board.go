package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

func newBoardCmd(g *globals) *cobra.Command {
	var (
		opts  pipeline.FilterOptions
		more  []string
		pages int
	)

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the board's columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			board, _, err := g.openBoard(ctx)
			if err != nil {
				return err
			}
			defer board.Close()

			for _, raw := range more {
				stage := pipeline.Stage(strings.ToLower(strings.TrimSpace(raw)))
				for i := 0; i < pages; i++ {
					if err := board.LoadMore(ctx, stage); err != nil {
						return err
					}
				}
			}
			renderBoard(cmd.OutOrStdout(), board.View(opts))
			renderNotices(cmd.OutOrStdout(), board.Notices().Active())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Search, "search", "", "Match name, email or phone")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "Only leads from this channel")
	cmd.Flags().BoolVar(&opts.HideEmpty, "hide-empty", false, "Hide columns with no matching leads")
	cmd.Flags().StringSliceVar(&more, "more", nil, "Stages to page further")
	cmd.Flags().IntVar(&pages, "pages", 1, "Extra pages to load per --more stage")

	return cmd
}

func newMoveCmd(g *globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "move <lead-id> <stage>",
		Short: "Move one lead to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			board, _, err := g.openBoard(ctx)
			if err != nil {
				return err
			}
			defer board.Close()

			lead, ok := board.Store().Find(args[0])
			if !ok {
				return fmt.Errorf("lead %s is not on the loaded board", args[0])
			}
			intent := pipeline.MoveIntent{
				LeadID: lead.ID,
				From:   lead.Status,
				To:     pipeline.Stage(strings.ToLower(strings.TrimSpace(args[1]))),
			}
			confirm := func(_ context.Context, m *pipeline.Move) bool {
				return yes || prompt(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Move %s to %s?", m.Lead.Name, m.Intent.To))
			}

			m, err := board.Move(ctx, intent, confirm)
			switch {
			case err != nil:
				return err
			case m.State() == pipeline.MoveCancelled:
				fmt.Fprintln(cmd.OutOrStdout(), "move cancelled")
				return nil
			case m.Noop():
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already in %s\n", lead.Name, intent.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s from %s to %s\n", lead.Name, intent.From, intent.To)
			renderNotices(cmd.OutOrStdout(), board.Notices().Active())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm destructive moves without prompting")
	return cmd
}

func newBulkCmd(g *globals) *cobra.Command {
	var (
		params pipeline.BulkParams
		target string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "bulk <action> <lead-id>...",
		Short: "Run move, assign, tag, export or delete over several leads",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := pipeline.ParseAction(args[0])
			if err != nil {
				return err
			}
			params.TargetStage = pipeline.Stage(strings.ToLower(strings.TrimSpace(target)))

			ctx := cmd.Context()
			board, _, err := g.openBoard(ctx)
			if err != nil {
				return err
			}
			defer board.Close()

			for i, id := range uniqueIDs(args[1:]) {
				board.Toggle(id, i > 0)
			}
			if needsConfirm(board.Config(), action, params) {
				params.Confirmed = yes || prompt(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("%s %d lead(s)?", action, board.Selection().Len()))
				if !params.Confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "bulk action cancelled")
					return nil
				}
			}

			report, err := board.Bulk(ctx, action, params)
			if report.Notification.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), report.Notification.Message)
			}
			if err != nil {
				return err
			}
			if report.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d selected lead(s) were not loaded and were skipped\n", report.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "stage", "", "Target stage for move")
	cmd.Flags().StringVar(&params.AssigneeID, "assignee-id", "", "Assignee id for assign")
	cmd.Flags().StringVar(&params.AssigneeName, "assignee-name", "", "Assignee display name for assign")
	cmd.Flags().StringVar(&params.Tag, "tag", "", "Tag to add")
	cmd.Flags().StringVar(&params.Filename, "filename", "", "Export file name")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletes and destructive moves without prompting")

	return cmd
}

func needsConfirm(cfg pipeline.BoardConfig, action pipeline.Action, params pipeline.BulkParams) bool {
	switch action {
	case pipeline.ActionDelete:
		return true
	case pipeline.ActionMove:
		return cfg.IsDestructive(params.TargetStage)
	}
	return false
}

// uniqueIDs drops repeated ids so toggling never deselects one.
func uniqueIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// prompt asks a yes/no question; anything but y or yes declines.
func prompt(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
