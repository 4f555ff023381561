package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/wolfman30/medspa-pipeline/internal/export"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func renderBoard(w io.Writer, columns []pipeline.FilteredPartition) {
	for _, col := range columns {
		title := fmt.Sprintf("%s (%d of %d, $%s)", strings.ToUpper(string(col.Stage)), len(col.Leads), col.Total, export.FormatValue(col.ValueTotal))
		fmt.Fprintln(w, headerStyle.Render(title))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, lead := range col.Leads {
			contact := lead.Email
			if contact == "" {
				contact = lead.Phone
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t$%s\t%s\n",
				lead.ID, lead.Name, contact, lead.Channel,
				export.FormatValue(lead.ValueCents), strings.Join(lead.Tags, ","))
		}
		_ = tw.Flush()
		if col.HasMore {
			fmt.Fprintln(w, subtleStyle.Render(fmt.Sprintf("  ... more (boardctl board --more %s)", col.Stage)))
		}
	}
}

func renderBaseline(w io.Writer, label string, b pipeline.Baseline) {
	fmt.Fprintln(w, headerStyle.Render("Stats: "+label))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  \tcurrent\tprevious")
	rows := []struct {
		name      string
		cur, prev int64
		money     bool
	}{
		{"total leads", b.Current.TotalLeads, b.Previous.TotalLeads, false},
		{"pipeline value", b.Current.ValueTotal, b.Previous.ValueTotal, true},
		{"new today", b.Current.NewToday, b.Previous.NewToday, false},
		{"new this week", b.Current.NewThisWeek, b.Previous.NewThisWeek, false},
		{"new this month", b.Current.NewThisMonth, b.Previous.NewThisMonth, false},
		{"converted", b.Current.Converted, b.Previous.Converted, false},
		{"rejected", b.Current.Rejected, b.Previous.Rejected, false},
	}
	for _, r := range rows {
		if r.money {
			fmt.Fprintf(tw, "  %s\t$%s\t$%s\n", r.name, export.FormatValue(r.cur), export.FormatValue(r.prev))
			continue
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\n", r.name, r.cur, r.prev)
	}
	_ = tw.Flush()
}

func renderNotices(w io.Writer, notes []pipeline.Notification) {
	for _, n := range notes {
		if n.Type == pipeline.NoticeError {
			fmt.Fprintln(w, errorStyle.Render("! "+n.Message))
			continue
		}
		fmt.Fprintln(w, subtleStyle.Render("* "+n.Message))
	}
}
