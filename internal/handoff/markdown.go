package handoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// RenderMarkdown formats a handoff for the human reading it the next day.
func RenderMarkdown(h models.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Handoff: %s (%s)\n\n", h.ShiftName, h.Date)
	fmt.Fprintf(&b, "- Shift ID: `%s`\n", h.ShiftID)
	fmt.Fprintf(&b, "- Ended: %s\n", reasonText(h.Reason))
	if !h.ArchivedAt.IsZero() {
		fmt.Fprintf(&b, "- Archived: %s\n", h.ArchivedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Steps: %d total, %d done, %d blocked, %d skipped, %d pending\n",
		h.Counts.Total, h.Counts.Done, h.Counts.Blocked, h.Counts.Skipped, h.Counts.Pending)
	if h.CyclesRun > 0 {
		fmt.Fprintf(&b, "- Cycles run: %d\n", h.CyclesRun)
	}
	b.WriteString("\n")

	section(&b, "Completed", h.Completed, func(s models.HandoffStep) string { return s.Result })
	section(&b, "Needs review (skipped)", h.Skipped, func(s models.HandoffStep) string {
		return fmt.Sprintf("%d attempts; last error: %s", s.Attempts, s.BlockReason)
	})
	section(&b, "Blocked", h.Blocked, func(s models.HandoffStep) string {
		return fmt.Sprintf("%s: %s", s.BlockKind, s.BlockReason)
	})
	section(&b, "Carried over to the next shift", h.CarriedOver, nil)

	if len(h.Lessons) > 0 {
		b.WriteString("## Lessons\n\n")
		for _, e := range h.Lessons {
			fmt.Fprintf(&b, "- %s %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func section(b *strings.Builder, title string, steps []models.HandoffStep, detail func(models.HandoffStep) string) {
	if len(steps) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s (%d)\n\n", title, len(steps))
	for _, s := range steps {
		fmt.Fprintf(b, "- [%s] %s: %s", s.Tier, s.TaskTitle, firstLine(s.Description))
		if detail != nil {
			if d := detail(s); d != "" {
				fmt.Fprintf(b, " (%s)", d)
			}
		}
		fmt.Fprintf(b, " `%s`\n", s.StepID)
	}
	b.WriteString("\n")
}

func reasonText(r models.HandoffReason) string {
	switch r {
	case models.HandoffExhausted:
		return "no runnable steps left"
	case models.HandoffWindowExpired:
		return "shift window expired"
	case models.HandoffCancelled:
		return "cancelled"
	default:
		return string(r)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
