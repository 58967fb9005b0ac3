package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/ShiftWing/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label turns a status value such as awaiting_approval into "Awaiting Approval".
func Label[S ~string](s S) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

// RenderStatus summarizes the shift state. plan may be nil.
func RenderStatus(st models.ShiftState, plan *models.Plan, now time.Time) string {
	var b strings.Builder
	name := st.ShiftName
	if name == "" {
		name = "no shift"
	}
	fmt.Fprintf(&b, "%s  %s\n", StyleTitle.Render(name), ShiftStyle(st.Status).Render(Label(st.Status)))
	if st.ShiftID != "" {
		fmt.Fprintf(&b, "%s %s  %s\n", StyleSubtle.Render("id"), st.ShiftID, StyleSubtle.Render(st.Date))
	}
	if st.StatusReason != "" {
		fmt.Fprintf(&b, "%s %s\n", StyleSubtle.Render("note"), st.StatusReason)
	}
	if st.WindowStart != nil && st.WindowEnd != nil {
		fmt.Fprintf(&b, "%s %s → %s", StyleSubtle.Render("window"),
			st.WindowStart.Local().Format("Jan 2 15:04"), st.WindowEnd.Local().Format("Jan 2 15:04"))
		switch {
		case st.Status != models.ShiftExecuting:
		case st.WindowExpired(now):
			b.WriteString(StyleWarning.Render("  (expired)"))
		default:
			fmt.Fprintf(&b, "  (%s left)", st.WindowEnd.Sub(now).Round(time.Minute))
		}
		b.WriteString("\n")
	}
	if st.TotalSteps > 0 {
		fmt.Fprintf(&b, "%s %s done, %s blocked, %s skipped, %d pending",
			StyleSubtle.Render("steps"),
			StyleSuccess.Render(fmt.Sprintf("%d/%d", st.Completed, st.TotalSteps)),
			StyleWarning.Render(strconv.Itoa(st.Blocked)),
			StyleError.Render(strconv.Itoa(st.Skipped)),
			st.Pending)
		if st.InFlight > 0 {
			b.WriteString(StyleActive.Render(", 1 in flight"))
		}
		b.WriteString("\n")
	}
	if st.CyclesRun > 0 {
		fmt.Fprintf(&b, "%s %d", StyleSubtle.Render("cycles"), st.CyclesRun)
		if st.LastCycleAt != nil {
			fmt.Fprintf(&b, ", last %s ago", now.Sub(*st.LastCycleAt).Round(time.Second))
		}
		b.WriteString("\n")
	}
	if plan != nil && len(plan.Steps) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderSteps(plan))
	}
	return b.String()
}

// RenderSteps lists a plan's steps in execution order.
func RenderSteps(plan *models.Plan) string {
	steps := plan.OrderedSteps()
	t := &Table{
		Headers:  []string{"", "Tier", "Task", "Step", "Status", "Tries", "Note"},
		MaxWidth: 40,
	}
	for _, st := range steps {
		task := plan.Task(st.TaskID)
		var title string
		var tier models.Tier
		if task != nil {
			title, tier = task.Title, task.Tier
		}
		note := st.BlockReason
		if st.Status == models.StepDone {
			note = st.Result
		}
		status := string(st.Status)
		if st.Status == models.StepBlocked && st.BlockKind != "" {
			status += " (" + string(st.BlockKind) + ")"
		}
		t.Rows = append(t.Rows, []string{
			StepIcon(st.Status),
			string(tier),
			title,
			FirstLine(st.Description),
			status,
			strconv.Itoa(st.AttemptCount),
			FirstLine(note),
		})
	}
	t.Styles = func(row, col int) lipgloss.Style {
		st := steps[row]
		switch col {
		case 0, 4:
			return StepStyle(st.Status)
		case 1:
			if task := plan.Task(st.TaskID); task != nil {
				return TierStyle(task.Tier)
			}
		case 6:
			return StyleSubtle
		}
		return StyleText
	}
	return t.Render()
}

// RenderContext formats context log entries, oldest first.
func RenderContext(entries []models.ContextEntry) string {
	if len(entries) == 0 {
		return StyleSubtle.Render("context log is empty") + "\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s\n", StyleSubtle.Render(e.Timestamp.Local().Format("2006-01-02 15:04")), e.Text)
	}
	return b.String()
}

// RenderArchives lists archive entries, newest first as stored.
func RenderArchives(items []models.ArchiveIndexItem) string {
	if len(items) == 0 {
		return StyleSubtle.Render("no archived shifts") + "\n"
	}
	t := &Table{Headers: []string{"ID", "Date", "Shift", "Ended", "Summary"}, MaxWidth: 48}
	for _, it := range items {
		t.Rows = append(t.Rows, []string{it.ID, it.Date, it.Title, Label(it.Reason), it.Summary})
	}
	return t.Render()
}
