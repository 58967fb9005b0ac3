package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/josephgoksu/ShiftWing/models"
)

// ErrPickerAborted is returned when the approver leaves without answering.
var ErrPickerAborted = errors.New("approval cancelled")

// PickKind is the answer chosen in the approval picker.
type PickKind string

const (
	PickAll    PickKind = "all"
	PickSubset PickKind = "subset"
	PickSkip   PickKind = "skip"
)

// PickResult is the approver's answer.
type PickResult struct {
	Kind    PickKind
	TaskIDs []string
}

type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	All    key.Binding
	Accept key.Binding
	Skip   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k pickerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Accept, k.Skip, k.Help, k.Quit}
}

func (k pickerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Toggle, k.All}, {k.Accept, k.Skip, k.Help, k.Quit}}
}

var defaultPickerKeys = pickerKeys{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle: key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle")),
	All:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle all")),
	Accept: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "approve selected")),
	Skip:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip shift")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

type pickItem struct {
	id        string
	title     string
	tier      models.Tier
	steps     int
	carryover bool
	flagged   bool
}

type approvalPicker struct {
	title    string
	items    []pickItem
	cursor   int
	selected []bool
	keys     pickerKeys
	help     help.Model
	notice   string
	result   PickResult
	answered bool
}

func newApprovalPicker(plan *models.Plan) approvalPicker {
	m := approvalPicker{
		title: fmt.Sprintf("Approve shift %q (%s)", plan.ShiftName, plan.Date),
		keys:  defaultPickerKeys,
		help:  help.New(),
	}
	for _, t := range plan.OrderedTasks() {
		it := pickItem{id: t.ID, title: t.Title, tier: t.Tier, steps: len(t.StepIDs), carryover: t.Carryover}
		for _, id := range t.StepIDs {
			if st := plan.Step(id); st != nil && (st.Destructive || st.ExternallyVisible) {
				it.flagged = true
			}
		}
		m.items = append(m.items, it)
		m.selected = append(m.selected, true)
	}
	return m
}

func (m approvalPicker) Init() tea.Cmd {
	return nil
}

func (m approvalPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	m.notice = ""
	switch {
	case key.Matches(km, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(km, m.keys.Toggle):
		if len(m.items) > 0 {
			m.selected[m.cursor] = !m.selected[m.cursor]
		}
	case key.Matches(km, m.keys.All):
		all := m.count() == len(m.items)
		for i := range m.selected {
			m.selected[i] = !all
		}
	case key.Matches(km, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(km, m.keys.Skip):
		m.result, m.answered = PickResult{Kind: PickSkip}, true
		return m, tea.Quit
	case key.Matches(km, m.keys.Accept):
		n := m.count()
		switch {
		case n == 0:
			m.notice = "select at least one task, or press s to skip the shift"
			return m, nil
		case n == len(m.items):
			m.result = PickResult{Kind: PickAll}
		default:
			m.result = PickResult{Kind: PickSubset}
			for i, it := range m.items {
				if m.selected[i] {
					m.result.TaskIDs = append(m.result.TaskIDs, it.id)
				}
			}
		}
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m approvalPicker) count() int {
	n := 0
	for _, s := range m.selected {
		if s {
			n++
		}
	}
	return n
}

func (m approvalPicker) View() string {
	var b strings.Builder
	b.WriteString("\n" + StyleHeader.Render(m.title) + "\n\n")
	for i, it := range m.items {
		cursor := "  "
		if i == m.cursor {
			cursor = StylePrimary.Render("▶ ")
		}
		box := "[ ]"
		if m.selected[i] {
			box = StyleSuccess.Render("[x]")
		}
		line := fmt.Sprintf("%s%s %s %s", cursor, box, TierStyle(it.tier).Render(string(it.tier)), it.title)
		line += StyleSubtle.Render(fmt.Sprintf("  %d steps", it.steps))
		if it.carryover {
			line += StyleSubtle.Render("  carryover")
		}
		if it.flagged {
			line += StyleWarning.Render("  needs care")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(StyleWarning.Render(m.notice) + "\n")
	}
	b.WriteString(StyleSubtle.Render(fmt.Sprintf("%d of %d selected", m.count(), len(m.items))) + "\n")
	b.WriteString(m.help.View(m.keys) + "\n")
	return b.String()
}

// PickApproval shows the proposal's tasks and returns the approver's answer.
func PickApproval(plan *models.Plan) (PickResult, error) {
	if len(plan.Tasks) == 0 {
		return PickResult{}, errors.New("proposal has no tasks")
	}
	final, err := tea.NewProgram(newApprovalPicker(plan)).Run()
	if err != nil {
		return PickResult{}, fmt.Errorf("run approval picker: %w", err)
	}
	m := final.(approvalPicker)
	if !m.answered {
		return PickResult{}, ErrPickerAborted
	}
	return m.result, nil
}
