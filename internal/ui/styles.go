package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/ShiftWing/models"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205") // Pink
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("160") // Red
	ColorWarning   = lipgloss.Color("214") // Orange/Yellow
	ColorText      = lipgloss.Color("252") // White/Gray
	ColorCyan      = lipgloss.Color("87")  // Cyan for in-flight work

	// Base Styles
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)
	StyleActive  = lipgloss.NewStyle().Foreground(ColorCyan)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(0, 1)

	StyleSectionTitle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				Underline(true)
)

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}

// StepStyle picks the color of a step status.
func StepStyle(s models.StepStatus) lipgloss.Style {
	switch s {
	case models.StepDone:
		return StyleSuccess
	case models.StepClaimed:
		return StyleActive
	case models.StepBlocked:
		return StyleWarning
	case models.StepSkipped:
		return StyleError
	default:
		return StyleText
	}
}

// StepIcon is the one-character marker shown next to a step.
func StepIcon(s models.StepStatus) string {
	switch s {
	case models.StepDone:
		return "✓"
	case models.StepClaimed:
		return "▶"
	case models.StepBlocked:
		return "!"
	case models.StepSkipped:
		return "✗"
	default:
		return "·"
	}
}

// ShiftStyle picks the color of a shift status.
func ShiftStyle(s models.ShiftStatus) lipgloss.Style {
	switch s {
	case models.ShiftExecuting:
		return StyleActive
	case models.ShiftAwaitingApproval:
		return StyleWarning
	case models.ShiftCompleted:
		return StyleSuccess
	case models.ShiftCancelled:
		return StyleError
	default:
		return StyleSubtle
	}
}

// TierStyle highlights P1 work.
func TierStyle(t models.Tier) lipgloss.Style {
	switch t {
	case models.TierP1:
		return StyleError.Bold(true)
	case models.TierP2:
		return StyleWarning
	default:
		return StyleSubtle
	}
}
