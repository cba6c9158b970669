package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Report summarizes one reconciliation pass for display.
type Report struct {
	Pass          string
	Mode          string
	DryRun        bool
	Added         int
	Removed       int
	Protected     int
	PullRan       bool
	PushRan       bool
	PullBackupDir string
	PushBackupDir string
	HistoryDir    string
	Duration      time.Duration
}

// Styles for the pass report.
var reportStyles = struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Border lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	Label:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12),
	Value:  lipgloss.NewStyle(),
	Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
}

// RenderReport renders the end-of-pass summary box.
func RenderReport(r Report) string {
	var b strings.Builder

	title := "Pass " + r.Pass
	if r.DryRun {
		title += " (dry run)"
	}
	b.WriteString(reportStyles.Title.Render(title))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(reportStyles.Label.Render(label))
		b.WriteString(reportStyles.Value.Render(value))
		b.WriteString("\n")
	}

	row("mode", r.Mode)
	row("delta", fmt.Sprintf("+%d / -%d", r.Added, r.Removed))
	row("protected", fmt.Sprintf("%d", r.Protected))
	row("phases", phaseSummary(r))
	if r.PullBackupDir != "" {
		row("pull backup", r.PullBackupDir)
	}
	if r.PushBackupDir != "" {
		row("push backup", r.PushBackupDir)
	}
	if r.HistoryDir != "" {
		row("history", r.HistoryDir)
	}
	row("elapsed", r.Duration.Round(time.Millisecond).String())

	return reportStyles.Border.Render(strings.TrimRight(b.String(), "\n"))
}

func phaseSummary(r Report) string {
	phases := make([]string, 0, 2)
	if r.PullRan {
		phases = append(phases, "pull")
	}
	if r.PushRan {
		phases = append(phases, "push")
	}
	if len(phases) == 0 {
		return "none"
	}
	return strings.Join(phases, ", ")
}
