// Package ui renders taskfeed CLI output with lipgloss.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/view"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorMuted  = lipgloss.Color("#6C7A89")
	colorOK     = lipgloss.Color("#2CD7C7")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorError  = lipgloss.Color("#E74C3C")
)

// Styles are the shared text styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	OK      lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Label:   lipgloss.NewStyle().Width(16).Foreground(colorMuted),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	OK:      lipgloss.NewStyle().Foreground(colorOK),
	Warning: lipgloss.NewStyle().Foreground(colorWarn),
	Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}

// Field renders one "label value" line.
func Field(label string, value any) string {
	return Styles.Label.Render(label) + fmt.Sprint(value)
}

// Status renders a server health summary.
func Status(url, status string, clients int, latestID int64) string {
	statusStyle := Styles.OK
	if status != "ok" {
		statusStyle = Styles.Error
	}
	lines := []string{
		Styles.Title.Render("taskfeed server"),
		Field("url", url),
		Field("status", statusStyle.Render(status)),
		Field("subscribers", clients),
		Field("latest change", latestID),
	}
	return Styles.Box.Render(strings.Join(lines, "\n"))
}

// Event renders one change feed entry.
func Event(ev schema.ChangeEvent) string {
	kind := Styles.OK
	if ev.Type.Kind() == schema.KindDelete {
		kind = Styles.Warning
	}
	created := time.UnixMilli(ev.CreatedAt).UTC().Format(time.RFC3339)
	return fmt.Sprintf("%6d  %-7s  %s  entity=%d project=%d  %s",
		ev.ID, scope(ev.Type), kind.Render(fmt.Sprintf("%-23s", ev.Type)), ev.EntityID, ev.ProjectID, Styles.Muted.Render(created))
}

func scope(t schema.EventType) string {
	switch {
	case t.IsProject():
		return "project"
	case t.IsTask():
		return "task"
	}
	return "-"
}

// Snapshot renders the watched view: projects, and the displayed project's
// tasks and members.
func Snapshot(s view.Snapshot, cursor int64) string {
	var b strings.Builder

	b.WriteString(Styles.Title.Render("Projects"))
	b.WriteString(Styles.Muted.Render(fmt.Sprintf("  (cursor %d)", cursor)))
	b.WriteByte('\n')
	if len(s.Projects) == 0 {
		b.WriteString(Styles.Muted.Render("  none") + "\n")
	}
	for _, p := range s.Projects {
		marker := "  "
		if p.ID == s.DisplayedProject {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%d  %s %s\n", marker, p.ID, p.Name, Styles.Muted.Render(fmt.Sprintf("v%d", p.Version)))
	}

	if s.DisplayedProject == 0 {
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(Styles.Title.Render("Tasks") + "\n")
	if len(s.Tasks) == 0 {
		b.WriteString(Styles.Muted.Render("  none") + "\n")
	}
	for _, t := range s.Tasks {
		marker := "  "
		if t.ID == s.SelectedTaskID {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%d  %-5s  %-6s  %s%s\n", marker, t.ID, t.Status, t.Priority, t.Title, dueFlag(t))
	}

	if len(s.Members) > 0 {
		names := make([]string, 0, len(s.Members))
		for _, m := range s.Members {
			names = append(names, m.Username)
		}
		b.WriteByte('\n')
		b.WriteString(Field("members", strings.Join(names, ", ")) + "\n")
	}
	return b.String()
}

func dueFlag(t schema.Task) string {
	switch {
	case t.Overdue:
		return " " + Styles.Error.Render("overdue")
	case t.DueSoon:
		return " " + Styles.Warning.Render("due soon")
	}
	return ""
}

// Error renders a user-facing error line.
func Error(err error) string {
	return Styles.Error.Render("Error: ") + err.Error()
}
