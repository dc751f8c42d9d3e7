// internal/tui/view.go
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	errorStatusStyle = statusBarStyle.
				Foreground(lipgloss.Color("203"))

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder())

	disabledButtonStyle = buttonStyle.
				Foreground(lipgloss.Color("240")).
				BorderForeground(lipgloss.Color("240"))

	recordButtonStyle = buttonStyle.
				Foreground(lipgloss.Color("203")).
				BorderForeground(lipgloss.Color("203"))

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the UI
func (m Model) View() string {
	timeStr := m.currentTime.Format("Mon Jan 2 15:04:05 2006")

	headerContent := lipgloss.JoinHorizontal(
		lipgloss.Center,
		"● MovieCam",
		lipgloss.NewStyle().
			Width(max(m.width-14, 0)).
			Align(lipgloss.Right).
			Render(timeStr),
	)
	header := headerStyle.Width(m.width).Render(headerContent)

	var body string
	if m.checked && !m.permissions.Granted() {
		body = m.renderPermissions()
	} else {
		body = m.renderTabs() + "\n" + mainContentStyle.Render(m.renderActiveTabContent())
	}

	style := statusBarStyle
	if m.isError {
		style = errorStatusStyle
	}
	statusBar := style.Width(m.width).Render(
		fmt.Sprintf("%s | %s | Tab or 1-3: Switch Views | q: Quit", m.status, m.statusText),
	)

	return fmt.Sprintf("%s\n%s\n%s", header, body, statusBar)
}

func (m Model) renderPermissions() string {
	var b strings.Builder
	b.WriteString("MovieCam needs access to record:\n\n")
	for _, d := range m.permissions.Denied {
		fmt.Fprintf(&b, "  ✗ %s (%s)\n    %s\n", d.Kind, d.Path, dimStyle.Render(d.Kind.Hint()))
	}
	b.WriteString("\nPress g to check again once access is granted.")
	return mainContentStyle.Render(b.String())
}

// Helper function to render tabs
func (m Model) renderTabs() string {
	var renderedTabs []string
	for _, t := range m.tabs {
		style := tabStyle
		if t.id == m.activeTab {
			style = activeTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(t.title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m Model) renderActiveTabContent() string {
	switch m.activeTab {
	case libraryTab:
		return m.renderLibrary()
	case logsTab:
		if len(m.logs) == 0 {
			return dimStyle.Render("No log entries yet")
		}
		return m.logViewport.View()
	default:
		return m.renderCamera()
	}
}

func (m Model) renderCamera() string {
	var b strings.Builder

	name := "No camera"
	if m.opts.Controller != nil {
		if info := m.opts.Controller.CameraInfo(); info.Name != "" {
			name = info.Name
		}
	}
	fmt.Fprintf(&b, "Camera:  %s\n", name)
	if m.opts.PreviewURL != "" {
		fmt.Fprintf(&b, "Preview: %s\n", m.opts.PreviewURL)
	}
	if m.opts.OutputDir != "" {
		fmt.Fprintf(&b, "Saving:  %s\n", m.opts.OutputDir)
	}
	b.WriteString("\n")

	if m.status == StatusRecording {
		elapsed := m.currentTime.Sub(m.recordStart).Truncate(time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		fmt.Fprintf(&b, "%s  %s\n\n", recordingStyle.Render("● REC "+formatElapsed(elapsed)), dimStyle.Render(m.output))
	}

	b.WriteString(m.renderButtons())
	return b.String()
}

func (m Model) renderButtons() string {
	start := disabledButtonStyle
	if m.status.CanStart() && !m.busy {
		start = recordButtonStyle
	}
	stop := disabledButtonStyle
	if m.status.CanStop() && !m.busy {
		stop = buttonStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		start.Render("r  Record"),
		" ",
		stop.Render("s  Stop"),
	)
}

func (m Model) renderLibrary() string {
	if m.opts.Recordings == nil {
		return dimStyle.Render("No recordings")
	}
	list := m.opts.Recordings()
	if len(list) == 0 {
		return dimStyle.Render("No recordings")
	}

	var b strings.Builder
	b.WriteString("Recordings:\n")
	for _, r := range list {
		fmt.Fprintf(&b, "• %s  %s  %s\n", r.Name, dimStyle.Render(formatBytes(r.Size)), dimStyle.Render(r.ModTime.Format("2006-01-02 15:04")))
	}
	return b.String()
}

func formatElapsed(d time.Duration) string {
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mnt, s)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
