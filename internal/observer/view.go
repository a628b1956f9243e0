package observer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trafficwatch/backend/internal/traffic"
)

var (
	colorBorder     = lipgloss.Color("#4b5563")
	colorDimmed     = lipgloss.Color("#6b7280")
	colorBright     = lipgloss.Color("#f9fafb")
	colorHealthy    = lipgloss.Color("#22c55e")
	colorWarning    = lipgloss.Color("#d97706")
	colorSuspicious = lipgloss.Color("#dc2626")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDimmed)
	alertStyle = lipgloss.NewStyle().Foreground(colorSuspicious).Bold(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.countersView()),
		panelStyle.Render(m.protocolView()),
	))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.eventsView()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.alertsView()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("p pause · c clear · q quit"))
	return b.String()
}

func (m Model) statusLine() string {
	conn := lipgloss.NewStyle().Foreground(colorHealthy).Render("● connected")
	if !m.connected {
		conn = lipgloss.NewStyle().Foreground(colorWarning).Render("○ reconnecting")
	}
	parts := []string{titleStyle.Render("trafficwatch"), conn}
	if m.paused {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorWarning).Render("paused"))
	}
	if m.missed > 0 {
		parts = append(parts, alertStyle.Render(fmt.Sprintf("%d missed", m.missed)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) countersView() string {
	rate := 0.0
	if m.stats.TotalEvents > 0 {
		rate = float64(m.stats.SuspiciousEvents) / float64(m.stats.TotalEvents) * 100
	}
	return strings.Join([]string{
		titleStyle.Render("Totals"),
		fmt.Sprintf("events      %d", m.stats.TotalEvents),
		fmt.Sprintf("suspicious  %d", m.stats.SuspiciousEvents),
		fmt.Sprintf("rate        %.1f%%", rate),
	}, "\n")
}

func (m Model) protocolView() string {
	lines := []string{titleStyle.Render("Seen by protocol")}
	for _, p := range append([]traffic.Protocol{traffic.Unknown}, traffic.Protocols...) {
		if n := m.byProtocol[p]; n > 0 {
			lines = append(lines, fmt.Sprintf("%-8s %d", p, n))
		}
	}
	if len(lines) == 1 {
		lines = append(lines, dimStyle.Render("waiting for traffic"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) eventsView() string {
	lines := []string{titleStyle.Render("Recent traffic")}
	for _, ev := range m.events {
		line := describe(ev)
		if ev.Suspicious {
			line = alertStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(m.events) == 0 {
		lines = append(lines, dimStyle.Render("none yet"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) alertsView() string {
	lines := []string{titleStyle.Render("Alerts")}
	for _, a := range m.alerts {
		lines = append(lines, alertStyle.Render(a.Event.Timestamp.Format("15:04:05")+" "+a.Message))
	}
	if len(m.alerts) == 0 {
		lines = append(lines, dimStyle.Render("none"))
	}
	return strings.Join(lines, "\n")
}

func describe(ev traffic.Event) string {
	ts := ev.Timestamp.Format("15:04:05")
	switch {
	case ev.Origin != nil:
		return fmt.Sprintf("%s  %-15s (%.2f, %.2f)", ts, ev.Origin.IP, ev.Origin.Lat, ev.Origin.Lon)
	case ev.Source != nil && ev.Destination != nil:
		return fmt.Sprintf("%s  %-5s %s → %s  %dB  %.0fkm",
			ts, ev.Protocol, ev.Source.Name, ev.Destination.Name, ev.Size, ev.DistanceKm)
	}
	return fmt.Sprintf("%s  %s", ts, ev.Protocol)
}
