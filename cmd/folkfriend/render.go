package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hwellmann/folkfriend/engine"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderResults formats up to limit matches, one per line. Styling is
// dropped automatically when the output is not a terminal.
func renderResults(rs engine.ResultSet, limit int) string {
	if len(rs) == 0 {
		return dimStyle.Render("no matches") + "\n"
	}
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}

	var b strings.Builder
	for i, m := range rs {
		name := m.DisplayName
		if name == "" {
			name = "tune " + m.TuneID
		}
		fmt.Fprintf(&b, "%3d. %s %s", i+1, scoreStyle.Render(fmt.Sprintf("%.3f", m.Score)), titleStyle.Render(name))
		if m.SettingID != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (tune %s, setting %s)", m.TuneID, m.SettingID)))
		} else {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (tune %s)", m.TuneID)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
