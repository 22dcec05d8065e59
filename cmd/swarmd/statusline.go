// ABOUTME: Plain-text startup banner summarizing the boot state: version, bind address, agent counts.
// ABOUTME: Reuses the TUI's lipgloss style palette rather than pulling in the full interactive dashboard.
package main

import (
	"fmt"
	"io"

	"charm.land/lipgloss/v2"
)

var (
	bannerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170"))

	bannerLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	bannerValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42"))
)

// bootSummary is the set of facts printed once at daemon startup.
type bootSummary struct {
	Version          string
	Bind             string
	DataDir          string
	PrimaryManagerID string
	AgentCount       int
	SecretCount      int
}

// printBootBanner writes a short styled summary of s to w.
func printBootBanner(w io.Writer, s bootSummary) {
	fmt.Fprintln(w, bannerTitleStyle.Render(fmt.Sprintf("swarmd %s", s.Version)))
	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", bannerLabelStyle.Render(label+":"), bannerValueStyle.Render(value))
	}
	line("listening", s.Bind)
	line("data dir", s.DataDir)
	line("primary manager", s.PrimaryManagerID)
	line("agents restored", fmt.Sprintf("%d", s.AgentCount))
	line("secrets loaded", fmt.Sprintf("%d", s.SecretCount))
}
