// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Sentry palette with light and dark terminal variants.
var (
	colorBrand   = lipgloss.AdaptiveColor{Light: "#362D59", Dark: "#A796F0"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#71637E", Dark: "#9E92AC"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#1F7A4D", Dark: "#2BA185"}
	colorDanger  = lipgloss.AdaptiveColor{Light: "#C2291C", Dark: "#F55459"}
	colorNotice  = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#FDB81B"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6C5FC7", Dark: "#C6BBFF"}
)

var (
	// TitleStyle renders the program name and section headers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBrand)

	SubtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	SuccessStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	ErrorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)
	WarningStyle  = lipgloss.NewStyle().Foreground(colorNotice)

	// CmdStyle highlights versions and commands the user can copy.
	CmdStyle = lipgloss.NewStyle().Foreground(colorAccent)
)
