package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme holds the color palette and pre-built styles for the UI.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Success   lipgloss.Color

	BgDark     lipgloss.Color
	BgMedium   lipgloss.Color
	BgLight    lipgloss.Color
	BgSelected lipgloss.Color

	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	TextMuted     lipgloss.Color

	// Endpoints for usage-bar gradients.
	GradientStart lipgloss.Color
	GradientEnd   lipgloss.Color

	HeaderStyle      lipgloss.Style
	BreadcrumbStyle  lipgloss.Style
	TabActiveStyle   lipgloss.Style
	TabInactiveStyle lipgloss.Style
	StatusBarStyle   lipgloss.Style
	SelectedRow      lipgloss.Style
	NormalRow        lipgloss.Style
	MarkedIndicator  lipgloss.Style
	CursorIndicator  lipgloss.Style
	DirName          lipgloss.Style
	FileName         lipgloss.Style
	SizeText         lipgloss.Style
	PercentText      lipgloss.Style
	ErrorText        lipgloss.Style
	WarnText         lipgloss.Style
	TypeTag          lipgloss.Style
	HelpKey          lipgloss.Style
	HelpDesc         lipgloss.Style
	ModalStyle       lipgloss.Style
	ModalTitle       lipgloss.Style
}

// DefaultTheme returns the default dark theme.
func DefaultTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#2F9E8F"),
		Secondary: lipgloss.Color("#D08F4E"),
		Accent:    lipgloss.Color("#5FA8D3"),
		Muted:     lipgloss.Color("#5C6370"),
		Error:     lipgloss.Color("#D35F5F"),
		Warning:   lipgloss.Color("#D8B25A"),
		Success:   lipgloss.Color("#8CB369"),

		BgDark:     lipgloss.Color("#14171C"),
		BgMedium:   lipgloss.Color("#1D222A"),
		BgLight:    lipgloss.Color("#2A313C"),
		BgSelected: lipgloss.Color("#38414F"),

		TextPrimary:   lipgloss.Color("#D5DCE5"),
		TextSecondary: lipgloss.Color("#AEB7C2"),
		TextMuted:     lipgloss.Color("#68737F"),

		GradientStart: lipgloss.Color("#2F9E8F"),
		GradientEnd:   lipgloss.Color("#D08F4E"),
	}

	t.HeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.TextPrimary).
		Background(t.BgMedium)

	t.BreadcrumbStyle = lipgloss.NewStyle().
		Foreground(t.TextMuted)

	t.TabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.TextPrimary).
		Background(t.Primary).
		Padding(0, 1)

	t.TabInactiveStyle = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Padding(0, 1)

	t.StatusBarStyle = lipgloss.NewStyle().
		Foreground(t.TextSecondary).
		Background(t.BgMedium)

	t.SelectedRow = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(t.BgSelected)

	t.NormalRow = lipgloss.NewStyle().
		Foreground(t.TextSecondary)

	t.MarkedIndicator = lipgloss.NewStyle().
		Foreground(t.Error).
		Bold(true)

	t.CursorIndicator = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.DirName = lipgloss.NewStyle().
		Foreground(t.Accent).
		Bold(true)

	t.FileName = lipgloss.NewStyle().
		Foreground(t.TextSecondary)

	t.SizeText = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Align(lipgloss.Right)

	t.PercentText = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(6).
		Align(lipgloss.Right)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(t.Error)

	t.WarnText = lipgloss.NewStyle().
		Foreground(t.Warning)

	t.TypeTag = lipgloss.NewStyle().
		Foreground(t.TextMuted)

	t.HelpKey = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.HelpDesc = lipgloss.NewStyle().
		Foreground(t.TextMuted)

	t.ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(1, 2).
		Background(t.BgMedium)

	t.ModalTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.TextPrimary).
		Padding(0, 0, 1, 0)

	return t
}

// GradientColor returns a color interpolated between the gradient
// endpoints.
func (t Theme) GradientColor(ratio float64) lipgloss.Color {
	if ratio <= 0 {
		return t.GradientStart
	}
	if ratio >= 1 {
		return t.GradientEnd
	}

	c1, _ := colorful.Hex(string(t.GradientStart))
	c2, _ := colorful.Hex(string(t.GradientEnd))
	blended := c1.BlendLab(c2, ratio)
	return lipgloss.Color(blended.Hex())
}

// BarGradient renders a usage bar of the given width where each filled
// cell takes its own position on the gradient.
func (t Theme) BarGradient(width int, ratio float64) string {
	if width <= 0 {
		return ""
	}
	if ratio < 0 {
		ratio = 0
	}
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}

	var buf strings.Builder
	buf.Grow(width * 20) // rough estimate with ANSI codes

	c1, _ := colorful.Hex(string(t.GradientStart))
	c2, _ := colorful.Hex(string(t.GradientEnd))

	denom := width - 1
	if denom < 1 {
		denom = 1
	}
	for i := 0; i < filled; i++ {
		blended := c1.BlendLab(c2, float64(i)/float64(denom))
		buf.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(blended.Hex())).Render("━"))
	}

	if filled < width {
		dim := lipgloss.NewStyle().Foreground(t.TextMuted)
		buf.WriteString(dim.Render(strings.Repeat("─", width-filled)))
	}

	return buf.String()
}
