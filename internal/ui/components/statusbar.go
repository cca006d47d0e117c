package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ui/style"
	"github.com/sadopc/dux/internal/util"
)

// StatusInfo holds the state summarized in the bottom bar.
type StatusInfo struct {
	CurrentDir  *model.Entry
	ItemCount   int
	MarkedCount int
	MarkedSize  int64
	UseApparent bool
	ShowHidden  bool
	SortColumn  model.SortColumn
	ViewMode    int
	StatusMsg   string
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(theme style.Theme, info StatusInfo, width int) string {
	if info.StatusMsg != "" {
		msg := " " + lipgloss.NewStyle().Foreground(theme.Warning).Bold(true).Render(info.StatusMsg)
		return theme.StatusBarStyle.Width(width).Render(msg)
	}

	var parts []string

	if info.CurrentDir != nil {
		parts = append(parts, fmt.Sprintf("%d items", info.ItemCount))

		size := entryWeight(info.CurrentDir, info.UseApparent)
		sizeLabel := "disk"
		if info.UseApparent {
			sizeLabel = "apparent"
		}
		parts = append(parts, fmt.Sprintf("%s %s", util.FormatSize(size), sizeLabel))
	}

	if info.MarkedCount > 0 {
		marked := lipgloss.NewStyle().
			Foreground(theme.Error).
			Bold(true).
			Render(fmt.Sprintf("* %d marked (%s)", info.MarkedCount, util.FormatSize(info.MarkedSize)))
		parts = append(parts, marked)
	}

	left := " " + strings.Join(parts, " | ")

	hints := []struct{ key, desc string }{
		{"?", "help"},
		{"d", "delete"},
		{"q", "quit"},
	}

	var rightParts []string
	for _, h := range hints {
		k := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Render(h.key)
		d := lipgloss.NewStyle().Foreground(theme.TextMuted).Render(" " + h.desc)
		rightParts = append(rightParts, k+d)
	}
	right := strings.Join(rightParts, "  ") + " "

	leftW := lipgloss.Width(left)
	rightW := lipgloss.Width(right)
	gap := width - leftW - rightW
	if gap < 1 {
		gap = 1
	}

	line := left + strings.Repeat(" ", gap) + right
	return theme.StatusBarStyle.Width(width).Render(line)
}

// RenderTabBar renders the view switcher with the active sort column.
func RenderTabBar(theme style.Theme, activeView int, sortColumn model.SortColumn, width int) string {
	tabs := []string{"Tree View", "File Types"}

	var tabLine []string
	for i, tab := range tabs {
		label := fmt.Sprintf(" %d %s ", i+1, tab)
		if i == activeView {
			tabLine = append(tabLine, theme.TabActiveStyle.Render(label))
		} else {
			tabLine = append(tabLine, theme.TabInactiveStyle.Render(label))
		}
	}

	left := " " + strings.Join(tabLine, " ")

	sortNames := map[model.SortColumn]string{
		model.SortBySize:   "Size",
		model.SortByName:   "Name",
		model.SortByBlocks: "Disk",
		model.SortByItems:  "Items",
		model.SortByMtime:  "Mtime",
	}

	sortLabel := lipgloss.NewStyle().
		Foreground(theme.TextMuted).
		Render("Sort: " + sortNames[sortColumn] + " ")

	leftW := lipgloss.Width(left)
	rightW := lipgloss.Width(sortLabel)
	gap := width - leftW - rightW
	if gap < 1 {
		gap = 1
	}

	line := left + strings.Repeat(" ", gap) + sortLabel
	return lipgloss.NewStyle().
		Foreground(theme.TextSecondary).
		Background(theme.BgLight).
		Width(width).
		Render(line)
}
