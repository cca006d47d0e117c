package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ui/style"
	"github.com/sadopc/dux/internal/util"
)

// RenderHeader renders the top header bar.
func RenderHeader(theme style.Theme, root *model.Entry, useApparent bool, width int) string {
	if root == nil || width < 10 {
		return ""
	}

	titleStyled := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Render(" dux")

	stats := fmt.Sprintf("%s items  %s ",
		util.FormatCount(root.TotalItems()),
		util.FormatSize(entryWeight(root, useApparent)),
	)
	statsStyled := lipgloss.NewStyle().Foreground(theme.TextMuted).Render(stats)

	titleW := lipgloss.Width(titleStyled)
	statsW := lipgloss.Width(statsStyled)

	// Path gets whatever space remains
	pathMaxW := width - titleW - statsW - 3
	pathStr := root.Name
	if pathMaxW > 5 {
		pathStr = util.TruncateString(pathStr, pathMaxW)
	} else {
		pathStr = ""
	}

	pathStyled := lipgloss.NewStyle().Foreground(theme.TextPrimary).Render("  " + pathStr)
	pathW := lipgloss.Width(pathStyled)

	gap := width - titleW - pathW - statsW
	if gap < 1 {
		gap = 1
	}

	line := titleStyled + pathStyled + strings.Repeat(" ", gap) + statsStyled
	return theme.HeaderStyle.Width(width).Render(line)
}

// RenderBreadcrumb renders the path from the scan root down to the
// browsed directory.
func RenderBreadcrumb(theme style.Theme, current *model.Entry, width int) string {
	if current == nil {
		return ""
	}

	var segments []string
	for node := current; node != nil; node = node.Parent {
		segments = append([]string{node.Name}, segments...)
	}

	sep := lipgloss.NewStyle().Foreground(theme.TextMuted).Render(" > ")
	var parts []string
	for i, seg := range segments {
		s := lipgloss.NewStyle().Foreground(theme.TextMuted)
		if i == len(segments)-1 {
			s = lipgloss.NewStyle().Foreground(theme.TextPrimary).Bold(true)
		}
		parts = append(parts, s.Render(seg))
	}

	breadcrumb := " " + strings.Join(parts, sep)

	if lipgloss.Width(breadcrumb) > width && len(parts) > 2 {
		ellipsis := lipgloss.NewStyle().Foreground(theme.TextMuted).Render("...")
		breadcrumb = " " + ellipsis + sep + strings.Join(parts[len(parts)-2:], sep)
	}

	return theme.BreadcrumbStyle.Width(width).Render(breadcrumb)
}
