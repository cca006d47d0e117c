package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Layout derives component dimensions from the terminal size.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a layout for the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight returns the height available for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - 4 // header + breadcrumb + tabbar + statusbar
	if h < 1 {
		h = 1
	}
	return h
}

// ContentWidth returns the width available for the main content area.
func (l Layout) ContentWidth() int {
	if l.Width < 20 {
		return 20
	}
	return l.Width
}

// BarWidth returns the width for usage bars in the tree view.
func (l Layout) BarWidth() int {
	bar := l.ContentWidth() - l.rowOverhead()
	if bar < 5 {
		bar = 5
	}
	if bar > 40 {
		bar = 40
	}
	return bar
}

// NameWidth returns the width available for entry names.
func (l Layout) NameWidth() int {
	w := l.ContentWidth() - l.rowOverhead() - l.BarWidth()
	if w < 8 {
		w = 8
	}
	return w
}

// rowOverhead returns the fixed-width portion of each tree view row
// (everything except the bar and the name).
//
// Row: mark(2) + pct(6) + " ["(2) + bar + "] "(2) + name + " "(1) +
// size(10) + " "(1) + tag(4) = 28 fixed columns.
func (l Layout) rowOverhead() int {
	return 28
}

// Center centers content in the available width.
func (l Layout) Center(content string) string {
	return lipgloss.PlaceHorizontal(l.Width, lipgloss.Center, content)
}

// FullWidth pads a string with spaces to reach exactly the target visual
// width. A wider string is returned unchanged.
func FullWidth(s string, width int) string {
	visLen := lipgloss.Width(s)
	if visLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visLen)
}
