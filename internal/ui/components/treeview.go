package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ui/style"
	"github.com/sadopc/dux/internal/util"
)

// TreeView renders the directory listing with usage bars.
type TreeView struct {
	Theme       style.Theme
	Layout      style.Layout
	Items       []*model.Entry
	Cursor      int
	Offset      int
	Marked      map[string]bool
	UseApparent bool
	ParentSize  int64
}

// Render renders the visible window of the listing.
func (tv *TreeView) Render() string {
	width := tv.Layout.ContentWidth()

	if len(tv.Items) == 0 {
		empty := lipgloss.NewStyle().Foreground(tv.Theme.TextMuted).Render("  (empty directory)")
		return style.FullWidth(empty, width)
	}

	contentHeight := tv.Layout.ContentHeight()
	barWidth := tv.Layout.BarWidth()
	nameWidth := tv.Layout.NameWidth()

	start := tv.Offset
	end := start + contentHeight
	if end > len(tv.Items) {
		end = len(tv.Items)
	}

	var lines []string
	for i := start; i < end; i++ {
		entry := tv.Items[i]
		selected := i == tv.Cursor
		marked := tv.Marked[entry.Path()]
		lines = append(lines, tv.renderRow(entry, selected, marked, barWidth, nameWidth, width))
	}

	for len(lines) < contentHeight {
		lines = append(lines, strings.Repeat(" ", width))
	}

	return strings.Join(lines, "\n")
}

func (tv *TreeView) renderRow(entry *model.Entry, selected, marked bool, barWidth, nameWidth, totalWidth int) string {
	size := entryWeight(entry, tv.UseApparent)

	pct := util.Percent(size, tv.ParentSize)
	pctStr := fmt.Sprintf("%5.1f%%", pct)

	bar := tv.Theme.BarGradient(barWidth, pct/100.0)

	name := entry.Name
	if entry.IsDir() {
		name += "/"
	}
	name = util.TruncateString(name, nameWidth)

	// Cursor / mark indicator (2 chars)
	indicator := "  "
	if selected && marked {
		indicator = tv.Theme.MarkedIndicator.Render("*") + tv.Theme.CursorIndicator.Render(">")
	} else if selected {
		indicator = tv.Theme.CursorIndicator.Render(" >")
	} else if marked {
		indicator = tv.Theme.MarkedIndicator.Render("* ")
	}

	var nameStyled string
	switch {
	case entry.HasError():
		nameStyled = tv.Theme.ErrorText.Render(name)
	case entry.IsDir():
		nameStyled = tv.Theme.DirName.Render(name)
	default:
		nameStyled = tv.Theme.FileName.Render(name)
	}
	if entry.IsDir() && entry.HasSubError() {
		nameStyled += tv.Theme.WarnText.Render(" !")
	}

	pctStyled := tv.Theme.PercentText.Render(pctStr)
	sizeStyled := tv.Theme.SizeText.Width(10).Render(util.FormatSize(size))
	tagStyled := tv.renderTag(entry)

	row := fmt.Sprintf("%s%s [%s] %s %s %s",
		indicator, pctStyled, bar, nameStyled, sizeStyled, tagStyled,
	)
	row = style.FullWidth(row, totalWidth)

	if selected {
		return tv.Theme.SelectedRow.Width(totalWidth).Render(row)
	}
	return row
}

// renderTag returns a fixed 4-column marker for entries that need a
// second look; plain files and directories stay unmarked.
func (tv *TreeView) renderTag(entry *model.Entry) string {
	switch entry.Type {
	case model.TypeDirectory, model.TypeFile:
		return "    "
	case model.TypeError:
		return tv.Theme.ErrorText.Render(fmt.Sprintf("%-4s", entry.Type))
	default:
		return tv.Theme.TypeTag.Render(fmt.Sprintf("%-4s", entry.Type))
	}
}

// EnsureVisible adjusts the offset to keep the cursor on screen.
func (tv *TreeView) EnsureVisible() {
	contentHeight := tv.Layout.ContentHeight()
	if tv.Cursor < tv.Offset {
		tv.Offset = tv.Cursor
	}
	if tv.Cursor >= tv.Offset+contentHeight {
		tv.Offset = tv.Cursor - contentHeight + 1
	}
	if tv.Offset < 0 {
		tv.Offset = 0
	}
}

// entryWeight returns the subtree weight in bytes, apparent or
// allocated.
func entryWeight(e *model.Entry, apparent bool) int64 {
	if apparent {
		return e.TotalSize()
	}
	blocks := e.TotalBlocks()
	if blocks > (int64(^uint64(0)>>1))/512 {
		return int64(^uint64(0) >> 1)
	}
	return blocks * 512
}
