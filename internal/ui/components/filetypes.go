package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maruel/natural"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ui/style"
	"github.com/sadopc/dux/internal/util"
)

// CategoryStats aggregates one file category over a subtree.
type CategoryStats struct {
	Category  model.FileCategory
	FileCount int64
	TotalSize int64
	ExtSizes  map[string]int64
}

// ftCache memoizes the last aggregation so cursor movement does not
// re-walk the subtree every frame.
type ftCache struct {
	dir         *model.Entry
	useApparent bool
	showHidden  bool
	stats       []CategoryStats
}

var lastFTCache ftCache

// InvalidateFileTypeCache drops the memoized aggregation. Call after
// the tree changes, e.g. a deletion.
func InvalidateFileTypeCache() {
	lastFTCache = ftCache{}
}

// RenderFileTypes renders the file type breakdown view.
func RenderFileTypes(theme style.Theme, dir *model.Entry, useApparent bool, showHidden bool, width, height int) string {
	if dir == nil {
		return ""
	}

	var stats []CategoryStats
	if lastFTCache.dir == dir && lastFTCache.useApparent == useApparent && lastFTCache.showHidden == showHidden {
		stats = lastFTCache.stats
	} else {
		stats = aggregateFileTypes(dir, useApparent, showHidden)
		lastFTCache = ftCache{dir: dir, useApparent: useApparent, showHidden: showHidden, stats: stats}
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].TotalSize > stats[j].TotalSize
	})

	var totalSize int64
	for _, s := range stats {
		totalSize += s.TotalSize
	}

	if totalSize == 0 {
		return lipgloss.NewStyle().
			Foreground(theme.TextMuted).
			Render("  (no files found)")
	}

	catW := 14
	countW := 10
	sizeW := 12
	barW := width - catW - countW - sizeW - 10
	if barW < 10 {
		barW = 10
	}
	if barW > 30 {
		barW = 30
	}

	var lines []string

	hdrStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.TextPrimary)
	header := fmt.Sprintf("  %-*s %*s %*s  %s",
		catW, "Category",
		countW, "Files",
		sizeW, "Size",
		"Distribution",
	)
	lines = append(lines, hdrStyle.Render(header))

	sepWidth := width - 4
	if sepWidth < 0 {
		sepWidth = 0
	}
	sep := lipgloss.NewStyle().Foreground(theme.TextMuted).Render("  " + strings.Repeat("-", sepWidth))
	lines = append(lines, sep)

	for _, s := range stats {
		pct := util.Percent(s.TotalSize, totalSize)

		catColor := lipgloss.Color(s.Category.CategoryColor())
		catName := lipgloss.NewStyle().Foreground(catColor).Bold(true).Width(catW).Render(s.Category.CategoryName())
		count := lipgloss.NewStyle().Foreground(theme.TextSecondary).Width(countW).Align(lipgloss.Right).Render(util.FormatCount(s.FileCount))
		size := lipgloss.NewStyle().Foreground(theme.TextSecondary).Width(sizeW).Align(lipgloss.Right).Render(util.FormatSize(s.TotalSize))

		bar := renderCategoryBar(barW, pct/100.0, catColor, theme.TextMuted)
		pctStr := lipgloss.NewStyle().Foreground(theme.TextMuted).Render(fmt.Sprintf(" %5.1f%%", pct))

		lines = append(lines, fmt.Sprintf("  %s %s %s  %s%s", catName, count, size, bar, pctStr))

		topExts := topExtensions(s.ExtSizes, 3)
		if len(topExts) > 0 {
			extStr := lipgloss.NewStyle().Foreground(theme.TextMuted).
				Render("    " + strings.Join(topExts, ", "))
			lines = append(lines, extStr)
		}
	}

	lines = append(lines, sep)

	totalLine := fmt.Sprintf("  %-*s %*s %*s",
		catW, "Total",
		countW, "",
		sizeW, util.FormatSize(totalSize),
	)
	lines = append(lines, hdrStyle.Render(totalLine))

	for len(lines) < height {
		lines = append(lines, "")
	}

	bgStyle := lipgloss.NewStyle().
		Background(theme.BgDark).
		Width(width)
	for i := range lines[:height] {
		lines[i] = bgStyle.Render(lines[i])
	}

	return strings.Join(lines[:height], "\n")
}

func aggregateFileTypes(dir *model.Entry, useApparent bool, showHidden bool) []CategoryStats {
	catMap := make(map[model.FileCategory]*CategoryStats)

	var walk func(e *model.Entry)
	walk = func(e *model.Entry) {
		for _, child := range e.Children {
			if !showHidden && strings.HasPrefix(child.Name, ".") {
				continue
			}
			if child.IsDir() {
				walk(child)
				continue
			}
			switch child.Type {
			case model.TypeFile, model.TypeSymlink, model.TypeHardlink:
			default:
				continue
			}

			cat := model.ClassifyName(child.Name)
			ext := model.Extension(child.Name)
			sz := entryWeight(child, useApparent)

			st, ok := catMap[cat]
			if !ok {
				st = &CategoryStats{
					Category: cat,
					ExtSizes: make(map[string]int64),
				}
				catMap[cat] = st
			}
			st.FileCount++
			st.TotalSize += sz
			if ext != "" {
				st.ExtSizes[ext] += sz
			}
		}
	}

	walk(dir)

	result := make([]CategoryStats, 0, len(catMap))
	for _, s := range catMap {
		result = append(result, *s)
	}
	return result
}

// topExtensions returns the n heaviest extensions, ties broken in
// natural name order so ".mp3" lands before ".mp10".
func topExtensions(exts map[string]int64, n int) []string {
	type extEntry struct {
		ext  string
		size int64
	}
	entries := make([]extEntry, 0, len(exts))
	for ext, size := range exts {
		entries = append(entries, extEntry{ext, size})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].size != entries[j].size {
			return entries[i].size > entries[j].size
		}
		return natural.Less(entries[i].ext, entries[j].ext)
	})

	var result []string
	for i := 0; i < n && i < len(entries); i++ {
		result = append(result, fmt.Sprintf("%s (%s)", entries[i].ext, util.FormatSize(entries[i].size)))
	}
	return result
}

func renderCategoryBar(width int, ratio float64, color, dimColor lipgloss.Color) string {
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}

	var buf strings.Builder
	filledStyle := lipgloss.NewStyle().Foreground(color)
	dimStyle := lipgloss.NewStyle().Foreground(dimColor)

	for i := 0; i < filled; i++ {
		buf.WriteString(filledStyle.Render("="))
	}
	for i := filled; i < width; i++ {
		buf.WriteString(dimStyle.Render("-"))
	}
	return buf.String()
}
