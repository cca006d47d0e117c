package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ui/style"
	"github.com/sadopc/dux/internal/util"
)

// ScanStatus is the live scan state shown while the engine works.
type ScanStatus struct {
	Path    string
	Stats   model.StatsSnapshot
	Elapsed time.Duration
}

// ItemsPerSecond returns the current scan rate.
func (s ScanStatus) ItemsPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Stats.TotalEntries) / secs
}

// RenderScanProgress renders the scanning overlay.
func RenderScanProgress(theme style.Theme, status ScanStatus, width, height int) string {
	boxWidth := 56
	if boxWidth > width-4 {
		boxWidth = width - 4
	}

	var lines []string

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Primary).
		Render("  Scanning...")
	lines = append(lines, title, "")

	statStyle := lipgloss.NewStyle().Foreground(theme.TextSecondary)
	lines = append(lines,
		statStyle.Render(fmt.Sprintf("  Files:  %s", util.FormatCount(int64(status.Stats.Files)))),
		statStyle.Render(fmt.Sprintf("  Dirs:   %s", util.FormatCount(int64(status.Stats.Directories)))),
		statStyle.Render(fmt.Sprintf("  Size:   %s", util.FormatSize(int64(status.Stats.TotalSize)))),
		statStyle.Render(fmt.Sprintf("  Speed:  %s items/s", util.FormatCount(int64(status.ItemsPerSecond())))),
	)

	if status.Stats.Errors > 0 {
		lines = append(lines, theme.ErrorText.Render(fmt.Sprintf("  Errors: %d", status.Stats.Errors)))
	}

	lines = append(lines, "")

	if status.Path != "" {
		pathLine := "  " + util.TruncateString(status.Path, boxWidth-8)
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.TextMuted).Render(pathLine))
	}
	elapsed := fmt.Sprintf("  Elapsed: %.1fs", status.Elapsed.Seconds())
	lines = append(lines, lipgloss.NewStyle().Foreground(theme.TextMuted).Render(elapsed))

	box := theme.ModalStyle.
		Width(boxWidth).
		Render(strings.Join(lines, "\n"))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
