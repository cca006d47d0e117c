package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/ops"
	"github.com/sadopc/dux/internal/scanner"
	"github.com/sadopc/dux/internal/ui/components"
	"github.com/sadopc/dux/internal/ui/style"
)

// ViewMode selects the content pane.
type ViewMode int

const (
	ViewTree ViewMode = iota
	ViewFileType
)

// AppState is the interaction state of the application.
type AppState int

const (
	StateScanning AppState = iota
	StateBrowsing
	StateConfirmDelete
	StateHelp
	StateExporting
)

// ScanDoneMsg is sent when scanning or importing completes.
type ScanDoneMsg struct {
	Root      *model.Entry
	Hardlinks *model.HardlinkRegistry
	Err       error
}

// DeleteDoneMsg is sent when deletion completes.
type DeleteDoneMsg struct {
	Deleted []string
	Errors  []error
}

// ExportDoneMsg is sent when export completes.
type ExportDoneMsg struct {
	Path string
	Err  error
}

type tickMsg time.Time

// App is the root Bubble Tea model.
type App struct {
	ScanPath    string
	ScanOptions scanner.Options
	ImportPath  string
	ExportPath  string
	Version     string

	state    AppState
	viewMode ViewMode
	width    int
	height   int

	root        *model.Entry
	hardlinks   *model.HardlinkRegistry
	currentDir  *model.Entry
	navStack    []*model.Entry
	sortConfig  model.SortConfig
	sortedItems []*model.Entry

	cursor int
	offset int

	marked      map[string]bool
	markedItems []components.ConfirmItem

	useApparent bool
	showHidden  bool
	imported    bool

	scanStatus   components.ScanStatus
	scanStart    time.Time
	statusMu     sync.Mutex
	latestStatus components.ScanStatus
	scanCancel   context.CancelFunc
	scanCancelMu sync.Mutex

	theme  style.Theme
	keys   KeyMap
	layout style.Layout

	statusMsg string
	fatalErr  error
}

func (a *App) setScanCancel(cancel context.CancelFunc) {
	a.scanCancelMu.Lock()
	a.scanCancel = cancel
	a.scanCancelMu.Unlock()
}

func (a *App) callScanCancel() {
	a.scanCancelMu.Lock()
	if a.scanCancel != nil {
		a.scanCancel()
	}
	a.scanCancelMu.Unlock()
}

// NewApp creates an App that scans a local path.
func NewApp(scanPath string, opts scanner.Options) *App {
	return &App{
		ScanPath:    scanPath,
		ScanOptions: opts,
		state:       StateScanning,
		viewMode:    ViewTree,
		sortConfig:  model.DefaultSort(),
		marked:      make(map[string]bool),
		showHidden:  opts.ShowHidden,
		theme:       style.DefaultTheme(),
		keys:        DefaultKeyMap(),
	}
}

// NewAppFromImport creates an App that loads a previously exported tree.
func NewAppFromImport(importPath string) *App {
	return &App{
		ImportPath: importPath,
		state:      StateScanning,
		viewMode:   ViewTree,
		sortConfig: model.DefaultSort(),
		marked:     make(map[string]bool),
		showHidden: true,
		imported:   true,
		theme:      style.DefaultTheme(),
		keys:       DefaultKeyMap(),
	}
}

func (a *App) Init() tea.Cmd {
	if a.ImportPath != "" {
		return a.importCmd()
	}
	return tea.Batch(a.scanCmd(), a.tickCmd())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout = style.NewLayout(msg.Width, msg.Height)
		return a, nil

	case ScanDoneMsg:
		if errors.Is(msg.Err, context.Canceled) {
			// The user quit during the scan; not an error.
			return a, tea.Quit
		}
		if msg.Err != nil {
			a.fatalErr = msg.Err
			return a, tea.Quit
		}
		a.fatalErr = nil
		a.root = msg.Root
		a.hardlinks = msg.Hardlinks
		a.currentDir = msg.Root
		a.navStack = nil
		a.cursor = 0
		a.offset = 0
		a.state = StateBrowsing
		components.InvalidateFileTypeCache()
		a.refreshSorted()
		return a, tea.ClearScreen

	case tickMsg:
		if a.state == StateScanning {
			a.statusMu.Lock()
			a.scanStatus = a.latestStatus
			a.statusMu.Unlock()
			a.scanStatus.Elapsed = time.Since(a.scanStart)
			return a, a.tickCmd()
		}
		return a, nil

	case DeleteDoneMsg:
		for _, name := range msg.Deleted {
			a.currentDir.RemoveChild(name)
		}
		components.InvalidateFileTypeCache()
		a.state = StateBrowsing
		a.clearMarks()
		a.refreshSorted()
		if a.cursor >= len(a.sortedItems) {
			a.cursor = len(a.sortedItems) - 1
		}
		if a.cursor < 0 {
			a.cursor = 0
		}
		if len(msg.Errors) > 0 {
			a.statusMsg = fmt.Sprintf("Delete: %d failed (%v)", len(msg.Errors), msg.Errors[0])
		} else if len(msg.Deleted) > 0 {
			a.statusMsg = fmt.Sprintf("Deleted %d item(s)", len(msg.Deleted))
		}
		return a, tea.ClearScreen

	case ExportDoneMsg:
		a.state = StateBrowsing
		if msg.Err != nil {
			a.statusMsg = fmt.Sprintf("Export failed: %v", msg.Err)
		} else {
			a.statusMsg = fmt.Sprintf("Exported to %s", msg.Path)
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.ForceQuit) {
		a.callScanCancel()
		return a, tea.Quit
	}

	switch a.state {
	case StateScanning:
		if key.Matches(msg, a.keys.Quit) {
			a.callScanCancel()
			return a, tea.Quit
		}
		return a, nil

	case StateHelp:
		if key.Matches(msg, a.keys.Help) || msg.String() == "esc" {
			a.state = StateBrowsing
			return a, tea.ClearScreen
		}
		return a, nil

	case StateConfirmDelete:
		if key.Matches(msg, a.keys.ConfirmYes) {
			return a, a.executeDelete()
		}
		if key.Matches(msg, a.keys.ConfirmNo) {
			a.state = StateBrowsing
			return a, tea.ClearScreen
		}
		return a, nil

	case StateBrowsing:
		return a.handleBrowsingKey(msg)
	}

	return a, nil
}

func (a *App) handleBrowsingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.statusMsg = ""
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.state = StateHelp
		return a, tea.ClearScreen

	case key.Matches(msg, a.keys.Up):
		a.moveCursor(-1)
	case key.Matches(msg, a.keys.Down):
		a.moveCursor(1)
	case key.Matches(msg, a.keys.Enter), key.Matches(msg, a.keys.Right):
		a.enterDir()
	case key.Matches(msg, a.keys.Left), key.Matches(msg, a.keys.Back):
		a.goBack()

	case key.Matches(msg, a.keys.ViewTree):
		a.viewMode = ViewTree
		return a, tea.ClearScreen
	case key.Matches(msg, a.keys.ViewFileType):
		a.viewMode = ViewFileType
		return a, tea.ClearScreen

	case key.Matches(msg, a.keys.SortSize):
		a.toggleSort(a.sizeColumn())
	case key.Matches(msg, a.keys.SortName):
		a.toggleSort(model.SortByName)
	case key.Matches(msg, a.keys.SortItems):
		a.toggleSort(model.SortByItems)
	case key.Matches(msg, a.keys.SortMtime):
		a.toggleSort(model.SortByMtime)

	case key.Matches(msg, a.keys.ToggleApparent):
		a.useApparent = !a.useApparent
		// A size sort follows the active size notion.
		if a.sortConfig.Column == model.SortBySize || a.sortConfig.Column == model.SortByBlocks {
			a.sortConfig.Column = a.sizeColumn()
		}
		a.refreshSorted()
	case key.Matches(msg, a.keys.ToggleHidden):
		a.showHidden = !a.showHidden
		a.clearMarks()
		a.refreshSorted()

	case key.Matches(msg, a.keys.Mark):
		if a.viewMode == ViewTree {
			a.toggleMark()
		}

	case key.Matches(msg, a.keys.Delete):
		if a.viewMode == ViewTree {
			cmd := a.prepareDelete()
			if a.state == StateConfirmDelete {
				return a, tea.Batch(cmd, tea.ClearScreen)
			}
			return a, cmd
		}

	case key.Matches(msg, a.keys.Export):
		return a, a.exportCmd()

	case key.Matches(msg, a.keys.Rescan):
		if a.imported {
			a.statusMsg = "Rescan is disabled in import mode"
			return a, nil
		}
		a.clearMarks()
		a.navStack = nil
		a.cursor = 0
		a.offset = 0
		a.state = StateScanning
		return a, tea.Batch(tea.ClearScreen, a.scanCmd(), a.tickCmd())
	}

	return a, nil
}

func (a *App) sizeColumn() model.SortColumn {
	if a.useApparent {
		return model.SortBySize
	}
	return model.SortByBlocks
}

func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	switch a.state {
	case StateScanning:
		return components.RenderScanProgress(a.theme, a.scanStatus, a.width, a.height)

	case StateHelp:
		return components.RenderHelp(a.theme, a.width, a.height)

	case StateConfirmDelete:
		return components.RenderConfirmDialog(a.theme, a.markedItems, a.width, a.height)

	case StateBrowsing, StateExporting:
		return a.renderBrowsing()
	}

	return ""
}

func (a *App) renderBrowsing() string {
	header := components.RenderHeader(a.theme, a.root, a.useApparent, a.width)
	breadcrumb := components.RenderBreadcrumb(a.theme, a.currentDir, a.width)
	tabBar := components.RenderTabBar(a.theme, int(a.viewMode), a.sortConfig.Column, a.width)

	var content string
	switch a.viewMode {
	case ViewTree:
		tv := &components.TreeView{
			Theme:       a.theme,
			Layout:      a.layout,
			Items:       a.sortedItems,
			Cursor:      a.cursor,
			Offset:      a.offset,
			Marked:      a.marked,
			UseApparent: a.useApparent,
			ParentSize:  a.parentWeight(),
		}
		tv.EnsureVisible()
		a.offset = tv.Offset
		content = tv.Render()

	case ViewFileType:
		content = components.RenderFileTypes(a.theme, a.currentDir, a.useApparent, a.showHidden, a.layout.ContentWidth(), a.layout.ContentHeight())
	}

	statusInfo := components.StatusInfo{
		CurrentDir:  a.currentDir,
		ItemCount:   len(a.sortedItems),
		MarkedCount: len(a.marked),
		MarkedSize:  a.markedSize(a.sortedItems),
		UseApparent: a.useApparent,
		ShowHidden:  a.showHidden,
		SortColumn:  a.sortConfig.Column,
		ViewMode:    int(a.viewMode),
		StatusMsg:   a.statusMsg,
	}
	statusBar := components.RenderStatusBar(a.theme, statusInfo, a.width)

	return header + "\n" + breadcrumb + "\n" + tabBar + "\n" + content + "\n" + statusBar
}

func (a *App) moveCursor(delta int) {
	a.cursor += delta
	if a.cursor >= len(a.sortedItems) {
		a.cursor = len(a.sortedItems) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) enterDir() {
	if a.cursor >= len(a.sortedItems) {
		return
	}
	entry := a.sortedItems[a.cursor]
	if !entry.IsDir() {
		return
	}
	a.navStack = append(a.navStack, a.currentDir)
	a.currentDir = entry
	a.cursor = 0
	a.offset = 0
	a.clearMarks()
	a.refreshSorted()
}

func (a *App) goBack() {
	if len(a.navStack) == 0 {
		return
	}
	prev := a.navStack[len(a.navStack)-1]
	a.navStack = a.navStack[:len(a.navStack)-1]

	leavingName := a.currentDir.Name
	a.currentDir = prev
	a.clearMarks()
	a.refreshSorted()

	for i, entry := range a.sortedItems {
		if entry.Name == leavingName {
			a.cursor = i
			break
		}
	}
	a.offset = 0
}

func (a *App) toggleSort(column model.SortColumn) {
	if a.sortConfig.Column == column {
		if a.sortConfig.Order == model.SortDesc {
			a.sortConfig.Order = model.SortAsc
		} else {
			a.sortConfig.Order = model.SortDesc
		}
	} else {
		a.sortConfig.Column = column
		a.sortConfig.Order = model.SortDesc
		if column == model.SortByName {
			a.sortConfig.Order = model.SortAsc
		}
	}
	a.refreshSorted()
}

func (a *App) toggleMark() {
	if a.cursor >= len(a.sortedItems) {
		return
	}
	p := a.sortedItems[a.cursor].Path()
	if a.marked[p] {
		delete(a.marked, p)
	} else {
		a.marked[p] = true
	}
	a.moveCursor(1)
}

func (a *App) clearMarks() {
	a.marked = make(map[string]bool)
}

func (a *App) refreshSorted() {
	if a.currentDir == nil {
		a.sortedItems = nil
		return
	}

	items := make([]*model.Entry, 0, len(a.currentDir.Children))
	for _, c := range a.currentDir.Children {
		if !a.showHidden && len(c.Name) > 0 && c.Name[0] == '.' {
			continue
		}
		items = append(items, c)
	}

	model.SortEntries(items, a.sortConfig)
	a.sortedItems = items
}

// weight returns the subtree weight of e in bytes under the active size
// notion.
func (a *App) weight(e *model.Entry) int64 {
	if a.useApparent {
		return e.TotalSize()
	}
	return e.TotalBlocks() * 512
}

func (a *App) parentWeight() int64 {
	if a.currentDir == nil {
		return 0
	}
	return a.weight(a.currentDir)
}

// scanCmd runs the scan in a background goroutine. Progress events are
// relayed into shared state read by the tick handler.
func (a *App) scanCmd() tea.Cmd {
	a.scanStart = time.Now()
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		a.setScanCancel(cancel)

		s, err := scanner.New(a.ScanOptions)
		if err != nil {
			return ScanDoneMsg{Err: err}
		}

		events := make(chan scanner.Event, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if p, ok := ev.(scanner.ProgressEvent); ok {
					a.statusMu.Lock()
					a.latestStatus = components.ScanStatus{Path: p.Path, Stats: p.Stats}
					a.statusMu.Unlock()
				}
			}
		}()

		res, err := s.Scan(ctx, a.ScanPath, events)
		close(events)
		<-done

		if err != nil {
			return ScanDoneMsg{Err: err}
		}
		return ScanDoneMsg{Root: res.Root, Hardlinks: res.Hardlinks}
	}
}

func (a *App) importCmd() tea.Cmd {
	return func() tea.Msg {
		root, err := ops.Import(a.ImportPath)
		return ScanDoneMsg{Root: root, Err: err}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) prepareDelete() tea.Cmd {
	if a.imported {
		a.statusMsg = "Delete is disabled in import mode"
		return nil
	}
	if a.currentDir == nil {
		return nil
	}

	var items []components.ConfirmItem

	if len(a.marked) > 0 {
		for _, entry := range a.sortedItems {
			if a.marked[entry.Path()] {
				items = append(items, a.confirmItem(entry))
			}
		}
	} else if a.cursor < len(a.sortedItems) {
		items = append(items, a.confirmItem(a.sortedItems[a.cursor]))
	}

	if len(items) == 0 {
		return nil
	}

	a.markedItems = items
	a.state = StateConfirmDelete
	return nil
}

func (a *App) confirmItem(entry *model.Entry) components.ConfirmItem {
	return components.ConfirmItem{
		Name:  entry.Name,
		Path:  entry.Path(),
		Size:  a.weight(entry),
		IsDir: entry.IsDir(),
	}
}

// deleteTarget maps a tree path back to the filesystem. Tree paths
// start at the root's base name, so they resolve against the scan
// root's parent directory.
func (a *App) deleteTarget(treePath string) string {
	return filepath.Join(filepath.Dir(a.ScanPath), treePath)
}

func (a *App) executeDelete() tea.Cmd {
	items := a.markedItems
	rootPath := a.ScanPath

	return func() tea.Msg {
		var deleted []string
		var errs []error

		for _, item := range items {
			if err := ops.Delete(a.deleteTarget(item.Path), rootPath); err != nil {
				errs = append(errs, err)
			} else {
				deleted = append(deleted, item.Name)
			}
		}

		return DeleteDoneMsg{Deleted: deleted, Errors: errs}
	}
}

// FatalError returns a fatal scan/import error, if any.
func (a *App) FatalError() error { return a.fatalErr }

func (a *App) markedSize(items []*model.Entry) int64 {
	var total int64
	for _, entry := range items {
		if a.marked[entry.Path()] {
			total += a.weight(entry)
		}
	}
	return total
}

func (a *App) exportCmd() tea.Cmd {
	if a.root == nil {
		return nil
	}

	exportPath := a.ExportPath
	if exportPath == "" {
		exportPath = "dux-export.json"
	}

	a.state = StateExporting
	root := a.root
	version := a.Version

	return func() tea.Msg {
		err := ops.Export(root, ops.FormatJSON, exportPath, version)
		return ExportDoneMsg{Path: exportPath, Err: err}
	}
}
