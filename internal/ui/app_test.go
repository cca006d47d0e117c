package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/scanner"
)

func TestAppFatalError_SetOnScanDoneError(t *testing.T) {
	app := NewApp("/tmp", scanner.DefaultOptions())
	scanErr := errors.New("scan failed")

	_, cmd := app.Update(ScanDoneMsg{Err: scanErr})
	if !errors.Is(app.FatalError(), scanErr) {
		t.Fatalf("expected fatal error %v, got %v", scanErr, app.FatalError())
	}
	if cmd == nil {
		t.Fatal("expected quit command on scan error")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestAppScanDone_CanceledScanQuitsCleanly(t *testing.T) {
	app := NewApp("/tmp", scanner.DefaultOptions())

	_, cmd := app.Update(ScanDoneMsg{Err: context.Canceled})
	if app.FatalError() != nil {
		t.Fatalf("user-initiated cancel must not be fatal, got %v", app.FatalError())
	}
	if cmd == nil {
		t.Fatal("expected quit command after cancel")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestAppFatalError_NotSetByStatusMessages(t *testing.T) {
	app := NewApp("/tmp", scanner.DefaultOptions())

	_, _ = app.Update(ExportDoneMsg{Path: "out.json"})
	if app.FatalError() != nil {
		t.Fatalf("expected nil fatal error, got %v", app.FatalError())
	}
	if app.statusMsg == "" {
		t.Fatal("expected status message for successful export")
	}
}

func browsableApp(t *testing.T) *App {
	t.Helper()
	root := &model.Entry{ID: 1, Type: model.TypeDirectory, Name: "/data"}
	big := &model.Entry{ID: 2, Type: model.TypeDirectory, Name: "big"}
	big.AddChild(&model.Entry{ID: 3, Type: model.TypeFile, Name: "blob", Size: 900, Blocks: 2})
	root.AddChild(big)
	root.AddChild(&model.Entry{ID: 4, Type: model.TypeFile, Name: "small.txt", Size: 10, Blocks: 1})
	root.AddChild(&model.Entry{ID: 5, Type: model.TypeFile, Name: ".hidden", Size: 5, Blocks: 1})

	app := NewApp("/data", scanner.DefaultOptions())
	_, _ = app.Update(ScanDoneMsg{Root: root, Hardlinks: model.NewHardlinkRegistry()})
	return app
}

func TestAppScanDone_EntersBrowsing(t *testing.T) {
	app := browsableApp(t)
	if app.state != StateBrowsing {
		t.Fatalf("state = %v, want browsing", app.state)
	}
	// Default sort is size descending, so the heavy directory leads.
	if len(app.sortedItems) != 3 {
		t.Fatalf("sorted items = %d, want 3", len(app.sortedItems))
	}
	if app.sortedItems[0].Name != "big" {
		t.Errorf("first item = %q, want big", app.sortedItems[0].Name)
	}
}

func TestAppNavigation_EnterAndBack(t *testing.T) {
	app := browsableApp(t)

	app.cursor = 0
	app.enterDir()
	if app.currentDir.Name != "big" {
		t.Fatalf("currentDir = %q, want big", app.currentDir.Name)
	}
	if len(app.sortedItems) != 1 || app.sortedItems[0].Name != "blob" {
		t.Fatalf("child listing wrong: %v", app.sortedItems)
	}

	app.goBack()
	if app.currentDir.Name != "/data" {
		t.Fatalf("currentDir after back = %q", app.currentDir.Name)
	}
	// The cursor returns to the directory that was just left.
	if app.sortedItems[app.cursor].Name != "big" {
		t.Errorf("cursor not restored to the left directory")
	}
}

func TestAppEnterDir_IgnoresFiles(t *testing.T) {
	app := browsableApp(t)
	for i, e := range app.sortedItems {
		if e.Name == "small.txt" {
			app.cursor = i
		}
	}
	app.enterDir()
	if app.currentDir.Name != "/data" {
		t.Error("entering a file must not change the browsed directory")
	}
}

func TestAppHiddenToggle(t *testing.T) {
	app := browsableApp(t)
	app.showHidden = false
	app.refreshSorted()
	for _, e := range app.sortedItems {
		if e.Name == ".hidden" {
			t.Fatal("hidden entry listed while showHidden is off")
		}
	}

	app.showHidden = true
	app.refreshSorted()
	found := false
	for _, e := range app.sortedItems {
		if e.Name == ".hidden" {
			found = true
		}
	}
	if !found {
		t.Fatal("hidden entry missing while showHidden is on")
	}
}

func TestAppToggleSort_FlipsOrder(t *testing.T) {
	app := browsableApp(t)

	col := app.sortConfig.Column
	order := app.sortConfig.Order
	app.toggleSort(col)
	if app.sortConfig.Order == order {
		t.Fatal("re-selecting the active column must flip the order")
	}

	app.toggleSort(model.SortByName)
	if app.sortConfig.Column != model.SortByName || app.sortConfig.Order != model.SortAsc {
		t.Fatal("selecting name must start ascending")
	}
}

func TestAppMarkedSize_ComputesFromVisibleItems(t *testing.T) {
	app := browsableApp(t)
	var small *model.Entry
	for _, e := range app.sortedItems {
		if e.Name == "small.txt" {
			small = e
		}
	}
	app.marked = map[string]bool{
		small.Path():        true,
		"/data/missing.txt": true, // marked but no longer listed
	}

	app.useApparent = true
	if got := app.markedSize(app.sortedItems); got != 10 {
		t.Fatalf("apparent marked size = %d, want 10", got)
	}
	app.useApparent = false
	if got := app.markedSize(app.sortedItems); got != 512 {
		t.Fatalf("disk marked size = %d, want 512", got)
	}
}

func TestAppDeleteDone_PrunesTree(t *testing.T) {
	app := browsableApp(t)
	_, _ = app.Update(DeleteDoneMsg{Deleted: []string{"small.txt"}})

	for _, e := range app.currentDir.Children {
		if e.Name == "small.txt" {
			t.Fatal("deleted entry still present in the tree")
		}
	}
	if app.statusMsg == "" {
		t.Error("expected a status message after deletion")
	}
}

func TestAppExecuteDelete_ResolvesAgainstScanRoot(t *testing.T) {
	scanRoot := t.TempDir()
	victim := filepath.Join(scanRoot, "victim.txt")
	if err := os.WriteFile(victim, []byte("doomed"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A same-named path relative to the working directory must survive.
	decoyDir := filepath.Join(scanRoot, filepath.Base(scanRoot))
	if err := os.MkdirAll(decoyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	decoy := filepath.Join(decoyDir, "victim.txt")
	if err := os.WriteFile(decoy, []byte("bystander"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(scanRoot)

	s, err := scanner.New(scanner.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan(context.Background(), scanRoot, nil)
	if err != nil {
		t.Fatal(err)
	}

	app := NewApp(scanRoot, scanner.DefaultOptions())
	_, _ = app.Update(ScanDoneMsg{Root: res.Root, Hardlinks: res.Hardlinks})

	found := false
	for i, e := range app.sortedItems {
		if e.Name == "victim.txt" {
			app.cursor = i
			found = true
		}
	}
	if !found {
		t.Fatal("victim.txt not listed after scan")
	}

	_ = app.prepareDelete()
	if app.state != StateConfirmDelete {
		t.Fatalf("state = %v, want confirm", app.state)
	}
	msg := app.executeDelete()()
	done, ok := msg.(DeleteDoneMsg)
	if !ok {
		t.Fatalf("message = %T, want DeleteDoneMsg", msg)
	}
	if len(done.Errors) > 0 {
		t.Fatalf("delete errors: %v", done.Errors)
	}
	if len(done.Deleted) != 1 || done.Deleted[0] != "victim.txt" {
		t.Fatalf("deleted = %v, want [victim.txt]", done.Deleted)
	}

	if _, err := os.Lstat(victim); !os.IsNotExist(err) {
		t.Fatalf("scanned file still exists: err = %v", err)
	}
	if _, err := os.Lstat(decoy); err != nil {
		t.Fatalf("unrelated file under the working directory was touched: %v", err)
	}
}

func TestAppDeleteTarget_MapsTreePathToFilesystem(t *testing.T) {
	app := NewApp("/srv/data", scanner.DefaultOptions())
	got := app.deleteTarget(filepath.Join("data", "logs", "old.log"))
	want := filepath.Join("/srv", "data", "logs", "old.log")
	if got != want {
		t.Fatalf("deleteTarget = %q, want %q", got, want)
	}
}

func TestAppImportMode_DisablesDelete(t *testing.T) {
	app := NewAppFromImport("scan.json")
	root := &model.Entry{ID: 1, Type: model.TypeDirectory, Name: "/data"}
	root.AddChild(&model.Entry{ID: 2, Type: model.TypeFile, Name: "f", Size: 1})
	_, _ = app.Update(ScanDoneMsg{Root: root})

	if cmd := app.prepareDelete(); cmd != nil || app.state == StateConfirmDelete {
		t.Fatal("delete must be disabled for imported trees")
	}
	if app.statusMsg == "" {
		t.Error("expected an explanatory status message")
	}
}
