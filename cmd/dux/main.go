package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/dux/internal/ops"
	"github.com/sadopc/dux/internal/remote"
	"github.com/sadopc/dux/internal/scanner"
	"github.com/sadopc/dux/internal/ui"
)

var version = "dev"

const defaultSSHPort = 22

// scanTarget is the resolved positional argument: either a local path
// or an ssh destination with an optional remote path.
type scanTarget struct {
	Remote         bool
	LocalPath      string
	SSHDestination string
	RemotePath     string
}

func main() {
	exportPath := flag.String("export", "", "Export scan results to JSON file (headless mode, use '-' for stdout)")
	importPath := flag.String("import", "", "Import and browse scan results from JSON file")
	showHidden := flag.Bool("hidden", true, "Include hidden files")
	noHidden := flag.Bool("no-hidden", false, "Skip hidden files")
	showVersion := flag.Bool("version", false, "Show version")
	noGC := flag.Bool("no-gc", false, "Disable GC during scan (faster but uses more memory)")
	exclude := flag.String("exclude", "", "Comma-separated glob patterns to exclude (matched against names and paths)")
	followSymlinks := flag.Bool("follow-symlinks", false, "Follow symbolic links during scan")
	sameFS := flag.Bool("same-fs", false, "Stay on the filesystem of the scanned directory")
	excludeCaches := flag.Bool("exclude-caches", false, "Skip directories containing a CACHEDIR.TAG file")
	excludeKernFS := flag.Bool("exclude-kernfs", false, "Skip kernel pseudo-filesystem mounts (/proc, /sys, ...)")
	extended := flag.Bool("extended", false, "Collect extended metadata (mtime, owner, mode)")
	workers := flag.Int("j", 0, "Max parallel directory scans (0 = one per CPU core)")
	sshPort := flag.Int("ssh-port", defaultSSHPort, "SSH port for remote scans")
	sshBatch := flag.Bool("ssh-batch", false, "Disable SSH password prompts (key/agent auth only)")
	sshTimeout := flag.Int("ssh-timeout", 15, "SSH connection timeout in seconds")
	sshScanTimeout := flag.Int("ssh-scan-timeout", 0, "SSH scan timeout in seconds (0 = no limit)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dux - Interactive disk usage analyzer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: dux [options] [path|user@host [remote-path]]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dux .                          Scan current directory\n")
		fmt.Fprintf(os.Stderr, "  dux /home                      Scan /home\n")
		fmt.Fprintf(os.Stderr, "  dux --export scan.json .       Export scan to JSON\n")
		fmt.Fprintf(os.Stderr, "  dux --import scan.json         Browse an exported scan\n")
		fmt.Fprintf(os.Stderr, "  dux --exclude '*.log,cache' .  Exclude matching entries\n")
		fmt.Fprintf(os.Stderr, "  dux user@192.168.1.10          Scan remote home directory over SSH\n")
		fmt.Fprintf(os.Stderr, "  dux --ssh-port 2222 user@host /var/log\n")
		fmt.Fprintf(os.Stderr, "  dux --same-fs --exclude-kernfs /\n")
		fmt.Fprintf(os.Stderr, "  dux -j 8 /home                 Scan with 8 parallel workers\n")
	}

	flag.Parse()

	hiddenSet, noHiddenSet := false, false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hidden":
			hiddenSet = true
		case "no-hidden":
			noHiddenSet = true
		}
	})
	if hiddenSet && noHiddenSet {
		fatal("--hidden and --no-hidden cannot be used together")
	}

	if *showVersion {
		fmt.Printf("dux %s\n", version)
		os.Exit(0)
	}

	if *sshPort < 1 || *sshPort > 65535 {
		fatal("ssh-port must be between 1 and 65535")
	}
	if *workers < 0 {
		fatal("worker count (-j) must be >= 0")
	}

	if *importPath != "" {
		if flag.NArg() > 0 {
			fatal("--import cannot be used with scan targets")
		}

		if *exportPath != "" {
			// Re-export an imported scan.
			root, err := ops.Import(*importPath)
			if err != nil {
				fatal("importing: %v", err)
			}
			if err := ops.Export(root, ops.FormatJSON, *exportPath, version); err != nil {
				fatal("exporting: %v", err)
			}
			if *exportPath != "-" {
				fmt.Printf("Exported to %s\n", *exportPath)
			}
			os.Exit(0)
		}

		runTUI(ui.NewAppFromImport(*importPath))
		return
	}

	opts := scanner.DefaultOptions()
	opts.ShowHidden = *showHidden
	if *noHidden {
		opts.ShowHidden = false
	}
	opts.FollowSymlinks = *followSymlinks
	opts.SameFS = *sameFS
	opts.ExcludeCaches = *excludeCaches
	opts.ExcludeKernFS = *excludeKernFS
	opts.Extended = *extended
	if *workers > 0 {
		opts.Workers = *workers
	}
	opts.ExcludePatterns = splitComma(*exclude)

	// A bad pattern should fail before any tree is walked.
	if _, err := scanner.New(opts); err != nil {
		fatal("%v", err)
	}

	if *noGC {
		debug.SetGCPercent(-1)
		defer debug.SetGCPercent(100)
	}

	target, err := resolveScanTarget(flag.Args())
	if err != nil {
		fatal("%v", err)
	}

	if target.Remote {
		cfg := remote.Config{
			Target:    target.SSHDestination,
			Port:      *sshPort,
			BatchMode: *sshBatch,
			Timeout:   time.Duration(*sshTimeout) * time.Second,
		}
		if *sshScanTimeout > 0 {
			cfg.ScanTimeout = time.Duration(*sshScanTimeout) * time.Second
		}
		if err := runRemoteScan(target, cfg, *exportPath, opts); err != nil {
			fatal("%v", err)
		}
		return
	}

	absPath, err := filepath.Abs(target.LocalPath)
	if err != nil {
		fatal("%v", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		fatal("%v", err)
	}
	if !info.IsDir() {
		fatal("%s is not a directory", absPath)
	}

	// Headless export mode.
	if *exportPath != "" {
		if *exportPath != "-" {
			fmt.Printf("Scanning %s...\n", absPath)
		}
		s, err := scanner.New(opts)
		if err != nil {
			fatal("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		res, err := s.Scan(ctx, absPath, nil)
		if err != nil {
			fatal("scan error: %v", err)
		}
		if err := ops.Export(res.Root, ops.FormatJSON, *exportPath, version); err != nil {
			fatal("export error: %v", err)
		}
		if *exportPath != "-" {
			fmt.Printf("Exported to %s\n", *exportPath)
		}
		return
	}

	app := ui.NewApp(absPath, opts)
	app.ExportPath = "dux-export.json"
	runTUI(app)
}

func runTUI(app *ui.App) {
	app.Version = version
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal("%v", err)
	}
	if err := app.FatalError(); err != nil {
		fatal("%v", err)
	}
}

// runRemoteScan walks the remote tree over SFTP and either exports the
// result or hands it to the TUI through a temporary export, so browsing
// an imported and a freshly scanned remote tree is the same code path.
func runRemoteScan(target scanTarget, cfg remote.Config, exportPath string, opts scanner.Options) error {
	s := remote.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := make(chan scanner.Event, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if p, ok := ev.(scanner.ProgressEvent); ok {
				fmt.Fprintf(os.Stderr, "\rScanning %s: %d files, %d dirs, %d errors...",
					target.SSHDestination, p.Stats.Files, p.Stats.Directories, p.Stats.Errors)
			}
		}
		fmt.Fprintln(os.Stderr)
	}()

	res, err := s.Scan(ctx, target.RemotePath, opts, events)
	close(events)
	wg.Wait()
	if err != nil {
		return err
	}

	if exportPath != "" {
		if err := ops.Export(res.Root, ops.FormatJSON, exportPath, version); err != nil {
			return fmt.Errorf("export error: %w", err)
		}
		if exportPath != "-" {
			fmt.Printf("Exported to %s\n", exportPath)
		}
		return nil
	}

	tempFile, err := os.CreateTemp("", "dux-remote-*.json")
	if err != nil {
		return fmt.Errorf("cannot create temporary file for remote scan: %w", err)
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		return err
	}
	defer os.Remove(tempPath)

	if err := ops.Export(res.Root, ops.FormatJSON, tempPath, version); err != nil {
		return fmt.Errorf("export error: %w", err)
	}

	app := ui.NewAppFromImport(tempPath)
	app.Version = version
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return app.FatalError()
}

func resolveScanTarget(args []string) (scanTarget, error) {
	if len(args) == 0 {
		return scanTarget{LocalPath: "."}, nil
	}

	first := args[0]
	if pathExists(first) {
		if len(args) > 1 {
			return scanTarget{}, fmt.Errorf("too many positional arguments for local scan")
		}
		return scanTarget{LocalPath: first}, nil
	}

	if isRemote, err := validateRemoteTarget(first); isRemote {
		if err != nil {
			return scanTarget{}, err
		}
		if len(args) > 2 {
			return scanTarget{}, fmt.Errorf("too many positional arguments for remote scan")
		}

		remotePath := "."
		if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
			remotePath = args[1]
		}

		return scanTarget{
			Remote:         true,
			SSHDestination: first,
			RemotePath:     remotePath,
		}, nil
	}

	if len(args) > 1 {
		return scanTarget{}, fmt.Errorf("too many positional arguments")
	}

	return scanTarget{LocalPath: first}, nil
}

// validateRemoteTarget reports whether raw is shaped like user@host
// and, if so, whether it is well formed. Anything with a path separator
// is treated as a local path regardless of @ signs.
func validateRemoteTarget(raw string) (bool, error) {
	if strings.ContainsAny(raw, `/\\`) {
		return false, nil
	}
	if strings.Count(raw, "@") != 1 {
		return false, nil
	}

	user, host, _ := strings.Cut(raw, "@")
	if user == "" || host == "" {
		return true, fmt.Errorf("invalid remote target %q: expected user@host", raw)
	}
	if strings.HasPrefix(user, "-") || strings.HasPrefix(host, "-") {
		return true, fmt.Errorf("invalid remote target %q", raw)
	}
	if strings.ContainsAny(user, " \t\n\r") || strings.ContainsAny(host, " \t\n\r") {
		return true, fmt.Errorf("invalid remote target %q: spaces are not allowed", raw)
	}
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end == -1 {
			return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		}
		if end == 1 {
			return true, fmt.Errorf("invalid remote target %q: empty host", raw)
		}
		if end != len(host)-1 {
			rest := host[end+1:]
			if strings.HasPrefix(rest, ":") && isAllDigits(rest[1:]) {
				return true, fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
			}
			return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		}
	} else if strings.Contains(host, "]") {
		return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
	}
	if looksLikeHostPort(host) {
		return true, fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
	}

	return true, nil
}

func looksLikeHostPort(host string) bool {
	if strings.Count(host, ":") != 1 {
		return false
	}
	_, port, ok := strings.Cut(host, ":")
	if !ok {
		return false
	}
	return isAllDigits(port)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitComma(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
