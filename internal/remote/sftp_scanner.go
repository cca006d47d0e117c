package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	pathpkg "path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sadopc/dux/internal/model"
	"github.com/sadopc/dux/internal/scanner"
)

const defaultRemotePath = "."

// Fallback allocation unit when the server does not answer StatVFS.
const fallbackBlockSize int64 = 4096

const maxInt64 = int64(^uint64(0) >> 1)

// Config configures a remote SFTP scan.
type Config struct {
	// Target is the ssh destination, either host or user@host.
	Target string
	// Port is the ssh port, 1-65535.
	Port int
	// BatchMode disables all interactive prompts, like ssh -o BatchMode.
	BatchMode bool
	// Timeout bounds connection establishment.
	Timeout time.Duration
	// ScanTimeout bounds the whole scan; zero means no limit.
	ScanTimeout time.Duration
}

// Scanner walks a remote filesystem through the SFTP subsystem and
// builds the same entry model as the local engine. Remote listings
// carry no device or inode numbers, so disk usage is estimated from
// apparent sizes and the server's allocation block, and hardlinks are
// only detected as canonical-path aliases when symlinks are followed.
type Scanner struct {
	cfg  Config
	dial func(context.Context, Config) (sftpClient, io.Closer, error)
}

type sftpClient interface {
	ReadDir(string) ([]os.FileInfo, error)
	Stat(string) (os.FileInfo, error)
	ReadLink(string) (string, error)
	RealPath(string) (string, error)
}

// Injection seams for connection tests.
var dialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

var sshNewClientConn = func(conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	return ssh.NewClientConn(conn, addr, config)
}

// New returns a scanner for the configured ssh target.
func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg, dial: dialSFTP}
}

// Scan connects to the remote host, walks remotePath and returns the
// finished result. Options that need local stat semantics (SameFS,
// ExcludeCaches, ExcludeKernFS) are ignored remotely.
func (s *Scanner) Scan(ctx context.Context, remotePath string, opts scanner.Options, events chan<- scanner.Event) (*scanner.Result, error) {
	if s == nil {
		return nil, fmt.Errorf("remote scanner is nil")
	}
	if s.dial == nil {
		s.dial = dialSFTP
	}

	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	client, closer, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return s.scanWithClient(ctx, client, remotePath, opts, events)
}

func (s *Scanner) scanWithClient(ctx context.Context, client sftpClient, remotePath string, opts scanner.Options, events chan<- scanner.Event) (*scanner.Result, error) {
	if strings.TrimSpace(remotePath) == "" {
		remotePath = defaultRemotePath
	}

	rootPath := cleanRemotePath(remotePath)
	if resolved, err := client.RealPath(rootPath); err == nil {
		rootPath = cleanRemotePath(resolved)
	}

	rs := &remoteState{
		client:   client,
		opts:     opts,
		stats:    model.NewScanStats(),
		ids:      model.NewIDGenerator(),
		events:   events,
		scanRoot: rootPath,
	}
	if opts.Workers > 1 {
		rs.sem = make(chan struct{}, opts.Workers)
	}

	info, err := client.Stat(rootPath)
	if err != nil {
		err = fmt.Errorf("cannot stat remote path %q: %w", rootPath, err)
		rs.terminal(ctx, scanner.ErrorEvent{Message: err.Error()})
		return nil, err
	}
	if !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", rootPath)
		rs.terminal(ctx, scanner.ErrorEvent{Message: err.Error()})
		return nil, err
	}

	rs.blockSize = serverBlockSize(client, rootPath)
	rs.visitedDirs.Store(rootPath, true)

	// The root keeps its full remote path as the display name so an
	// imported remote tree is self-describing.
	root := &model.Entry{ID: rs.ids.Next(), Type: model.TypeDirectory, Name: rootPath}
	if opts.Extended {
		root.Extended = extendedFrom(info)
	}
	rs.stats.AddDirectory()
	rs.fillDirectory(ctx, root, rootPath)

	res := &scanner.Result{
		Root:  root,
		Stats: rs.stats.Snapshot(),
		// No inode identity over SFTP, so the registry stays empty;
		// aliases are already zero-weight in the tree itself.
		Hardlinks: model.NewHardlinkRegistry(),
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	rs.terminal(ctx, scanner.CompleteEvent{Root: root})
	return res, nil
}

type remoteState struct {
	client    sftpClient
	opts      scanner.Options
	stats     *model.ScanStats
	ids       *model.IDGenerator
	events    chan<- scanner.Event
	scanRoot  string
	blockSize int64
	sem       chan struct{} // nil when sequential

	visitedDirs sync.Map // canonical dir path -> true
	seenFiles   sync.Map // canonical file path -> true
}

func (rs *remoteState) progress(path string) {
	if rs.events == nil {
		return
	}
	select {
	case rs.events <- scanner.ProgressEvent{Path: path, Stats: rs.stats.Snapshot()}:
	default:
	}
}

func (rs *remoteState) terminal(ctx context.Context, ev scanner.Event) {
	if rs.events == nil {
		return
	}
	select {
	case rs.events <- ev:
	case <-ctx.Done():
	}
}

// fillDirectory lists dirPath and attaches the scanned children to
// entry. A listing failure converts entry into a contained zero-weight
// error leaf, mirroring the local engine.
func (rs *remoteState) fillDirectory(ctx context.Context, entry *model.Entry, dirPath string) {
	infos, err := readRemoteDir(ctx, rs.client, dirPath)
	if err != nil {
		rs.stats.AddError()
		entry.Type = model.TypeError
		entry.Error = fmt.Sprintf("cannot read directory: %v", err)
		entry.Size = 0
		entry.Blocks = 0
		entry.Children = nil
		return
	}

	rs.stats.AddEntry(entry.Size, entry.Blocks)

	listed := infos[:0]
	for _, info := range infos {
		if !rs.opts.ShowHidden && strings.HasPrefix(info.Name(), ".") {
			continue
		}
		listed = append(listed, info)
	}

	children := rs.scanChildren(ctx, dirPath, listed)
	model.SortEntries(children, rs.opts.Sort)
	for _, c := range children {
		entry.AddChild(c)
	}
}

// scanChildren fans the listed objects out across the bounded worker
// pool; when all workers are busy the object is scanned synchronously
// so progress never stalls on the pool.
func (rs *remoteState) scanChildren(ctx context.Context, dirPath string, infos []os.FileInfo) []*model.Entry {
	results := make([]*model.Entry, len(infos))

	if rs.sem == nil {
		for i, info := range infos {
			results[i] = rs.scanObject(ctx, dirPath, info)
		}
	} else {
		var wg sync.WaitGroup
		for i, info := range infos {
			select {
			case rs.sem <- struct{}{}:
				wg.Add(1)
				go func(i int, info os.FileInfo) {
					defer wg.Done()
					defer func() { <-rs.sem }()
					results[i] = rs.scanObject(ctx, dirPath, info)
				}(i, info)
			default:
				results[i] = rs.scanObject(ctx, dirPath, info)
			}
		}
		wg.Wait()
	}

	children := results[:0]
	for _, e := range results {
		if e != nil {
			children = append(children, e)
		}
	}
	return children
}

// scanObject classifies one listed object and, for directories,
// recurses into its contents. It returns nil only when ctx is canceled.
func (rs *remoteState) scanObject(ctx context.Context, dirPath string, info os.FileInfo) *model.Entry {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	name := info.Name()
	fullPath := cleanRemotePath(pathpkg.Join(dirPath, name))
	rs.progress(fullPath)

	if rs.matchesExclude(fullPath, name) {
		return &model.Entry{ID: rs.ids.Next(), Type: model.TypeExcluded, Name: name}
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return rs.scanSymlink(ctx, fullPath, name, info)
	case info.IsDir():
		return rs.scanDirectory(ctx, fullPath, name, info)
	case isSpecialMode(mode):
		return rs.finishLeaf(model.TypeSpecial, name, info, info.Size())
	default:
		return rs.scanFile(fullPath, name, info)
	}
}

func (rs *remoteState) scanDirectory(ctx context.Context, fullPath, name string, info os.FileInfo) *model.Entry {
	canonical := fullPath
	if resolved, err := rs.client.RealPath(fullPath); err == nil {
		canonical = cleanRemotePath(resolved)
	}

	entry := &model.Entry{ID: rs.ids.Next(), Type: model.TypeDirectory, Name: name}
	if rs.opts.Extended {
		entry.Extended = extendedFrom(info)
	}
	rs.stats.AddDirectory()

	// A canonical path seen twice means two names reach one directory;
	// the second stays an empty node so nothing is counted twice.
	if _, dup := rs.visitedDirs.LoadOrStore(canonical, true); dup {
		rs.stats.AddEntry(0, 0)
		return entry
	}

	rs.fillDirectory(ctx, entry, canonical)
	return entry
}

func (rs *remoteState) scanFile(fullPath, name string, info os.FileInfo) *model.Entry {
	size := info.Size()
	typ := model.TypeFile

	if rs.opts.FollowSymlinks {
		canonical := fullPath
		if resolved, err := rs.client.RealPath(fullPath); err == nil {
			canonical = cleanRemotePath(resolved)
		}
		if _, dup := rs.seenFiles.LoadOrStore(canonical, true); dup {
			typ = model.TypeHardlink
			size = 0
		}
	}

	return rs.finishLeaf(typ, name, info, size)
}

func (rs *remoteState) scanSymlink(ctx context.Context, fullPath, name string, info os.FileInfo) *model.Entry {
	if !rs.opts.FollowSymlinks {
		return rs.finishLeaf(model.TypeSymlink, name, info, info.Size())
	}

	resolved, target, err := resolveLinkTarget(rs.client, fullPath)
	if err != nil {
		rs.stats.AddError()
		return model.NewErrorEntry(rs.ids.Next(), name, fmt.Sprintf("broken symlink: %v", err))
	}

	if target.IsDir() {
		entry := &model.Entry{ID: rs.ids.Next(), Type: model.TypeDirectory, Name: name}
		if rs.opts.Extended {
			entry.Extended = extendedFrom(target)
		}
		rs.stats.AddDirectory()

		// Links back inside the scan root are left empty: the normal
		// traversal already covers the target.
		if isWithinRemote(rs.scanRoot, resolved) {
			rs.stats.AddEntry(0, 0)
			return entry
		}
		if _, dup := rs.visitedDirs.LoadOrStore(resolved, true); dup {
			rs.stats.AddEntry(0, 0)
			return entry
		}
		rs.fillDirectory(ctx, entry, resolved)
		return entry
	}

	if isSpecialMode(target.Mode()) {
		return rs.finishLeaf(model.TypeSpecial, name, target, target.Size())
	}

	size := target.Size()
	typ := model.TypeSymlink
	if _, dup := rs.seenFiles.LoadOrStore(resolved, true); dup {
		typ = model.TypeHardlink
		size = 0
	}
	return rs.finishLeaf(typ, name, target, size)
}

// finishLeaf builds a counted non-directory entry. Aliases carry zero
// weight so each canonical file contributes its bytes exactly once.
func (rs *remoteState) finishLeaf(typ model.EntryType, name string, info os.FileInfo, size int64) *model.Entry {
	entry := &model.Entry{
		ID:   rs.ids.Next(),
		Type: typ,
		Name: name,
		Size: size,
	}
	if typ != model.TypeHardlink {
		entry.Blocks = estimateBlocks(size, rs.blockSize)
	}
	if rs.opts.Extended {
		entry.Extended = extendedFrom(info)
	}
	rs.stats.AddEntry(entry.Size, entry.Blocks)
	rs.stats.AddFile()
	return entry
}

func (rs *remoteState) matchesExclude(path, name string) bool {
	for _, p := range rs.opts.ExcludePatterns {
		if ok, _ := pathpkg.Match(p, name); ok {
			return true
		}
		if ok, _ := pathpkg.Match(p, path); ok {
			return true
		}
	}
	return false
}

func resolveLinkTarget(client sftpClient, linkPath string) (string, os.FileInfo, error) {
	target, err := client.ReadLink(linkPath)
	if err != nil {
		return "", nil, err
	}
	if !pathpkg.IsAbs(target) {
		target = pathpkg.Join(pathpkg.Dir(linkPath), target)
	}
	target = cleanRemotePath(target)

	resolved, err := client.RealPath(target)
	if err != nil {
		return "", nil, err
	}
	resolved = cleanRemotePath(resolved)

	info, err := client.Stat(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, info, nil
}

func cleanRemotePath(p string) string {
	if p == "" {
		return defaultRemotePath
	}
	clean := pathpkg.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == "" {
		return defaultRemotePath
	}
	return clean
}

// estimateBlocks converts an apparent size into 512-byte units after
// rounding the size up to the server's allocation block. Sparse files
// and tail-packing filesystems make this an estimate, not a du match.
func estimateBlocks(size, blockSize int64) int64 {
	if size <= 0 {
		return 0
	}
	if blockSize <= 0 {
		blockSize = fallbackBlockSize
	}
	allocated := (size + blockSize - 1) / blockSize * blockSize
	return allocated / 512
}

func serverBlockSize(client sftpClient, rootPath string) int64 {
	vfsClient, ok := client.(interface {
		StatVFS(path string) (*sftp.StatVFS, error)
	})
	if !ok {
		return fallbackBlockSize
	}

	stat, err := vfsClient.StatVFS(rootPath)
	if err != nil || stat == nil {
		return fallbackBlockSize
	}

	if stat.Frsize > 0 && stat.Frsize <= uint64(maxInt64) {
		return int64(stat.Frsize)
	}
	if stat.Bsize > 0 && stat.Bsize <= uint64(maxInt64) {
		return int64(stat.Bsize)
	}
	return fallbackBlockSize
}

// extendedFrom fills extended metadata from an SFTP attribute block.
// Owner and group come back as raw ids only when the server sent them.
func extendedFrom(info os.FileInfo) *model.ExtendedInfo {
	ext := &model.ExtendedInfo{Mtime: info.ModTime()}
	if st, ok := info.Sys().(*sftp.FileStat); ok && st != nil {
		ext.UID = st.UID
		ext.GID = st.GID
		ext.Mode = st.Mode
	}
	return ext
}

// isWithinRemote checks whether target is inside root using POSIX path
// semantics.
func isWithinRemote(root, target string) bool {
	root = pathpkg.Clean(root)
	target = pathpkg.Clean(target)
	if root == target {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(target, prefix)
}

func isSpecialMode(mode os.FileMode) bool {
	return mode&(os.ModeDevice|os.ModeCharDevice|os.ModeSocket|os.ModeNamedPipe|os.ModeIrregular) != 0
}

func readRemoteDir(ctx context.Context, client sftpClient, dirPath string) ([]os.FileInfo, error) {
	if rc, ok := client.(interface {
		ReadDirContext(context.Context, string) ([]os.FileInfo, error)
	}); ok {
		return rc.ReadDirContext(ctx, dirPath)
	}
	return client.ReadDir(dirPath)
}

func dialSFTP(ctx context.Context, cfg Config) (sftpClient, io.Closer, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, nil, fmt.Errorf("ssh port must be between 1 and 65535")
	}

	user, host, err := parseSSHTarget(cfg.Target)
	if err != nil {
		return nil, nil, err
	}

	hostCB, err := hostKeyCallback(host, cfg.Port, cfg.BatchMode)
	if err != nil {
		return nil, nil, err
	}

	auth, err := buildAuthMethods(user, host, cfg.BatchMode)
	if err != nil {
		return nil, nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sshConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostCB,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Port))
	sshClient, err := connectSSH(dialCtx, addr, sshConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("SSH connection failed: %w", err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("cannot start SFTP subsystem: %w", err)
	}

	return client, &remoteCloser{ssh: sshClient, sftp: client}, nil
}

func connectSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	conn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// Cancellation must interrupt the handshake, which the ssh package
	// does not take a context for.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c, chans, reqs, err := sshNewClientConn(conn, addr, config)
	close(done)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

type remoteCloser struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (c *remoteCloser) Close() error {
	var retErr error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			retErr = err
		}
	}
	if c.ssh != nil {
		if err := c.ssh.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}
	return retErr
}
