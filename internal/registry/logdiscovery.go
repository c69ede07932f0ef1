package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LogDiscovery scans provider-specific conversation log directories for
// candidate sessions, capped at maxScan files and cached for cacheTTL,
// per spec §6.
type LogDiscovery struct {
	home     string
	maxScan  int
	cacheTTL time.Duration

	mu       sync.Mutex
	cachedAt map[Provider]time.Time
	cached   map[Provider][]Record

	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

const (
	defaultMaxScan  = 500
	defaultCacheTTL = 5 * time.Second
)

func NewLogDiscovery(home string, maxScan int, cacheTTL time.Duration) *LogDiscovery {
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	if maxScan <= 0 {
		maxScan = defaultMaxScan
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &LogDiscovery{
		home:     home,
		maxScan:  maxScan,
		cacheTTL: cacheTTL,
		cachedAt: make(map[Provider]time.Time),
		cached:   make(map[Provider][]Record),
	}
}

// providerLogRoot returns the canonical conversation-log directory for a
// provider, following the same layout convention claude uses
// (~/.claude/projects/<encoded-cwd>/<session-id>.jsonl) generalized to
// codex and pi.
func (d *LogDiscovery) providerLogRoot(provider Provider) string {
	switch provider {
	case ProviderClaude:
		return filepath.Join(d.home, ".claude", "projects")
	case ProviderCodex:
		return filepath.Join(d.home, ".codex", "sessions")
	case ProviderPi:
		return filepath.Join(d.home, ".pi", "sessions")
	default:
		return ""
	}
}

// Discover returns (provider, provider_session_id, cwd?) candidates,
// degrading to an empty list if the log directory is unreadable, per
// spec §9's open question.
func (d *LogDiscovery) Discover(provider Provider) ([]Record, error) {
	d.mu.Lock()
	if at, ok := d.cachedAt[provider]; ok && time.Since(at) < d.cacheTTL {
		cached := d.cached[provider]
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	root := d.providerLogRoot(provider)
	if root == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil
	}

	var records []Record
	scanned := 0
	for _, projectEntry := range entries {
		if !projectEntry.IsDir() {
			continue
		}
		projectDir := filepath.Join(root, projectEntry.Name())
		files, err := os.ReadDir(projectDir)
		if err != nil {
			continue
		}
		cwd := decodeProjectPath(projectEntry.Name())
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			if scanned >= d.maxScan {
				break
			}
			scanned++
			info, err := f.Info()
			if err != nil {
				continue
			}
			sessionID := strings.TrimSuffix(f.Name(), ".jsonl")
			records = append(records, Record{
				Key:        Key{Provider: provider, ProviderSessionID: sessionID},
				Cwd:        cwd,
				CwdSource:  CwdSourceLog,
				CreatedAt:  info.ModTime(),
				LastSeenAt: info.ModTime(),
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeenAt.After(records[j].LastSeenAt)
	})

	d.mu.Lock()
	d.cached[provider] = records
	d.cachedAt[provider] = time.Now()
	d.mu.Unlock()

	return records, nil
}

// WatchForChanges starts an fsnotify watch on every provider's log root
// and its existing project subdirectories, so a session written between
// cache refreshes is picked up on its own instead of waiting out the
// full cacheTTL. Best effort: a provider whose log root does not exist
// yet is simply skipped and never watched.
func (d *LogDiscovery) WatchForChanges(logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	d.watcher = w
	d.logger = logger

	for _, p := range []Provider{ProviderClaude, ProviderCodex, ProviderPi} {
		root := d.providerLogRoot(p)
		if root == "" {
			continue
		}
		d.addWatchTree(root)
	}

	go d.watchLoop()
	return nil
}

// addWatchTree watches root and its immediate project subdirectories
// (the layer Discover actually scans for .jsonl files).
func (d *LogDiscovery) addWatchTree(root string) {
	if err := d.watcher.Add(root); err != nil {
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = d.watcher.Add(filepath.Join(root, e.Name()))
		}
	}
}

func (d *LogDiscovery) watchLoop() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			if d.logger != nil {
				d.logger.Debug("log discovery watcher error", "err", err)
			}
		}
	}
}

// handleEvent invalidates the cache for whichever provider owns the
// changed path, and starts watching freshly created project directories
// so later sessions under them are caught too.
func (d *LogDiscovery) handleEvent(ev fsnotify.Event) {
	var provider Provider
	switch {
	case strings.Contains(ev.Name, filepath.Join(".claude", "projects")):
		provider = ProviderClaude
	case strings.Contains(ev.Name, filepath.Join(".codex", "sessions")):
		provider = ProviderCodex
	case strings.Contains(ev.Name, filepath.Join(".pi", "sessions")):
		provider = ProviderPi
	default:
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = d.watcher.Add(ev.Name)
		}
	}

	d.invalidate(provider)
}

func (d *LogDiscovery) invalidate(provider Provider) {
	d.mu.Lock()
	delete(d.cachedAt, provider)
	d.mu.Unlock()
}

// Close stops the change watcher, if one was started.
func (d *LogDiscovery) Close() error {
	if d.watcher == nil {
		return nil
	}
	return d.watcher.Close()
}

// decodeProjectPath converts an encoded project-directory name back to a
// filesystem path, e.g. "-home-user-projects-myapp" -> "/home/user/projects/myapp".
// Best effort: the encoding is ambiguous for directory names containing
// hyphens, same caveat the source convention carries.
func decodeProjectPath(encoded string) string {
	if strings.HasPrefix(encoded, "-") {
		return "/" + strings.ReplaceAll(encoded[1:], "-", "/")
	}
	return "/" + strings.ReplaceAll(encoded, "-", "/")
}
