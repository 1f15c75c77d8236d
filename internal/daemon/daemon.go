// Package daemon runs PopClozet's background workers: the product intake
// watcher, the connectivity probe feeding the monitor, and periodic store
// maintenance.
//
// The intake watcher monitors a drop directory for product JSON files
// (exported by the merchandising intake flow), validates them, and lands them
// in the local mirror and the backend. File events are debounced so editors
// writing in multiple chunks produce one import.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/popclozet/popclozet/internal/catalog"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/remote"
)

// Config holds daemon configuration.
type Config struct {
	// ImportsDir is the drop directory watched for product JSON files.
	ImportsDir string

	// DebounceInterval batches rapid file updates together.
	DebounceInterval time.Duration

	// ProbeInterval is how often backend reachability is checked and fed
	// into the connectivity monitor.
	ProbeInterval time.Duration

	// MaintenanceInterval is how often stale mirror entries are evicted.
	MaintenanceInterval time.Duration

	// CacheMaxAge bounds mirror entry staleness for the eviction sweep.
	CacheMaxAge time.Duration

	// Probe checks backend reachability; nil disables probing.
	Probe func(ctx context.Context) error

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval:    200 * time.Millisecond,
		ProbeInterval:       15 * time.Second,
		MaintenanceInterval: 10 * time.Minute,
		CacheMaxAge:         7 * 24 * time.Hour,
		Logger:              log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching, connectivity probing, and maintenance.
type Daemon struct {
	cache   *catalog.Cache
	remote  remote.Client
	monitor *netmon.Monitor
	config  *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued at
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. Use Start() to begin.
func New(cache *catalog.Cache, rc remote.Client, monitor *netmon.Monitor, config *Config) (*Daemon, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.ImportsDir == "" {
		return nil, fmt.Errorf("imports directory cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		cache:       cache,
		remote:      rc,
		monitor:     monitor,
		config:      config,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := os.MkdirAll(d.config.ImportsDir, 0755); err != nil {
		return fmt.Errorf("failed to create imports directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	d.watcher = watcher
	if err := d.watcher.Add(d.config.ImportsDir); err != nil {
		return fmt.Errorf("failed to watch imports directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.config.ImportsDir)

	// Catch up on files dropped while the daemon was down
	if n, err := d.ImportAll(ctx); err != nil {
		d.config.Logger.Printf("Warning: initial import failed: %v", err)
	} else if n > 0 {
		d.config.Logger.Printf("Imported %d products on startup", n)
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.maintenanceLoop()

	if d.config.Probe != nil {
		d.wg.Add(1)
		go d.probeLoop()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// ImportAll imports every product file currently in the drop directory.
// Individual file failures are logged but don't stop the pass.
func (d *Daemon) ImportAll(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.config.ImportsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read imports directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.config.ImportsDir, entry.Name())
		if err := d.importFile(ctx, path); err != nil {
			d.config.Logger.Printf("WARNING: failed to import %s: %v", entry.Name(), err)
			continue
		}
		imported++
	}
	return imported, nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

// processChangeQueue imports files whose events have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		if err := d.importFile(d.ctx, path); err != nil {
			d.config.Logger.Printf("WARNING: failed to import %s: %v", filepath.Base(path), err)
		}
		delete(d.changeQueue, path)
	}
}

// importFile lands one product file in the mirror and the backend.
//
// The mirror write always happens; the backend push is attempted when the
// monitor reports online and its failure only logs — the file stays in the
// drop directory, so a later ImportAll pass retries it.
func (d *Daemon) importFile(ctx context.Context, path string) error {
	// #nosec G304 - path comes from the watched directory
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read product file: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return fmt.Errorf("failed to parse product file: %w", err)
	}
	if err := product.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}

	if err := d.cache.Put(ctx, product); err != nil {
		return fmt.Errorf("failed to cache product: %w", err)
	}

	if d.remote != nil && d.monitor.Online() {
		if err := d.remote.UpsertProduct(ctx, &product); err != nil {
			d.config.Logger.Printf("WARNING: backend push for %s failed, will retry on next pass: %v",
				product.ID, err)
		}
	}

	d.config.Logger.Printf("Imported product: %s (%s)", product.ID, product.Name)
	return nil
}

// maintenanceLoop periodically evicts stale mirror entries.
func (d *Daemon) maintenanceLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.cache.EvictOlderThan(d.ctx, d.config.CacheMaxAge); err != nil {
				d.config.Logger.Printf("Error evicting stale entries: %v", err)
			}
		}
	}
}

// probeLoop translates backend reachability checks into monitor signals.
// This is the platform adapter for the connectivity monitor: the monitor
// never polls on its own.
func (d *Daemon) probeLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(d.ctx, d.config.ProbeInterval)
			err := d.config.Probe(ctx)
			cancel()
			d.monitor.Set(err == nil)
		}
	}
}
