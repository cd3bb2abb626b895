// Package watcher watches the packs folder and reports debounced batches of
// changes to pack content.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/charoster/internal/logging"
)

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
	stopOnce  sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles one debounced batch of changes
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer that flushes delay after the last event
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath adds a path to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := cleanPath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != cleanRoot && isHidden(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// WatchList returns the watched directories
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

// cleanPath resolves a path to its absolute, cleaned form. Pack folders live
// anywhere on disk, so no containment check applies.
func cleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	return absPath, nil
}

// Start starts the file watcher. The watcher stops when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.mutex.Lock()
		if fw.debouncer.timer != nil {
			fw.debouncer.timer.Stop()
		}
		fw.debouncer.mutex.Unlock()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)

	// New folders (a new pack or entity asset folder) are watched as well
	// and always reported.
	isNewDir := statErr == nil && info.IsDir() && event.Op.Has(fsnotify.Create)
	if isNewDir {
		if err := fw.AddRecursive(event.Name); err != nil {
			fw.logger.Warn(ctx, err, "Failed to watch new folder", "path", event.Name)
		}
	} else if !fw.accept(event.Name) {
		return
	}

	var modTime time.Time
	var size int64
	if statErr == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case fw.debouncer.events <- changeEvent:
	default:
		fw.logger.Debug(ctx, "Dropping change event, debouncer is full", "path", event.Name)
	}
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			fw.logger.Debug(ctx, "Pack content changed", "count", len(events))
			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler failed")
				}
			}
		}
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// flush sends the pending events, keeping the last event per path, sorted
// by path
func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

// Common file filters

// PackFileFilter accepts the files a pack is made of: manifests, entity
// records and image assets
func PackFileFilter(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		return true
	default:
		return false
	}
}

// NoHiddenFilter rejects dot files and editor backups
func NoHiddenFilter(path string) bool {
	return !isHidden(path) && !strings.HasSuffix(path, "~")
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
