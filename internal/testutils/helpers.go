package testutils

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/types"
)

// WorkFolder is the work folder used by in-memory pack trees
const WorkFolder = "/work"

// PackTree builds a pack tree on an in-memory filesystem
type PackTree struct {
	t    *testing.T
	Fs   afero.Fs
	Work string
}

// NewPackTree creates an empty pack tree rooted at WorkFolder
func NewPackTree(t *testing.T) *PackTree {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(filepath.Join(WorkFolder, "packs"), 0755))
	return &PackTree{t: t, Fs: fs, Work: WorkFolder}
}

// Manifest writes packs/<pack>/info.json
func (p *PackTree) Manifest(pack string, manifest map[string]interface{}) *PackTree {
	return p.JSON(filepath.Join("packs", pack, "info.json"), manifest)
}

// Entity writes packs/<pack>/<folder>/<id>.json
func (p *PackTree) Entity(pack, folder, id string, entity map[string]interface{}) *PackTree {
	return p.JSON(filepath.Join("packs", pack, folder, id+".json"), entity)
}

// Raw writes a file relative to the work folder
func (p *PackTree) Raw(rel string, content []byte) *PackTree {
	path := filepath.Join(p.Work, rel)
	require.NoError(p.t, p.Fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(p.t, afero.WriteFile(p.Fs, path, content, 0644))
	return p
}

// JSON writes a JSON document relative to the work folder
func (p *PackTree) JSON(rel string, v interface{}) *PackTree {
	data, err := json.Marshal(v)
	require.NoError(p.t, err)
	return p.Raw(rel, data)
}

// Asset writes packs/<pack>/<folder>/<entityId>/<file>
func (p *PackTree) Asset(pack, folder, entityID, file string, content []byte) *PackTree {
	return p.Raw(filepath.Join("packs", pack, folder, entityID, file), content)
}

// Config returns a configuration pointing at the tree's work folder
func (p *PackTree) Config() *config.Config {
	cfg := config.Default()
	cfg.WorkFolderPath = p.Work
	cfg.TempFolderPath = filepath.Join(os.TempDir(), "charoster-test")
	return cfg
}

// PNG encodes a w x h image filled with c
func PNG(t *testing.T, w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// CountingFs counts file opens per path
type CountingFs struct {
	afero.Fs
	mu     sync.Mutex
	counts map[string]int
}

// NewCountingFs wraps fs
func NewCountingFs(fs afero.Fs) *CountingFs {
	return &CountingFs{Fs: fs, counts: make(map[string]int)}
}

// Open counts and opens a file
func (c *CountingFs) Open(name string) (afero.File, error) {
	c.record(name)
	return c.Fs.Open(name)
}

// OpenFile counts and opens a file
func (c *CountingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.record(name)
	return c.Fs.OpenFile(name, flag, perm)
}

func (c *CountingFs) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[filepath.Clean(name)]++
}

// Opens returns how many times path was opened
func (c *CountingFs) Opens(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[filepath.Clean(path)]
}

// OpensWithSuffix returns the number of opens of paths ending in suffix
func (c *CountingFs) OpensWithSuffix(suffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for path, count := range c.counts {
		if strings.HasSuffix(path, suffix) {
			n += count
		}
	}
	return n
}

// RecordingNotifier records every notification
type RecordingNotifier struct {
	mu     sync.Mutex
	events []types.Event
	count  atomic.Int64
}

// Notify implements interfaces.Notifier
func (r *RecordingNotifier) Notify(event types.EventType, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.Event{Type: event, Payload: payload})
	r.count.Add(1)
}

// Events returns the recorded events of one type, or every event when
// eventType is empty
func (r *RecordingNotifier) Events(eventType types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []types.Event
	for _, e := range r.events {
		if eventType == "" || e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Payloads returns the string payloads of one event type
func (r *RecordingNotifier) Payloads(eventType types.EventType) []string {
	var result []string
	for _, e := range r.Events(eventType) {
		if s, ok := e.Payload.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// Count returns the number of recorded events
func (r *RecordingNotifier) Count() int64 {
	return r.count.Load()
}
