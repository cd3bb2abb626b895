// Package imagecache derives cropped and resized rasters from entity alt
// images and memoizes them per theme.
//
// A derivation resolves the alt group through the entity manager, decodes
// the source file, crops it to the requested size (padding the canvas when
// the crop reaches past an edge), caps its width for the entity type and
// re-encodes it losslessly. Results are written to the temp store and the
// cache slot keeps only the file path. Failed derivations cache a negative
// result that is never retried until the cache is reset.
package imagecache

import (
	"context"
	"image"
	"strconv"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"

	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/entities"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/waiter"
	"github.com/conneroisu/charoster/internal/workqueue"
)

// AltSource resolves alt-image groups
type AltSource interface {
	GetAltInfo(ctx context.Context, kind types.EntityType, altID string) (*entities.AltImage, error)
}

// Request names one derived image. ImageID is pack>entityId>altId>index; a
// missing index means the first image of the alt group.
type Request struct {
	Type         types.EntityType
	ImageID      string
	Size         string
	Theme        string
	RenderTarget bool
}

func (r Request) theme() string {
	if r.Theme == "" {
		return config.DefaultTheme
	}
	return r.Theme
}

func (r Request) key() string {
	return string(r.Type) + "|" + r.ImageID + "|" + r.Size
}

// outcome is a settled derivation: a temp file path, an in-memory buffer
// when the temp write failed, or neither for a negative result.
type outcome struct {
	path string
	buf  []byte
}

type task struct {
	req Request
	w   *waiter.Waiter[outcome]
	gen uint64
}

// Stats holds cache statistics
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Derivations   int64 `json:"derivations"`
	Negatives     int64 `json:"negatives"`
	RenderTargets int64 `json:"renderTargets"`
}

// Cache memoizes derivations per theme
type Cache struct {
	settings interfaces.Settings
	alts     AltSource
	loader   *loader.Loader
	codec    interfaces.Codec
	temp     interfaces.TempFiles
	handler  *errors.ErrorHandler
	logger   logging.Logger

	mutex  sync.Mutex
	themes map[string]*gocache.Cache
	gen    uint64
	queue  *workqueue.Queue[*task]

	// Statistics tracking (atomic for thread safety)
	hits          int64
	misses        int64
	derivations   int64
	negatives     int64
	renderTargets int64
}

// New creates a cache. A nil codec uses the RasterCodec.
func New(settings interfaces.Settings, alts AltSource, ld *loader.Loader, codec interfaces.Codec, temp interfaces.TempFiles, handler *errors.ErrorHandler, logger logging.Logger) *Cache {
	if codec == nil {
		codec = NewRasterCodec()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Cache{
		settings: settings,
		alts:     alts,
		loader:   ld,
		codec:    codec,
		temp:     temp,
		handler:  handler,
		logger:   logger.WithComponent("imagecache"),
		themes:   make(map[string]*gocache.Cache),
	}
	c.queue = workqueue.New(c.process, workqueue.WithPanicHandler(func(t *task, recovered interface{}) {
		c.logger.Error(context.Background(), nil, "Image derivation panicked", "image", t.req.ImageID, "panic", recovered)
		t.w.Resolve(outcome{})
	}))
	return c
}

func (c *Cache) namespace(theme string) *gocache.Cache {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ns, ok := c.themes[theme]
	if !ok {
		ns = gocache.New(gocache.NoExpiration, 0)
		c.themes[theme] = ns
	}
	return ns
}

// GetAltImage returns the encoded derived image, or nil when it cannot be
// derived. Interactive requests jump the derivation queue.
func (c *Cache) GetAltImage(ctx context.Context, req Request) ([]byte, error) {
	w := c.enqueue(req, true)
	out, err := w.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return c.materialize(out)
}

// Prefetch queues a derivation behind the pending ones without waiting for
// it. It reports whether new work was queued.
func (c *Cache) Prefetch(req Request) bool {
	if req.RenderTarget {
		return false
	}
	_, created := c.slot(req, false)
	if created {
		atomic.AddInt64(&c.misses, 1)
	}
	return created
}

// enqueue returns the waiter serving req, queuing a derivation when needed.
// Render-target requests always get a fresh, uncached derivation.
func (c *Cache) enqueue(req Request, urgent bool) *waiter.Waiter[outcome] {
	if req.RenderTarget {
		atomic.AddInt64(&c.renderTargets, 1)
		w := waiter.New[outcome]()
		c.push(&task{req: req, w: w, gen: c.generation()}, urgent)
		return w
	}

	w, created := c.slot(req, urgent)
	if created {
		atomic.AddInt64(&c.misses, 1)
	} else {
		atomic.AddInt64(&c.hits, 1)
	}
	return w
}

// slot returns the memo slot for req. Add is atomic, so exactly one
// requester creates a slot and queues its derivation.
func (c *Cache) slot(req Request, urgent bool) (*waiter.Waiter[outcome], bool) {
	ns := c.namespace(req.theme())
	key := req.key()

	w := waiter.New[outcome]()
	if err := ns.Add(key, w, gocache.NoExpiration); err != nil {
		if existing, ok := ns.Get(key); ok {
			return existing.(*waiter.Waiter[outcome]), false
		}
		ns.Set(key, w, gocache.NoExpiration)
	}
	c.push(&task{req: req, w: w, gen: c.generation()}, urgent)
	return w, true
}

func (c *Cache) generation() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.gen
}

func (c *Cache) push(t *task, urgent bool) {
	var err error
	if urgent {
		err = c.queue.PushFront(t)
	} else {
		err = c.queue.Push(t)
	}
	if err != nil {
		t.w.Resolve(outcome{})
	}
}

func (c *Cache) materialize(out outcome) ([]byte, error) {
	switch {
	case out.path != "":
		return c.temp.Read(out.path)
	case out.buf != nil:
		return append([]byte(nil), out.buf...), nil
	default:
		return nil, nil
	}
}

func (c *Cache) process(ctx context.Context, t *task) {
	if !t.w.Claim() {
		return
	}

	buf, err := c.derive(ctx, t.req)
	if err != nil || buf == nil {
		atomic.AddInt64(&c.negatives, 1)
		c.handler.Handle(ctx, err)
		t.w.Resolve(outcome{})
		return
	}
	atomic.AddInt64(&c.derivations, 1)

	if t.req.RenderTarget || c.temp == nil {
		t.w.Resolve(outcome{buf: buf})
		return
	}

	// a reset since queuing owns the temp store now
	if t.gen != c.generation() {
		t.w.Resolve(outcome{buf: buf})
		return
	}

	name := types.JoinID(t.req.theme(), t.req.ImageID, t.req.Size) + ".png"
	path, err := c.temp.Write(name, buf)
	if err != nil {
		c.logger.Warn(ctx, err, "Keeping derived image in memory", "image", t.req.ImageID)
		t.w.Resolve(outcome{buf: buf})
		return
	}
	if t.gen != c.generation() {
		if err := c.temp.Remove(path); err != nil {
			c.logger.Warn(ctx, err, "Failed to remove stale derived image", "path", path)
		}
		t.w.Resolve(outcome{buf: buf})
		return
	}
	t.w.Resolve(outcome{path: path})
}

// derive runs the crop pipeline for one request. A nil buffer with a nil
// error means the alt group or image does not exist.
func (c *Cache) derive(ctx context.Context, req Request) ([]byte, error) {
	segments := types.SplitID(req.ImageID)
	if len(segments) < 3 {
		return nil, nil
	}
	altID := types.JoinID(segments[:3]...)
	index := 0
	if len(segments) > 3 {
		n, err := strconv.Atoi(segments[3])
		if err != nil {
			return nil, nil
		}
		index = n
	}

	info, err := c.alts.GetAltInfo(ctx, req.Type, altID)
	if err != nil || info == nil {
		return nil, err
	}

	images := merge.AsList(info.Alt[types.KeyImages])
	if index < 0 || index >= len(images) {
		return nil, nil
	}

	var record map[string]interface{}
	ref, _ := images[index].(string)
	if m, ok := images[index].(map[string]interface{}); ok {
		record = m
		ref, _ = m[types.KeyImage].(string)
	}
	path, ok := c.sourcePath(req.Type, ref)
	if !ok {
		return nil, nil
	}

	data, err := c.loader.ReadFile(path)
	if err != nil {
		return nil, err
	}

	src, err := c.codec.Decode(data)
	if err != nil {
		return nil, errors.WrapSourceImage(err, errors.ErrCodeDecodeFailed, "failed to decode source image", req.ImageID).WithPath(path)
	}

	bounds := image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy())
	rect, explicit := explicitCrop(req.Size, record, info.Alt, info.Entity)
	if !explicit {
		rect = AutoCrop(bounds.Dx(), bounds.Dy(), c.settings.SizeRatio(req.theme(), req.Size))
	}

	if pad := Padding(rect, bounds); !pad.IsZero() {
		src = c.codec.Extend(src, pad)
		rect = rect.Add(image.Pt(pad.Left, pad.Top))
	}

	cropped, err := c.codec.Crop(src, rect)
	if err != nil {
		return nil, errors.WrapSourceImage(err, errors.ErrCodeDecodeFailed, "failed to crop source image", req.ImageID).WithPath(path)
	}
	buf, err := c.codec.Encode(cropped)
	if err != nil {
		return nil, errors.WrapSourceImage(err, errors.ErrCodeEncodeFailed, "failed to encode derived image", req.ImageID)
	}

	maxWidth := c.settings.MaxRenderWidth(string(req.Type))
	if req.RenderTarget || maxWidth <= 0 || rect.Dx() <= maxWidth {
		return buf, nil
	}

	decoded, err := c.codec.Decode(buf)
	if err != nil {
		return nil, errors.WrapSourceImage(err, errors.ErrCodeDecodeFailed, "failed to decode cropped image", req.ImageID)
	}
	buf, err = c.codec.Encode(c.codec.Resize(decoded, maxWidth))
	if err != nil {
		return nil, errors.WrapSourceImage(err, errors.ErrCodeEncodeFailed, "failed to encode derived image", req.ImageID)
	}
	return buf, nil
}

// sourcePath maps a pack>entityId>file reference to the raw asset
func (c *Cache) sourcePath(kind types.EntityType, ref string) (string, bool) {
	segments := types.SplitID(ref)
	if len(segments) < 3 || c.settings.WorkFolder() == "" {
		return "", false
	}
	file := segments[2]
	for _, s := range segments[3:] {
		file += types.IDSeparator + s
	}
	return loader.AssetPath(c.settings.WorkFolder(), segments[0], string(kind), segments[1], file), true
}

// AwaitQueue blocks until every queued derivation has finished
func (c *Cache) AwaitQueue(ctx context.Context) error {
	return c.queue.Wait(ctx)
}

// Stats returns a snapshot of the cache statistics
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Derivations:   atomic.LoadInt64(&c.derivations),
		Negatives:     atomic.LoadInt64(&c.negatives),
		RenderTargets: atomic.LoadInt64(&c.renderTargets),
	}
}

// Len returns the number of memo slots across every theme
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n := 0
	for _, ns := range c.themes {
		n += ns.ItemCount()
	}
	return n
}

// Reset drops every theme namespace, settles queued derivations as negative
// and removes the temp files written so far.
func (c *Cache) Reset(ctx context.Context) {
	c.mutex.Lock()
	for _, ns := range c.themes {
		ns.Flush()
	}
	c.themes = make(map[string]*gocache.Cache)
	c.gen++
	c.mutex.Unlock()

	for _, t := range c.queue.Drain() {
		t.w.Resolve(outcome{})
	}
	if c.temp != nil {
		if err := c.temp.Clear(); err != nil {
			c.logger.Warn(ctx, err, "Failed to clear derived images")
		}
	}

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.derivations, 0)
	atomic.StoreInt64(&c.negatives, 0)
	atomic.StoreInt64(&c.renderTargets, 0)
	c.logger.Info(ctx, "Image cache reset")
}

// Close stops the derivation worker
func (c *Cache) Close() {
	c.queue.Close()
}
