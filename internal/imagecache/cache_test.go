package imagecache

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/entities"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/testutils"
	"github.com/conneroisu/charoster/internal/types"
)

type countingAlts struct {
	inner *entities.Manager
	calls atomic.Int64
}

func (c *countingAlts) GetAltInfo(ctx context.Context, kind types.EntityType, altID string) (*entities.AltImage, error) {
	c.calls.Add(1)
	return c.inner.GetAltInfo(ctx, kind, altID)
}

type countingCodec struct {
	*RasterCodec
	decodes atomic.Int64

	// when set, Decode signals started and blocks until release closes
	started chan struct{}
	release chan struct{}
}

func (c *countingCodec) Decode(data []byte) (image.Image, error) {
	c.decodes.Add(1)
	if c.release != nil {
		c.started <- struct{}{}
		<-c.release
	}
	return c.RasterCodec.Decode(data)
}

type memTemp struct {
	mu     sync.Mutex
	files  map[string][]byte
	writes int
}

func (m *memTemp) Write(name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	path := fmt.Sprintf("/tmp/%d-%s", m.writes, name)
	m.files[path] = append([]byte(nil), data...)
	return path, nil
}

func (m *memTemp) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.ErrFileNotFound(path, nil)
	}
	return data, nil
}

func (m *memTemp) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memTemp) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string][]byte)
	return nil
}

type fixture struct {
	cache *Cache
	alts  *countingAlts
	codec *countingCodec
	temp  *memTemp
	fs    *testutils.CountingFs
}

func newFixture(t *testing.T, tree *testutils.PackTree, maxWidth int) *fixture {
	fs := testutils.NewCountingFs(tree.Fs)
	ld := loader.New(fs)
	cfg := tree.Config()
	if maxWidth > 0 {
		cfg.Render.MaxWidth["characters"] = maxWidth
	}
	handler := errors.NewErrorHandler(logging.NewNop(), errors.NewCollector())

	manager := entities.NewManager(cfg, ld, nil, nil, handler, logging.NewNop())
	t.Cleanup(manager.Close)

	f := &fixture{
		alts:  &countingAlts{inner: manager},
		codec: &countingCodec{RasterCodec: NewRasterCodec()},
		temp:  &memTemp{files: make(map[string][]byte)},
		fs:    fs,
	}
	f.cache = New(cfg, f.alts, ld, f.codec, f.temp, handler, logging.NewNop())
	t.Cleanup(f.cache.Close)
	return f
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func heroTree(t *testing.T, images ...interface{}) *testutils.PackTree {
	if len(images) == 0 {
		images = []interface{}{"a.png"}
	}
	return testutils.NewPackTree(t).
		Entity("demo", "characters", "hero", map[string]interface{}{
			"images": []interface{}{map[string]interface{}{"id": "alt1", "images": images}},
		}).
		Asset("demo", "characters", "hero", "a.png", testutils.PNG(t, 100, 100, color.NRGBA{G: 255, A: 255}))
}

func decode(t *testing.T, data []byte) image.Image {
	require.NotNil(t, data)
	img, err := NewRasterCodec().Decode(data)
	require.NoError(t, err)
	return img
}

func TestGetAltImage_AutoCrop(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)

	data, err := f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "banner"})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 25), decode(t, data).Bounds())

	data, err = f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1", Size: "portrait"})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 75, 100), decode(t, data).Bounds())
}

func TestGetAltImage_NegativeResultIsCached(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>nope>0", Size: "square"}

	for i := 0; i < 2; i++ {
		data, err := f.cache.GetAltImage(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, data)
	}

	assert.Equal(t, int64(1), f.alts.calls.Load())
	assert.Zero(t, f.codec.decodes.Load())
	stats := f.cache.Stats()
	assert.Equal(t, int64(1), stats.Negatives)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestGetAltImage_MissingSourceReadOnce(t *testing.T) {
	f := newFixture(t, heroTree(t, "missing.png"), 0)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"}

	for i := 0; i < 2; i++ {
		data, err := f.cache.GetAltImage(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, data)
	}
	assert.Equal(t, 1, f.fs.OpensWithSuffix("missing.png"))
	assert.Zero(t, f.codec.decodes.Load())
}

func TestGetAltImage_UndecodableSource(t *testing.T) {
	tree := heroTree(t).Asset("demo", "characters", "hero", "a.png", []byte("garbage"))
	f := newFixture(t, tree, 0)
	ctx := testContext(t)

	data, err := f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"})
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, int64(1), f.cache.Stats().Negatives)

	data, err = f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"})
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, int64(1), f.codec.decodes.Load())
}

func TestGetAltImage_CropPastEdgeIsPadded(t *testing.T) {
	record := map[string]interface{}{
		"image": "a.png",
		"sizes": map[string]interface{}{
			"square": map[string]interface{}{"x": -10.0, "y": 0.0, "width": 120.0, "height": 100.0},
		},
	}
	f := newFixture(t, heroTree(t, record), 0)
	ctx := testContext(t)

	data, err := f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"})
	require.NoError(t, err)

	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 120, 100), img.Bounds())
	_, _, _, alpha := img.At(5, 50).RGBA()
	assert.Zero(t, alpha, "left extension is transparent")
	_, g, _, alpha := img.At(10, 50).RGBA()
	assert.NotZero(t, alpha)
	assert.NotZero(t, g)
	_, _, _, alpha = img.At(115, 50).RGBA()
	assert.Zero(t, alpha, "right extension is transparent")
}

func TestGetAltImage_ConcurrentRequestsDeriveOnce(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"}

	const callers = 12
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := f.cache.GetAltImage(ctx, req)
			if err == nil {
				results[i] = data
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.codec.decodes.Load())
	assert.Equal(t, 1, f.temp.writes)
	assert.Equal(t, int64(1), f.cache.Stats().Derivations)
	for _, data := range results {
		assert.Equal(t, results[0], data)
	}
	assert.Equal(t, 1, f.cache.Len())
}

func TestGetAltImage_RenderTargetBypassesCache(t *testing.T) {
	f := newFixture(t, heroTree(t), 40)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square", RenderTarget: true}

	for i := 0; i < 2; i++ {
		data, err := f.cache.GetAltImage(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 100, decode(t, data).Bounds().Dx(), "render targets ignore the width cap")
	}

	stats := f.cache.Stats()
	assert.Equal(t, int64(2), stats.Derivations)
	assert.Equal(t, int64(2), stats.RenderTargets)
	assert.Zero(t, f.temp.writes)
	assert.Zero(t, f.cache.Len())
	assert.False(t, f.cache.Prefetch(req))
}

func TestGetAltImage_MaxWidth(t *testing.T) {
	f := newFixture(t, heroTree(t), 40)
	ctx := testContext(t)

	data, err := f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 40), decode(t, data).Bounds())
}

func TestGetAltImage_ThemesAreIndependent(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)

	for _, theme := range []string{"", "default", "neon"} {
		_, err := f.cache.GetAltImage(ctx, Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square", Theme: theme})
		require.NoError(t, err)
	}

	stats := f.cache.Stats()
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 2, f.cache.Len())
}

func TestPrefetch(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "landscape"}

	assert.True(t, f.cache.Prefetch(req))
	assert.False(t, f.cache.Prefetch(req))
	require.NoError(t, f.cache.AwaitQueue(ctx))
	assert.Equal(t, int64(1), f.cache.Stats().Derivations)

	data, err := f.cache.GetAltImage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 56), decode(t, data).Bounds())
	assert.Equal(t, int64(1), f.codec.decodes.Load())
}

func TestReset(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"}

	_, err := f.cache.GetAltImage(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	f.cache.Reset(ctx)
	assert.Zero(t, f.cache.Len())
	assert.Empty(t, f.temp.files)

	data, err := f.cache.GetAltImage(ctx, req)
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Equal(t, int64(2), f.codec.decodes.Load())
}

func TestReset_DuringDerivationLeavesNoTempFile(t *testing.T) {
	f := newFixture(t, heroTree(t), 0)
	f.codec.started = make(chan struct{}, 1)
	f.codec.release = make(chan struct{})
	ctx := testContext(t)
	req := Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := f.cache.GetAltImage(ctx, req)
		done <- result{data, err}
	}()

	select {
	case <-f.codec.started:
	case <-ctx.Done():
		t.Fatal("derivation never started")
	}
	f.cache.Reset(ctx)
	close(f.codec.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), decode(t, res.data).Bounds())

	require.NoError(t, f.cache.AwaitQueue(ctx))
	f.temp.mu.Lock()
	defer f.temp.mu.Unlock()
	assert.Empty(t, f.temp.files)
}
