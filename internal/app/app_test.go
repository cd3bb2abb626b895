package app

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/definitions"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/imagecache"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/testutils"
	"github.com/conneroisu/charoster/internal/types"
)

func demoTree(t *testing.T) *testutils.PackTree {
	return testutils.NewPackTree(t).
		Manifest("demo", map[string]interface{}{
			"name":       "Demo",
			"characters": true,
			"franchises": true,
			"definitions": []interface{}{
				map[string]interface{}{"id": "stage", "fields": map[string]interface{}{"title": "string"}},
			},
		}).
		Entity("demo", "characters", "hero", map[string]interface{}{
			"name":      "Hero",
			"franchise": "mario",
			"images":    []interface{}{map[string]interface{}{"id": "alt1", "images": []interface{}{"a.png"}}},
		}).
		Asset("demo", "characters", "hero", "a.png", testutils.PNG(t, 64, 64, color.NRGBA{B: 255, A: 255})).
		Entity("demo", "franchises", "mario", map[string]interface{}{"name": "Mario"})
}

func newTestApp(t *testing.T, tree *testutils.PackTree) (*App, *testutils.CountingFs) {
	cfg := tree.Config()
	cfg.TempFolderPath = t.TempDir()
	fs := testutils.NewCountingFs(tree.Fs)

	a, err := New(cfg, WithFs(fs), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a, fs
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	cfg := config.Default()
	cfg.TempFolderPath = t.TempDir()
	a, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Start(testContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, []string{definitions.FranchiseID}, a.Definitions())
}

func TestQuerySurface(t *testing.T) {
	a, _ := newTestApp(t, demoTree(t))
	ctx := testContext(t)

	manifests, err := a.Start(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.NoError(t, a.AwaitIdle(ctx))

	hero, err := a.GetEntity(ctx, types.EntityTypeCharacters, "demo>hero")
	require.NoError(t, err)
	require.NotNil(t, hero)
	assert.Equal(t, []interface{}{"mario"}, hero["franchise"], "list definitions make their entity prop a list")

	list, err := a.GetEntityList(ctx, types.EntityTypeCharacters, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	def, err := a.GetDefinition(ctx, "demo:stage")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, def.Packs)

	name, err := a.GetDefinitionValue(ctx, definitions.FranchiseID, []string{"mario"}, "name", "")
	require.NoError(t, err)
	assert.Equal(t, "Mario", name)

	mario, err := a.GetDefinitionEntity(ctx, definitions.FranchiseID, []string{"mario"}, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Mario", mario["name"])

	data, err := a.GetAltImage(ctx, imagecache.Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1>0", Size: "square"})
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	status := a.Status()
	assert.Equal(t, 1, status["packs"])
	assert.Equal(t, 2, status["definitions"])
	assert.Equal(t, 1, status["cached_images"])
	assert.Empty(t, a.Errors())
	require.Len(t, a.Packs(), 1)
	assert.Equal(t, "Demo", a.Packs()[0].Name)
}

func TestReset(t *testing.T) {
	a, fs := newTestApp(t, demoTree(t))
	ctx := testContext(t)

	_, err := a.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, a.AwaitIdle(ctx))

	_, err = a.GetEntity(ctx, types.EntityTypeCharacters, "demo>hero")
	require.NoError(t, err)
	_, err = a.GetAltImage(ctx, imagecache.Request{Type: types.EntityTypeCharacters, ImageID: "demo>hero>alt1", Size: "portrait"})
	require.NoError(t, err)
	require.Equal(t, 1, fs.OpensWithSuffix("hero.json"))
	require.Contains(t, a.Definitions(), "demo:stage")

	events := a.Hub().Watch()
	defer a.Hub().Unwatch(events)

	a.Reset(ctx)

	announced := false
	for !announced {
		select {
		case event := <-events:
			announced = event.Type == types.EventTypeReset
		case <-ctx.Done():
			t.Fatal("reset was not announced")
		}
	}

	def, err := a.GetDefinition(ctx, definitions.FranchiseID)
	require.NoError(t, err)
	assert.Equal(t, "franchises", def.Folder)
	assert.Empty(t, def.Packs)
	assert.Equal(t, []string{definitions.FranchiseID}, a.Definitions())
	assert.Empty(t, a.Packs())
	assert.Zero(t, a.Images().Len())

	hero, err := a.GetEntity(ctx, types.EntityTypeCharacters, "demo>hero")
	require.NoError(t, err)
	require.NotNil(t, hero)
	assert.Equal(t, 2, fs.OpensWithSuffix("hero.json"))
}

func TestReload(t *testing.T) {
	a, _ := newTestApp(t, demoTree(t))
	ctx := testContext(t)

	_, err := a.Start(ctx)
	require.NoError(t, err)

	manifests, err := a.Reload(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.NoError(t, a.AwaitIdle(ctx))

	assert.Contains(t, a.Definitions(), "demo:stage")
	list, err := a.GetEntityList(ctx, types.EntityTypeCharacters, nil)
	require.NoError(t, err)
	assert.Contains(t, list, "demo>hero")
}
