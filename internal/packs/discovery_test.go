package packs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/definitions"
	"github.com/conneroisu/charoster/internal/entities"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/testutils"
	"github.com/conneroisu/charoster/internal/types"
)

type fixture struct {
	discovery *Discovery
	registry  *definitions.Registry
	manager   *entities.Manager
	fs        *testutils.CountingFs
	notifier  *testutils.RecordingNotifier
	collector *errors.Collector
}

func newFixture(t *testing.T, tree *testutils.PackTree, cfg *config.Config) *fixture {
	fs := testutils.NewCountingFs(tree.Fs)
	ld := loader.New(fs)
	notifier := &testutils.RecordingNotifier{}
	collector := errors.NewCollector()
	handler := errors.NewErrorHandler(logging.NewNop(), collector)
	if cfg == nil {
		cfg = tree.Config()
	}

	registry := definitions.NewRegistry(cfg, ld, notifier, handler, logging.NewNop())
	t.Cleanup(registry.Close)
	manager := entities.NewManager(cfg, ld, registry, notifier, handler, logging.NewNop())
	t.Cleanup(manager.Close)

	return &fixture{
		discovery: New(cfg, ld, registry, manager, notifier, handler, logging.NewNop()),
		registry:  registry,
		manager:   manager,
		fs:        fs,
		notifier:  notifier,
		collector: collector,
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDiscover_Scenario(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Manifest("demo", map[string]interface{}{"id": "demo", "name": "Demo", "characters": true}).
		Entity("demo", "characters", "hero", map[string]interface{}{
			"type":   "character",
			"name":   "Hero",
			"images": []interface{}{map[string]interface{}{"id": "alt1", "images": []interface{}{"a.png"}}},
		})
	f := newFixture(t, tree, nil)
	ctx := testContext(t)

	manifests, err := f.discovery.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "demo", manifests[0].ID)
	assert.Equal(t, "Demo", manifests[0].Name)

	require.NoError(t, f.manager.AwaitQueue(ctx, types.EntityTypeCharacters, nil))
	list, err := f.manager.GetEntityList(ctx, types.EntityTypeCharacters, nil)
	require.NoError(t, err)
	require.Contains(t, list, "demo>hero")

	hero := list["demo>hero"]
	assert.Equal(t, "demo>hero", hero.FullID())
	assert.Equal(t, "hero", hero.ID())
	assert.Equal(t, "demo", hero.Pack())
	assert.Equal(t, "Hero", hero["name"])

	images := hero.Images()
	require.Len(t, images, 1)
	alt := images[0].(map[string]interface{})
	assert.Equal(t, "alt1", alt["id"])
	assert.Equal(t, "demo>hero>alt1", alt["fullId"])
	assert.Equal(t, []interface{}{"demo>hero>a.png"}, alt["images"])
	assert.Contains(t, hero.ImageMap(), "demo>hero>alt1")

	assert.Equal(t, []string{"demo"}, f.notifier.Payloads(types.EventTypePackReady))
	progress := f.notifier.Events(types.EventTypeLoadProgress)
	require.Len(t, progress, 1)
	assert.Equal(t, LoadProgress{Pack: "demo", Type: types.EntityTypeCharacters, Queued: 1}, progress[0].Payload)
	assert.False(t, f.collector.HasErrors())
}

func TestDiscover_RequiresWorkFolder(t *testing.T) {
	tree := testutils.NewPackTree(t)
	f := newFixture(t, tree, config.Default())

	manifests, err := f.discovery.Discover(testContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Nil(t, manifests)
}

func TestDiscover_MissingPacksFolder(t *testing.T) {
	tree := testutils.NewPackTree(t)
	cfg := tree.Config()
	cfg.WorkFolderPath = "/elsewhere"
	f := newFixture(t, tree, cfg)

	manifests, err := f.discovery.Discover(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestDiscover_ContainsFailures(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Raw("packs/broken/info.json", []byte(`{"id": "broken",`)).
		Raw("packs/loose/readme.txt", []byte("not a pack")).
		Manifest("good", map[string]interface{}{"characters": true, "stages": true}).
		Entity("good", "characters", "hero", map[string]interface{}{"name": "Hero"}).
		Raw("packs/good/characters/villain.json", []byte(`[1, 2]`))
	f := newFixture(t, tree, nil)
	ctx := testContext(t)

	manifests, err := f.discovery.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "good", manifests[0].ID)
	assert.Equal(t, "good", manifests[0].Name)

	require.NoError(t, f.manager.AwaitQueue(ctx, types.EntityTypeCharacters, nil))
	assert.Equal(t, []string{"good>hero"}, f.manager.IDs(types.EntityTypeCharacters))

	assert.Equal(t, 2, f.collector.Count(errors.ErrorTypeParse))
	assert.Len(t, f.collector.ByPath(loader.ManifestPath(testutils.WorkFolder, "broken")), 1)

	progress := f.notifier.Events(types.EventTypeLoadProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, LoadProgress{Pack: "good", Type: types.EntityTypeStages, Queued: 0}, progress[1].Payload)
}

func TestDiscover_ManifestDefinitions(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Manifest("rpg", map[string]interface{}{
			"weapons": true,
			"definitions": []interface{}{
				map[string]interface{}{"id": "weapon", "namespace": false, "discover": true},
				"not an object",
			},
		}).
		Entity("rpg", "weapons", "axe", map[string]interface{}{"damage": 3.0}).
		Manifest("addon", map[string]interface{}{"weapons": true, "franchises": true}).
		Entity("addon", "weapons", "bow", map[string]interface{}{"damage": 1.0}).
		Entity("addon", "franchises", "zelda", map[string]interface{}{"name": "Zelda"}).
		Manifest("other", map[string]interface{}{}).
		Entity("other", "weapons", "club", map[string]interface{}{"damage": 2.0})
	f := newFixture(t, tree, nil)
	ctx := testContext(t)

	_, err := f.discovery.Discover(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.AwaitQueue(ctx))

	weapons := f.registry.Entities("weapon")
	assert.Contains(t, weapons, "rpg>axe")
	assert.Contains(t, weapons, "addon>bow", "definitions from one pack discover files in the others")
	assert.NotContains(t, weapons, "other>club")
	assert.Equal(t, 1, f.fs.OpensWithSuffix("axe.json"))

	assert.Contains(t, f.registry.Entities(definitions.FranchiseID), "zelda")
	assert.Len(t, f.collector.ByPath(loader.ManifestPath(testutils.WorkFolder, "rpg")), 1)
	assert.ElementsMatch(t, []string{"addon", "other", "rpg"}, f.notifier.Payloads(types.EventTypePackReady))
}

func TestDiscover_FolderNameIsPackID(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Manifest("real", map[string]interface{}{"id": "fake", "characters": true}).
		Entity("real", "characters", "hero", map[string]interface{}{})
	f := newFixture(t, tree, nil)
	ctx := testContext(t)

	manifests, err := f.discovery.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "real", manifests[0].ID)
	assert.Equal(t, "real", manifests[0].Raw["id"])

	require.NoError(t, f.manager.AwaitQueue(ctx, types.EntityTypeCharacters, nil))
	assert.Equal(t, []string{"real>hero"}, f.manager.IDs(types.EntityTypeCharacters))
}

func TestPacks(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Manifest("zeta", map[string]interface{}{}).
		Manifest("alpha", map[string]interface{}{"characters": false})
	f := newFixture(t, tree, nil)
	ctx := testContext(t)

	_, err := f.discovery.Discover(ctx)
	require.NoError(t, err)

	packs := f.discovery.Packs()
	require.Len(t, packs, 2)
	assert.Equal(t, "alpha", packs[0].ID)
	assert.Equal(t, "zeta", packs[1].ID)
	assert.False(t, packs[0].Enabled("characters"))
	assert.Empty(t, f.notifier.Events(types.EventTypeLoadProgress))

	_, ok := f.discovery.Pack("zeta")
	assert.True(t, ok)

	f.discovery.Reset()
	assert.Empty(t, f.discovery.Packs())
}
