// Package packs discovers the packs in the work folder.
//
// Every folder under <work>/packs holding an info.json manifest is a pack.
// Discovery registers the definitions a manifest carries, queues the entity
// files of every entity type the manifest enables, and fires the definition
// registry's discovery triggers for the manifest's keys. Failures are
// contained to the pack or file that raised them.
package packs

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/charoster/internal/definitions"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/types"
)

// DefinitionsKey lists definition specs inside a manifest
const DefinitionsKey = "definitions"

// Manifest is a discovered pack
type Manifest struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Path string                 `json:"path"`
	Raw  map[string]interface{} `json:"raw"`
}

// Enabled reports whether the manifest turns on an entity type or trigger key
func (m *Manifest) Enabled(key string) bool {
	return definitions.Truthy(m.Raw[key])
}

// LoadProgress is the payload of load-progress events
type LoadProgress struct {
	Pack   string           `json:"pack"`
	Type   types.EntityType `json:"type"`
	Queued int              `json:"queued"`
}

// DefinitionSource registers pack definitions and fires discovery triggers
type DefinitionSource interface {
	RegisterDefinition(ctx context.Context, packID string, raw map[string]interface{}) (string, error)
	DiscoverPack(ctx context.Context, packID string, manifest map[string]interface{}) int
}

// EntityQueue accepts entity loads
type EntityQueue interface {
	QueueEntity(kind types.EntityType, id string) (bool, error)
}

// Discovery walks the packs folder
type Discovery struct {
	settings    interfaces.Settings
	loader      *loader.Loader
	definitions DefinitionSource
	entities    EntityQueue
	notifier    interfaces.Notifier
	handler     *errors.ErrorHandler
	logger      logging.Logger

	mutex sync.RWMutex
	packs map[string]*Manifest
}

// New creates a pack discovery
func New(settings interfaces.Settings, ld *loader.Loader, defs DefinitionSource, queue EntityQueue, notifier interfaces.Notifier, handler *errors.ErrorHandler, logger logging.Logger) *Discovery {
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Discovery{
		settings:    settings,
		loader:      ld,
		definitions: defs,
		entities:    queue,
		notifier:    notifier,
		handler:     handler,
		logger:      logger.WithComponent("packs"),
		packs:       make(map[string]*Manifest),
	}
}

// Discover reads every pack manifest and queues its content. Definitions of
// every pack are registered before any trigger fires, so a definition from
// one pack discovers files in all of them. The returned manifests are sorted
// by id.
func (d *Discovery) Discover(ctx context.Context) ([]*Manifest, error) {
	work := d.settings.WorkFolder()
	if work == "" {
		return nil, errors.ErrMissingWorkFolder()
	}

	dirs, err := d.loader.ListDirs(loader.PacksPath(work))
	if err != nil {
		if errors.IsNotFound(err) {
			d.logger.Info(ctx, "No packs folder", "path", loader.PacksPath(work))
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(dirs)

	manifests := make([]*Manifest, 0, len(dirs))
	for _, dir := range dirs {
		manifest, err := d.readManifest(ctx, work, dir)
		if err != nil {
			d.handler.Handle(ctx, err)
			continue
		}
		if manifest != nil {
			manifests = append(manifests, manifest)
		}
	}

	d.mutex.Lock()
	for _, manifest := range manifests {
		d.packs[manifest.ID] = manifest
	}
	d.mutex.Unlock()

	for _, manifest := range manifests {
		d.registerDefinitions(ctx, manifest)
	}
	for _, manifest := range manifests {
		d.queuePack(ctx, manifest)
	}

	d.logger.Info(ctx, "Discovered packs", "count", len(manifests))
	return manifests, nil
}

// readManifest loads one pack's info.json. A folder without one is not a
// pack and yields nil.
func (d *Discovery) readManifest(ctx context.Context, work, dir string) (*Manifest, error) {
	path := loader.ManifestPath(work, dir)
	raw, err := d.loader.LoadFile(path)
	if err != nil {
		if errors.IsNotFound(err) {
			d.logger.Debug(ctx, "Skipping folder without manifest", "folder", dir)
			return nil, nil
		}
		return nil, err
	}

	if id, _ := raw[types.KeyID].(string); id != "" && id != dir {
		d.logger.Warn(ctx, nil, "Manifest id differs from its folder, using the folder name", "folder", dir, "id", id)
	}
	raw[types.KeyID] = dir

	name, _ := raw["name"].(string)
	if name == "" {
		name = dir
	}
	return &Manifest{ID: dir, Name: name, Path: loader.PackPath(work, dir), Raw: raw}, nil
}

// registerDefinitions registers the manifest's definition specs. A bad spec
// is reported as a malformed manifest and skipped.
func (d *Discovery) registerDefinitions(ctx context.Context, manifest *Manifest) {
	path := loader.ManifestPath(d.settings.WorkFolder(), manifest.ID)
	list, _ := manifest.Raw[DefinitionsKey].([]interface{})
	for i, item := range list {
		spec, ok := item.(map[string]interface{})
		if !ok {
			d.handler.Handle(ctx, errors.NewParseError(errors.ErrCodeValidationFailed, "definition entry is not an object", nil).
				WithPath(path).WithContext("index", i))
			continue
		}
		if _, err := d.definitions.RegisterDefinition(ctx, manifest.ID, spec); err != nil {
			d.handler.Handle(ctx, errors.Wrap(err, errors.ErrorTypeParse, errors.ErrCodeValidationFailed, "invalid definition in manifest").
				WithPath(path).WithContext("index", i))
		}
	}
}

// queuePack queues the entity files of every enabled type and fires the
// definition triggers, then reports the pack ready.
func (d *Discovery) queuePack(ctx context.Context, manifest *Manifest) {
	for _, kind := range types.EntityTypes() {
		if !manifest.Enabled(string(kind)) {
			continue
		}
		queued := d.queueType(ctx, manifest, kind)
		d.notifier.Notify(types.EventTypeLoadProgress, LoadProgress{Pack: manifest.ID, Type: kind, Queued: queued})
	}

	if n := d.definitions.DiscoverPack(ctx, manifest.ID, manifest.Raw); n > 0 {
		d.logger.Debug(ctx, "Queued definition entities for pack", "pack", manifest.ID, "count", n)
	}
	d.notifier.Notify(types.EventTypePackReady, manifest.ID)
}

func (d *Discovery) queueType(ctx context.Context, manifest *Manifest, kind types.EntityType) int {
	ids, err := d.loader.ListJSON(filepath.Join(manifest.Path, string(kind)))
	if err != nil {
		d.handler.Handle(ctx, err)
		return 0
	}

	queued := 0
	for _, id := range ids {
		ok, err := d.entities.QueueEntity(kind, types.JoinID(manifest.ID, id))
		if err != nil {
			d.handler.Handle(ctx, err)
			continue
		}
		if ok {
			queued++
		}
	}
	d.logger.Debug(ctx, "Queued entities", "pack", manifest.ID, "type", kind, "count", queued)
	return queued
}

// Packs returns the discovered manifests sorted by id
func (d *Discovery) Packs() []*Manifest {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	result := make([]*Manifest, 0, len(d.packs))
	for _, m := range d.packs {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Pack returns one discovered manifest
func (d *Discovery) Pack(id string) (*Manifest, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	m, ok := d.packs[id]
	return m, ok
}

// Reset forgets the discovered packs
func (d *Discovery) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.packs = make(map[string]*Manifest)
}
