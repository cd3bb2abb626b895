// Package definitions provides the definition registry: named schemas for
// categories of cross-pack entities (franchises and the like), their field
// types, discovery triggers and namespacing, and the per-pack entity
// contributions merged into canonical entities.
//
// Registration deep-merges into any existing definition. Definition entities
// are read by a single queue worker during discovery and on demand by
// LoadDefinitionEntity; both paths share one waiter per pack file so a file
// is never read twice at the same time.
package definitions

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/waiter"
	"github.com/conneroisu/charoster/internal/workqueue"
)

// UpdatedEntity is the payload of entity-updated events for definition entities
type UpdatedEntity struct {
	Definition string `json:"definition"`
	ID         string `json:"id"`
}

// Registry tracks definitions and their merged entities
type Registry struct {
	settings interfaces.Settings
	loader   *loader.Loader
	notifier interfaces.Notifier
	handler  *errors.ErrorHandler
	logger   logging.Logger

	mutex       sync.RWMutex
	gen         uint64
	collator    *collate.Collator
	definitions map[string]*types.Definition
	triggers    map[string][]string
	entities    map[string]map[string]types.Entity
	loaded      map[string]string

	registered *waiter.Map[bool]
	files      *waiter.Map[string]
	resolving  *waiter.Map[types.Entity]
	queue      *workqueue.Queue[*job]
}

type job struct {
	definition string
	pack       string
	entityID   string
	key        string
	w          *waiter.Waiter[string]
}

// NewRegistry creates a registry seeded with the built-in definitions
func NewRegistry(settings interfaces.Settings, ld *loader.Loader, notifier interfaces.Notifier, handler *errors.ErrorHandler, logger logging.Logger) *Registry {
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &Registry{
		settings:   settings,
		loader:     ld,
		notifier:   notifier,
		handler:    handler,
		logger:     logger.WithComponent("definitions"),
		collator:   collate.New(language.Und),
		registered: waiter.NewMap[bool](),
		files:      waiter.NewMap[string](),
		resolving:  waiter.NewMap[types.Entity](),
	}
	r.queue = workqueue.New(r.process, workqueue.WithPanicHandler(func(j *job, recovered interface{}) {
		r.logger.Error(context.Background(), nil, "Definition entity load panicked",
			"key", j.key, "panic", recovered)
		j.w.Resolve("")
		r.files.DeleteIf(j.key, j.w)
	}))
	r.clear()
	r.registerBuiltins(context.Background())
	return r
}

func (r *Registry) clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.gen++
	r.definitions = make(map[string]*types.Definition)
	r.triggers = make(map[string][]string)
	r.entities = make(map[string]map[string]types.Entity)
	r.loaded = make(map[string]string)
}

func (r *Registry) registerBuiltins(ctx context.Context) {
	for _, spec := range Builtins() {
		if _, err := r.RegisterDefinition(ctx, "", spec); err != nil {
			r.logger.Error(ctx, err, "Failed to register built-in definition", "id", spec["id"])
		}
	}
}

// RegisterDefinition registers or deep-merges a definition and returns its
// id. A non-empty packID joins the definition's pack list and has that pack's
// entity folder enumerated right away.
func (r *Registry) RegisterDefinition(ctx context.Context, packID string, raw map[string]interface{}) (string, error) {
	spec, err := ParseSpec(raw)
	if err != nil {
		return "", err
	}
	for _, warning := range spec.Warnings {
		r.logger.Warn(ctx, warning, "Definition field type not recognised", "definition", spec.ID)
	}

	id := spec.QualifiedID(packID)

	r.mutex.Lock()
	def, exists := r.definitions[id]
	if !exists {
		def = &types.Definition{
			ID:     id,
			Folder: spec.ID + "s",
			Merge:  types.MergeNone,
			Fields: make(map[string]*types.Field),
			Packs:  make([]string, 0, 1),
		}
		r.definitions[id] = def
	}
	r.applySpec(def, spec)
	if packID != "" && !def.HasPack(packID) {
		def.Packs = append(def.Packs, packID)
	}
	if key := spec.discoverKey(def.Folder); key != "" {
		def.Discover = key
		r.addTrigger(key, id)
	}
	r.mutex.Unlock()

	w, _ := r.registered.GetOrCreate(id)
	if w.Claim() {
		w.Resolve(true)
	}

	r.logger.Debug(ctx, "Registered definition", "id", id, "pack", packID, "merged", exists)
	r.notifier.Notify(types.EventTypeDefinitionUpdated, id)

	if packID != "" {
		r.DiscoverDefinition(ctx, id, packID)
	}
	return id, nil
}

// applySpec merges spec into def. The caller holds the write lock.
func (r *Registry) applySpec(def *types.Definition, spec *Spec) {
	if spec.Namespace != "" {
		def.Namespace = spec.Namespace
	}
	if spec.Folder != "" {
		def.Folder = spec.Folder
	}
	if spec.MergeSet {
		def.Merge = spec.Merge
	}
	if spec.EntityProp != "" {
		def.EntityProp = spec.EntityProp
	}
	if spec.List != nil {
		def.List = *spec.List
	}
	for name, field := range spec.Fields {
		def.Fields[name] = mergeField(def.Fields[name], field, spec.Declared[name])
	}

	if spec.Default == "" {
		return
	}
	switch {
	case def.Default == "":
	case spec.DefaultPriority > def.DefaultPriority:
	case spec.DefaultPriority == def.DefaultPriority &&
		r.collator.CompareString(spec.Default, def.Default) > 0:
	default:
		return
	}
	def.Default = spec.Default
	def.DefaultPriority = spec.DefaultPriority
}

// mergeField layers a redeclared field over the registered one. Only the
// parts the new declaration spells out replace existing metadata.
func mergeField(existing, incoming *types.Field, decl FieldDecl) *types.Field {
	if existing == nil {
		return incoming
	}
	merged := *existing
	if decl.Typed {
		merged.Type = incoming.Type
	}
	if decl.Named {
		merged.Name = incoming.Name
	}
	if incoming.EntityProp != "" {
		merged.EntityProp = incoming.EntityProp
	}
	return &merged
}

func (r *Registry) addTrigger(key, id string) {
	for _, existing := range r.triggers[key] {
		if existing == id {
			return
		}
	}
	r.triggers[key] = append(r.triggers[key], id)
}

// GetDefinition waits until id has been registered and returns a copy of the
// definition as merged at the moment the wait ends.
func (r *Registry) GetDefinition(ctx context.Context, id string) (*types.Definition, error) {
	w, _ := r.registered.GetOrCreate(id)
	if _, err := w.Wait(ctx); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeEntityNotFound, "definition not found", nil).WithEntity(id)
	}
	return def.Clone(), nil
}

// LookupDefinition returns a copy of a registered definition without waiting
func (r *Registry) LookupDefinition(id string) (*types.Definition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

// Definitions returns the registered ids, sorted
func (r *Registry) Definitions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ArrayableFields returns the entity properties of every list definition.
// Entities always carry these as arrays.
func (r *Registry) ArrayableFields() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]struct{})
	for _, def := range r.definitions {
		if !def.List {
			continue
		}
		prop := def.EntityProp
		if prop == "" {
			prop = def.BareID()
		}
		seen[prop] = struct{}{}
	}

	props := make([]string, 0, len(seen))
	for prop := range seen {
		props = append(props, prop)
	}
	sort.Strings(props)
	return props
}

// Entities returns a copy of the merged entities of one definition keyed by slot
func (r *Registry) Entities(definitionID string) map[string]types.Entity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]types.Entity, len(r.entities[definitionID]))
	for slot, entity := range r.entities[definitionID] {
		result[slot] = types.Entity(merge.CopyMap(entity))
	}
	return result
}

// DiscoverPack fires every trigger whose key is truthy in the pack manifest
// and returns the number of entity files queued. A definition that already
// lists the pack has been discovered for it and is skipped.
func (r *Registry) DiscoverPack(ctx context.Context, packID string, manifest map[string]interface{}) int {
	r.mutex.Lock()
	var ids []string
	for key, defs := range r.triggers {
		if !Truthy(manifest[key]) {
			continue
		}
		for _, id := range defs {
			def, ok := r.definitions[id]
			if !ok || def.HasPack(packID) {
				continue
			}
			def.Packs = append(def.Packs, packID)
			ids = append(ids, id)
		}
	}
	r.mutex.Unlock()

	sort.Strings(ids)
	queued := 0
	for _, id := range ids {
		queued += r.DiscoverDefinition(ctx, id, packID)
	}
	return queued
}

// DiscoverDefinition enumerates one pack's folder for a definition and queues
// every entity file found. It returns the number of files queued.
func (r *Registry) DiscoverDefinition(ctx context.Context, definitionID, packID string) int {
	def, ok := r.LookupDefinition(definitionID)
	if !ok || r.settings == nil || r.settings.WorkFolder() == "" {
		return 0
	}

	dir := filepath.Join(loader.PackPath(r.settings.WorkFolder(), packID), def.Folder)
	ids, err := r.loader.ListJSON(dir)
	if err != nil {
		r.handler.Handle(ctx, err)
		return 0
	}

	queued := 0
	for _, entityID := range ids {
		if r.QueueDefinitionEntity(definitionID, packID, entityID) {
			queued++
		}
	}
	if queued > 0 {
		r.logger.Debug(ctx, "Queued definition entities", "definition", definitionID, "pack", packID, "count", queued)
	}
	return queued
}

// QueueDefinitionEntity queues one pack file for reading. It is a no-op when
// the file already has a waiter.
func (r *Registry) QueueDefinitionEntity(definitionID, packID, entityID string) bool {
	key := fileKey(definitionID, packID, entityID)
	w, created := r.files.GetOrCreate(key)
	if !created {
		return false
	}

	j := &job{definition: definitionID, pack: packID, entityID: entityID, key: key, w: w}
	if err := r.queue.Push(j); err != nil {
		w.Resolve("")
		r.files.DeleteIf(key, w)
		return false
	}
	return true
}

// AwaitQueue blocks until the definition entity queue is drained
func (r *Registry) AwaitQueue(ctx context.Context) error {
	return r.queue.Wait(ctx)
}

// QueueLen returns the number of queued definition entity files
func (r *Registry) QueueLen() int {
	return r.queue.Len()
}

func (r *Registry) process(ctx context.Context, j *job) {
	if !j.w.Claim() {
		return
	}
	defer r.files.DeleteIf(j.key, j.w)

	def, ok := r.LookupDefinition(j.definition)
	if !ok {
		j.w.Resolve("")
		return
	}
	slot, _ := r.ingest(ctx, def, j.pack, j.entityID)
	j.w.Resolve(slot)
}

// Reset clears every definition, entity, waiter and queued load, then
// re-registers the built-in definitions.
func (r *Registry) Reset(ctx context.Context) {
	r.clear()

	for _, j := range r.queue.Drain() {
		j.w.Resolve("")
	}
	for _, w := range r.files.Take() {
		if w.State() == waiter.StateInit {
			w.Resolve("")
		}
	}
	r.resolving.Reset()
	r.registered.DeleteSettled()

	r.registerBuiltins(ctx)
	r.logger.Info(ctx, "Definition registry reset")
}

// Close stops the queue worker
func (r *Registry) Close() {
	r.queue.Close()
}

func fileKey(definitionID, packID, entityID string) string {
	return definitionID + types.IDSeparator + types.JoinID(packID, entityID)
}

// Truthy reports whether a manifest flag enables something. Empty strings,
// zero numbers and empty containers are false.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
