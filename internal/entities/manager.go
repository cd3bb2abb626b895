// Package entities provides the entity manager: one cache bucket per entity
// type (characters, stages, items) holding loaded entities, their alt-image
// index, a FIFO load queue and a waiter per entity id.
//
// A load is performed by whoever claims the entity's waiter first, either the
// bucket's queue worker or a direct LoadEntity caller. Everyone else waits on
// the waiter, so an entity file is never read twice concurrently.
package entities

import (
	"context"
	"sort"
	"sync"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/waiter"
	"github.com/conneroisu/charoster/internal/workqueue"
)

// FieldSource supplies the entity properties that are always lists
type FieldSource interface {
	ArrayableFields() []string
}

// Manager owns one bucket per entity type
type Manager struct {
	settings interfaces.Settings
	loader   *loader.Loader
	fields   FieldSource
	notifier interfaces.Notifier
	handler  *errors.ErrorHandler
	logger   logging.Logger

	buckets map[types.EntityType]*bucket
}

type bucket struct {
	kind types.EntityType

	mutex     sync.RWMutex
	gen       uint64
	instances map[string]types.Entity
	alts      map[string]string

	waiters *waiter.Map[string]
	queue   *workqueue.Queue[*loadJob]
}

type loadJob struct {
	id string
	w  *waiter.Waiter[string]
}

// NewManager creates a manager with an empty bucket per entity type
func NewManager(settings interfaces.Settings, ld *loader.Loader, fields FieldSource, notifier interfaces.Notifier, handler *errors.ErrorHandler, logger logging.Logger) *Manager {
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Manager{
		settings: settings,
		loader:   ld,
		fields:   fields,
		notifier: notifier,
		handler:  handler,
		logger:   logger.WithComponent("entities"),
		buckets:  make(map[types.EntityType]*bucket),
	}

	for _, kind := range types.EntityTypes() {
		b := &bucket{
			kind:      kind,
			instances: make(map[string]types.Entity),
			alts:      make(map[string]string),
			waiters:   waiter.NewMap[string](),
		}
		b.queue = workqueue.New(func(ctx context.Context, j *loadJob) {
			if j.w.Claim() {
				m.run(ctx, b, j.id, j.w, nil)
				m.notifyStored(ctx, b, j.w)
			}
		}, workqueue.WithPanicHandler(func(j *loadJob, recovered interface{}) {
			m.logger.Error(context.Background(), nil, "Entity load panicked", "type", kind, "id", j.id, "panic", recovered)
			j.w.Resolve("")
			b.waiters.DeleteIf(j.id, j.w)
		}))
		m.buckets[kind] = b
	}
	return m
}

func (m *Manager) bucket(kind types.EntityType) (*bucket, error) {
	b, ok := m.buckets[kind]
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "unknown entity type").
			WithContext("type", string(kind))
	}
	return b, nil
}

// LoadEntity returns a copy of the entity stored for a pack>entityId id,
// loading it on first request. Loading an addon returns its parent. A nil
// entity with a nil error means the entity does not exist.
func (m *Manager) LoadEntity(ctx context.Context, kind types.EntityType, id string) (types.Entity, error) {
	b, err := m.bucket(kind)
	if err != nil {
		return nil, err
	}
	return m.load(ctx, b, id, nil)
}

// GetEntity is LoadEntity
func (m *Manager) GetEntity(ctx context.Context, kind types.EntityType, id string) (types.Entity, error) {
	return m.LoadEntity(ctx, kind, id)
}

func (m *Manager) load(ctx context.Context, b *bucket, id string, chain []string) (types.Entity, error) {
	w, _ := b.waiters.GetOrCreate(id)
	if w.Claim() {
		m.run(ctx, b, id, w, chain)
	}

	key, err := w.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}

	entity := b.get(key)
	if entity != nil {
		m.notifier.Notify(types.EventTypeEntityUpdated, key)
	}
	return entity, nil
}

// notifyStored announces the entity a settled queue load stored
func (m *Manager) notifyStored(ctx context.Context, b *bucket, w *waiter.Waiter[string]) {
	key, err := w.Wait(ctx)
	if err != nil || key == "" || !b.has(key) {
		return
	}
	m.notifier.Notify(types.EventTypeEntityUpdated, key)
}

// QueueEntity queues an entity for loading. It is a no-op when the entity
// already has a waiter.
func (m *Manager) QueueEntity(kind types.EntityType, id string) (bool, error) {
	b, err := m.bucket(kind)
	if err != nil {
		return false, err
	}

	w, created := b.waiters.GetOrCreate(id)
	if !created {
		return false, nil
	}
	if err := b.queue.Push(&loadJob{id: id, w: w}); err != nil {
		w.Resolve("")
		b.waiters.DeleteIf(id, w)
		return false, err
	}
	return true, nil
}

// AwaitQueue waits for the listed entities to settle, ignoring failures and
// ids without a waiter. With no list it waits for the whole queue to drain.
func (m *Manager) AwaitQueue(ctx context.Context, kind types.EntityType, ids []string) error {
	b, err := m.bucket(kind)
	if err != nil {
		return err
	}
	if ids != nil {
		return b.waiters.WaitSettled(ctx, ids)
	}
	return b.queue.Wait(ctx)
}

// QueueLen returns the number of queued loads for a type
func (m *Manager) QueueLen(kind types.EntityType) int {
	b, err := m.bucket(kind)
	if err != nil {
		return 0
	}
	return b.queue.Len()
}

// GetEntityList returns copies of the loaded entities keyed by full id. With
// a filter it loads each listed id and keeps the ones that resolved.
func (m *Manager) GetEntityList(ctx context.Context, kind types.EntityType, filter []string) (map[string]types.Entity, error) {
	b, err := m.bucket(kind)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		b.mutex.RLock()
		defer b.mutex.RUnlock()

		result := make(map[string]types.Entity, len(b.instances))
		for id, entity := range b.instances {
			result[id] = types.Entity(merge.CopyMap(entity))
		}
		return result, nil
	}

	result := make(map[string]types.Entity, len(filter))
	for _, id := range filter {
		entity, err := m.load(ctx, b, id, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if entity != nil {
			result[entity.FullID()] = entity
		}
	}
	return result, nil
}

// IDs returns the full ids of the loaded entities of a type, sorted
func (m *Manager) IDs(kind types.EntityType) []string {
	b, err := m.bucket(kind)
	if err != nil {
		return nil
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	ids := make([]string, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AltImage is one alt-image group together with the entity that owns it
type AltImage struct {
	Owner  string
	Alt    map[string]interface{}
	Entity types.Entity
}

// GetAltInfo resolves a pack>entityId>altId id to copies of the alt group and
// its owning entity, loading the entity when needed. nil means no such alt.
func (m *Manager) GetAltInfo(ctx context.Context, kind types.EntityType, altID string) (*AltImage, error) {
	b, err := m.bucket(kind)
	if err != nil {
		return nil, err
	}

	if info := b.alt(altID); info != nil {
		return info, nil
	}

	segments := types.SplitID(altID)
	if len(segments) < 3 {
		return nil, nil
	}
	if _, err := m.load(ctx, b, types.JoinID(segments[0], segments[1]), nil); err != nil {
		return nil, err
	}
	return b.alt(altID), nil
}

// Reset clears every bucket and drops queued loads
func (m *Manager) Reset(ctx context.Context) {
	for _, kind := range types.EntityTypes() {
		b := m.buckets[kind]

		b.mutex.Lock()
		b.gen++
		b.instances = make(map[string]types.Entity)
		b.alts = make(map[string]string)
		b.mutex.Unlock()

		for _, j := range b.queue.Drain() {
			j.w.Resolve("")
		}
		for _, w := range b.waiters.Take() {
			if w.State() == waiter.StateInit {
				w.Resolve("")
			}
		}
	}
	m.logger.Info(ctx, "Entity manager reset")
}

// Close stops every queue worker
func (m *Manager) Close() {
	for _, b := range m.buckets {
		b.queue.Close()
	}
}

func (b *bucket) has(id string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	_, ok := b.instances[id]
	return ok
}

func (b *bucket) get(id string) types.Entity {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	entity, ok := b.instances[id]
	if !ok {
		return nil
	}
	return types.Entity(merge.CopyMap(entity))
}

func (b *bucket) alt(altID string) *AltImage {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	owner, ok := b.alts[altID]
	if !ok {
		return nil
	}
	entity, ok := b.instances[owner]
	if !ok {
		return nil
	}
	alt, ok := entity.ImageMap()[altID].(map[string]interface{})
	if !ok {
		return nil
	}
	return &AltImage{
		Owner:  owner,
		Alt:    merge.CopyMap(alt),
		Entity: types.Entity(merge.CopyMap(entity)),
	}
}
