package entities

import (
	"context"
	"fmt"
	"strconv"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/waiter"
)

// run performs the load for a claimed waiter and settles it. Parse failures
// and rejected parents drop the waiter so a later request retries.
func (m *Manager) run(ctx context.Context, b *bucket, id string, w *waiter.Waiter[string], chain []string) {
	key, err := m.read(ctx, b, id, append(chain, id))
	switch {
	case err != nil:
		m.handler.Handle(ctx, err)
		if errors.IsParseError(err) {
			w.Resolve("")
		} else {
			w.Reject(err)
		}
		b.waiters.DeleteIf(id, w)
	default:
		w.Resolve(key)
	}
}

// read loads one entity file and stores it, returning the id it is stored
// under. Missing files yield an empty id and no error.
func (m *Manager) read(ctx context.Context, b *bucket, id string, chain []string) (string, error) {
	segments := types.SplitID(id)
	if len(segments) < 2 || m.settings == nil || m.settings.WorkFolder() == "" {
		return "", nil
	}
	pack, entityID := segments[0], types.JoinID(segments[1:]...)

	b.mutex.RLock()
	gen := b.gen
	b.mutex.RUnlock()

	path := loader.EntityPath(m.settings.WorkFolder(), pack, string(b.kind), entityID)
	raw, err := m.loader.LoadFile(path)
	if err != nil {
		if errors.IsNotFound(err) {
			m.handler.Handle(ctx, err)
			return "", nil
		}
		if ce, ok := err.(*errors.CharosterError); ok {
			ce.WithEntity(id)
		}
		return "", err
	}

	entity := m.normalize(pack, entityID, raw)
	if !entity.IsAddon() {
		if !b.store(gen, entity) {
			return "", nil
		}
		m.logger.Debug(ctx, "Loaded entity", "type", b.kind, "id", id)
		return id, nil
	}

	parentID := entity.Parent()
	if parentID != "" && !types.IsQualified(parentID) {
		parentID = types.JoinID(pack, parentID)
	}
	if parentID == "" {
		return "", errors.NewValidationError(errors.ErrCodeValidationFailed, "addon has no parent").WithEntity(id)
	}
	for _, seen := range chain {
		if seen == parentID {
			return "", errors.NewValidationError(errors.ErrCodeParentRejected,
				fmt.Sprintf("addon parent %s loops back", parentID)).WithEntity(id)
		}
	}

	parent, err := m.load(ctx, b, parentID, chain)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeParentRejected,
			"addon parent failed to load").WithEntity(id)
	}
	if parent == nil {
		m.logger.Debug(ctx, "Addon parent not found", "type", b.kind, "id", id, "parent", parentID)
		return "", nil
	}

	if !b.attach(gen, parent.FullID(), entity, m.arrayable()) {
		return "", nil
	}
	m.logger.Debug(ctx, "Composed addon into parent", "type", b.kind, "id", id, "parent", parent.FullID())
	m.notifier.Notify(types.EventTypeEntityUpdated, parent.FullID())
	return parent.FullID(), nil
}

func (m *Manager) arrayable() []string {
	if m.fields == nil {
		return nil
	}
	return m.fields.ArrayableFields()
}

// normalize fills in the reserved keys: id, pack, fullId, the alt groups'
// fullIds, pack-qualified image references, imageMap, and list-valued
// arrayable fields.
func (m *Manager) normalize(pack, entityID string, raw types.Entity) types.Entity {
	entity := types.Entity(merge.CopyMap(raw))
	fullID := types.JoinID(pack, entityID)

	entity[types.KeyID] = entityID
	entity[types.KeyPack] = pack
	entity[types.KeyFullID] = fullID

	for _, prop := range m.arrayable() {
		if value, ok := entity[prop]; ok {
			entity[prop] = merge.AsList(value)
		}
	}

	images := merge.AsList(entity[types.KeyImages])
	imageMap := make(map[string]interface{}, len(images))
	normalized := make([]interface{}, 0, len(images))
	for i, item := range images {
		alt, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		altID, _ := alt[types.KeyID].(string)
		if altID == "" {
			altID = strconv.Itoa(i)
			alt[types.KeyID] = altID
		}
		alt[types.KeyFullID] = types.JoinID(fullID, altID)
		alt[types.KeyImages] = qualifyImages(pack, entityID, merge.AsList(alt[types.KeyImages]))

		normalized = append(normalized, alt)
		imageMap[types.JoinID(fullID, altID)] = merge.Copy(alt)
	}
	entity[types.KeyImages] = normalized
	entity[types.KeyImageMap] = imageMap
	return entity
}

func qualifyImages(pack, entityID string, images []interface{}) []interface{} {
	result := make([]interface{}, len(images))
	for i, item := range images {
		switch v := item.(type) {
		case string:
			result[i] = qualifyRef(pack, entityID, v)
		case map[string]interface{}:
			if ref, ok := v[types.KeyImage].(string); ok {
				v[types.KeyImage] = qualifyRef(pack, entityID, ref)
			}
			result[i] = v
		default:
			result[i] = item
		}
	}
	return result
}

func qualifyRef(pack, entityID, ref string) string {
	if ref == "" || types.IsQualified(ref) {
		return ref
	}
	return types.JoinID(pack, entityID, ref)
}

// store records a non-addon entity. It refuses writes from before a reset.
func (b *bucket) store(gen uint64, entity types.Entity) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if gen != b.gen {
		return false
	}
	id := entity.FullID()
	if previous, ok := b.instances[id]; ok {
		for altID := range previous.ImageMap() {
			delete(b.alts, altID)
		}
	}
	b.instances[id] = entity
	for altID := range entity.ImageMap() {
		b.alts[altID] = id
	}
	return true
}

// attach merges an addon into its stored parent in place: alt groups are
// appended under the parent's id, groups and meta deep-merge, and arrayable
// fields concatenate.
func (b *bucket) attach(gen uint64, parentID string, addon types.Entity, arrayable []string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if gen != b.gen {
		return false
	}
	parent, ok := b.instances[parentID]
	if !ok {
		return false
	}

	imageMap := parent.ImageMap()
	if imageMap == nil {
		imageMap = make(map[string]interface{})
		parent[types.KeyImageMap] = imageMap
	}
	images := parent.Images()
	for _, item := range addon.Images() {
		alt := merge.CopyMap(item.(map[string]interface{}))
		altID, _ := alt[types.KeyID].(string)
		fullAltID := types.JoinID(parentID, altID)
		if _, taken := imageMap[fullAltID]; taken {
			altID = addon.ID() + "-" + altID
			alt[types.KeyID] = altID
			fullAltID = types.JoinID(parentID, altID)
		}
		alt[types.KeyFullID] = fullAltID

		images = append(images, alt)
		imageMap[fullAltID] = merge.Copy(alt)
		b.alts[fullAltID] = parentID
	}
	parent[types.KeyImages] = images

	for _, key := range []string{types.KeyGroups, types.KeyMeta} {
		if value, ok := addon[key]; ok {
			parent[key] = merge.Deep(parent[key], value)
		}
	}
	for _, prop := range arrayable {
		if value, ok := addon[prop]; ok {
			parent[prop] = merge.Concat(parent[prop], value)
		}
	}
	parent[types.KeyAddons] = merge.Concat(parent[types.KeyAddons], addon.FullID())
	return true
}
