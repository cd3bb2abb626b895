package definitions

import (
	"context"

	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
)

type candidate struct {
	pack     string
	entityID string
}

// candidates lists the pack files that may hold an entity, in lookup order:
// the explicit pack, each contributing pack, then the first id segment read
// as a pack.
func candidates(def *types.Definition, segments []string, fromPack string) []candidate {
	id := types.JoinID(segments...)
	seen := make(map[candidate]struct{})
	var result []candidate
	add := func(pack, entityID string) {
		if pack == "" || entityID == "" {
			return
		}
		c := candidate{pack: pack, entityID: entityID}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}

	add(fromPack, id)
	for _, pack := range def.Packs {
		add(pack, id)
	}
	if len(segments) > 1 {
		add(segments[0], types.JoinID(segments[1:]...))
	}
	return result
}

// LoadDefinitionEntity resolves an entity of a definition. The first
// candidate file that exists wins; nil means no candidate resolved. The
// result is a copy of the merged entity current when the load finished.
func (r *Registry) LoadDefinitionEntity(ctx context.Context, definitionID string, segments []string, fromPack string) (types.Entity, error) {
	key := definitionID + "|" + fromPack + "|" + types.JoinID(segments...)

	w, created := r.resolving.GetOrCreate(key)
	if !created {
		entity, err := w.Wait(ctx)
		if err != nil || entity == nil {
			return nil, err
		}
		return types.Entity(merge.CopyMap(entity)), nil
	}

	w.Claim()
	entity, err := r.resolve(ctx, definitionID, segments, fromPack)
	if err != nil {
		w.Reject(err)
	} else {
		w.Resolve(entity)
	}
	r.resolving.DeleteIf(key, w)

	if entity == nil {
		return nil, err
	}
	return types.Entity(merge.CopyMap(entity)), nil
}

func (r *Registry) resolve(ctx context.Context, definitionID string, segments []string, fromPack string) (types.Entity, error) {
	def, err := r.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if r.settings == nil || r.settings.WorkFolder() == "" {
		return nil, nil
	}

	for _, c := range candidates(def, segments, fromPack) {
		key := fileKey(def.ID, c.pack, c.entityID)
		if slot, ok := r.loadedSlot(key); ok {
			return r.snapshot(def.ID, slot), nil
		}

		path := loader.EntityPath(r.settings.WorkFolder(), c.pack, def.Folder, c.entityID)
		if !r.loader.Exists(path) {
			continue
		}

		var slot string
		fw, created := r.files.GetOrCreate(key)
		if created && fw.Claim() {
			slot, _ = r.ingest(ctx, def, c.pack, c.entityID)
			fw.Resolve(slot)
			r.files.DeleteIf(key, fw)
		} else {
			if slot, err = fw.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if slot == "" {
			return nil, nil
		}
		return r.snapshot(def.ID, slot), nil
	}
	return nil, nil
}

func (r *Registry) loadedSlot(key string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	slot, ok := r.loaded[key]
	return slot, ok
}

func (r *Registry) snapshot(definitionID, slot string) types.Entity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entity, ok := r.entities[definitionID][slot]
	if !ok {
		return nil
	}
	return types.Entity(merge.CopyMap(entity))
}

// slotKey returns where a contribution is stored under the merge strategy
func slotKey(strategy types.MergeStrategy, pack, entityID string, entity types.Entity) string {
	switch strategy {
	case types.MergeAuto:
		return entityID
	case types.MergeParent:
		if parent := entity.Parent(); parent != "" {
			return parent
		}
		return entityID
	default:
		return types.JoinID(pack, entityID)
	}
}

// ingest reads one pack file and merges it into its slot. Read failures are
// handled here; the returned slot is empty when nothing was stored.
func (r *Registry) ingest(ctx context.Context, def *types.Definition, pack, entityID string) (string, bool) {
	r.mutex.RLock()
	gen := r.gen
	r.mutex.RUnlock()

	path := loader.EntityPath(r.settings.WorkFolder(), pack, def.Folder, entityID)
	raw, err := r.loader.LoadFile(path)
	if err != nil {
		r.handler.Handle(ctx, err)
		return "", false
	}

	slot := slotKey(def.Merge, pack, entityID, raw)
	contribution := qualify(def, pack, entityID, raw)
	contribution[types.KeyPack] = pack
	contribution[types.KeyFullID] = slot
	if slot == entityID || slot == types.JoinID(pack, entityID) {
		contribution[types.KeyID] = entityID
	} else {
		delete(contribution, types.KeyID)
	}

	r.mutex.Lock()
	if gen != r.gen {
		r.mutex.Unlock()
		return "", false
	}
	bucket, ok := r.entities[def.ID]
	if !ok {
		bucket = make(map[string]types.Entity)
		r.entities[def.ID] = bucket
	}
	if existing, ok := bucket[slot]; ok {
		merge.Into(existing, contribution)
	} else {
		if _, ok := contribution[types.KeyID]; !ok {
			contribution[types.KeyID] = slot
		}
		bucket[slot] = contribution
	}
	r.loaded[fileKey(def.ID, pack, entityID)] = slot
	r.mutex.Unlock()

	r.logger.Debug(ctx, "Merged definition entity", "definition", def.ID, "pack", pack, "id", entityID, "slot", slot)
	r.notifier.Notify(types.EventTypeEntityUpdated, UpdatedEntity{Definition: def.ID, ID: slot})
	return slot, true
}

// qualify copies raw, rewriting bare file names in file-like fields to
// pack>entityId>file references.
func qualify(def *types.Definition, pack, entityID string, raw types.Entity) types.Entity {
	result := types.Entity(merge.CopyMap(raw))
	for name, field := range def.Fields {
		if !field.Type.IsFileLike() {
			continue
		}
		if value, ok := result[name]; ok {
			result[name] = qualifyValue(pack, entityID, value)
		}
	}
	return result
}

func qualifyValue(pack, entityID string, value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if v == "" || types.IsQualified(v) {
			return v
		}
		return types.JoinID(pack, entityID, v)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = qualifyValue(pack, entityID, item)
		}
		return result
	default:
		return value
	}
}
