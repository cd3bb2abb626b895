package types

// Entity is one decoded JSON record with the reserved keys filled in by the
// loaders (id, pack, fullId, images, imageMap).
type Entity map[string]interface{}

// Reserved entity keys
const (
	KeyID       = "id"
	KeyPack     = "pack"
	KeyFullID   = "fullId"
	KeyType     = "type"
	KeyParent   = "parent"
	KeyImages   = "images"
	KeyImageMap = "imageMap"
	KeyGroups   = "groups"
	KeyMeta     = "meta"
	KeySizes    = "sizes"
	KeyImage    = "image"
	KeyCredits  = "credits"
	KeyAddons   = "addons"
)

// EntityKindAddon marks an entity that extends a parent.
const EntityKindAddon = "addon"

func (e Entity) str(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// ID returns the bare entity id
func (e Entity) ID() string { return e.str(KeyID) }

// Pack returns the id of the pack the entity was loaded from
func (e Entity) Pack() string { return e.str(KeyPack) }

// FullID returns pack>entityId
func (e Entity) FullID() string { return e.str(KeyFullID) }

// Kind returns the entity's declared type field (character, addon, ...)
func (e Entity) Kind() string { return e.str(KeyType) }

// Parent returns the parent reference of an addon
func (e Entity) Parent() string { return e.str(KeyParent) }

// IsAddon reports whether the entity extends a parent
func (e Entity) IsAddon() bool { return e.Kind() == EntityKindAddon }

// Images returns the alt-image groups
func (e Entity) Images() []interface{} {
	if v, ok := e[KeyImages].([]interface{}); ok {
		return v
	}
	return nil
}

// ImageMap returns the alt-image lookup keyed by fully qualified alt id
func (e Entity) ImageMap() map[string]interface{} {
	if v, ok := e[KeyImageMap].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// Meta returns the meta object, or nil
func (e Entity) Meta() map[string]interface{} {
	if v, ok := e[KeyMeta].(map[string]interface{}); ok {
		return v
	}
	return nil
}
