package types

import (
	"fmt"
	"sort"
	"strings"
)

// MergeStrategy controls how entities of one definition contributed by
// several packs are combined.
type MergeStrategy string

const (
	// MergeNone keeps one slot per pack>entityId.
	MergeNone MergeStrategy = "none"
	// MergeAuto deep-merges every pack's copy into one slot per bare entityId.
	MergeAuto MergeStrategy = "auto"
	// MergeParent merges into the slot named by the entity's parent field,
	// behaving like MergeAuto when there is none.
	MergeParent MergeStrategy = "parent"
)

// ParseMergeStrategy validates a merge strategy, defaulting to none.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "", MergeNone:
		return MergeNone, nil
	case MergeAuto:
		return MergeAuto, nil
	case MergeParent:
		return MergeParent, nil
	default:
		return MergeNone, fmt.Errorf("unknown merge strategy %q", s)
	}
}

// Field describes one typed field of a definition.
type Field struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	EntityProp string    `json:"entityProp,omitempty"`
}

// Definition is a schema for a category of cross-pack entities.
type Definition struct {
	ID              string            `json:"id"`
	Namespace       string            `json:"namespace,omitempty"`
	Folder          string            `json:"folder"`
	Merge           MergeStrategy     `json:"merge"`
	Discover        string            `json:"discover,omitempty"`
	EntityProp      string            `json:"entityProp,omitempty"`
	List            bool              `json:"list,omitempty"`
	Fields          map[string]*Field `json:"fields"`
	Packs           []string          `json:"packs"`
	Default         string            `json:"default,omitempty"`
	DefaultPriority float64           `json:"defaultPriority"`
}

// BareID returns the id without its namespace prefix
func (d *Definition) BareID() string {
	if i := strings.LastIndex(d.ID, ":"); i >= 0 {
		return d.ID[i+1:]
	}
	return d.ID
}

// Field returns the named field, if declared
func (d *Definition) Field(name string) (*Field, bool) {
	f, ok := d.Fields[name]
	return f, ok
}

// FieldNames returns declared field names sorted
func (d *Definition) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPack reports whether pack contributed to the definition
func (d *Definition) HasPack(pack string) bool {
	for _, p := range d.Packs {
		if p == pack {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Packs = append([]string(nil), d.Packs...)
	clone.Fields = make(map[string]*Field, len(d.Fields))
	for name, field := range d.Fields {
		f := *field
		f.Type = field.Type.clone()
		clone.Fields[name] = &f
	}
	return &clone
}
