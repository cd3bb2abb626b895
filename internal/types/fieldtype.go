package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldKind is one primitive field type.
type FieldKind int

const (
	KindString FieldKind = iota
	KindJSON
	KindObject
	KindImage
	KindSVG
	KindOneOf
)

var kindNames = map[FieldKind]string{
	KindString: "string",
	KindJSON:   "json",
	KindObject: "object",
	KindImage:  "image",
	KindSVG:    "svg",
}

// FieldType is a parsed field type: a primitive, or an ordered OneOf.
type FieldType struct {
	Kind    FieldKind
	Options []FieldType
}

// ParseFieldType parses "image|svg" style specs. Both | and , separate
// alternatives.
func ParseFieldType(spec string) (FieldType, error) {
	parts := strings.FieldsFunc(spec, func(r rune) bool {
		return r == '|' || r == ','
	})
	if len(parts) == 0 {
		return FieldType{Kind: KindString}, nil
	}

	options := make([]FieldType, 0, len(parts))
	for _, part := range parts {
		kind, ok := parseKind(strings.TrimSpace(part))
		if !ok {
			return FieldType{Kind: KindString}, fmt.Errorf("unknown field type %q", part)
		}
		options = append(options, FieldType{Kind: kind})
	}

	if len(options) == 1 {
		return options[0], nil
	}
	return FieldType{Kind: KindOneOf, Options: options}, nil
}

func parseKind(name string) (FieldKind, bool) {
	for kind, kindName := range kindNames {
		if strings.EqualFold(name, kindName) {
			return kind, true
		}
	}
	return KindString, false
}

// Alternatives returns the types to try in order.
func (f FieldType) Alternatives() []FieldType {
	if f.Kind == KindOneOf {
		return f.Options
	}
	return []FieldType{f}
}

// IsFileLike reports whether values of this type name files in the pack.
func (f FieldType) IsFileLike() bool {
	for _, alt := range f.Alternatives() {
		switch alt.Kind {
		case KindImage, KindSVG, KindJSON:
			return true
		}
	}
	return false
}

// String renders the type back to its spec form
func (f FieldType) String() string {
	if f.Kind != KindOneOf {
		return kindNames[f.Kind]
	}
	names := make([]string, len(f.Options))
	for i, opt := range f.Options {
		names[i] = opt.String()
	}
	return strings.Join(names, "|")
}

// MarshalJSON encodes the type as its spec string
func (f FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// MarshalYAML encodes the type as its spec string
func (f FieldType) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (f FieldType) clone() FieldType {
	if len(f.Options) == 0 {
		return f
	}
	return FieldType{Kind: f.Kind, Options: append([]FieldType(nil), f.Options...)}
}
