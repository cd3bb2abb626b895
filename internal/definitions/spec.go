package definitions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
)

// Spec is a parsed definition declaration as found in a pack manifest or in
// the built-in table.
type Spec struct {
	ID              string
	Namespace       string
	NoNamespace     bool
	Folder          string
	Merge           types.MergeStrategy
	MergeSet        bool
	Discover        string
	DiscoverFolder  bool
	EntityProp      string
	List            *bool
	Fields          map[string]*types.Field
	Declared        map[string]FieldDecl
	Default         string
	DefaultPriority float64

	// Warnings holds problems that did not prevent registration
	Warnings []error
}

// FieldDecl records which parts of a field a spec spelled out
type FieldDecl struct {
	Typed bool
	Named bool
}

// ParseSpec decodes a raw definition declaration.
//
//	{"id": "franchise", "namespace": false, "folder": "franchises",
//	 "merge": "auto", "discover": true, "entityProp": "franchise",
//	 "list": true, "fields": {"icon": "svg|image", "name": {"type": "string"}},
//	 "default": "mario", "defaultPriority": 1}
func ParseSpec(raw map[string]interface{}) (*Spec, error) {
	spec := &Spec{Fields: make(map[string]*types.Field), Declared: make(map[string]FieldDecl)}

	id, _ := raw["id"].(string)
	spec.ID = strings.TrimSpace(id)
	if spec.ID == "" {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "definition has no id")
	}
	if strings.Contains(spec.ID, types.IDSeparator) {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("definition id %q contains %q", spec.ID, types.IDSeparator))
	}

	switch ns := raw["namespace"].(type) {
	case bool:
		spec.NoNamespace = !ns
	case string:
		spec.Namespace = ns
	}

	spec.Folder, _ = raw["folder"].(string)

	if m, ok := raw["merge"].(string); ok {
		strategy, err := types.ParseMergeStrategy(m)
		if err != nil {
			return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid merge strategy")
		}
		spec.Merge = strategy
		spec.MergeSet = true
	}

	switch d := raw["discover"].(type) {
	case bool:
		spec.DiscoverFolder = d
	case string:
		spec.Discover = d
	}

	spec.EntityProp, _ = raw["entityProp"].(string)
	if list, ok := raw["list"].(bool); ok {
		spec.List = &list
	}

	if fields, ok := raw["fields"].(map[string]interface{}); ok {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			field, decl, err := parseField(name, fields[name])
			if err != nil {
				spec.Warnings = append(spec.Warnings, err)
			}
			spec.Fields[name] = field
			spec.Declared[name] = decl
		}
	}

	spec.Default, _ = raw["default"].(string)
	switch p := raw["defaultPriority"].(type) {
	case float64:
		spec.DefaultPriority = p
	case int:
		spec.DefaultPriority = float64(p)
	}

	return spec, nil
}

func parseField(name string, raw interface{}) (*types.Field, FieldDecl, error) {
	field := &types.Field{Name: name}
	var decl FieldDecl

	var typeSpec string
	switch v := raw.(type) {
	case string:
		typeSpec = v
	case map[string]interface{}:
		typeSpec, _ = v["type"].(string)
		if display, ok := v["name"].(string); ok && display != "" {
			field.Name = display
			decl.Named = true
		}
		field.EntityProp, _ = v["entityProp"].(string)
	}
	decl.Typed = typeSpec != ""

	fieldType, err := types.ParseFieldType(typeSpec)
	field.Type = fieldType
	if err != nil {
		return field, decl, errors.WrapValidation(err, errors.ErrCodeValidationFailed,
			fmt.Sprintf("field %q falls back to string", name))
	}
	return field, decl, nil
}

// QualifiedID returns the registered id: the bare id when the namespace is
// disabled or nothing supplies one, otherwise namespace:id. An explicit
// namespace wins over the registering pack.
func (s *Spec) QualifiedID(packID string) string {
	if s.NoNamespace {
		return s.ID
	}
	namespace := s.Namespace
	if namespace == "" {
		namespace = packID
	}
	if namespace == "" {
		return s.ID
	}
	return namespace + ":" + s.ID
}

// discoverKey returns the manifest key that triggers discovery, if any. A
// discover flag of true uses the definition's folder name.
func (s *Spec) discoverKey(folder string) string {
	if s.Discover != "" {
		return s.Discover
	}
	if s.DiscoverFolder {
		return folder
	}
	return ""
}
