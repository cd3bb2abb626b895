package definitions

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/merge"
	"github.com/conneroisu/charoster/internal/types"
)

// GetDefinitionEntityValue resolves an entity and returns one of its fields
// processed by the field's declared type. Fields missing on the entity are
// looked up in its meta object. Values that cannot be processed come back nil.
func (r *Registry) GetDefinitionEntityValue(ctx context.Context, definitionID string, segments []string, field, fromPack string) (interface{}, error) {
	entity, err := r.LoadDefinitionEntity(ctx, definitionID, segments, fromPack)
	if err != nil || entity == nil {
		return nil, err
	}

	value, ok := entity[field]
	if !ok {
		value, ok = entity.Meta()[field]
	}
	if !ok || value == nil {
		return nil, nil
	}

	def, err := r.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	f, declared := def.Field(field)
	if !declared {
		return merge.Copy(value), nil
	}
	return r.processValue(ctx, def, f.Type, value), nil
}

func (r *Registry) processValue(ctx context.Context, def *types.Definition, fieldType types.FieldType, value interface{}) interface{} {
	if list, ok := value.([]interface{}); ok {
		result := make([]interface{}, len(list))
		for i, item := range list {
			result[i] = r.processValue(ctx, def, fieldType, item)
		}
		return result
	}

	for _, alt := range fieldType.Alternatives() {
		if processed := r.processScalar(ctx, def, alt.Kind, value); processed != nil {
			return processed
		}
	}
	return nil
}

func (r *Registry) processScalar(ctx context.Context, def *types.Definition, kind types.FieldKind, value interface{}) interface{} {
	switch kind {
	case types.KindImage, types.KindSVG, types.KindJSON:
	default:
		return merge.Copy(value)
	}

	ref, ok := value.(string)
	if !ok {
		return nil
	}
	path, ok := r.assetPath(def, ref)
	if !ok {
		return nil
	}

	switch kind {
	case types.KindImage:
		if !r.loader.Exists(path) {
			return nil
		}
		return &types.Asset{Type: "image", File: path, FullID: ref}

	case types.KindSVG:
		data, err := r.loader.ReadFile(path)
		if err != nil {
			r.handler.Handle(ctx, err)
			return nil
		}
		if err := ValidateSVG(data); err != nil {
			r.handler.Handle(ctx, errors.WrapValidation(err, errors.ErrCodeInvalidSVG, "invalid svg").WithPath(path))
			return nil
		}
		return &types.Asset{Type: "svg", File: path, FullID: ref, Content: string(data)}

	default:
		var doc interface{}
		if err := r.loader.ReadJSON(path, &doc); err != nil {
			r.handler.Handle(ctx, err)
			return nil
		}
		return doc
	}
}

// assetPath maps a pack>entityId>file reference to its file
func (r *Registry) assetPath(def *types.Definition, ref string) (string, bool) {
	segments := types.SplitID(ref)
	if len(segments) < 3 || r.settings == nil || r.settings.WorkFolder() == "" {
		return "", false
	}
	file := strings.Join(segments[2:], types.IDSeparator)
	return loader.AssetPath(r.settings.WorkFolder(), segments[0], def.Folder, segments[1], file), true
}

// ValidateSVG checks that data is well-formed XML whose root element is svg
func ValidateSVG(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true

	rootSeen := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if start, ok := token.(xml.StartElement); ok && !rootSeen {
			if start.Name.Local != "svg" {
				return fmt.Errorf("root element is %q, not svg", start.Name.Local)
			}
			rootSeen = true
		}
	}
	if !rootSeen {
		return fmt.Errorf("document has no svg element")
	}
	return nil
}
