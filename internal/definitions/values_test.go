package definitions

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/testutils"
	"github.com/conneroisu/charoster/internal/types"
)

const validSVG = `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"><rect width="4" height="4"/></svg>`

func TestGetDefinitionEntityValue(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Entity("a", "franchises", "mario", map[string]interface{}{
			"name": "Mario",
			"icon": "icon.svg",
			"meta": map[string]interface{}{"color": "#ff0000"},
		}).
		Asset("a", "franchises", "mario", "icon.svg", []byte(validSVG)).
		Entity("a", "franchises", "kirby", map[string]interface{}{"icon": "logo.png"}).
		Asset("a", "franchises", "kirby", "logo.png", testutils.PNG(t, 2, 2, color.White)).
		Entity("a", "franchises", "ghost", map[string]interface{}{"icon": "missing.svg"}).
		Entity("a", "franchises", "multi", map[string]interface{}{"icon": []interface{}{"icon.svg", "missing.png"}}).
		Asset("a", "franchises", "multi", "icon.svg", []byte(validSVG))
	f := newFixture(t, tree)
	ctx := testContext(t)

	t.Run("string field", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "mario"}, "name", "")
		require.NoError(t, err)
		assert.Equal(t, "Mario", value)
	})

	t.Run("meta fallback", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "mario"}, "color", "")
		require.NoError(t, err)
		assert.Equal(t, "#ff0000", value)
	})

	t.Run("svg asset", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "mario"}, "icon", "")
		require.NoError(t, err)
		asset, ok := value.(*types.Asset)
		require.True(t, ok)
		assert.Equal(t, "svg", asset.Type)
		assert.Equal(t, "a>mario>icon.svg", asset.FullID)
		assert.Equal(t, "/work/packs/a/franchises/mario/icon.svg", asset.File)
		assert.Equal(t, validSVG, asset.Content)
	})

	t.Run("falls through to image", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "kirby"}, "icon", "")
		require.NoError(t, err)
		asset, ok := value.(*types.Asset)
		require.True(t, ok)
		assert.Equal(t, "image", asset.Type)
		assert.Equal(t, "a>kirby>logo.png", asset.FullID)
	})

	t.Run("missing asset is nil", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "ghost"}, "icon", "")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("arrays are processed element-wise", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "multi"}, "icon", "")
		require.NoError(t, err)
		list, ok := value.([]interface{})
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.IsType(t, &types.Asset{}, list[0])
		assert.Nil(t, list[1])
	})

	t.Run("unknown entity", func(t *testing.T) {
		value, err := f.registry.GetDefinitionEntityValue(ctx, FranchiseID, []string{"a", "nobody"}, "name", "")
		require.NoError(t, err)
		assert.Nil(t, value)
	})
}

func TestGetDefinitionEntityValue_JSONField(t *testing.T) {
	tree := testutils.NewPackTree(t).
		Entity("a", "stats", "hero", map[string]interface{}{"table": "table.json"}).
		JSON("packs/a/stats/hero/table.json", map[string]interface{}{"hp": 10.0})
	f := newFixture(t, tree)
	ctx := testContext(t)

	id, err := f.registry.RegisterDefinition(ctx, "a", map[string]interface{}{
		"id": "stat", "folder": "stats", "fields": map[string]interface{}{"table": "json"},
	})
	require.NoError(t, err)
	require.NoError(t, f.registry.AwaitQueue(ctx))

	entity, err := f.registry.LoadDefinitionEntity(ctx, id, []string{"hero"}, "a")
	require.NoError(t, err)
	assert.Equal(t, "a>hero>table.json", entity["table"])

	value, err := f.registry.GetDefinitionEntityValue(ctx, id, []string{"hero"}, "table", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"hp": 10.0}, value)
}

func TestValidateSVG(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: validSVG},
		{name: "no prolog", input: `<svg><g/></svg>`},
		{name: "wrong root", input: `<html><svg/></html>`, wantErr: true},
		{name: "unclosed", input: `<svg><g></svg>`, wantErr: true},
		{name: "empty", input: ``, wantErr: true},
		{name: "binary", input: "\x89PNG\r\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSVG([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec(map[string]interface{}{
		"id":       "weapon",
		"discover": true,
		"list":     false,
		"fields": map[string]interface{}{
			"icon":  "image,svg",
			"sound": "mp3",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "weapons", spec.discoverKey("weapons"))
	require.NotNil(t, spec.List)
	assert.False(t, *spec.List)
	assert.Equal(t, types.KindOneOf, spec.Fields["icon"].Type.Kind)
	assert.Equal(t, types.KindString, spec.Fields["sound"].Type.Kind)
	assert.Len(t, spec.Warnings, 1)

	_, err = ParseSpec(map[string]interface{}{"id": "a>b"})
	assert.Error(t, err)
}
