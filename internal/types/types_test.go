package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		spec     string
		expected string
		fileLike bool
		wantErr  bool
	}{
		{spec: "string", expected: "string"},
		{spec: "", expected: "string"},
		{spec: "image", expected: "image", fileLike: true},
		{spec: "image|svg", expected: "image|svg", fileLike: true},
		{spec: "image,svg", expected: "image|svg", fileLike: true},
		{spec: "string|json", expected: "string|json", fileLike: true},
		{spec: "object", expected: "object"},
		{spec: "video", expected: "string", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			ft, err := ParseFieldType(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, ft.String())
			assert.Equal(t, tt.fileLike, ft.IsFileLike())
		})
	}
}

func TestFieldType_AlternativesPreserveOrder(t *testing.T) {
	ft, err := ParseFieldType("svg|image")
	require.NoError(t, err)

	alts := ft.Alternatives()
	require.Len(t, alts, 2)
	assert.Equal(t, KindSVG, alts[0].Kind)
	assert.Equal(t, KindImage, alts[1].Kind)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "demo>hero>alt1", JoinID("demo", "hero", "alt1"))
	assert.Equal(t, "demo>hero", JoinID("demo", "", "hero"))
	assert.Equal(t, []string{"demo", "hero", "alt1", "0"}, SplitID("demo>hero>alt1>0"))
	assert.Nil(t, SplitID(""))
	assert.True(t, IsQualified("demo>hero"))
	assert.False(t, IsQualified("hero"))
}

func TestParseEntityType(t *testing.T) {
	et, err := ParseEntityType("stages")
	require.NoError(t, err)
	assert.Equal(t, EntityTypeStages, et)

	_, err = ParseEntityType("vehicles")
	assert.Error(t, err)
}

func TestDefinition_CloneIsIndependent(t *testing.T) {
	ft, _ := ParseFieldType("image|svg")
	def := &Definition{
		ID:     "franchise",
		Packs:  []string{"demo"},
		Fields: map[string]*Field{"icon": {Name: "icon", Type: ft}},
	}

	clone := def.Clone()
	clone.Packs = append(clone.Packs, "other")
	clone.Fields["icon"].Name = "changed"

	assert.Equal(t, []string{"demo"}, def.Packs)
	assert.Equal(t, "icon", def.Fields["icon"].Name)
	assert.True(t, clone.HasPack("other"))
	assert.Equal(t, "franchise", clone.BareID())
}

func TestEntityAccessors(t *testing.T) {
	e := Entity{
		KeyID:     "hero",
		KeyPack:   "demo",
		KeyFullID: "demo>hero",
		KeyType:   "addon",
		KeyParent: "demo>base",
		KeyMeta:   map[string]interface{}{"series": "x"},
	}

	assert.Equal(t, "hero", e.ID())
	assert.Equal(t, "demo", e.Pack())
	assert.Equal(t, "demo>hero", e.FullID())
	assert.True(t, e.IsAddon())
	assert.Equal(t, "demo>base", e.Parent())
	assert.Equal(t, "x", e.Meta()["series"])
	assert.Nil(t, e.Images())
}
