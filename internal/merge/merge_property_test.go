//go:build property

package merge

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// TestMergeProperties validates the documented deep-merge policy
func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("array length is the sum of both sides", prop.ForAll(
		func(a, b []string) bool {
			merged := Deep(
				map[string]interface{}{"list": toAnySlice(a)},
				map[string]interface{}{"list": toAnySlice(b)},
			).(map[string]interface{})
			return len(merged["list"].([]interface{})) == len(a)+len(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("scalar overlay always wins", prop.ForAll(
		func(key, before, after string) bool {
			merged := Deep(
				map[string]interface{}{key: before},
				map[string]interface{}{key: after},
			).(map[string]interface{})
			return merged[key] == after
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("merging an empty overlay is a copy", prop.ForAll(
		func(keys []string) bool {
			base := map[string]interface{}{}
			for _, k := range keys {
				base[k] = map[string]interface{}{"v": k}
			}
			merged := Deep(base, map[string]interface{}{})
			return reflect.DeepEqual(base, merged)
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
