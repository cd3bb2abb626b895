// Package merge implements the deep-merge rule used to compose entities and
// definitions contributed by several packs.
//
// Values are decoded JSON: map[string]interface{}, []interface{}, string,
// float64, bool and nil. The policy is:
//
//   - objects merge key by key, recursively
//   - arrays concatenate, base elements first
//   - any other overlay value replaces the base value
//   - a nil overlay leaves the base untouched
//
// Array concatenation means merging identical content twice duplicates list
// elements. Callers that must not grow lists guard against re-merging.
package merge

// Deep returns base merged with overlay. Neither input is modified and the
// result shares no containers with them.
func Deep(base, overlay interface{}) interface{} {
	if overlay == nil {
		return Copy(base)
	}

	switch o := overlay.(type) {
	case map[string]interface{}:
		b, ok := base.(map[string]interface{})
		if !ok {
			return Copy(o)
		}
		result := Copy(b).(map[string]interface{})
		Into(result, o)
		return result
	case []interface{}:
		b, ok := base.([]interface{})
		if !ok {
			return Copy(o)
		}
		result := make([]interface{}, 0, len(b)+len(o))
		for _, v := range b {
			result = append(result, Copy(v))
		}
		for _, v := range o {
			result = append(result, Copy(v))
		}
		return result
	default:
		return o
	}
}

// Into merges overlay into dst in place. Used on live cached entities.
func Into(dst, overlay map[string]interface{}) {
	for key, value := range overlay {
		if value == nil {
			if _, exists := dst[key]; !exists {
				dst[key] = nil
			}
			continue
		}
		existing, exists := dst[key]
		if !exists {
			dst[key] = Copy(value)
			continue
		}
		dst[key] = Deep(existing, value)
	}
}

// Copy returns a deep copy of a decoded JSON value.
func Copy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(t))
		for key, value := range t {
			result[key] = Copy(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(t))
		for i, value := range t {
			result[i] = Copy(value)
		}
		return result
	default:
		return t
	}
}

// CopyMap is Copy for the common object case. A nil map copies to nil.
func CopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return Copy(m).(map[string]interface{})
}

// AsList wraps a scalar in a one-element list. Lists pass through and nil
// becomes an empty list.
func AsList(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return []interface{}{}
	case []interface{}:
		return t
	default:
		return []interface{}{t}
	}
}

// Concat appends the elements of overlay to base, normalising both to lists.
func Concat(base, overlay interface{}) []interface{} {
	b := AsList(base)
	o := AsList(overlay)
	result := make([]interface{}, 0, len(b)+len(o))
	for _, v := range b {
		result = append(result, Copy(v))
	}
	for _, v := range o {
		result = append(result, Copy(v))
	}
	return result
}
