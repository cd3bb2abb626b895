package definitions

// FranchiseID is the id of the built-in franchise definition
const FranchiseID = "franchise"

// Builtins returns the definitions registered at start and after every reset.
// Each call returns fresh maps.
func Builtins() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id":         FranchiseID,
			"namespace":  false,
			"folder":     "franchises",
			"merge":      "auto",
			"discover":   "franchises",
			"entityProp": "franchise",
			"list":       true,
			"fields": map[string]interface{}{
				"name":  "string",
				"icon":  "svg|image",
				"color": "string",
			},
		},
	}
}
