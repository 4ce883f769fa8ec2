package schema

// makeOptionalNullable rewrites the tree so every property not listed in its
// owner's required array accepts null, and returns the number of properties
// it changed. Already-nullable properties are left alone, so re-running the
// transform is a no-op.
func makeOptionalNullable(node map[string]any) int {
	if node == nil {
		return 0
	}

	changes := 0

	if props, ok := asMap(node["properties"]); ok {
		required := stringSet(node["required"])
		for name, prop := range props {
			propNode, ok := asMap(prop)
			if !ok {
				continue
			}
			if !required[name] && nullify(propNode) {
				changes++
			}
			changes += makeOptionalNullable(propNode)
		}
	}

	for _, key := range []string{"items", "additionalProperties"} {
		if child, ok := asMap(node[key]); ok {
			changes += makeOptionalNullable(child)
		}
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if variants, ok := asSlice(node[key]); ok {
			for _, v := range variants {
				if child, ok := asMap(v); ok {
					changes += makeOptionalNullable(child)
				}
			}
		}
	}

	for _, key := range []string{"$defs", "definitions"} {
		if defs, ok := asMap(node[key]); ok {
			for _, def := range defs {
				if child, ok := asMap(def); ok {
					changes += makeOptionalNullable(child)
				}
			}
		}
	}

	return changes
}

// nullify makes one property schema accept null and reports whether it
// changed anything. Schemas with neither a type nor a union are left as-is;
// an untyped schema already accepts null.
func nullify(prop map[string]any) bool {
	switch t := prop["type"].(type) {
	case string:
		if t == "null" {
			return false
		}
		prop["type"] = []any{t, "null"}
		return true

	case []any:
		for _, member := range t {
			if member == "null" {
				return false
			}
		}
		prop["type"] = append(t, "null")
		return true
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		variants, ok := asSlice(prop[key])
		if !ok {
			continue
		}
		for _, v := range variants {
			if child, ok := asMap(v); ok && child["type"] == "null" {
				return false
			}
		}
		prop[key] = append(variants, map[string]any{"type": "null"})
		return true
	}

	return false
}
