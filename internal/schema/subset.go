package schema

import "strings"

// subsetKeys is the allow-list of keywords the restricted dialect accepts.
// Everything else is stripped.
var subsetKeys = map[string]bool{
	"type":        true,
	"format":      true,
	"description": true,
	"nullable":    true,
	"enum":        true,
	"minItems":    true,
	"maxItems":    true,
	"properties":  true,
	"required":    true,
	"items":       true,
	"minimum":     true,
	"maximum":     true,
	"minLength":   true,
	"maxLength":   true,
	"pattern":     true,
	"anyOf":       true,
	"default":     true,
}

// subsetFormats allow-lists format values per base type. A format not
// listed for the node's type is dropped.
var subsetFormats = map[string]map[string]bool{
	"string":  {"date-time": true, "enum": true},
	"number":  {"float": true, "double": true},
	"integer": {"int32": true, "int64": true},
}

// subsetTransformer rewrites a schema tree into the restricted dialect,
// counting every structural change it makes. The root is kept for resolving
// local $ref pointers against $defs/definitions.
type subsetTransformer struct {
	root    map[string]any
	changes int
}

func newSubsetTransformer(root map[string]any) *subsetTransformer {
	return &subsetTransformer{root: root}
}

// genericObject is the placeholder emitted for unresolved or cyclic $refs.
func genericObject() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "Object with unspecified structure",
	}
}

// transform rewrites one node in place and returns it. visited holds the
// $ref pointers on the current resolution path so reference cycles resolve
// to a placeholder instead of recursing forever.
func (t *subsetTransformer) transform(node map[string]any, visited map[string]bool) map[string]any {
	if node == nil {
		return nil
	}

	if ref, ok := node["$ref"].(string); ok {
		t.changes++
		if visited[ref] {
			return genericObject()
		}
		target := t.lookupRef(ref)
		if target == nil {
			return genericObject()
		}
		if visited == nil {
			visited = make(map[string]bool)
		}
		visited[ref] = true
		defer delete(visited, ref)

		resolved, _ := asMap(deepCopy(target))
		return t.transform(resolved, visited)
	}

	t.mergeAllOf(node, visited)
	t.demoteOneOf(node)
	t.flattenTypeArray(node)
	t.inclusiveBounds(node)

	if props, ok := asMap(node["properties"]); ok {
		for name, prop := range props {
			if child, ok := asMap(prop); ok {
				props[name] = t.transform(child, visited)
			}
		}
	}

	switch items := node["items"].(type) {
	case map[string]any:
		node["items"] = t.transform(items, visited)
	case []any:
		// Tuple-style items are not expressible; keep the first member's
		// shape for the whole array.
		t.changes++
		if len(items) > 0 {
			if child, ok := asMap(items[0]); ok {
				node["items"] = t.transform(child, visited)
			} else {
				delete(node, "items")
			}
		} else {
			delete(node, "items")
		}
	}

	if variants, ok := asSlice(node["anyOf"]); ok {
		for i, v := range variants {
			if child, ok := asMap(v); ok {
				variants[i] = t.transform(child, visited)
			}
		}
	}

	t.restrictFormat(node)
	t.stripDisallowed(node)
	t.validateRequired(node)

	return node
}

// lookupRef resolves a local JSON pointer against the root document.
func (t *subsetTransformer) lookupRef(ref string) map[string]any {
	path, ok := strings.CutPrefix(ref, "#/")
	if !ok {
		return nil
	}

	var current any = t.root
	for _, part := range strings.Split(path, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		m, ok := asMap(current)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}

	target, _ := asMap(current)
	return target
}

// mergeAllOf folds every allOf member into the owning node: properties and
// required are unioned, scalar keywords fill in only where the node has no
// value of its own.
func (t *subsetTransformer) mergeAllOf(node map[string]any, visited map[string]bool) {
	members, ok := asSlice(node["allOf"])
	if !ok {
		return
	}
	delete(node, "allOf")
	t.changes++

	for _, m := range members {
		member, ok := asMap(m)
		if !ok {
			continue
		}
		member = t.transform(member, visited)

		if memberProps, ok := asMap(member["properties"]); ok {
			props, ok := asMap(node["properties"])
			if !ok {
				props = make(map[string]any)
				node["properties"] = props
			}
			for name, prop := range memberProps {
				if _, exists := props[name]; !exists {
					props[name] = prop
				}
			}
		}

		if memberReq, ok := asSlice(member["required"]); ok {
			existing := stringSet(node["required"])
			req, _ := asSlice(node["required"])
			for _, name := range memberReq {
				if s, ok := name.(string); ok && !existing[s] {
					req = append(req, s)
					existing[s] = true
				}
			}
			node["required"] = req
		}

		for key, value := range member {
			if key == "properties" || key == "required" {
				continue
			}
			if _, exists := node[key]; !exists {
				node[key] = value
			}
		}
	}
}

// demoteOneOf rewrites oneOf into anyOf; the restricted dialect has no
// exclusive-match construct.
func (t *subsetTransformer) demoteOneOf(node map[string]any) {
	variants, ok := asSlice(node["oneOf"])
	if !ok {
		return
	}
	delete(node, "oneOf")
	t.changes++

	if existing, ok := asSlice(node["anyOf"]); ok {
		node["anyOf"] = append(existing, variants...)
	} else {
		node["anyOf"] = variants
	}
}

// flattenTypeArray rewrites a type array into a single type plus a nullable
// flag, or an anyOf of the non-null types when several remain.
func (t *subsetTransformer) flattenTypeArray(node map[string]any) {
	types, ok := asSlice(node["type"])
	if !ok {
		return
	}
	t.changes++

	var nonNull []string
	hadNull := false
	for _, member := range types {
		s, ok := member.(string)
		if !ok {
			continue
		}
		if s == "null" {
			hadNull = true
		} else {
			nonNull = append(nonNull, s)
		}
	}
	if hadNull {
		node["nullable"] = true
	}

	switch len(nonNull) {
	case 0:
		delete(node, "type")
	case 1:
		node["type"] = nonNull[0]
	default:
		delete(node, "type")
		variants, _ := asSlice(node["anyOf"])
		for _, typ := range nonNull {
			variants = append(variants, map[string]any{"type": typ})
		}
		node["anyOf"] = variants
	}
}

// inclusiveBounds converts exclusive bounds into inclusive ones. Integer
// schemas shift by one unit; everything else by a small epsilon.
func (t *subsetTransformer) inclusiveBounds(node map[string]any) {
	step := 1e-6
	if node["type"] == "integer" {
		step = 1
	}

	if v, ok := node["exclusiveMinimum"]; ok {
		delete(node, "exclusiveMinimum")
		t.changes++
		switch bound := v.(type) {
		case float64:
			node["minimum"] = bound + step
		case bool:
			// Draft-4 form: the flag qualifies an existing minimum.
			if min, ok := node["minimum"].(float64); ok && bound {
				node["minimum"] = min + step
			}
		}
	}

	if v, ok := node["exclusiveMaximum"]; ok {
		delete(node, "exclusiveMaximum")
		t.changes++
		switch bound := v.(type) {
		case float64:
			node["maximum"] = bound - step
		case bool:
			if max, ok := node["maximum"].(float64); ok && bound {
				node["maximum"] = max - step
			}
		}
	}
}

// restrictFormat drops format values the dialect does not accept for the
// node's base type.
func (t *subsetTransformer) restrictFormat(node map[string]any) {
	format, ok := node["format"].(string)
	if !ok {
		return
	}
	typ, _ := node["type"].(string)
	if allowed := subsetFormats[typ]; allowed[format] {
		return
	}
	delete(node, "format")
	t.changes++
}

// stripDisallowed removes every keyword not on the allow-list.
func (t *subsetTransformer) stripDisallowed(node map[string]any) {
	for key := range node {
		if !subsetKeys[key] {
			delete(node, key)
			t.changes++
		}
	}
}

// validateRequired drops required names that do not exist in properties, so
// the emitted required list is always consistent with the emitted shape.
func (t *subsetTransformer) validateRequired(node map[string]any) {
	required, ok := asSlice(node["required"])
	if !ok {
		return
	}

	props, _ := asMap(node["properties"])
	kept := make([]any, 0, len(required))
	for _, name := range required {
		s, ok := name.(string)
		if !ok {
			t.changes++
			continue
		}
		if _, exists := props[s]; exists {
			kept = append(kept, s)
		} else {
			t.changes++
		}
	}

	if len(kept) == 0 {
		delete(node, "required")
		return
	}
	node["required"] = kept
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, member := range val {
			out[k] = deepCopy(member)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, member := range val {
			out[i] = deepCopy(member)
		}
		return out
	default:
		return v
	}
}
