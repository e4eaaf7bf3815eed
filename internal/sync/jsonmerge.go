// Package sync implements the shadow sync engine: the shadow document
// model, the persistent store, the request queue and merger, the retryer,
// the two sync strategies, and the top-level sync handler.
package sync

// Node is the in-memory representation of a JSON value used throughout the
// shadow document model. It follows Go's natural encoding/json convention
// for dynamic values:
//
//	object -> map[string]Node
//	array  -> []Node
//	string -> string
//	number -> float64
//	bool   -> bool
//	null   -> Node(nil), but ONLY when present as an explicit map value
//
// Go's map semantics already give us the explicit-null-vs-absent
// distinction JSON merge patch needs: a key present in the map with a nil
// value is an explicit JSON null; a key simply missing from the map is
// absent. Callers must use comma-ok map access (`v, ok := m[k]`) rather than
// a bare nil check to preserve that distinction.
type Node = any

const maxTreeDepth = 6

// depth returns the effective nesting depth of node, counting only object
// levels (arrays and scalars do not add depth). An empty object has depth 1.
func depth(node Node) int {
	obj, ok := node.(map[string]Node)
	if !ok {
		return 0
	}

	maxChild := 0

	for _, v := range obj {
		if d := depth(v); d > maxChild {
			maxChild = d
		}
	}

	return 1 + maxChild
}

// validateDepth enforces the depth <= 6 invariant on a
// state branch (desired or reported).
func validateDepth(node Node) error {
	if depth(node) > maxTreeDepth {
		return InvalidArguments("too many levels of nesting")
	}

	return nil
}

// merge applies patch to source following JSON merge patch field rules:
// source and patch must both be objects, or both be arrays. A nil (absent)
// source accepts an object or array patch as if it were empty; any other
// combination is rejected with ErrInvalidArguments.
func merge(source, patch Node) (Node, error) {
	patchObj, patchIsObj := patch.(map[string]Node)
	sourceObj, sourceIsObj := source.(map[string]Node)

	if patchIsObj && sourceIsObj {
		return mergeObjects(sourceObj, patchObj), nil
	}

	patchArr, patchIsArr := patch.([]Node)
	_, sourceIsArr := source.([]Node)

	if patchIsArr && sourceIsArr {
		// Arrays are atomic: source's elements are replaced wholesale.
		return append([]Node{}, patchArr...), nil
	}

	// Source absent (nil) and patch is an object: build a merge tree
	// (mergeObjects handles the null-collapse rule when given an empty
	// source).
	if source == nil && patchIsObj {
		return mergeObjects(map[string]Node{}, patchObj), nil
	}

	if source == nil && patchIsArr {
		return append([]Node{}, patchArr...), nil
	}

	return nil, InvalidArguments("merge: source and patch must both be objects or both be arrays")
}

// mergeObjects applies the merge patch per-field rules to build a new
// object from source and patch. source is not mutated; a new map is
// returned (documents are deep-copied before merge at the call site, so an
// in-place style would work too, but returning a fresh map keeps merge
// referentially transparent and easier to test in isolation).
func mergeObjects(source, patch map[string]Node) map[string]Node {
	result := make(map[string]Node, len(source))
	for k, v := range source {
		result[k] = v
	}

	for k, patchVal := range patch {
		sourceVal, hadSource := result[k]

		switch {
		case patchVal == nil:
			// patch[k] is null: remove k from source if present.
			delete(result, k)

		case !hadSource:
			// source[k] absent.
			if patchObj, ok := patchVal.(map[string]Node); ok {
				if tree, nonEmpty := buildMergeTree(patchObj); nonEmpty {
					result[k] = tree
				}
				// else: null-collapse — a subtree of all-null leaves
				// contributes nothing and is not inserted.
			} else {
				result[k] = patchVal
			}

		default:
			sourceObj, sourceIsObj := sourceVal.(map[string]Node)
			patchObj, patchIsObj := patchVal.(map[string]Node)

			if sourceIsObj && patchIsObj {
				result[k] = mergeObjects(sourceObj, patchObj)
			} else {
				result[k] = patchVal
			}
		}
	}

	return result
}

// buildMergeTree recursively constructs a brand-new subtree from patch,
// collapsing (dropping) any subtree consisting entirely of null leaves.
// Returns (tree, true) if the tree has at least one surviving leaf or
// non-collapsed child, or (nil, false) if the entire subtree collapsed.
func buildMergeTree(patch map[string]Node) (map[string]Node, bool) {
	result := make(map[string]Node, len(patch))

	for k, v := range patch {
		if v == nil {
			continue // null leaf: contributes nothing
		}

		if childObj, ok := v.(map[string]Node); ok {
			if tree, nonEmpty := buildMergeTree(childObj); nonEmpty {
				result[k] = tree
			}

			continue
		}

		result[k] = v
	}

	if len(result) == 0 {
		return nil, false
	}

	return result, true
}

// delta returns desired minus reported: the recursive diff such that
// merge(reported, delta(reported, desired)) reproduces desired (modulo
// explicit-null deletion markers).
func delta(reported, desired Node) Node {
	reportedObj, reportedIsObj := reported.(map[string]Node)
	desiredObj, desiredIsObj := desired.(map[string]Node)

	if reportedIsObj && desiredIsObj {
		return deltaObjects(reportedObj, desiredObj)
	}

	if numbersEqual(reported, desired) {
		return nil
	}

	if jsonEqual(reported, desired) {
		return nil
	}

	return desired
}

// deltaObjects implements the object-recursive branch of delta. Returns nil
// (no Node) when there is no difference at all.
func deltaObjects(reported, desired map[string]Node) Node {
	result := map[string]Node{}

	for k, desiredVal := range desired {
		reportedVal, had := reported[k]
		if !had {
			result[k] = desiredVal
			continue
		}

		if d := delta(reportedVal, desiredVal); d != nil {
			result[k] = d
		}
	}

	// A field present in reported but absent in desired appears as an
	// explicit null deletion marker.
	for k := range reported {
		if _, stillPresent := desired[k]; !stillPresent {
			result[k] = nil
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// numbersEqual reports whether a and b are both JSON numbers and equal
// under both an integer (asLong) and a floating-point (asDouble)
// comparison.
func numbersEqual(a, b Node) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)

	if !aok || !bok {
		return false
	}

	return af == bf && int64(af) == int64(bf)
}

// jsonEqual performs a structural equality check used for non-numeric
// scalars, arrays, and objects in delta computation.
func jsonEqual(a, b Node) bool {
	switch av := a.(type) {
	case map[string]Node:
		bv, ok := b.(map[string]Node)
		if !ok || len(av) != len(bv) {
			return false
		}

		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonEqual(v, bvv) {
				return false
			}
		}

		return true

	case []Node:
		bv, ok := b.([]Node)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}

		return true

	default:
		return a == b
	}
}

// deepCopy returns a structural copy of node safe to mutate independently.
func deepCopy(node Node) Node {
	switch v := node.(type) {
	case map[string]Node:
		out := make(map[string]Node, len(v))
		for k, vv := range v {
			out[k] = deepCopy(vv)
		}

		return out
	case []Node:
		out := make([]Node, len(v))
		for i, vv := range v {
			out[i] = deepCopy(vv)
		}

		return out
	default:
		return v
	}
}
