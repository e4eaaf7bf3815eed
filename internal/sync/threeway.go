package sync

// Owner indicates which side wins a three-way merge conflict when both
// local and cloud diverge from the base.
type Owner int

const (
	OwnerLocal Owner = iota
	OwnerCloud
)

// threeWayMerge performs an object-recursive three-way merge: at every
// field, if both local and cloud differ from base, owner
// wins; if only one differs, that side wins; if both match base, the base
// value is kept. Arrays are atomic — owner wins outright, no element merge.
//
// Grounded on the recursive three-entry comparison in mutagen's
// reconciler.reconcile (core/reconcile.go): compare all three views at each
// path and recurse only where both sides still agree with each other.
func threeWayMerge(local, cloud, base Node, owner Owner) Node {
	result, present := mergeField(local, true, cloud, true, base, true, owner)
	if !present {
		return nil
	}

	return result
}

// mergeField resolves one field (or the whole document, at the root) given
// presence/value on each of the three sides. present=false means the field
// should not appear in the merged result at all (a real deletion), which is
// distinct from a field whose merged value happens to be JSON null.
func mergeField(localVal Node, hasLocal bool, cloudVal Node, hasCloud bool, baseVal Node, hasBase bool, owner Owner) (Node, bool) {
	localObj, localIsObj := localVal.(map[string]Node)
	cloudObj, cloudIsObj := cloudVal.(map[string]Node)
	baseObj, baseIsObj := baseVal.(map[string]Node)

	if hasLocal && hasCloud && localIsObj && cloudIsObj && (baseIsObj || baseVal == nil) {
		if !baseIsObj {
			baseObj = map[string]Node{}
		}

		return mergeObjectField(localObj, cloudObj, baseObj, owner), true
	}

	localChanged := hasLocal != hasBase || !jsonEqual(localVal, baseVal)
	cloudChanged := hasCloud != hasBase || !jsonEqual(cloudVal, baseVal)

	switch {
	case localChanged && cloudChanged:
		if owner == OwnerLocal {
			return localVal, hasLocal
		}

		return cloudVal, hasCloud
	case localChanged:
		return localVal, hasLocal
	case cloudChanged:
		return cloudVal, hasCloud
	default:
		return baseVal, hasBase
	}
}

// mergeObjectField merges three object views key by key, recursing through
// mergeField so nested conflicts resolve independently.
func mergeObjectField(local, cloud, base map[string]Node, owner Owner) map[string]Node {
	keys := make(map[string]struct{}, len(local)+len(cloud)+len(base))
	for k := range local {
		keys[k] = struct{}{}
	}

	for k := range cloud {
		keys[k] = struct{}{}
	}

	for k := range base {
		keys[k] = struct{}{}
	}

	result := make(map[string]Node, len(keys))

	for k := range keys {
		localVal, hasLocal := local[k]
		cloudVal, hasCloud := cloud[k]
		baseVal, hasBase := base[k]

		var baseForMerge Node
		if hasBase {
			baseForMerge = baseVal
		}

		if merged, present := mergeField(localVal, hasLocal, cloudVal, hasCloud, baseForMerge, hasBase, owner); present {
			result[k] = merged
		}
	}

	return result
}
