package sync

// mergeRequests implements the Request Merger decision table: given the request already queued for an identity and an incoming
// request for the same identity, decide the single request that should
// occupy the queue slot, preserving existing's enqueue position.
func mergeRequests(existing, incoming *Request, direction Direction) *Request {
	result := &Request{ID: existing.ID, EnqueuedAt: existing.EnqueuedAt}

	switch existing.Variant {
	case LocalUpdate:
		switch incoming.Variant {
		case LocalUpdate:
			result.Variant = LocalUpdate
			result.LocalPayload = mergeLocalPayloads(existing.LocalPayload, incoming.LocalPayload)
		case LocalDelete:
			result.Variant = LocalDelete
		case CloudUpdate:
			return collapseCrossSide(result, direction)
		case CloudDelete:
			result.Variant = CloudDelete
			result.CloudVersion = incoming.CloudVersion
		case OverwriteLocal:
			result.Variant = OverwriteLocal
		case OverwriteCloud:
			result.Variant = OverwriteCloud
		default:
			result.Variant = FullShadowSync
		}

	case LocalDelete:
		switch incoming.Variant {
		case OverwriteLocal:
			result.Variant = OverwriteLocal
		case OverwriteCloud:
			result.Variant = OverwriteCloud
		case CloudDelete, FullShadowSync:
			result.Variant = FullShadowSync
		default:
			result.Variant = LocalDelete
		}

	case CloudUpdate:
		switch incoming.Variant {
		case LocalUpdate:
			return collapseCrossSide(result, direction)
		case LocalDelete:
			result.Variant = LocalDelete
		case CloudUpdate:
			result.Variant = CloudUpdate
			result.CloudDocument = incoming.CloudDocument
			result.CloudVersion = incoming.CloudVersion
		case CloudDelete:
			result.Variant = CloudDelete
			result.CloudVersion = incoming.CloudVersion
		case OverwriteLocal:
			result.Variant = OverwriteLocal
		case OverwriteCloud:
			result.Variant = OverwriteCloud
		default:
			result.Variant = FullShadowSync
		}

	case CloudDelete:
		switch incoming.Variant {
		case LocalDelete:
			result.Variant = FullShadowSync
		case OverwriteLocal:
			result.Variant = OverwriteLocal
		case OverwriteCloud:
			result.Variant = OverwriteCloud
		case FullShadowSync:
			result.Variant = FullShadowSync
		default:
			result.Variant = CloudDelete
			result.CloudVersion = incoming.CloudVersion
		}

	case FullShadowSync:
		switch incoming.Variant {
		case OverwriteLocal:
			result.Variant = OverwriteLocal
		case OverwriteCloud:
			result.Variant = OverwriteCloud
		default:
			result.Variant = FullShadowSync
		}

	case OverwriteLocal:
		if incoming.Variant == OverwriteCloud {
			return directionTiebreak(result, direction)
		}

		result.Variant = OverwriteLocal

	case OverwriteCloud:
		if incoming.Variant == OverwriteLocal {
			return directionTiebreak(result, direction)
		}

		result.Variant = OverwriteCloud

	default:
		result.Variant = FullShadowSync
	}

	return result
}

// collapseCrossSide implements the † rule: a pending same-side-opposite
// collision (LocalUpdate vs CloudUpdate in either order) collapses to
// FullShadowSync under bidirectional direction, or to the override variant
// matching the direction that still permits a write.
func collapseCrossSide(result *Request, direction Direction) *Request {
	switch direction {
	case DeviceToCloud:
		result.Variant = OverwriteCloud
	case CloudToDevice:
		result.Variant = OverwriteLocal
	default:
		result.Variant = FullShadowSync
	}

	return result
}

// directionTiebreak implements the ‡ rule: when OverwriteLocal and
// OverwriteCloud collide, the variant matching direction wins; bidirectional
// produces FullShadowSync.
func directionTiebreak(result *Request, direction Direction) *Request {
	switch direction {
	case DeviceToCloud:
		result.Variant = OverwriteCloud
	case CloudToDevice:
		result.Variant = OverwriteLocal
	default:
		result.Variant = FullShadowSync
	}

	return result
}

// mergeLocalPayloads right-biases incoming over existing, per the "merge()
// on their payloads" rule.
func mergeLocalPayloads(existing, incoming *Update) *Update {
	if existing == nil {
		return incoming
	}

	if incoming == nil {
		return existing
	}

	merged := &Update{
		ClientToken: incoming.ClientToken,
		Version:     existing.Version,
		State: State{
			Desired:  existing.State.Desired,
			Reported: existing.State.Reported,
		},
	}

	if incoming.State.Desired != nil {
		if desired, err := mergeBranch(existing.State.Desired, incoming.State.Desired); err == nil {
			merged.State.Desired = desired
		}
	}

	if incoming.State.Reported != nil {
		if reported, err := mergeBranch(existing.State.Reported, incoming.State.Reported); err == nil {
			merged.State.Reported = reported
		}
	}

	return merged
}
