package sync

import "github.com/greengrass-edge/shadow-sync/internal/shadowid"

// Variant tags a SyncRequest with the operation it represents.
type Variant int

const (
	LocalUpdate Variant = iota
	LocalDelete
	CloudUpdate
	CloudDelete
	FullShadowSync
	OverwriteLocal
	OverwriteCloud
)

func (v Variant) String() string {
	switch v {
	case LocalUpdate:
		return "LocalUpdate"
	case LocalDelete:
		return "LocalDelete"
	case CloudUpdate:
		return "CloudUpdate"
	case CloudDelete:
		return "CloudDelete"
	case FullShadowSync:
		return "FullShadowSync"
	case OverwriteLocal:
		return "OverwriteLocal"
	case OverwriteCloud:
		return "OverwriteCloud"
	default:
		return "Unknown"
	}
}

// Direction governs which sides a merge is allowed to write.
type Direction int

const (
	BetweenDeviceAndCloud Direction = iota
	DeviceToCloud
	CloudToDevice
)

func (d Direction) String() string {
	switch d {
	case DeviceToCloud:
		return "deviceToCloud"
	case CloudToDevice:
		return "cloudToDevice"
	default:
		return "betweenDeviceAndCloud"
	}
}

// Request is a tagged sync request carrying the shadow identity and, for
// update variants, an optional payload.
type Request struct {
	Variant Variant
	ID      shadowid.Identity

	// LocalPayload carries the update for LocalUpdate requests.
	LocalPayload *Update

	// CloudDocument/CloudVersion carry the observed cloud state for
	// CloudUpdate requests.
	CloudDocument *Document
	CloudVersion  int64

	// EnqueuedAt preserves earliest-enqueue ordering across coalescing.
	EnqueuedAt int64
}

// Key returns the coalescing/lock key for r.
func (r Request) Key() string {
	return r.ID.Key()
}

// NamedShadowSet describes one thing's enrollment: classic shadow plus a
// set of named shadows.
type NamedShadowSet struct {
	ThingName    string
	Classic      bool
	NamedShadows []string
}

// Configuration is the active SyncConfiguration: the enrolled identity set
// plus direction.
type Configuration struct {
	Things    []NamedShadowSet
	Direction Direction
}

// Identities expands Configuration into the flat set of enrolled
// shadowid.Identity values.
func (c Configuration) Identities() []shadowid.Identity {
	var out []shadowid.Identity

	for _, t := range c.Things {
		if t.Classic {
			if id, err := shadowid.New(t.ThingName, ""); err == nil {
				out = append(out, id)
			}
		}

		for _, name := range t.NamedShadows {
			if id, err := shadowid.New(t.ThingName, name); err == nil {
				out = append(out, id)
			}
		}
	}

	return out
}
