package sync

import (
	"encoding/json"
	"time"
)

// DefaultMaxDocumentSize is the default per-document byte ceiling: 8 KiB.
const DefaultMaxDocumentSize = 8 * 1024

// MaxDocumentSizeCeiling is the hard ceiling no configuration may exceed:
// 30 MiB.
const MaxDocumentSizeCeiling = 30 * 1024 * 1024

// State holds the desired/reported/delta sub-documents of a shadow.
type State struct {
	Desired  map[string]Node `json:"desired,omitempty"`
	Reported map[string]Node `json:"reported,omitempty"`
	Delta    map[string]Node `json:"delta,omitempty"`
}

// MetadataLeaf records when a leaf value was last written.
type MetadataLeaf struct {
	Timestamp int64 `json:"timestamp"`
}

// Metadata mirrors state.desired/state.reported; its leaves are timestamp
// records rather than document values.
type Metadata struct {
	Desired  map[string]Node `json:"desired,omitempty"`
	Reported map[string]Node `json:"reported,omitempty"`
}

// Document is the full shadow document record.
type Document struct {
	State       State           `json:"state"`
	Metadata    Metadata        `json:"metadata"`
	Version     int64           `json:"version"`
	Timestamp   int64           `json:"timestamp"`
	ClientToken string          `json:"clientToken,omitempty"`
	NewDocument bool            `json:"-"`
	Deleted     bool            `json:"-"`
	DeletedAt   int64           `json:"-"`
}

// Update is the payload submitted to update a shadow (a partial state tree
// plus an optional expected version and client token).
type Update struct {
	State       State  `json:"state"`
	Version     *int64 `json:"version,omitempty"`
	ClientToken string `json:"clientToken,omitempty"`
}

// validateUpdatePayload checks depth limits on the incoming state tree and,
// when the update carries an expected version, enforces optimistic
// concurrency against source.
func validateUpdatePayload(source *Document, update *Update) error {
	if err := validateDepth(mapToNode(update.State.Desired)); err != nil {
		return err
	}

	if err := validateDepth(mapToNode(update.State.Reported)); err != nil {
		return err
	}

	if update.Version == nil {
		return nil
	}

	if source.NewDocument {
		if *update.Version == 1 {
			return nil
		}

		return VersionConflict("new document requires version 1 or absent")
	}

	if *update.Version == source.Version {
		return nil
	}

	return VersionConflict("update version does not match stored version")
}

// applyUpdate deep-copies source, merges the update's state in, recomputes
// delta, stamps metadata, increments the version, and enforces the size
// ceiling. Returns the new document.
func applyUpdate(source *Document, update *Update, maxSize int, now time.Time) (*Document, error) {
	if err := validateUpdatePayload(source, update); err != nil {
		return nil, err
	}

	next := &Document{
		State:       copyState(source.State),
		Metadata:    copyMetadata(source.Metadata),
		Version:     source.Version,
		Timestamp:   source.Timestamp,
		ClientToken: update.ClientToken,
	}

	if update.State.Desired != nil {
		merged, err := mergeBranch(next.State.Desired, update.State.Desired)
		if err != nil {
			return nil, err
		}

		next.State.Desired = merged
	}

	if update.State.Reported != nil {
		merged, err := mergeBranch(next.State.Reported, update.State.Reported)
		if err != nil {
			return nil, err
		}

		next.State.Reported = merged
	}

	next.State.Delta = computeDeltaBranch(next.State.Reported, next.State.Desired)

	stampMetadata(&next.Metadata.Desired, update.State.Desired, now)
	stampMetadata(&next.Metadata.Reported, update.State.Reported, now)

	next.Version = source.Version + 1
	next.Timestamp = now.Unix()
	next.NewDocument = false

	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}

	size, err := documentSize(next)
	if err != nil {
		return nil, Fatal("serializing updated document", err)
	}

	if size > maxSize {
		return nil, PayloadTooLarge("document exceeds maximum size")
	}

	return next, nil
}

// applyDelete marks source as a soft tombstone: deletion retains the
// document's version rather than removing the row.
func applyDelete(source *Document, now time.Time) *Document {
	next := *source
	next.Deleted = true
	next.DeletedAt = now.Unix()
	next.Timestamp = now.Unix()

	return &next
}

// mergeBranch merges patch into a possibly-nil source branch and returns the
// result as a map, per merge()'s object contract.
func mergeBranch(source, patch map[string]Node) (map[string]Node, error) {
	var sourceNode Node
	if source != nil {
		sourceNode = mapToNode(source)
	}

	merged, err := merge(sourceNode, mapToNode(patch))
	if err != nil {
		return nil, err
	}

	if merged == nil {
		return nil, nil
	}

	obj, _ := merged.(map[string]Node)

	return obj, nil
}

// computeDeltaBranch recomputes state.delta = delta(reported, desired).
func computeDeltaBranch(reported, desired map[string]Node) map[string]Node {
	d := delta(mapToNode(reported), mapToNode(desired))
	if d == nil {
		return nil
	}

	obj, _ := d.(map[string]Node)
	if len(obj) == 0 {
		return nil
	}

	return obj
}

// stampMetadata walks every leaf path present in patch and stamps a fresh
// MetadataLeaf timestamp into dst at the same path. Uses tidwall/gjson+sjson-style path walking conceptually;
// implemented directly over the Node tree since values are already decoded
// in memory (no re-serialization round trip needed for this pass).
func stampMetadata(dst *map[string]Node, patch map[string]Node, now time.Time) {
	if patch == nil {
		return
	}

	if *dst == nil {
		*dst = map[string]Node{}
	}

	stampTree(*dst, patch, now)
}

func stampTree(dst, patch map[string]Node, now time.Time) {
	ts := map[string]Node{"timestamp": float64(now.Unix())}

	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}

		if childPatch, ok := v.(map[string]Node); ok {
			childDst, ok := dst[k].(map[string]Node)
			if !ok || childDst == nil {
				childDst = map[string]Node{}
			}

			stampTree(childDst, childPatch, now)
			dst[k] = childDst

			continue
		}

		dst[k] = ts
	}
}

// documentSize serializes doc with null fields excluded and returns its byte
// length.
func documentSize(doc *Document) (int, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}

	return len(b), nil
}

func copyState(s State) State {
	return State{
		Desired:  copyNodeMap(s.Desired),
		Reported: copyNodeMap(s.Reported),
	}
}

func copyMetadata(m Metadata) Metadata {
	return Metadata{
		Desired:  copyNodeMap(m.Desired),
		Reported: copyNodeMap(m.Reported),
	}
}

func copyNodeMap(m map[string]Node) map[string]Node {
	if m == nil {
		return nil
	}

	copied := deepCopy(mapToNode(m))
	obj, _ := copied.(map[string]Node)

	return obj
}

func mapToNode(m map[string]Node) Node {
	if m == nil {
		return nil
	}

	return map[string]Node(m)
}
