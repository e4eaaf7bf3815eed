package sync

import (
	"context"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// CloudClient is the abstract cloud protocol: it exposes the
// three RPCs the executor drives. Errors must already be classified into
// the taxonomy in errors.go (ErrRetryable, ErrConflict, and so on) — see
// internal/cloud for the reference HTTP implementation.
type CloudClient interface {
	GetShadow(ctx context.Context, id shadowid.Identity) (doc *Document, version int64, err error)
	UpdateShadow(ctx context.Context, id shadowid.Identity, doc *Document, expectedVersion int64) (version int64, err error)
	DeleteShadow(ctx context.Context, id shadowid.Identity) error
}

// RequestExecutor dispatches a Request to the per-variant sync algorithm,
// running under the identity's write lock and applying direction gating. It
// implements the Executor interface the Retryer expects.
type RequestExecutor struct {
	store       Store
	cloud       CloudClient
	locks       *LockRegistry
	direction   Direction
	rejectTopic *RejectTopic
	now         func() time.Time
}

// NewRequestExecutor builds an executor bound to store/cloud/locks and the
// active sync direction. Admission control (the capacity gate, document
// size limit) runs at IPC ingestion, not here — see LocalIngress.
func NewRequestExecutor(store Store, cloud CloudClient, locks *LockRegistry, direction Direction, rejectTopic *RejectTopic) *RequestExecutor {
	return &RequestExecutor{
		store:       store,
		cloud:       cloud,
		locks:       locks,
		direction:   direction,
		rejectTopic: rejectTopic,
		now:         time.Now,
	}
}

// Execute runs req to completion, serialized under req.ID's write lock.
func (e *RequestExecutor) Execute(ctx context.Context, req *Request) error {
	e.locks.Lock(req.ID)
	defer e.locks.Unlock(req.ID)

	err := e.dispatch(ctx, req)
	if err != nil && e.rejectTopic != nil && ctx.Err() == nil {
		switch Classify(err) {
		case ErrRetryable, ErrConflict, ErrVersionConflict, ErrUnknownShadow, ErrInterrupted:
			// Re-queued or mutated by the retryer: not a terminal failure.
			return err
		}

		token := ""
		if req.LocalPayload != nil {
			token = req.LocalPayload.ClientToken
		}

		e.rejectTopic.Publish(RejectEvent{ClientToken: token, Identity: req.ID, Error: err})
	}

	return err
}

func (e *RequestExecutor) dispatch(ctx context.Context, req *Request) error {
	switch req.Variant {
	case LocalUpdate:
		return e.execLocalUpdate(ctx, req)
	case LocalDelete:
		return e.execLocalDelete(ctx, req)
	case CloudUpdate:
		return e.execCloudUpdate(ctx, req)
	case CloudDelete:
		return e.execCloudDelete(ctx, req)
	case FullShadowSync:
		return e.execFullShadowSync(ctx, req)
	case OverwriteCloud:
		return e.execOverwriteCloud(ctx, req)
	case OverwriteLocal:
		return e.execOverwriteLocal(ctx, req)
	default:
		return Fatal("unknown sync request variant", nil)
	}
}

// execLocalUpdate handles a queued local update. The local write already
// happened at IPC ingestion, so this only pushes the already-stored local
// document to the cloud under a version check. It never re-applies
// req.LocalPayload or writes the store.
func (e *RequestExecutor) execLocalUpdate(ctx context.Context, req *Request) error {
	if e.direction == CloudToDevice {
		return nil
	}

	local, err := e.store.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	if local == nil {
		return UnknownShadow("local document missing for queued LocalUpdate", nil)
	}

	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	cloudVersion, err := e.cloud.UpdateShadow(ctx, req.ID, local, rec.CloudVersion+1)
	if err != nil {
		sentinel := Classify(err)
		if sentinel == ErrConflict || sentinel == ErrVersionConflict {
			return newTagged(ErrConflict, "cloud rejected update version", err)
		}

		return err
	}

	rec.CloudVersion = cloudVersion
	rec.CloudUpdateTime = e.now().Unix()
	rec.CloudDocument = local
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execLocalDelete pushes a local deletion to the cloud, tolerating a
// not-found response.
func (e *RequestExecutor) execLocalDelete(ctx context.Context, req *Request) error {
	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	if e.direction != CloudToDevice && rec.CloudVersion > 0 {
		if err := e.cloud.DeleteShadow(ctx, req.ID); err != nil && Classify(err) != ErrResourceNotFound {
			return err
		}
	}

	rec.CloudDeleted = true
	rec.CloudDocument = nil
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execCloudUpdate applies an incoming cloud change: in deviceToCloud it only
// records the new cloud version, otherwise it reconciles the cloud document
// against the local one (three-way merging when both sides moved since the
// last sync) and writes the result locally.
func (e *RequestExecutor) execCloudUpdate(ctx context.Context, req *Request) error {
	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	if req.CloudVersion <= rec.CloudVersion {
		return nil // idempotent drop
	}

	if e.direction == DeviceToCloud {
		rec.CloudVersion = req.CloudVersion
		rec.CloudDocument = req.CloudDocument
		rec.CloudUpdateTime = e.now().Unix()

		return e.store.PutSync(ctx, req.ID, rec)
	}

	local, err := e.store.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	var resultDoc *Document

	switch {
	case local == nil || local.NewDocument:
		resultDoc = &Document{
			State:    req.CloudDocument.State,
			Metadata: req.CloudDocument.Metadata,
			Version:  1,
		}

	case local.Version <= rec.CloudVersion:
		resultDoc = &Document{
			State:    req.CloudDocument.State,
			Metadata: req.CloudDocument.Metadata,
			Version:  local.Version + 1,
		}

	default:
		base := stateNode(rec.CloudDocument)
		merged := threeWayMerge(stateNode(local), stateNode(req.CloudDocument), base, OwnerCloud)
		mergedState, _ := merged.(map[string]Node)

		resultDoc = &Document{
			State:   stateFromNode(mergedState),
			Version: local.Version + 1,
		}
		resultDoc.Metadata = local.Metadata
	}

	resultDoc.Timestamp = e.now().Unix()

	if _, err := e.store.UpdateShadow(ctx, req.ID, resultDoc); err != nil {
		return err
	}

	rec.CloudVersion = req.CloudVersion
	rec.CloudDocument = req.CloudDocument
	rec.CloudUpdateTime = e.now().Unix()
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execCloudDelete applies an incoming cloud deletion to the local copy,
// unless direction is deviceToCloud.
func (e *RequestExecutor) execCloudDelete(ctx context.Context, req *Request) error {
	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	if e.direction != DeviceToCloud {
		local, err := e.store.GetShadow(ctx, req.ID)
		if err != nil {
			return err
		}

		if local != nil {
			tomb := applyDelete(local, e.now())
			if _, err := e.store.UpdateShadow(ctx, req.ID, tomb); err != nil {
				return err
			}
		}
	}

	rec.CloudDeleted = true
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execFullShadowSync reconciles local and cloud state for req.ID from
// scratch, three-way merging against the last-known-synced base and
// pushing the result to whichever side(s) the direction allows.
func (e *RequestExecutor) execFullShadowSync(ctx context.Context, req *Request) error {
	cloudDoc, cloudVersion, err := e.cloud.GetShadow(ctx, req.ID)
	if err != nil && Classify(err) != ErrResourceNotFound {
		return err
	}

	local, err := e.store.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	owner := fullSyncOwner(e.direction)

	base := stateNode(rec.CloudDocument)
	localNode := stateNode(local)
	cloudNode := stateNode(cloudDoc)

	merged := threeWayMerge(localNode, cloudNode, base, owner)
	mergedState, _ := merged.(map[string]Node)

	newLocal := &Document{State: stateFromNode(mergedState), Timestamp: e.now().Unix()}
	if local != nil {
		newLocal.Version = local.Version
		newLocal.Metadata = local.Metadata
	}

	if newLocal.Version == 0 {
		newLocal.Version = 1
	}

	if e.direction != DeviceToCloud {
		if _, err := e.store.UpdateShadow(ctx, req.ID, newLocal); err != nil {
			return err
		}
	}

	if e.direction != CloudToDevice && !jsonEqual(mergedState, cloudNode) {
		newCloudVersion, err := e.cloud.UpdateShadow(ctx, req.ID, newLocal, cloudVersion+1)
		if err != nil {
			return err
		}

		cloudVersion = newCloudVersion
	}

	rec.CloudVersion = cloudVersion
	rec.CloudDocument = &Document{State: stateFromNode(mergedState)}
	rec.CloudUpdateTime = e.now().Unix()
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execOverwriteCloud force-pushes the local document to the cloud,
// retrying once on conflict with a freshly fetched version.
func (e *RequestExecutor) execOverwriteCloud(ctx context.Context, req *Request) error {
	local, err := e.store.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	if local == nil {
		return nil
	}

	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	version, err := e.cloud.UpdateShadow(ctx, req.ID, local, rec.CloudVersion+1)
	if err != nil && Classify(err) == ErrConflict {
		_, freshVersion, getErr := e.cloud.GetShadow(ctx, req.ID)
		if getErr != nil {
			return getErr
		}

		version, err = e.cloud.UpdateShadow(ctx, req.ID, local, freshVersion+1)
	}

	if err != nil {
		return err
	}

	rec.CloudVersion = version
	rec.CloudDocument = local
	rec.CloudUpdateTime = e.now().Unix()
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

// execOverwriteLocal force-overwrites the local document with the cloud's,
// bumping the local version past whatever it was.
func (e *RequestExecutor) execOverwriteLocal(ctx context.Context, req *Request) error {
	cloudDoc, cloudVersion, err := e.cloud.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	local, err := e.store.GetShadow(ctx, req.ID)
	if err != nil {
		return err
	}

	next := &Document{State: cloudDoc.State, Metadata: cloudDoc.Metadata, Timestamp: e.now().Unix()}
	if local != nil {
		next.Version = local.Version + 1
	} else {
		next.Version = 1
	}

	if _, err := e.store.UpdateShadow(ctx, req.ID, next); err != nil {
		return err
	}

	rec, err := e.getOrEmptySync(ctx, req.ID)
	if err != nil {
		return err
	}

	rec.CloudVersion = cloudVersion
	rec.CloudDocument = cloudDoc
	rec.CloudUpdateTime = e.now().Unix()
	rec.LastSyncTime = e.now().Unix()

	return e.store.PutSync(ctx, req.ID, rec)
}

func (e *RequestExecutor) getOrEmptySync(ctx context.Context, id shadowid.Identity) (*SyncRecord, error) {
	rec, err := e.store.GetSync(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		rec = &SyncRecord{}
	}

	return rec, nil
}

// fullSyncOwner picks which side wins a three-way merge tie during full
// sync: local for deviceToCloud, cloud otherwise (bidirectional defaults to
// cloud-wins).
func fullSyncOwner(direction Direction) Owner {
	if direction == DeviceToCloud {
		return OwnerLocal
	}

	return OwnerCloud
}

func stateNode(doc *Document) Node {
	if doc == nil {
		return nil
	}

	return map[string]Node{
		"desired":  mapToNode(doc.State.Desired),
		"reported": mapToNode(doc.State.Reported),
	}
}

func stateFromNode(m map[string]Node) State {
	if m == nil {
		return State{}
	}

	s := State{}

	if d, ok := m["desired"].(map[string]Node); ok {
		s.Desired = d
	}

	if r, ok := m["reported"].(map[string]Node); ok {
		s.Reported = r
	}

	s.Delta = computeDeltaBranch(s.Reported, s.Desired)

	return s
}
