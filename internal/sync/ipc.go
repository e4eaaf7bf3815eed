package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

// IngressHandler is the IPC surface local callers drive:
// a documented interface boundary plus, below, an in-memory reference
// implementation realizing it directly over a Store and Handler, without a
// real transport in between.
type IngressHandler interface {
	GetShadow(ctx context.Context, id shadowid.Identity) (*Document, error)
	UpdateShadow(ctx context.Context, id shadowid.Identity, payload []byte, clientToken string) (*Document, error)
	DeleteShadow(ctx context.Context, id shadowid.Identity) error
	ListNamedShadows(ctx context.Context, thingName string, pageSize int, token string) ([]string, string, error)
}

// LocalIngress is the reference IngressHandler: it applies updates and
// deletes directly against the store with applyUpdate/applyDelete, then
// notifies the handler so the change is queued for the cloud side. The
// executor's LocalUpdate/LocalDelete only push the stored result to the
// cloud; they do not write the local store.
type LocalIngress struct {
	store      Store
	handler    *Handler
	locks      *LockRegistry
	gate       *CapacityGate
	maxDocSize int
	now        func() time.Time
}

// NewLocalIngress builds an IngressHandler bound to store, notifying
// handler of every successful local write. gate is consulted before every
// update is admitted to the store (deletes do not consult it); maxDocSize
// <= 0 falls back to DefaultMaxDocumentSize.
func NewLocalIngress(store Store, handler *Handler, locks *LockRegistry, gate *CapacityGate, maxDocSize int) *LocalIngress {
	if maxDocSize <= 0 {
		maxDocSize = DefaultMaxDocumentSize
	}

	return &LocalIngress{store: store, handler: handler, locks: locks, gate: gate, maxDocSize: maxDocSize, now: time.Now}
}

// GetShadow returns the current local document for id, or nil if absent.
func (l *LocalIngress) GetShadow(ctx context.Context, id shadowid.Identity) (*Document, error) {
	return l.store.GetShadow(ctx, id)
}

// UpdateShadow decodes payload as a JSON merge-patch Update, applies it
// locally, and enqueues a LocalUpdate sync request for the result. While
// the capacity gate reports exceeded, the write is rejected with
// ServiceError before it reaches the store.
func (l *LocalIngress) UpdateShadow(ctx context.Context, id shadowid.Identity, payload []byte, clientToken string) (*Document, error) {
	if l.gate != nil && l.gate.Exceeded() {
		return nil, ServiceError("capacity exceeded")
	}

	var update Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, InvalidArguments("malformed update payload: " + err.Error())
	}

	update.ClientToken = clientToken

	l.locks.Lock(id)
	defer l.locks.Unlock(id)

	source, err := l.store.GetShadow(ctx, id)
	if err != nil {
		return nil, err
	}

	if source == nil {
		source = &Document{NewDocument: true}
	}

	next, err := applyUpdate(source, &update, l.maxDocSize, l.now())
	if err != nil {
		return nil, err
	}

	stored, err := l.store.UpdateShadow(ctx, id, next)
	if err != nil {
		return nil, err
	}

	if l.handler != nil {
		l.handler.OnLocalUpdate(id, &update)
	}

	return stored, nil
}

// DeleteShadow soft-deletes the local document and enqueues a LocalDelete
// sync request.
func (l *LocalIngress) DeleteShadow(ctx context.Context, id shadowid.Identity) error {
	l.locks.Lock(id)
	defer l.locks.Unlock(id)

	source, err := l.store.GetShadow(ctx, id)
	if err != nil {
		return err
	}

	if source == nil {
		return NotFound("no shadow document for " + id.Key())
	}

	tomb := applyDelete(source, l.now())

	if _, err := l.store.UpdateShadow(ctx, id, tomb); err != nil {
		return err
	}

	if l.handler != nil {
		l.handler.OnLocalDelete(id)
	}

	return nil
}

// ListNamedShadows delegates to the store's paginated listing.
func (l *LocalIngress) ListNamedShadows(ctx context.Context, thingName string, pageSize int, token string) ([]string, string, error) {
	page, err := l.store.ListNamed(ctx, thingName, pageSize, token)
	if err != nil {
		return nil, "", err
	}

	return page.Names, page.NextToken, nil
}
