package services

import (
	"context"
	"errors"
	"sync"

	"chatstatus-backend/models"
	"chatstatus-backend/store"
)

// Signal kinds emitted by a group watch.
const (
	SignalUpdate  = "update"      // fresh group snapshot, caller still a member
	SignalRemoved = "removed"     // caller lost membership (observed or implied)
	SignalDeleted = "deleted"     // the group document is gone
	SignalError   = "store_error" // transient store failure, retry later
)

// MembershipSignal is one event of the removal-detection read model.
type MembershipSignal struct {
	Kind  string        `json:"kind"`
	Group *models.Group `json:"group,omitempty"`
	Err   error         `json:"-"`
}

// Watcher turns the store's snapshot subscription into membership signals. A
// permission-denied subscription error means the watcher lost read access to
// the group, which is exactly what being removed looks like from the outside;
// it is reported as SignalRemoved, not as a failure.
type Watcher struct {
	store store.Store
}

func NewWatcher(st store.Store) *Watcher {
	return &Watcher{store: st}
}

type groupWatch struct {
	mu      sync.Mutex
	closed  bool
	signals chan MembershipSignal
}

// emit queues a signal without blocking; a slow consumer loses intermediate
// updates, never terminal ones (the channel buffer outlives one terminal).
func (gw *groupWatch) emit(sig MembershipSignal) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.closed {
		return
	}
	select {
	case gw.signals <- sig:
	default:
	}
}

func (gw *groupWatch) terminate(sig *MembershipSignal) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.closed {
		return
	}
	if sig != nil {
		select {
		case gw.signals <- *sig:
		default:
		}
	}
	gw.closed = true
	close(gw.signals)
}

// WatchGroup streams membership signals for userID until the returned stop
// func is called or a terminal event arrives (removal, deletion, store
// failure), after which the channel closes.
func (w *Watcher) WatchGroup(ctx context.Context, groupID, userID string) (<-chan MembershipSignal, func(), error) {
	gw := &groupWatch{signals: make(chan MembershipSignal, 16)}

	onChange := func(doc *store.Document) {
		if doc == nil {
			gw.terminate(&MembershipSignal{Kind: SignalDeleted})
			return
		}
		group := models.GroupFromDoc(doc)
		if !group.IsParticipant(userID) {
			gw.terminate(&MembershipSignal{Kind: SignalRemoved, Group: group})
			return
		}
		gw.emit(MembershipSignal{Kind: SignalUpdate, Group: group})
	}

	onError := func(err error) {
		if errors.Is(err, store.ErrPermissionDenied) {
			gw.terminate(&MembershipSignal{Kind: SignalRemoved})
			return
		}
		gw.terminate(&MembershipSignal{Kind: SignalError, Err: err})
	}

	stop, err := w.store.Subscribe(ctx, GroupPath(groupID), onChange, onError)
	if err != nil {
		return nil, nil, err
	}

	stopAll := func() {
		stop()
		gw.terminate(nil)
	}
	return gw.signals, stopAll, nil
}
