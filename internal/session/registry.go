package session

import (
	"sync"

	"quizduel-service/internal/domain"
)

// Handle is a live connection owned by one user.
type Handle interface {
	ID() string
	// Send queues msg for delivery without blocking; false means it was dropped.
	Send(msg domain.Message) bool
}

// Registry maps user ids to their current connection. It is in-memory only and
// starts empty after a restart.
type Registry struct {
	handles sync.Map // userID -> Handle
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores handle as the user's connection and returns the handle it
// replaced, if any, so the caller can tell the old connection it was superseded.
func (r *Registry) Register(userID string, handle Handle) (Handle, bool) {
	prev, loaded := r.handles.Swap(userID, handle)
	if !loaded || prev == handle {
		return nil, false
	}
	return prev.(Handle), true
}

// Unregister removes the mapping only while it still points at handle, so a
// stale disconnect cannot evict a newer connection. It reports whether the
// mapping was removed.
func (r *Registry) Unregister(userID string, handle Handle) bool {
	return r.handles.CompareAndDelete(userID, handle)
}

// Lookup returns the user's live connection.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	v, ok := r.handles.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(Handle), true
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.handles.Load(userID)
	return ok
}

// Notify delivers msg to the user's connection on a best-effort basis.
func (r *Registry) Notify(userID string, msg domain.Message) {
	if h, ok := r.Lookup(userID); ok {
		h.Send(msg)
	}
}
