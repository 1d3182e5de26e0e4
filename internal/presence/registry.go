// Package presence tracks which users currently hold live connections.
//
// The registry is process-wide, in-memory state: populated empty at startup,
// mutated only through Connect/Disconnect, never persisted. A user is online
// iff their connection set is non-empty; nothing here consults last_seen.
package presence

import (
	"context"
	"log/slog"
	"sync"

	"dmchat/internal/domain"
)

// Registry maps user ids to their active connection ids. A user with several
// devices has several entries in the inner set; online/offline transitions
// happen only on the first and last of them.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[string]struct{}

	users  domain.UserRepository
	logger *slog.Logger
}

func NewRegistry(users domain.UserRepository, logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[int64]map[string]struct{}),
		users:  users,
		logger: logger,
	}
}

// Connect adds a connection for the user and reports whether it was the
// user's first, i.e. an offline-to-online transition. Registering the same
// connection id twice is a no-op.
func (r *Registry) Connect(userID int64, connID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	first = len(set) == 0
	set[connID] = struct{}{}
	return first
}

// Disconnect removes a connection for the user and reports whether it was the
// user's last, i.e. an online-to-offline transition. Unknown users or
// connection ids are no-ops, so duplicate disconnects are safe. On the last
// disconnect the user's last_seen is recorded through the user store;
// failures there are logged and do not affect registry state.
func (r *Registry) Disconnect(ctx context.Context, userID int64, connID string) (last bool) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if ok {
		if _, had := set[connID]; had {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.conns, userID)
				last = true
			}
		}
	}
	r.mu.Unlock()

	if last && r.users != nil {
		if err := r.users.TouchLastSeen(ctx, userID); err != nil {
			r.logger.Warn("record last_seen", "user_id", userID, "error", err)
		}
	}
	return last
}

// IsOnline reports whether the user has at least one active connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnectionsOf returns a snapshot of the user's connection ids.
func (r *Registry) ConnectionsOf(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
