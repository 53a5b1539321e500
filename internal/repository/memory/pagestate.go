package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

type entry struct {
	state     domain.PageState
	expiresAt time.Time
}

// PageStateRepository keeps page sessions in process memory. Entries expire
// ttl after their last write.
type PageStateRepository struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewPageStateRepository creates an empty in-memory store.
func NewPageStateRepository(ttl time.Duration) *PageStateRepository {
	return &PageStateRepository{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live snapshot for sessionID.
func (r *PageStateRepository) Get(_ context.Context, sessionID string) (domain.PageState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(sessionID)
	if !ok {
		return domain.PageState{}, apperrors.NotFound("page session", sessionID)
	}
	return e.state, nil
}

// Save stores state, replacing any existing snapshot.
func (r *PageStateRepository) Save(_ context.Context, state domain.PageState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(state)
	return nil
}

// SaveIfVersion stores state only when the stored snapshot has the same
// mount and the expected version.
func (r *PageStateRepository) SaveIfVersion(_ context.Context, state domain.PageState, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(state.SessionID)
	if !ok {
		return apperrors.Conflict("page session " + state.SessionID + " no longer exists")
	}
	if e.state.MountID != state.MountID || e.state.Version != expected {
		return apperrors.Conflict("page session " + state.SessionID + " was modified concurrently")
	}

	r.put(state)
	return nil
}

// Delete removes the session.
func (r *PageStateRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, sessionID)
	return nil
}

// Len returns the number of stored sessions, expired ones included until the
// next sweep.
func (r *PageStateRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RunJanitor removes expired sessions every interval until ctx is done.
func (r *PageStateRepository) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *PageStateRepository) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// live must be called with mu held.
func (r *PageStateRepository) live(sessionID string) (entry, bool) {
	e, ok := r.entries[sessionID]
	if !ok {
		return entry{}, false
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.entries, sessionID)
		return entry{}, false
	}
	return e, true
}

// put must be called with mu held.
func (r *PageStateRepository) put(state domain.PageState) {
	r.entries[state.SessionID] = entry{state: state, expiresAt: r.now().Add(r.ttl)}
}
