package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// PageStateRepository stores the current snapshot of each page session.
type PageStateRepository interface {
	// Get returns the snapshot for a session, or an ErrNotFound error.
	Get(ctx context.Context, sessionID string) (domain.PageState, error)

	// Save stores a snapshot unconditionally, replacing any previous one.
	Save(ctx context.Context, state domain.PageState) error

	// SaveIfVersion replaces the stored snapshot only if it belongs to the
	// same mount as state and its version is still expected. It returns an
	// ErrConflict error otherwise, including when the session no longer
	// exists.
	SaveIfVersion(ctx context.Context, state domain.PageState, expected int64) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
