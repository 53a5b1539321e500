package handler

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// PageController is the part of the details controller the HTTP layer uses.
type PageController interface {
	Mount(ctx context.Context, sessionID, productID, token string) (*service.Mounted, error)
	State(ctx context.Context, sessionID string) (domain.PageState, error)
	ApplyAction(ctx context.Context, sessionID, action string) (domain.PageState, error)
	Unmount(ctx context.Context, sessionID string) error
}

// mountAndWait mounts productID and waits up to wait for the fetch to
// settle. It returns the freshest snapshot available.
func mountAndWait(ctx context.Context, c PageController, wait time.Duration, sessionID, productID, token string) (domain.PageState, error) {
	m, err := c.Mount(ctx, sessionID, productID, token)
	if err != nil {
		return domain.PageState{}, err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-m.Done:
		case <-timer.C:
		case <-ctx.Done():
			return m.State, ctx.Err()
		}
	}

	s, err := c.State(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Unmounted concurrently; show what was mounted.
		return m.State, nil
	}
	return s, err
}

// belongsTo reports whether s is a page for productID.
func belongsTo(s domain.PageState, productID string) bool {
	return s.ProductID == productID
}

func validateProductID(id string) error {
	return validator.Var("id", id, "required,max=64,printascii")
}
