package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned by a reducer asked to leave a status it
// cannot leave that way.
var ErrInvalidTransition = errors.New("invalid page state transition")

// InitialQuantity is the quantity a freshly mounted page starts with.
const InitialQuantity = 1

// PageState is an immutable snapshot of one mounted product details page.
// Reducers never modify their input; they return a new snapshot with
// Version incremented. Product and Similar are shared between snapshots and
// must not be mutated.
type PageState struct {
	SessionID string           `json:"session_id"`
	MountID   string           `json:"mount_id"`
	ProductID string           `json:"product_id"`
	Status    FetchStatus      `json:"status"`
	Failure   FailureReason    `json:"failure,omitempty"`
	Product   *ProductDetail   `json:"product,omitempty"`
	Similar   []SimilarProduct `json:"similar_products"`
	Quantity  int              `json:"quantity"`
	Version   int64            `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewPageState returns the Idle snapshot of a page that has not fetched yet.
func NewPageState(sessionID, mountID, productID string, now time.Time) PageState {
	return PageState{
		SessionID: sessionID,
		MountID:   mountID,
		ProductID: productID,
		Status:    StatusIdle,
		Similar:   []SimilarProduct{},
		Quantity:  InitialQuantity,
		UpdatedAt: now,
	}
}

func (s PageState) next(now time.Time) PageState {
	s.Version++
	s.UpdatedAt = now
	return s
}

// FetchStarted moves an Idle page to Loading.
func FetchStarted(s PageState, now time.Time) (PageState, error) {
	if s.Status != StatusIdle {
		return s, fmt.Errorf("%w: fetch started from %s", ErrInvalidTransition, s.Status)
	}
	n := s.next(now)
	n.Status = StatusLoading
	return n, nil
}

// FetchSucceeded settles a Loading page with the fetched product.
func FetchSucceeded(s PageState, product ProductDetail, similar []SimilarProduct, now time.Time) (PageState, error) {
	if s.Status != StatusLoading {
		return s, fmt.Errorf("%w: fetch succeeded from %s", ErrInvalidTransition, s.Status)
	}
	if similar == nil {
		similar = []SimilarProduct{}
	}
	n := s.next(now)
	n.Status = StatusSuccess
	n.Failure = FailureNone
	n.Product = &product
	n.Similar = similar
	return n, nil
}

// FetchFailed settles a Loading page as a failure. Any product data is
// dropped so nothing but the failure view can render.
func FetchFailed(s PageState, reason FailureReason, now time.Time) (PageState, error) {
	if s.Status != StatusLoading {
		return s, fmt.Errorf("%w: fetch failed from %s", ErrInvalidTransition, s.Status)
	}
	if reason != FailureNotFound && reason != FailureUnavailable {
		return s, fmt.Errorf("%w: failure reason %s", ErrInvalidTransition, reason)
	}
	n := s.next(now)
	n.Status = StatusFailure
	n.Failure = reason
	n.Product = nil
	n.Similar = []SimilarProduct{}
	return n, nil
}

// Increment adds one to the quantity. max > 0 caps the quantity; at the cap
// the snapshot is returned unchanged and changed is false.
func Increment(s PageState, max int, now time.Time) (next PageState, changed bool) {
	if max > 0 && s.Quantity >= max {
		return s, false
	}
	n := s.next(now)
	n.Quantity++
	return n, true
}

// Decrement subtracts one from the quantity unless it is already 1.
func Decrement(s PageState, now time.Time) (next PageState, changed bool) {
	if s.Quantity <= InitialQuantity {
		return s, false
	}
	n := s.next(now)
	n.Quantity--
	return n, true
}
