package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// maxCASAttempts bounds the read-modify-write loop on version conflicts.
const maxCASAttempts = 5

// sessionStripes is the number of locks mount and unmount of different
// sessions are spread over.
const sessionStripes = 64

// Quantity stepper actions.
const (
	ActionIncrement = "increment"
	ActionDecrement = "decrement"
)

// ProductFetcher loads one product record from the product API.
type ProductFetcher interface {
	FetchProduct(ctx context.Context, id, token string) (domain.RawProduct, error)
}

// EventPublisher announces page changes. Publishing is best effort: a
// failure is logged and never changes the page.
type EventPublisher interface {
	PublishPageSettled(ctx context.Context, s domain.PageState) error
	PublishQuantityChanged(ctx context.Context, s domain.PageState) error
}

type noopPublisher struct{}

func (noopPublisher) PublishPageSettled(context.Context, domain.PageState) error { return nil }
func (noopPublisher) PublishQuantityChanged(context.Context, domain.PageState) error { return nil }

// Options tunes a DetailsController.
type Options struct {
	// MaxQuantity caps the quantity stepper. Zero means unbounded.
	MaxQuantity int
	// Events receives page events. Nil disables them.
	Events EventPublisher
}

// Mounted describes a freshly mounted page. Done is closed once its fetch
// has settled, been cancelled or been superseded.
type Mounted struct {
	State domain.PageState
	Done  <-chan struct{}
}

type inflight struct {
	mountID string
	cancel  context.CancelFunc
	done    chan struct{}
}

// DetailsController owns the state of product details page sessions. Each
// session has at most one fetch in flight; mounting again or unmounting
// cancels it, and a cancelled or superseded fetch never touches the stored
// snapshot.
type DetailsController struct {
	repo        repository.PageStateRepository
	fetcher     ProductFetcher
	events      EventPublisher
	logger      *slog.Logger
	maxQuantity int

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	inflight map[string]*inflight
	wg       sync.WaitGroup

	// sessionMu orders the registry update and snapshot write of Mount
	// and Unmount per session, so the last registered fetch always owns
	// the stored snapshot.
	sessionMu [sessionStripes]sync.Mutex

	base     context.Context
	stopBase context.CancelFunc
}

// NewDetailsController creates a controller.
func NewDetailsController(repo repository.PageStateRepository, fetcher ProductFetcher, logger *slog.Logger, opts Options) *DetailsController {
	base, stop := context.WithCancel(context.Background())
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}
	return &DetailsController{
		repo:        repo,
		fetcher:     fetcher,
		events:      events,
		logger:      logger,
		maxQuantity: opts.MaxQuantity,
		now:         time.Now,
		newID:       uuid.NewString,
		inflight:    make(map[string]*inflight),
		base:        base,
		stopBase:    stop,
	}
}

// Mount starts a new page for productID in the given session: the stored
// snapshot is replaced by a fresh Loading one and the product fetch starts
// in the background. Any fetch still running for the session is cancelled.
//
// The fetch outlives ctx; it keeps ctx's values (logger, trace) but is
// cancelled only by Unmount, a later Mount or Close.
func (c *DetailsController) Mount(ctx context.Context, sessionID, productID, token string) (*Mounted, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	now := c.now()
	mountID := c.newID()
	state, err := domain.FetchStarted(domain.NewPageState(sessionID, mountID, productID, now), now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopOnClose := context.AfterFunc(c.base, cancel)
	h := &inflight{mountID: mountID, cancel: cancel, done: make(chan struct{})}

	unlock := c.lockSession(sessionID)
	defer unlock()

	c.mu.Lock()
	if prev, ok := c.inflight[sessionID]; ok {
		prev.cancel()
	}
	c.inflight[sessionID] = h
	c.wg.Add(1)
	c.mu.Unlock()

	if err := c.repo.Save(ctx, state); err != nil {
		c.release(sessionID, h)
		stopOnClose()
		c.wg.Done()
		return nil, fmt.Errorf("save mounted page: %w", err)
	}

	fetchesInFlight.Inc()
	go func() {
		defer c.wg.Done()
		defer fetchesInFlight.Dec()
		defer stopOnClose()
		defer c.release(sessionID, h)
		c.runFetch(fetchCtx, state, token, now)
	}()

	return &Mounted{State: state, Done: h.done}, nil
}

// runFetch performs the product fetch for one mount and applies its outcome.
func (c *DetailsController) runFetch(ctx context.Context, mounted domain.PageState, token string, started time.Time) {
	ctx = logger.WithSessionID(ctx, mounted.SessionID)
	l := logger.WithContext(ctx, c.logger).With(
		slog.String("product_id", mounted.ProductID),
		slog.String("mount_id", mounted.MountID),
	)

	raw, err := c.fetcher.FetchProduct(ctx, mounted.ProductID, token)
	if ctx.Err() != nil {
		productFetchTotal.WithLabelValues(outcomeCancelled).Inc()
		l.Debug("product fetch cancelled")
		return
	}
	productFetchDuration.Observe(c.now().Sub(started).Seconds())

	var (
		outcome string
		reduce  func(domain.PageState, time.Time) (domain.PageState, error)
	)
	switch {
	case err == nil:
		outcome = outcomeSuccess
		detail, similar := domain.NormalizeResponse(raw)
		reduce = func(s domain.PageState, now time.Time) (domain.PageState, error) {
			return domain.FetchSucceeded(s, detail, similar, now)
		}
	case errors.Is(err, apperrors.ErrNotFound):
		outcome = outcomeNotFound
		reduce = func(s domain.PageState, now time.Time) (domain.PageState, error) {
			return domain.FetchFailed(s, domain.FailureNotFound, now)
		}
	default:
		outcome = outcomeUnavailable
		l.Warn("product fetch failed", slog.String("error", err.Error()))
		reduce = func(s domain.PageState, now time.Time) (domain.PageState, error) {
			return domain.FetchFailed(s, domain.FailureUnavailable, now)
		}
	}

	settled, applied, err := c.settle(ctx, mounted, reduce)
	switch {
	case err != nil:
		l.Error("failed to store fetch result", slog.String("error", err.Error()))
	case !applied:
		outcome = outcomeStale
		l.Debug("discarding fetch result for superseded mount")
	default:
		l.Info("product fetch settled", slog.String("outcome", outcome))
		if err := c.events.PublishPageSettled(ctx, settled); err != nil {
			l.Error("failed to publish page.settled event", slog.String("error", err.Error()))
		}
	}
	productFetchTotal.WithLabelValues(outcome).Inc()
}

// settle applies reduce to the stored snapshot if it still belongs to the
// mount and is Loading, and returns the stored result. It reports false
// when the result was discarded.
func (c *DetailsController) settle(
	ctx context.Context,
	mounted domain.PageState,
	reduce func(domain.PageState, time.Time) (domain.PageState, error),
) (domain.PageState, bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if ctx.Err() != nil {
			return domain.PageState{}, false, nil
		}

		current, err := c.repo.Get(ctx, mounted.SessionID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return domain.PageState{}, false, nil
			}
			return domain.PageState{}, false, err
		}
		if current.MountID != mounted.MountID || current.Status != domain.StatusLoading {
			return domain.PageState{}, false, nil
		}

		next, err := reduce(current, c.now())
		if err != nil {
			return domain.PageState{}, false, err
		}
		if ctx.Err() != nil {
			return domain.PageState{}, false, nil
		}

		err = c.repo.SaveIfVersion(ctx, next, current.Version)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return domain.PageState{}, false, err
		}
	}
	return domain.PageState{}, false, fmt.Errorf("settle page %s: too many concurrent updates", mounted.SessionID)
}

// lockSession locks the stripe of sessionID and returns its unlock.
func (c *DetailsController) lockSession(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	mu := &c.sessionMu[h.Sum32()%sessionStripes]
	mu.Lock()
	return mu.Unlock
}

// release drops h from the registry if it is still the session's current
// fetch, and signals its completion.
func (c *DetailsController) release(sessionID string, h *inflight) {
	c.mu.Lock()
	if cur, ok := c.inflight[sessionID]; ok && cur == h {
		delete(c.inflight, sessionID)
	}
	c.mu.Unlock()
	h.cancel()
	close(h.done)
}

// Increment raises the quantity by one, up to the configured cap.
func (c *DetailsController) Increment(ctx context.Context, sessionID string) (domain.PageState, error) {
	return c.changeQuantity(ctx, sessionID, ActionIncrement, func(s domain.PageState, now time.Time) (domain.PageState, bool) {
		return domain.Increment(s, c.maxQuantity, now)
	})
}

// Decrement lowers the quantity by one; at 1 it does nothing.
func (c *DetailsController) Decrement(ctx context.Context, sessionID string) (domain.PageState, error) {
	return c.changeQuantity(ctx, sessionID, ActionDecrement, domain.Decrement)
}

// ApplyAction dispatches a stepper action by name.
func (c *DetailsController) ApplyAction(ctx context.Context, sessionID, action string) (domain.PageState, error) {
	switch action {
	case ActionIncrement:
		return c.Increment(ctx, sessionID)
	case ActionDecrement:
		return c.Decrement(ctx, sessionID)
	default:
		return domain.PageState{}, apperrors.InvalidInput("unknown quantity action " + strconv.Quote(action))
	}
}

// changeQuantity applies a quantity reducer with optimistic locking. The
// stepper only exists on a loaded page, so other statuses are a conflict.
func (c *DetailsController) changeQuantity(
	ctx context.Context,
	sessionID, action string,
	reduce func(domain.PageState, time.Time) (domain.PageState, bool),
) (domain.PageState, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := c.repo.Get(ctx, sessionID)
		if err != nil {
			return domain.PageState{}, fmt.Errorf("%s quantity: %w", action, err)
		}
		if current.Status != domain.StatusSuccess {
			return current, apperrors.Conflict("quantity can only change once the product has loaded")
		}

		next, changed := reduce(current, c.now())
		quantityChangesTotal.WithLabelValues(action, strconv.FormatBool(changed)).Inc()
		if !changed {
			return current, nil
		}

		err = c.repo.SaveIfVersion(ctx, next, current.Version)
		if err == nil {
			if err := c.events.PublishQuantityChanged(ctx, next); err != nil {
				logger.WithContext(ctx, c.logger).Error("failed to publish page.quantity_changed event",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
			return next, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return domain.PageState{}, fmt.Errorf("%s quantity: %w", action, err)
		}
	}
	return domain.PageState{}, apperrors.Conflict("page was modified concurrently, try again")
}

// State returns the current snapshot of a session.
func (c *DetailsController) State(ctx context.Context, sessionID string) (domain.PageState, error) {
	s, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return domain.PageState{}, fmt.Errorf("get page state: %w", err)
	}
	return s, nil
}

// Unmount cancels the session's fetch and forgets the session.
func (c *DetailsController) Unmount(ctx context.Context, sessionID string) error {
	unlock := c.lockSession(sessionID)
	defer unlock()

	c.mu.Lock()
	if h, ok := c.inflight[sessionID]; ok {
		h.cancel()
		delete(c.inflight, sessionID)
	}
	c.mu.Unlock()

	if err := c.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("unmount page: %w", err)
	}
	return nil
}

// InFlight returns the number of sessions with a running fetch.
func (c *DetailsController) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Close cancels every running fetch and waits for them to return or for ctx
// to end.
func (c *DetailsController) Close(ctx context.Context) error {
	c.stopBase()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close details controller: %w", ctx.Err())
	}
}
