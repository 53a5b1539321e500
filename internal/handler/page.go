package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/view"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// PageHandler serves the HTML product details page.
type PageHandler struct {
	controller     PageController
	renderer       *view.Renderer
	sessions       sessionCookies
	renderWait     time.Duration
	refreshSeconds int
	logger         *slog.Logger
}

// PageOptions tunes a PageHandler.
type PageOptions struct {
	RenderWait     time.Duration
	RefreshSeconds int
	SessionTTL     time.Duration
	SecureCookie   bool
}

// NewPageHandler creates a page handler.
func NewPageHandler(c PageController, renderer *view.Renderer, opts PageOptions, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		controller:     c,
		renderer:       renderer,
		sessions:       sessionCookies{ttl: opts.SessionTTL, secure: opts.SecureCookie},
		renderWait:     opts.RenderWait,
		refreshSeconds: opts.RefreshSeconds,
		logger:         logger,
	}
}

// Show handles GET /products/{id}: mount the page and render it.
func (h *PageHandler) Show(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if err := validateProductID(productID); err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	sessionID := h.sessions.ensure(w, r)
	ctx := logger.WithSessionID(r.Context(), sessionID)
	token := middleware.TokenFromContext(ctx)

	state, err := mountAndWait(ctx, h.controller, h.renderWait, sessionID, productID, token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, state)
}

// View handles GET /products/{id}/view: render the stored page without
// fetching. Requests without a page for this product are sent to Show.
func (h *PageHandler) View(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	sessionID, ok := h.sessions.existing(r)
	if !ok {
		http.Redirect(w, r, view.ProductPath(productID), http.StatusSeeOther)
		return
	}

	state, err := h.controller.State(r.Context(), sessionID)
	if errors.Is(err, apperrors.ErrNotFound) || (err == nil && !belongsTo(state, productID)) {
		http.Redirect(w, r, view.ProductPath(productID), http.StatusSeeOther)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, state)
}

// Quantity handles POST /products/{id}/quantity/{action} from the stepper
// forms and redirects back to the view.
func (h *PageHandler) Quantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	sessionID, ok := h.sessions.existing(r)
	if !ok {
		http.Redirect(w, r, view.ProductPath(productID), http.StatusSeeOther)
		return
	}

	current, err := h.controller.State(r.Context(), sessionID)
	if errors.Is(err, apperrors.ErrNotFound) || (err == nil && !belongsTo(current, productID)) {
		http.Redirect(w, r, view.ProductPath(productID), http.StatusSeeOther)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_, err = h.controller.ApplyAction(r.Context(), sessionID, chi.URLParam(r, "action"))
	switch {
	case err == nil, errors.Is(err, apperrors.ErrConflict):
		// A page that is not loaded yet just shows its current view.
		http.Redirect(w, r, view.ViewPath(productID), http.StatusSeeOther)
	case errors.Is(err, apperrors.ErrNotFound):
		http.Redirect(w, r, view.ProductPath(productID), http.StatusSeeOther)
	case errors.Is(err, apperrors.ErrInvalidInput):
		http.Error(w, "unknown quantity action", http.StatusBadRequest)
	default:
		h.fail(w, r, err)
	}
}

// Unmount handles POST /products/{id}/unmount: the shopper left the page.
func (h *PageHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.sessions.existing(r); ok {
		if err := h.controller.Unmount(r.Context(), sessionID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, state domain.PageState) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, view.Page{State: state, RefreshSeconds: h.refreshSeconds}); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(pageStatus(state))
	_, _ = buf.WriteTo(w)
}

// pageStatus is the HTTP status a rendered page is served with.
func pageStatus(s domain.PageState) int {
	if s.Status != domain.StatusFailure {
		return http.StatusOK
	}
	if s.Failure == domain.FailureNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// Client went away or the request timed out.
		return
	}
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context(), h.logger).Error("page request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	http.Error(w, http.StatusText(status), status)
}
