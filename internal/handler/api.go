package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
)

// PageAPIHandler exposes page state as JSON.
type PageAPIHandler struct {
	controller PageController
	sessions   sessionCookies
	renderWait time.Duration
	logger     *slog.Logger
}

// NewPageAPIHandler creates the JSON page handler.
func NewPageAPIHandler(c PageController, opts PageOptions, logger *slog.Logger) *PageAPIHandler {
	return &PageAPIHandler{
		controller: c,
		sessions:   sessionCookies{ttl: opts.SessionTTL, secure: opts.SecureCookie},
		renderWait: opts.RenderWait,
		logger:     logger,
	}
}

// --- Request DTOs ---

// QuantityRequest is the JSON body of a quantity change.
type QuantityRequest struct {
	Action string `json:"action" validate:"required,oneof=increment decrement"`
}

// --- Handlers ---

// GetPage handles GET /api/v1/products/{id}/page. The session's page is
// returned as is when it shows this product; otherwise the product is
// mounted first.
func (h *PageAPIHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if err := validateProductID(productID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sessionID := h.sessions.ensure(w, r)
	ctx := logger.WithSessionID(r.Context(), sessionID)

	state, err := h.controller.State(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) || (err == nil && !belongsTo(state, productID)) {
		state, err = mountAndWait(ctx, h.controller, h.renderWait, sessionID, productID, middleware.TokenFromContext(ctx))
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// ChangeQuantity handles POST /api/v1/products/{id}/page/quantity.
func (h *PageAPIHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req QuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sessionID, ok := h.sessions.existing(r)
	if !ok {
		httputil.WriteError(w, r, apperrors.NotFound("page session", productID), h.logger)
		return
	}

	current, err := h.controller.State(r.Context(), sessionID)
	if err == nil && !belongsTo(current, productID) {
		err = apperrors.NotFound("page session", productID)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	state, err := h.controller.ApplyAction(r.Context(), sessionID, req.Action)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}
