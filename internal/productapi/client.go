package productapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/tracing"
)

// maxBodyBytes bounds a product payload.
const maxBodyBytes = 4 << 20

// Client fetches product records from the remote product API.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a product API client rooted at baseURL, e.g.
// "https://apis.ccbp.in".
func New(baseURL string, hc *httpclient.CircuitBreakerClient, l *slog.Logger) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracing.Tracer("github.com/utafrali/storefront/internal/productapi"),
		logger:  l,
	}
}

// ProductURL returns the URL of one product record.
func (c *Client) ProductURL(id string) string {
	return c.baseURL + "/products/" + url.PathEscape(id)
}

// FetchProduct performs GET {base}/products/{id}. The bearer token is sent
// only when non-empty.
//
// A 404 answer yields an ErrNotFound error. Other failures (non-2xx
// statuses, transport errors, an open breaker, undecodable bodies) yield an
// ErrUnavailable or ErrUnauthorized error. Caller cancellation is returned
// as the context's own error.
func (c *Client) FetchProduct(ctx context.Context, id, token string) (domain.RawProduct, error) {
	ctx, span := c.tracer.Start(ctx, "ProductAPI.FetchProduct",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("product.id", id),
			attribute.Bool("auth.token_present", token != ""),
		),
	)
	defer span.End()

	raw, err := c.fetch(ctx, id, token)
	if err != nil {
		if ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return domain.RawProduct{}, err
	}
	return raw, nil
}

func (c *Client) fetch(ctx context.Context, id, token string) (domain.RawProduct, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	tracing.InjectHeaders(ctx, header)

	resp, err := c.http.Get(ctx, c.ProductURL(id), header)
	if err != nil {
		return domain.RawProduct{}, c.transportError(ctx, id, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.RawProduct{}, httpclient.ParseResponseError(resp, "product", id)
	}
	defer func() { _ = resp.Body.Close() }()

	var raw domain.RawProduct
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&raw); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.RawProduct{}, ctxErr
		}
		return domain.RawProduct{}, unavailable("decode product response", 0, err)
	}
	return raw, nil
}

func (c *Client) transportError(ctx context.Context, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		return unavailable("product service error", statusErr.StatusCode, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "product fetch rejected by circuit breaker",
			slog.String("product_id", id),
		)
		return unavailable("product service circuit open", 0, err)
	default:
		return unavailable("product service unreachable", 0, err)
	}
}

// Healthy reports an error while the circuit breaker is open.
func (c *Client) Healthy(context.Context) error {
	if c.http.State() == gobreaker.StateOpen {
		return fmt.Errorf("product API circuit breaker is open")
	}
	return nil
}

func unavailable(message string, status int, cause error) error {
	appErr := apperrors.Unavailable(message, status)
	appErr.Err = fmt.Errorf("%w: %w", apperrors.ErrUnavailable, cause)
	return appErr
}
