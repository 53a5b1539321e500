package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/view"
	"github.com/utafrali/storefront/pkg/health"
)

// ============================================================================
// Test helpers
// ============================================================================

// stubFetcher answers every fetch with product or err. When gate is set the
// fetch blocks until it is closed.
type stubFetcher struct {
	mu      sync.Mutex
	tokens  []string
	gate    chan struct{}
	product domain.RawProduct
	err     error
}

func (f *stubFetcher) FetchProduct(ctx context.Context, _, token string) (domain.RawProduct, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.RawProduct{}, ctx.Err()
		}
	}
	return f.product, f.err
}

func (f *stubFetcher) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func priceOf(n int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(n))
}

func ratingOf(r float64) *float64 {
	return &r
}

func testProduct() domain.RawProduct {
	reviews := 879
	return domain.RawProduct{
		ID:           "16",
		Title:        "Wide Bowknot Hat",
		Brand:        "MAJIK",
		Price:        priceOf(499),
		Rating:       ratingOf(3.6),
		TotalReviews: &reviews,
		SimilarProducts: []domain.RawProduct{
			{ID: "17", Title: "Slim Fit Shirt", Brand: "Allen Solly", Price: priceOf(1499), Rating: ratingOf(4.1)},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:         "storefront-test",
		TokenCookie:         "jwt_token",
		RenderWait:          2 * time.Second,
		RefreshSeconds:      1,
		SessionTTL:          time.Hour,
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		CORSAllowedOrigins:  []string{"*"},
		MetricsAllowedCIDRs: []string{"10.0.0.0/8"},
	}
}

type testServer struct {
	handler    http.Handler
	controller *service.DetailsController
	repo       *memory.PageStateRepository
}

func newTestServer(t *testing.T, cfg *config.Config, fetcher service.ProductFetcher) *testServer {
	t.Helper()

	repo := memory.NewPageStateRepository(cfg.SessionTTL)
	controller := service.NewDetailsController(repo, fetcher, testLogger(), service.Options{MaxQuantity: cfg.MaxQuantity})
	renderer, err := view.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		closeCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = controller.Close(closeCtx)
	})

	return &testServer{
		handler:    NewRouter(ctx, cfg, controller, renderer, health.NewHandler(), testLogger()),
		controller: controller,
		repo:       repo,
	}
}

// do sends a request carrying the given cookies.
func (s *testServer) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", SessionCookie)
	return nil
}

// ============================================================================
// Infrastructure routes
// ============================================================================

func TestRouter_HealthLive(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestRouter_MetricsAllowlist(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	// httptest requests come from 192.0.2.1, outside the allowlist.
	rec := srv.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_PprofDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/debug/pprof/", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_StaticAssetsAreCacheable(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/static/storefront.css", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
}

func TestRouter_APIPreflight(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products/16/page/quantity", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	srv := newTestServer(t, cfg, &stubFetcher{product: testProduct()})

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, srv.do(http.MethodGet, "/health/live", "").Code)
}
