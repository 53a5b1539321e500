package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func TestShow_RendersLoadedProduct(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/products/16", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.Contains(t, body, "Wide Bowknot Hat")
	assert.Contains(t, body, "Rs 499/-")
	assert.Contains(t, body, "879 Reviews")
	assert.Contains(t, body, "by Allen Solly")

	c := sessionCookieFrom(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
}

func TestShow_ForwardsTokenCookie(t *testing.T) {
	fetcher := &stubFetcher{product: testProduct()}
	srv := newTestServer(t, testConfig(), fetcher)

	srv.do(http.MethodGet, "/products/16", "", &http.Cookie{Name: "jwt_token", Value: "tok-abc"})
	srv.do(http.MethodGet, "/products/16", "")

	assert.Equal(t, []string{"tok-abc", ""}, fetcher.seenTokens())
}

func TestShow_ReusesSessionCookie(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	first := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))
	second := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", "", first))

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, 1, srv.repo.Len())
}

func TestShow_ReplacesMalformedSessionCookie(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/products/16", "", &http.Cookie{Name: SessionCookie, Value: "../../etc"})

	assert.NotEqual(t, "../../etc", sessionCookieFrom(t, rec).Value)
}

func TestShow_ProductNotFound(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{err: apperrors.NotFound("product", "99")})

	rec := srv.do(http.MethodGet, "/products/99", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Product Not Found")
	assert.Contains(t, body, "Continue Shopping")
	assert.NotContains(t, body, "detail-view-container")
	assert.NotContains(t, body, "list-product-item")
}

func TestShow_ProductServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{err: apperrors.Unavailable("product service error", 500)})

	rec := srv.do(http.MethodGet, "/products/16", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.Contains(t, rec.Body.String(), "Retry")
}

func TestShow_InvalidProductID(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/products/%C3%A9t%C3%A9", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShow_LoadingThenView(t *testing.T) {
	cfg := testConfig()
	cfg.RenderWait = 10 * time.Millisecond
	fetcher := &stubFetcher{product: testProduct(), gate: make(chan struct{})}
	srv := newTestServer(t, cfg, fetcher)

	rec := srv.do(http.MethodGet, "/products/16", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "loader-container")
	assert.Contains(t, rec.Body.String(), `url=/products/16/view`)
	cookie := sessionCookieFrom(t, rec)

	close(fetcher.gate)

	require.Eventually(t, func() bool {
		s, err := srv.controller.State(t.Context(), cookie.Value)
		return err == nil && s.Status == domain.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)

	rec = srv.do(http.MethodGet, "/products/16/view", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wide Bowknot Hat")
	assert.NotContains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.Len(t, fetcher.seenTokens(), 1, "view must not refetch")
}

func TestView_WithoutSessionRedirectsToMount(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodGet, "/products/16/view", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products/16", rec.Header().Get("Location"))
}

func TestView_OtherProductRedirectsToMount(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})
	cookie := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))

	rec := srv.do(http.MethodGet, "/products/17/view", "", cookie)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products/17", rec.Header().Get("Location"))
}

func TestQuantity_StepperForms(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})
	cookie := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))

	rec := srv.do(http.MethodPost, "/products/16/quantity/increment", "", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products/16/view", rec.Header().Get("Location"))

	srv.do(http.MethodPost, "/products/16/quantity/increment", "", cookie)
	srv.do(http.MethodPost, "/products/16/quantity/decrement", "", cookie)

	rec = srv.do(http.MethodGet, "/products/16/view", "", cookie)
	assert.Contains(t, rec.Body.String(), `<p class="product-quantity">2</p>`)
}

func TestQuantity_DecrementClampsAtOne(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})
	cookie := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))

	srv.do(http.MethodPost, "/products/16/quantity/decrement", "", cookie)

	rec := srv.do(http.MethodGet, "/products/16/view", "", cookie)
	assert.Contains(t, rec.Body.String(), `<p class="product-quantity">1</p>`)
}

func TestQuantity_WithoutSessionRedirectsToMount(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodPost, "/products/16/quantity/increment", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products/16", rec.Header().Get("Location"))
}

func TestQuantity_UnknownActionIsNotRouted(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})

	rec := srv.do(http.MethodPost, "/products/16/quantity/reset", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnmount_DropsSession(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubFetcher{product: testProduct()})
	cookie := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))
	require.Equal(t, 1, srv.repo.Len())

	rec := srv.do(http.MethodPost, "/products/16/unmount", "", cookie)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, srv.repo.Len())
}

func TestUnmount_CancelsPendingFetch(t *testing.T) {
	cfg := testConfig()
	cfg.RenderWait = 0
	fetcher := &stubFetcher{product: testProduct(), gate: make(chan struct{})}
	srv := newTestServer(t, cfg, fetcher)
	cookie := sessionCookieFrom(t, srv.do(http.MethodGet, "/products/16", ""))

	srv.do(http.MethodPost, "/products/16/unmount", "", cookie)

	require.Eventually(t, func() bool { return srv.controller.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, srv.repo.Len())
}
