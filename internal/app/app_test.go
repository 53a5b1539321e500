package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func productAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/16" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": 16, "title": "Wide Bowknot Hat", "brand": "MAJIK", "price": 499,
			"rating": 3.6, "total_reviews": 879, "availability": "In Stock",
			"description": "Straw hat", "image_url": "https://assets.example.com/hat.png",
			"similar_products": [{"id": 17, "title": "Slim Fit Shirt", "brand": "Allen Solly", "price": 1499, "rating": 4.1}]
		}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Environment:         "test",
		ServiceName:         "storefront-app-test",
		HTTPPort:            0,
		ShutdownTimeout:     time.Second,
		ProductAPIURL:       apiURL,
		ProductAPITimeout:   2 * time.Second,
		ProductAPIRetries:   0,
		TokenCookie:         "jwt_token",
		RenderWait:          2 * time.Second,
		RefreshSeconds:      1,
		SessionStore:        config.StoreMemory,
		SessionTTL:          time.Hour,
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		CORSAllowedOrigins:  []string{"*"},
		MetricsAllowedCIDRs: []string{"127.0.0.0/8"},
		OTELSampleRate:      1,
	}
}

func TestNewApp_MemoryStore_ServesProductPage(t *testing.T) {
	api := productAPI(t)
	a, err := NewApp(testConfig(api.URL), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/16", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wide Bowknot Hat")
	assert.Contains(t, rec.Body.String(), "Rs 499/-")
	assert.Contains(t, rec.Body.String(), "Slim Fit Shirt")
}

func TestNewApp_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	api := productAPI(t)
	cfg := testConfig(api.URL)
	cfg.SessionStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()

	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product Not Found")
	assert.Len(t, mr.Keys(), 1)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("http://127.0.0.1:1")
	cfg.SessionStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()
	mr.Close()

	_, err := NewApp(cfg, testLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestNewApp_EventsEnabled_BrokerDownDegradesReadiness(t *testing.T) {
	api := productAPI(t)
	cfg := testConfig(api.URL)
	cfg.EventsEnabled = true
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}
	cfg.EventsTopic = "storefront.page-events"

	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, a.producer)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kafka"`)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, err := NewApp(testConfig("http://127.0.0.1:1"), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
