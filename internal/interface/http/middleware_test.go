package http

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordedRequest struct {
	route  string
	method string
	status int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeObserver) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{route: route, method: method, status: status})
}

func TestRequestLogger_ObservesRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := &fakeObserver{}
	s := setupStoreAPI()
	api := NewAPI(Dependencies{
		ProductService: s.api.productSvc,
		CartService:    s.api.cartSvc,
		TokenService:   s.tokens,
		Logger:         zap.New(core),
		Observer:       obs,
	})

	rec := doJSON(t, api.Router(), http.MethodGet, "/api/v1/products/999", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, []recordedRequest{{route: "/api/v1/products/{id}", method: http.MethodGet, status: http.StatusNotFound}}, obs.seen)

	entries := logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])
}

func TestRateLimit_PerClientIP(t *testing.T) {
	s := setupStoreAPI()
	api := NewAPI(Dependencies{
		ProductService: s.api.productSvc,
		RateLimit:      0.001,
		RateBurst:      2,
	})
	router := api.Router()

	get := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get("10.0.0.1:1000"))
	require.Equal(t, http.StatusOK, get("10.0.0.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, get("10.0.0.1:1002"))
	require.Equal(t, http.StatusOK, get("10.0.0.2:1000"), "other clients keep their own budget")
}

func TestMetricsEndpoint(t *testing.T) {
	api := NewAPI(Dependencies{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	})

	rec := doJSON(t, api.Router(), http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "metrics", rec.Body.String())
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	first := l.get("10.0.0.1")
	require.True(t, first.Allow())
	now = now.Add(limiterIdleTTL / 2)
	l.get("10.0.0.2")
	require.Len(t, l.visitors, 2)

	now = now.Add(limiterIdleTTL / 2)
	l.get("10.0.0.2")
	require.Len(t, l.visitors, 1, "idle client dropped")
	require.Contains(t, l.visitors, "10.0.0.2")

	require.NotSame(t, first, l.get("10.0.0.1"), "returning client starts with a fresh bucket")
}
