package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// --- RateLimit ---

func TestRateLimit_RejectsAfterBurst(t *testing.T) {
	e := echo.New()
	e.POST("/login", okHandler, RateLimit(3, time.Minute))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		assert.Equal(t, http.StatusOK, serve(e, req).Code, "request %d", i+1)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	rec := serve(e, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_SeparateBucketsPerIP(t *testing.T) {
	e := echo.New()
	e.POST("/login", okHandler, RateLimit(1, time.Minute))

	first := httptest.NewRequest(http.MethodPost, "/login", nil)
	first.RemoteAddr = "203.0.113.7:1234"
	assert.Equal(t, http.StatusOK, serve(e, first).Code)

	other := httptest.NewRequest(http.MethodPost, "/login", nil)
	other.RemoteAddr = "198.51.100.9:1234"
	assert.Equal(t, http.StatusOK, serve(e, other).Code)
}

func TestRateLimit_Concurrent(t *testing.T) {
	e := echo.New()
	e.POST("/login", okHandler, RateLimit(5, time.Minute))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.RemoteAddr = "203.0.113.7:1234"
			if serve(e, req).Code == http.StatusOK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

// --- CSRF ---

func TestCSRF(t *testing.T) {
	e := echo.New()
	e.Use(CSRF([]string{"https://app.example.com"}))
	e.GET("/read", okHandler)
	e.POST("/write", okHandler)

	tests := []struct {
		name        string
		method      string
		path        string
		origin      string
		contentType string
		body        string
		want        int
	}{
		{"safe method skips checks", http.MethodGet, "/read", "https://evil.example", "", "", http.StatusOK},
		{"allowed origin json", http.MethodPost, "/write", "https://app.example.com", "application/json", `{}`, http.StatusOK},
		{"json with charset", http.MethodPost, "/write", "https://app.example.com", "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"no origin json", http.MethodPost, "/write", "", "application/json", `{}`, http.StatusOK},
		{"same host origin", http.MethodPost, "/write", "http://example.com", "application/json", `{}`, http.StatusOK},
		{"foreign origin", http.MethodPost, "/write", "https://evil.example", "application/json", `{}`, http.StatusForbidden},
		{"form post", http.MethodPost, "/write", "", "application/x-www-form-urlencoded", "a=b", http.StatusUnsupportedMediaType},
		{"text plain", http.MethodPost, "/write", "https://app.example.com", "text/plain", `{}`, http.StatusUnsupportedMediaType},
		{"empty body", http.MethodPost, "/write", "https://app.example.com", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.contentType != "" {
				req.Header.Set(echo.HeaderContentType, tt.contentType)
			}
			assert.Equal(t, tt.want, serve(e, req).Code)
		})
	}
}

// --- CORS ---

func TestCORS_AllowedOriginPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true}))
	e.POST("/write", okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/write", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := serve(e, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true}))
	e.GET("/read", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := serve(e, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- TrustedProxies ---

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct client ignores headers", "203.0.113.7:5000", "1.2.3.4", "", "203.0.113.7"},
		{"trusted proxy single hop", "10.0.0.2:5000", "203.0.113.7", "", "203.0.113.7"},
		{"spoofed leftmost entry ignored", "10.0.0.2:5000", "1.2.3.4, 203.0.113.7", "", "203.0.113.7"},
		{"chained trusted proxies", "10.0.0.2:5000", "203.0.113.7, 10.0.0.9", "", "203.0.113.7"},
		{"x-real-ip fallback", "10.0.0.2:5000", "", "203.0.113.7", "203.0.113.7"},
		{"garbage header", "10.0.0.2:5000", "nonsense", "", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, extract(req))
		})
	}
}

// --- Recovery / SecurityHeaders / Metrics ---

func TestRecovery_ReturnsJSON500(t *testing.T) {
	e := echo.New()
	e.Use(Recovery())
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/read", okHandler)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/read", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeHTTPRecorder struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	fake := &fakeHTTPRecorder{}
	e := echo.New()
	e.Use(Metrics(fake))
	e.GET("/api/users/resetPwd/:resetToken", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired token")
	})

	serve(e, httptest.NewRequest(http.MethodGet, "/api/users/resetPwd/secret-token", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, fake.seen, 2)
	assert.Equal(t, recordedRequest{http.MethodGet, "/api/users/resetPwd/:resetToken", http.StatusBadRequest}, fake.seen[0])
	assert.Equal(t, http.StatusNotFound, fake.seen[1].status)
}
