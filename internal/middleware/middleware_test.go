package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/mindwell/internal/config"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/repository/memstore"
	"github.com/iliyamo/mindwell/internal/utils"
)

const testSecret = "test-secret"

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func serve(e *echo.Echo, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

// withActor stands in for the JWT and actor middleware.
func withActor(a policy.Actor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			SetActor(c, a)
			return next(c)
		}
	}
}

func rateCfg(capacity int) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "test:rl",
		LocalFallback:  true,
	}
}

func TestTokenBucket_Redis(t *testing.T) {
	rdb, _ := newRedis(t)
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(rateCfg(2), rdb, zaptest.NewLogger(t)))

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodGet, "/x", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := serve(e, http.MethodGet, "/x", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTokenBucket_LocalFallbackWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(rateCfg(2), nil, zaptest.NewLogger(t)))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "", nil).Code)
	rec := serve(e, http.MethodGet, "/x", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEqual(t, "0", rec.Header().Get("Retry-After"))
}

func TestTokenBucket_FallsBackWhenRedisFails(t *testing.T) {
	rdb, mr := newRedis(t)
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(rateCfg(1), rdb, zaptest.NewLogger(t)))

	mr.Close()
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/x", "", nil).Code)
}

func TestTokenBucket_Disabled(t *testing.T) {
	cfg := rateCfg(1)
	cfg.Enabled = false
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(cfg, nil, zaptest.NewLogger(t)))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "", nil).Code)
	}
}

func TestBuildRateKey_UsesActor(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/me", nil), httptest.NewRecorder())
	c.SetPath("/v1/me")
	SetActor(c, policy.Actor{UserID: 42, Role: model.RoleUser})
	cfg := rateCfg(1)
	cfg.KeyStrategy = "user"
	assert.Equal(t, "test:rl:user:42", buildRateKey(cfg, c))
}

func cacheCfg() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "test:cache",
	}
}

func TestResponseCache_HitAndInvalidate(t *testing.T) {
	rdb, _ := newRedis(t)
	rc := NewResponseCache(cacheCfg(), rdb)
	calls := 0
	e := echo.New()
	e.GET("/v1/disorders", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, rc.Middleware())

	first := serve(e, http.MethodGet, "/v1/disorders", "", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/v1/disorders", "", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)

	require.NoError(t, rc.Invalidate(context.Background()))
	third := serve(e, http.MethodGet, "/v1/disorders", "", nil)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestResponseCache_SkipsErrorsAndQueryVariants(t *testing.T) {
	rdb, mr := newRedis(t)
	rc := NewResponseCache(cacheCfg(), rdb)
	e := echo.New()
	e.GET("/v1/symptoms", func(c echo.Context) error {
		if c.QueryParam("disorder") == "bad" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad"})
		}
		return c.JSON(http.StatusOK, echo.Map{"disorder": c.QueryParam("disorder")})
	}, rc.Middleware())

	serve(e, http.MethodGet, "/v1/symptoms?disorder=bad", "", nil)
	assert.Empty(t, mr.Keys())

	a := serve(e, http.MethodGet, "/v1/symptoms?disorder=A", "", nil)
	b := serve(e, http.MethodGet, "/v1/symptoms?disorder=B", "", nil)
	assert.NotEqual(t, a.Body.String(), b.Body.String())
	assert.Len(t, mr.Keys(), 2)
}

func TestResponseCache_DisabledWithoutRedis(t *testing.T) {
	rc := NewResponseCache(cacheCfg(), nil)
	e := echo.New()
	e.GET("/x", ok, rc.Middleware())
	rec := serve(e, http.MethodGet, "/x", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	require.NoError(t, rc.Invalidate(context.Background()))
}

func TestPayloadRoundTrip(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(201, h, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 201, status)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0, 0, 1, 0, 0, 0, 9})
	assert.False(t, ok)
}

func TestJWTAuthAndResolveActor(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	active := &model.User{Username: "ann", Email: "ann@example.com", PasswordHash: "x", Role: model.RoleTherapist, IsActive: true}
	inactive := &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", Role: model.RoleUser, IsActive: false}
	require.NoError(t, st.Users.Create(ctx, active))
	require.NoError(t, st.Users.Create(ctx, inactive))

	e := echo.New()
	log := zaptest.NewLogger(t)
	e.GET("/who", func(c echo.Context) error {
		a, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, a)
	}, JWTAuth(testSecret), ResolveActor(st.Users, log))
	e.GET("/admin", ok, JWTAuth(testSecret), ResolveActor(st.Users, log), RequireRole(model.RoleAdmin))

	bearer := func(id uint64, role string) map[string]string {
		tok, err := utils.NewAccessToken(testSecret, id, role, 5)
		require.NoError(t, err)
		return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
	}

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/who", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e, http.MethodGet, "/who", "", map[string]string{echo.HeaderAuthorization: "Bearer junk"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/who", "", bearer(999, "admin")).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/who", "", bearer(inactive.ID, "user")).Code)

	// The role claim is ignored in favour of the stored role.
	rec := serve(e, http.MethodGet, "/who", "", bearer(active.ID, "admin"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":1,"role":"therapist"}`, rec.Body.String())
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", "", bearer(active.ID, "admin")).Code)
}

func TestRequireRole_NoActor(t *testing.T) {
	e := echo.New()
	e.GET("/x", ok, RequireRole(model.RoleUser))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/x", "", nil).Code)

	e.GET("/y", ok, withActor(policy.Actor{UserID: 1, Role: model.RoleAdmin}), RequireRole(model.RoleTherapist))
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/y", "", nil).Code)
}

func TestRequestLogger_RequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zaptest.NewLogger(t)))
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen = c.Response().Header().Get(echo.HeaderXRequestID)
		assert.NotNil(t, LoggerFrom(c, nil))
		return c.NoContent(http.StatusNoContent)
	})

	rec := serve(e, http.MethodGet, "/x", "", nil)
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, http.MethodGet, "/x", "", map[string]string{echo.HeaderXRequestID: "abc"})
	assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
}

func TestMetrics_PassesThroughErrors(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "no") })
	rec := serve(e, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
