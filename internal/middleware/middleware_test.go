package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusevents/ticketing/internal/config"
	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/utils"
)

const testSecret = "test-secret"

func newContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "hello "+UserID(c))
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	tok, err := utils.NewAccessToken(testSecret, "user-42", model.RoleClubAdmin, 5)
	require.NoError(t, err)

	c, rec := newContext(http.MethodGet, "/v1/auth/me")
	c.Request().Header.Set("Authorization", "Bearer "+tok.Token)

	require.NoError(t, JWTAuth(testSecret)(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello user-42", rec.Body.String())
	assert.Equal(t, model.RoleClubAdmin, Role(c))
}

func TestJWTAuthRejects(t *testing.T) {
	other, err := utils.NewAccessToken("another-secret", "user-42", model.RoleStudent, 5)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not-a-jwt",
		"wrong secret":   "Bearer " + other.Token,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/v1/auth/me")
			if header != "" {
				c.Request().Header.Set("Authorization", header)
			}
			require.NoError(t, JWTAuth(testSecret)(ok)(c))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(model.RoleClubAdmin, model.RoleSuperAdmin)

	c, rec := newContext(http.MethodGet, "/v1/admin/stats")
	c.Set(ContextRole, model.RoleStudent)
	require.NoError(t, mw(ok)(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newContext(http.MethodGet, "/v1/admin/stats")
	c.Set(ContextRole, model.RoleSuperAdmin)
	require.NoError(t, mw(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNilRedisDisablesCacheAndRateLimit(t *testing.T) {
	cache := NewRedisCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}}, nil)
	limit := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil)

	c, rec := newContext(http.MethodGet, "/v1/events")
	require.NoError(t, cache(limit(ok))(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRedisCacheServesHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "cache"}

	c, rec := newContext(http.MethodGet, "/v1/events?type=workshop")
	c.SetPath("/v1/events")
	key := cacheKeyFrom(cfg, c)
	payload, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {echo.MIMEApplicationJSON}}, []byte(`[]`))
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(payload))

	called := false
	next := func(c echo.Context) error { called = true; return nil }
	require.NoError(t, NewRedisCache(cfg, db)(next)(c))

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, `[]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheStoresMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "cache"}

	c, rec := newContext(http.MethodGet, "/v1/events")
	c.SetPath("/v1/events")
	key := cacheKeyFrom(cfg, c)
	want, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {echo.MIMETextPlainCharsetUTF8}}, []byte("hello "))
	require.NoError(t, err)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetEx(key, want, time.Minute).SetVal("OK")

	require.NoError(t, NewRedisCache(cfg, db)(ok)(c))

	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "hello ", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeyIncludesPathParams(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache"}

	a, _ := newContext(http.MethodGet, "/v1/events/a")
	a.SetPath("/v1/events/:id")
	a.SetParamNames("id")
	a.SetParamValues("a")

	b, _ := newContext(http.MethodGet, "/v1/events/b")
	b.SetPath("/v1/events/:id")
	b.SetParamNames("id")
	b.SetParamValues("b")

	assert.NotEqual(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b))
}

func TestDecodePayloadRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 0, 0})
	assert.False(t, ok)
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock = func() time.Time { return fixed }
	defer func() { clock = time.Now }()

	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Second,
		TTL: time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	c, rec := newContext(http.MethodPost, "/v1/events/e1/register")
	key := buildRateKey(cfg, c)
	assert.Equal(t, "rl:ip:192.0.2.10", key)

	mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, limiterArgs(cfg, fixed)...).
		SetVal([]interface{}{int64(0), int64(0), int64(1500)})

	require.NoError(t, NewTokenBucket(cfg, db)(ok)(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketAllowsAndReportsRemaining(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock = func() time.Time { return fixed }
	defer func() { clock = time.Now }()

	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 5, RefillTokens: 1, RefillInterval: 2 * time.Second,
		TTL: time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	c, rec := newContext(http.MethodPost, "/v1/events/e1/register")
	key := buildRateKey(cfg, c)

	assert.Equal(t, []interface{}{5, 1, int64(2000), int64(60000), fixed.UnixMilli()}, limiterArgs(cfg, fixed))

	mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, limiterArgs(cfg, fixed)...).
		SetVal([]interface{}{int64(1), int64(4), int64(0)})

	called := false
	next := func(c echo.Context) error { called = true; return c.NoContent(http.StatusOK) }
	require.NoError(t, NewTokenBucket(cfg, db)(next)(c))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketFailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock = func() time.Time { return fixed }
	defer func() { clock = time.Now }()

	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second,
		TTL: time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	c, _ := newContext(http.MethodPost, "/v1/events/e1/register")
	mock.ExpectEvalSha(limiterScript.Hash(), []string{buildRateKey(cfg, c)}, limiterArgs(cfg, fixed)...).
		SetErr(errors.New("connection refused"))

	called := false
	next := func(c echo.Context) error { called = true; return nil }
	require.NoError(t, NewTokenBucket(cfg, db)(next)(c))
	assert.True(t, called)
}

func TestBuildRateKeyStrategies(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/v1/events/e1/register")
	c.SetPath("/v1/events/:id/register")
	c.Set(ContextUserID, "u1")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	cfg.KeyStrategy = "user_route"
	assert.Equal(t, "rl:user:u1:route:POST /v1/events/:id/register", buildRateKey(cfg, c))
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:192.0.2.10:user:u1:route:POST /v1/events/:id/register", buildRateKey(cfg, c))
}
