package middleware

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-show-booking/internal/config"
	"github.com/iliyamo/school-show-booking/internal/utils"
)

const secret = "test-secret"

func protected(roles ...string) *echo.Echo {
	e := echo.New()
	e.GET("/ops", func(c echo.Context) error {
		return c.String(http.StatusOK, OperatorID(c))
	}, JWTAuth(secret), RequireRole(roles...))
	return e
}

func get(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := protected(utils.RoleOperator, utils.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, get(e, "/ops", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/ops", "garbage").Code)

	clerk, err := utils.NewAccessToken(secret, 3, utils.RoleClerk, 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(e, "/ops", clerk.Token).Code)

	op, err := utils.NewAccessToken(secret, 9, utils.RoleOperator, 5)
	require.NoError(t, err)
	rec := get(e, "/ops", op.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Body.String())

	forged, err := utils.NewAccessToken("other", 9, utils.RoleAdmin, 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/ops", forged.Token).Code)
}

func TestRequestLoggerLevels(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	e := echo.New()
	e.Use(RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/bad", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "nope") })

	get(e, "/ok", "")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, http.StatusNoContent, entry.Data["status"])

	rec := get(e, "/bad", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "/bad", entry.Data["route"])
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, log))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(e, "/x", "").Code)
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/slots/4/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/slots/:id/bookings")
	c.Set(ctxOperatorID, "12")

	assert.Equal(t, "rl:ip:10.0.0.7", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
	assert.Equal(t, "rl:user:12", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
	assert.Equal(t, "rl:ip:10.0.0.7:user:12:route:POST /v1/slots/:id/bookings",
		rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}, c))
}

func summaryKey(pathAndQuery string) string {
	sum := sha1.Sum([]byte(pathAndQuery))
	return fmt.Sprintf("summary:%x", sum[:])
}

func TestImmutableCacheServesHit(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	rdb, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, TTL: time.Hour, Prefix: "summary", MaxBodyBytes: 1024}

	calls := 0
	e := echo.New()
	e.GET("/v1/summaries/daily/:date", func(c echo.Context) error {
		calls++
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(`{"revenue":1}`))
	}, ImmutableCache(cfg, rdb, log))

	key := summaryKey("/v1/summaries/daily/2024-03-15?")
	payload, err := json.Marshal(cachedResponse{ContentType: echo.MIMEApplicationJSON, Body: []byte(`{"revenue":28000}`)})
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(payload))

	rec := get(e, "/v1/summaries/daily/2024-03-15", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"revenue":28000}`, rec.Body.String())
	assert.Zero(t, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImmutableCacheMissCallsHandler(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	rdb, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, TTL: time.Hour, Prefix: "summary"}

	e := echo.New()
	e.GET("/v1/summaries/daily/:date", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}, ImmutableCache(cfg, rdb, log))

	key := summaryKey("/v1/summaries/daily/2024-03-16?")
	mock.ExpectGet(key).RedisNil()

	rec := get(e, "/v1/summaries/daily/2024-03-16", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
