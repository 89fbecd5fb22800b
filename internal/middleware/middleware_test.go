package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/internal/service"
)

const testSecret = "middleware-secret"

func signedToken(t *testing.T, role models.UserRole, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newProtectedRouter(op models.Operation) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret, AccessTokenExpiry: time.Hour}, nil)
	router := gin.New()
	router.GET("/resource/:id", JWT(auth), Authorize(op), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestJWTAndAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		op     models.Operation
		header string
		want   int
	}{
		{name: "missing header", op: models.OpTimetableRead, header: "", want: http.StatusUnauthorized},
		{name: "malformed header", op: models.OpTimetableRead, header: "Token abc", want: http.StatusUnauthorized},
		{name: "expired token", op: models.OpTimetableRead, header: "Bearer " + signedToken(t, models.RoleAdmin, -time.Minute), want: http.StatusUnauthorized},
		{name: "student reads timetable", op: models.OpTimetableRead, header: "Bearer " + signedToken(t, models.RoleStudent, time.Hour), want: http.StatusNoContent},
		{name: "student cannot activate", op: models.OpTimetableActivate, header: "Bearer " + signedToken(t, models.RoleStudent, time.Hour), want: http.StatusForbidden},
		{name: "admin activates", op: models.OpTimetableActivate, header: "Bearer " + signedToken(t, models.RoleAdmin, time.Hour), want: http.StatusNoContent},
		{name: "teacher has no personal timetable", op: models.OpTimetableMine, header: "Bearer " + signedToken(t, models.RoleTeacher, time.Hour), want: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newProtectedRouter(tc.op)
			req := httptest.NewRequest(http.MethodGet, "/resource/42", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthorizeWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", Authorize(models.OpSubjectRead), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type memoryCounter struct {
	counts map[string]int64
	err    error
}

func (m *memoryCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counter := &memoryCounter{counts: map[string]int64{}}
	router := gin.New()
	router.POST("/auth/activation", RateLimit(counter, 2, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/activation", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), counter.counts["rate_limit:10.0.0.1:/auth/activation"])

	other := httptest.NewRequest(http.MethodPost, "/auth/activation", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/a", RateLimit(&memoryCounter{err: errors.New("redis down")}, 1, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/b", RateLimit(nil, 1, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/a", "/a", "/b", "/b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func TestAuditRecordsSuccessfulWrites(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &recordingAudit{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
		c.Next()
	})
	router.DELETE("/subjects/:id", Audit(audit, nil, "SUBJECT_DELETE", "subjects"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.PUT("/subjects/:id", Audit(audit, nil, "SUBJECT_UPDATE", "subjects"), func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/subjects/s1", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/subjects/s1", nil))

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "SUBJECT_DELETE", audit.logs[0].Action)
	assert.Equal(t, "admin-1", *audit.logs[0].UserID)
	assert.Equal(t, "s1", *audit.logs[0].ResourceID)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		assert.Nil(t, ExtractMeta(c))
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/ping",status="200"} 1`)
}

type observation struct {
	method, path string
	status       int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.seen = append(r.seen, observation{method: method, path: path, status: status})
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/subjects/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/subjects/42", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin.php", nil))

	assert.Equal(t, []observation{
		{method: http.MethodGet, path: "/subjects/:id", status: http.StatusOK},
		{method: http.MethodGet, path: "unmatched", status: http.StatusNotFound},
	}, observer.seen)
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		_, err := bearerToken(header)
		assert.Error(t, err, header)
	}
}
