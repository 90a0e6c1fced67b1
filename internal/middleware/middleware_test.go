package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/observ"
	"go.uber.org/zap"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func newRouter(extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.NewNop(), observ.NewMetrics()), AuthMiddleware(secret))
	r.Use(extra...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "email": GetEmail(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	tok, err := auth.GenerateToken(userID, "ada@example.com", secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter()

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "bearer header", header: "Bearer " + tok, want: http.StatusOK},
		{name: "query token", query: "?access_token=" + tok, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "bad scheme", header: "Basic " + tok, want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	tok, _ := auth.GenerateToken(uuid.New(), "", secret, time.Hour)
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Fatalf("generated request id is not a uuid: %v", err)
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	r := newRouter(rl.Middleware())

	alice, _ := auth.GenerateToken(uuid.New(), "", secret, time.Hour)
	bob, _ := auth.GenerateToken(uuid.New(), "", secret, time.Hour)

	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if do(alice) != http.StatusOK || do(alice) != http.StatusOK {
		t.Fatal("burst should allow two requests")
	}
	if got := do(alice); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", got)
	}
	if got := do(bob); got != http.StatusOK {
		t.Fatalf("other user limited by alice's bucket: %d", got)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.allow("a", now)
	rl.Sweep(now.Add(time.Hour))
	if len(rl.visitors) != 0 {
		t.Fatalf("visitors = %d after sweep, want 0", len(rl.visitors))
	}
}

func TestNilRateLimiterAllowsAll(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	r := newRouter(rl.Middleware())
	tok, _ := auth.GenerateToken(uuid.New(), "", secret, time.Hour)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
}
