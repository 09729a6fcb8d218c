package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy_inventory/internal/auth"
	"pharmacy_inventory/internal/metrics"
	rediskey "pharmacy_inventory/pkg/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		claims any
		body   string
		want   string
	}{
		{"anonymous uses ip", nil, `{}`, "pharmacy:rate_limit:auth:ip:192.0.2.1"},
		{"body username is ignored", nil, `{"username":"amy"}`, "pharmacy:rate_limit:auth:ip:192.0.2.1"},
		{"authenticated uses username", &auth.Claims{Username: "amy"}, `{}`, "pharmacy:rate_limit:auth:user:amy"},
		{"empty claims fall back to ip", &auth.Claims{}, `{}`, "pharmacy:rate_limit:auth:ip:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body))
			if tt.claims != nil {
				c.Set(ClaimsKey, tt.claims)
			}

			assert.Equal(t, tt.want, rateLimitKey(c, "auth"))
		})
	}
}

// Needs a live server: REDIS_TEST_ADDR=localhost:6379 go test ./internal/middleware
func TestRedisRateLimit_Limits(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := rd.NewClient(&rd.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	scope := "limit-test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), rediskey.RateLimitKey(scope, "ip", "192.0.2.1")).Err()
	})

	r := gin.New()
	r.POST("/login", RedisRateLimit(rdb, scope, 3, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})

	codes := map[int]int{}
	for i := 0; i < 20; i++ {
		body := fmt.Sprintf(`{"username":"user%d","password":"wrong"}`, i)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)))
		codes[w.Code]++
	}

	// a new username per request must not reset the window
	assert.Equal(t, map[int]int{http.StatusUnauthorized: 3, http.StatusTooManyRequests: 17}, codes)
}

func TestRedisRateLimit_FailsOpen(t *testing.T) {
	// nothing listens on this port
	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/write", RedisRateLimit(rdb, "write", 1, 0), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/write", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestMetrics(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(), RequestLogger())
	r.GET("/items/:name", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := testutil.CollectAndCount(metrics.RequestDuration)

	for _, name := range []string{"aspirin", "ibuprofen"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/"+name, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	// both requests share the route pattern label
	assert.Equal(t, before+1, testutil.CollectAndCount(metrics.RequestDuration))
}
