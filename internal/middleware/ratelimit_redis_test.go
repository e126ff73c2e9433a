package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/parserhub/hub-server-go/internal/model"
)

func newMiniredisClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests under the limit", func(t *testing.T) {
		limiter := NewRedisRateLimiter(newMiniredisClient(t))

		for i := 0; i < 5; i++ {
			allowed, remaining, _ := limiter.Check(ctx, "1", 10)
			assert.True(t, allowed)
			assert.Equal(t, 10-i-1, remaining)
		}
	})

	t.Run("blocks requests over the limit", func(t *testing.T) {
		limiter := NewRedisRateLimiter(newMiniredisClient(t))

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "2", 5)
		}

		allowed, remaining, _ := limiter.Check(ctx, "2", 5)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks users separately", func(t *testing.T) {
		limiter := NewRedisRateLimiter(newMiniredisClient(t))

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "a", 5)
		}

		allowed, _, _ := limiter.Check(ctx, "b", 5)
		assert.True(t, allowed)
	})

	t.Run("fails open when redis is unreachable", func(t *testing.T) {
		client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
		limiter := NewRedisRateLimiter(client)

		allowed, _, _ := limiter.Check(ctx, "1", 5)
		assert.True(t, allowed)
	})
}

func TestRedisRateLimitMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	withUser := func(r *http.Request, id int64) *http.Request {
		ctx := context.WithValue(r.Context(), UserContextKey, &model.User{ID: id})
		return r.WithContext(ctx)
	}

	t.Run("passes through without a user", func(t *testing.T) {
		m := NewRedisRateLimitMiddleware(newMiniredisClient(t), 2)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("returns 429 with headers once the limit is hit", func(t *testing.T) {
		m := NewRedisRateLimitMiddleware(newMiniredisClient(t), 2)
		handler := m.Handler(okHandler)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), 1))
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), 1))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})
}
