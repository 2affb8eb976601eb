package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory RedisClient
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func setupIdempotencyRouter(cfg *IdempotencyConfig, status int, calls *int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextKeyUserID, "user-1")
		c.Next()
	})
	r.Use(IdempotencyMiddleware(cfg))
	r.POST("/bookings", func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	})
	return r
}

func postWithKey(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(newFakeRedis()), http.StatusCreated, &calls)

	first := postWithKey(r, "key-1", `{"roomId":"r1"}`)
	second := postWithKey(r, "key-1", `{"roomId":"r1"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_DifferentBodyRejected(t *testing.T) {
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(newFakeRedis()), http.StatusCreated, &calls)

	postWithKey(r, "key-1", `{"roomId":"r1"}`)
	w := postWithKey(r, "key-1", `{"roomId":"r2"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REUSED")
}

func TestIdempotency_InFlightRejected(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(rdb), http.StatusCreated, &calls)

	body := `{"roomId":"r1"}`
	record := `{"key":"key-1","status":"processing","request_hash":"` +
		generateRequestHash(http.MethodPost, "/bookings", "user-1", []byte(body)) + `"}`
	rdb.data[IdempotencyKeyPrefix+"user-1:key-1"] = record

	w := postWithKey(r, "key-1", body)
	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(rdb), http.StatusServiceUnavailable, &calls)

	postWithKey(r, "key-1", `{}`)
	postWithKey(r, "key-1", `{}`)

	assert.Equal(t, 2, calls)
	assert.Empty(t, rdb.data)
}

func TestIdempotency_NoKey(t *testing.T) {
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(newFakeRedis()), http.StatusCreated, &calls)

	postWithKey(r, "", `{}`)
	postWithKey(r, "", `{}`)
	assert.Equal(t, 2, calls)

	cfg := DefaultIdempotencyConfig(newFakeRedis())
	cfg.RequireKey = true
	strict := setupIdempotencyRouter(cfg, http.StatusCreated, &calls)
	w := postWithKey(strict, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotency_RedisDownFailsOpen(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	calls := 0
	r := setupIdempotencyRouter(DefaultIdempotencyConfig(rdb), http.StatusCreated, &calls)

	w := postWithKey(r, "key-1", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}
