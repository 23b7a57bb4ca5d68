package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semsearch"
	"github.com/poiesic/semsearch/ai/mock"
	"github.com/poiesic/semsearch/config"
	"github.com/poiesic/semsearch/core"
)

const testDim = 8

type fixture struct {
	engine   *semsearch.Engine
	embedder *mock.MockEmbedder
	router   http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Store.Path = ""
	cfg.Store.InMemory = true
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Embedding.Dimension = testDim
	cfg.Indexing.EmbedCallsPerSecond = 0
	cfg.Indexing.MaxRetries = 1
	cfg.Indexing.RetryDelayMillis = 10
	if mutate != nil {
		mutate(cfg)
	}

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = testDim

	eng, err := semsearch.NewEngine(cfg, semsearch.WithEmbedder(embedder))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return &fixture{
		engine:   eng,
		embedder: embedder,
		router:   New(eng, nil).Router(),
	}
}

func (f *fixture) seedAndIndex(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := f.engine.Seed(ctx)
	require.NoError(t, err)

	for _, kind := range core.AllKinds() {
		for {
			res, err := f.engine.TriggerIndexResume(ctx, kind, 50)
			require.NoError(t, err)
			require.True(t, res.Triggered)
			if res.Checkpoint.Status == core.CheckpointCompleted {
				break
			}
		}
	}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"single forwarded address", "203.0.113.7", "10.0.0.1:1234", "203.0.113.7"},
		{"first of forwarded chain", "203.0.113.7, 70.41.3.18, 150.172.238.178", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded address trimmed", "  203.0.113.7 , 70.41.3.18", "10.0.0.1:1234", "203.0.113.7"},
		{"remote address host", "", "192.0.2.1:51234", "192.0.2.1"},
		{"remote address without port", "", "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIdentity(req))
		})
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.seedAndIndex(t)

	rec := f.do(http.MethodGet, "/api/search?q=container+orchestration&top_k=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[searchResponse](t, rec)
	require.NotEmpty(t, resp.Matches)
	assert.LessOrEqual(t, len(resp.Matches), 3)
	assert.False(t, resp.Cached)
	for _, m := range resp.Matches {
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.Kind)
		assert.Equal(t, "fallback", m.Source)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newFixture(t, nil)

	for _, target := range []string{"/api/search", "/api/search?q=%20%20"} {
		rec := f.do(http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "query cannot be empty", body.Error)
	}
}

func TestSearch_BadTopK(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/search?q=go&top_k=lots", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_RateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.ShortQuota = 1
		cfg.RateLimit.Burst = 0
	})
	f.seedAndIndex(t)
	ctx := context.Background()

	// Burn the quota through the engine and wait for the detached
	// counter increments to land.
	decision, err := f.engine.CheckRateLimit(ctx, "192.0.2.10")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Eventually(t, func() bool {
		d, err := f.engine.CheckRateLimit(ctx, "192.0.2.10")
		return err == nil && !d.Allowed
	}, 2*time.Second, 10*time.Millisecond)

	rec := f.do(http.MethodGet, "/api/search?q=service+mesh", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	body := decode[errorResponse](t, rec)
	assert.Equal(t, "rate limited", body.Error)
	assert.Positive(t, body.RetryAfterSeconds)
}

func TestIndexLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.Seed(context.Background())
	require.NoError(t, err)

	t.Run("progress before any pass is not found", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/index/skill/progress", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("resume runs one batch", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/index/skill/resume?batch_size=2", "")
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[resumeResponse](t, rec)
		assert.True(t, resp.Triggered)
		assert.False(t, resp.Locked)
		require.NotNil(t, resp.Checkpoint)
		assert.Equal(t, "skill", resp.Checkpoint.Kind)
		assert.Equal(t, uint64(1), resp.Checkpoint.Version)
		assert.Equal(t, int64(2), resp.Checkpoint.NextOffset)
		assert.Equal(t, "in_progress", resp.Checkpoint.Status)
	})

	t.Run("progress reports the pass", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/index/skill/progress", "")
		require.Equal(t, http.StatusOK, rec.Code)

		cp := decode[checkpointPayload](t, rec)
		assert.Equal(t, "in_progress", cp.Status)
		assert.Equal(t, int64(2), cp.Processed)
	})

	t.Run("stop pauses the pass", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/index/skill/stop", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodGet, "/api/index/skill/progress", "")
		require.Equal(t, http.StatusOK, rec.Code)
		cp := decode[checkpointPayload](t, rec)
		assert.Equal(t, "paused", cp.Status)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		for _, target := range []string{
			"/api/index/widget/progress",
			"/api/index/widget/resume",
			"/api/index/widget/stop",
		} {
			method := http.MethodPost
			if strings.HasSuffix(target, "progress") {
				method = http.MethodGet
			}
			rec := f.do(method, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
		}
	})

	t.Run("bad batch size is rejected", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/index/skill/resume?batch_size=many", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIndexResume_Conflict(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.Seed(context.Background())
	require.NoError(t, err)

	// Hold the lock with a slow in-flight run
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		time.Sleep(500 * time.Millisecond)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = make([]float32, testDim)
			out[i][0] = 1
		}
		return out, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.engine.TriggerIndexResume(context.Background(), core.KindSkill, 2)
	}()
	time.Sleep(100 * time.Millisecond)

	rec := f.do(http.MethodPost, "/api/index/skill/resume", "")
	wg.Wait()

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[resumeResponse](t, rec)
	assert.False(t, resp.Triggered)
	assert.True(t, resp.Locked)
	assert.Nil(t, resp.Checkpoint)
}

func TestRateLimitReset(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/admin/ratelimit/reset", `{"identity":"192.0.2.10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "reset", body["status"])

	t.Run("missing identity", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/admin/ratelimit/reset", `{"identity":"  "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/admin/ratelimit/reset", `{"identity":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
