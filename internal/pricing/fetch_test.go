package pricing

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetCache(t *testing.T) {
	t.Helper()
	cacheMu.Lock()
	tableCache = nil
	cacheMu.Unlock()
}

func withPricingServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	old := liteLLMPricingURL
	liteLLMPricingURL = srv.URL
	t.Cleanup(func() {
		liteLLMPricingURL = old
		srv.Close()
	})
	resetCache(t)
	t.Cleanup(func() { resetCache(t) })
}

func TestLoad_FetchesAndCaches(t *testing.T) {
	var requests atomic.Int64
	withPricingServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{
			"sample_spec": {"input_cost_per_token": 0, "output_cost_per_token": 0},
			"test-model": {"input_cost_per_token": 1e-06, "output_cost_per_token": 2e-06}
		}`))
	})

	table := Load(false)
	require.NotNil(t, table)

	// Zero-rate metadata rows are dropped
	assert.Equal(t, 1, table.Len())
	p, _, ok := table.Resolve("test-model")
	require.True(t, ok)
	assert.Equal(t, 1e-06, p.InputCostPerToken)

	// Second call within the cache window does not refetch
	again := Load(false)
	assert.Same(t, table, again)
	assert.Equal(t, int64(1), requests.Load())
}

func TestLoad_FallsBackToEmbedded(t *testing.T) {
	withPricingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	table := Load(false)
	require.NotNil(t, table)

	// The embedded table resolves the usual models
	_, _, ok := table.Resolve("claude-sonnet-4-5")
	assert.True(t, ok)
}

func TestLoad_ConcurrentCallers(t *testing.T) {
	var requests atomic.Int64
	withPricingServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"test-model": {"input_cost_per_token": 1e-06, "output_cost_per_token": 2e-06}}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table := Load(false)
			assert.NotNil(t, table)
		}()
	}
	wg.Wait()

	// One caller fetched; the rest were served from the cache
	assert.Equal(t, int64(1), requests.Load())
}
