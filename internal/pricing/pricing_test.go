package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenboard/tokenboard/internal/model"
)

func testTable() *Table {
	return NewTable(map[string]model.PricingEntry{
		"claude-sonnet-4-5": {
			InputCostPerToken:           3e-6,
			OutputCostPerToken:          15e-6,
			CacheReadInputTokenCost:     0.3e-6,
			CacheCreationInputTokenCost: 3.75e-6,
		},
		"anthropic/claude-opus-4-5": {
			InputCostPerToken:  5e-6,
			OutputCostPerToken: 25e-6,
		},
		"gpt-5": {
			InputCostPerToken:  1.25e-6,
			OutputCostPerToken: 10e-6,
		},
		"gemini-2.5-pro": {
			InputCostPerToken:  1.25e-6,
			OutputCostPerToken: 10e-6,
		},
	})
}

func TestResolve_ExactMatch(t *testing.T) {
	table := testTable()

	p, key, ok := table.Resolve("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", key)
	assert.Equal(t, 3e-6, p.InputCostPerToken)
}

func TestResolve_ProviderPrefix(t *testing.T) {
	table := testTable()

	// Bare id resolves through the anthropic/ prefix
	p, key, ok := table.Resolve("claude-opus-4-5")
	require.True(t, ok)
	assert.Equal(t, "anthropic/claude-opus-4-5", key)
	assert.Equal(t, 5e-6, p.InputCostPerToken)
}

func TestResolve_NormalizedDateSuffix(t *testing.T) {
	table := testTable()

	// Trailing -YYYYMMDD is stripped before lookup
	_, key, ok := table.Resolve("claude-sonnet-4-5-20250929")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", key)

	// Uppercase is folded too
	_, key, ok = table.Resolve("Claude-Sonnet-4-5-20250929")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", key)
}

func TestResolve_NormalizedDots(t *testing.T) {
	table := NewTable(map[string]model.PricingEntry{
		"gemini-2-5-pro": {InputCostPerToken: 1e-6},
	})

	_, key, ok := table.Resolve("gemini-2.5.pro")
	require.True(t, ok)
	assert.Equal(t, "gemini-2-5-pro", key)
}

func TestResolve_WordBoundarySubstring(t *testing.T) {
	table := testTable()

	// Key inside query, bounded by separators
	_, key, ok := table.Resolve("us.bedrock/gpt-5/v1")
	require.True(t, ok)
	assert.Equal(t, "gpt-5", key)

	// "gpt-51" must not match "gpt-5": 1 extends the word
	_, _, ok = table.Resolve("gpt-51")
	assert.False(t, ok)
}

func TestResolve_QueryInsideKey(t *testing.T) {
	table := NewTable(map[string]model.PricingEntry{
		"openai/gpt-5-codex": {OutputCostPerToken: 10e-6},
	})

	_, key, ok := table.Resolve("codex")
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-5-codex", key)
}

func TestResolve_Deterministic(t *testing.T) {
	// Multiple keys can substring-match; the first in sorted key order wins,
	// every time.
	table := NewTable(map[string]model.PricingEntry{
		"x-suffix": {InputCostPerToken: 2e-6},
		"claude-x": {InputCostPerToken: 1e-6},
	})

	for i := 0; i < 50; i++ {
		_, key, ok := table.Resolve("prefix-claude-x-suffix")
		require.True(t, ok)
		assert.Equal(t, "claude-x", key)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	table := testTable()

	_, _, ok := table.Resolve("totally-unknown-model")
	assert.False(t, ok)
}

func TestCalculateCost(t *testing.T) {
	p := model.PricingEntry{
		InputCostPerToken:           3e-6,
		OutputCostPerToken:          15e-6,
		CacheReadInputTokenCost:     0.3e-6,
		CacheCreationInputTokenCost: 3.75e-6,
	}

	tokens := model.TokenBreakdown{
		Input:      1000,
		Output:     500,
		CacheRead:  2000,
		CacheWrite: 100,
		Reasoning:  200,
	}

	// Reasoning bills at the output rate
	want := 1000*3e-6 + (500+200)*15e-6 + 2000*0.3e-6 + 100*3.75e-6
	assert.InDelta(t, want, CalculateCost(tokens, p), 1e-12)
}

func TestEventCost_Fallbacks(t *testing.T) {
	table := testTable()

	t.Run("resolved model ignores self-reported cost", func(t *testing.T) {
		selfCost := 99.0
		e := model.UsageEvent{
			ModelID: "claude-sonnet-4-5",
			Tokens:  model.TokenBreakdown{Input: 1000},
			Cost:    &selfCost,
		}
		assert.InDelta(t, 1000*3e-6, table.EventCost(e), 1e-12)
	})

	t.Run("unknown model uses self-reported cost", func(t *testing.T) {
		selfCost := 0.42
		e := model.UsageEvent{
			ModelID: "mystery-model",
			Tokens:  model.TokenBreakdown{Input: 1000},
			Cost:    &selfCost,
		}
		assert.Equal(t, 0.42, table.EventCost(e))
	})

	t.Run("unknown model without cost is zero", func(t *testing.T) {
		e := model.UsageEvent{
			ModelID: "mystery-model",
			Tokens:  model.TokenBreakdown{Input: 1000},
		}
		assert.Equal(t, 0.0, table.EventCost(e))
	})
}
