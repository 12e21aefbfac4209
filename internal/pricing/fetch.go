package pricing

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tokenboard/tokenboard/internal/model"
)

var liteLLMPricingURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// liteLLMModel is the subset of the LiteLLM pricing schema we care about.
type liteLLMModel struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	CacheCreationCost  float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost      float64 `json:"cache_read_input_token_cost"`
}

var (
	cacheMu       sync.Mutex
	tableCache    *Table
	cacheTime     time.Time
	cacheDuration = 1 * time.Hour
)

// Load returns the current pricing table. With offline set it uses the
// embedded table; otherwise it fetches from LiteLLM with an in-process
// 1h cache, falling back to the embedded table on any failure. Safe for
// concurrent callers; a stale cache is refreshed by one fetch at a time.
func Load(offline bool) *Table {
	if offline {
		return EmbeddedTable()
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if tableCache != nil && time.Since(cacheTime) < cacheDuration {
		return tableCache
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(liteLLMPricingURL)
	if err != nil {
		return EmbeddedTable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return EmbeddedTable()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return EmbeddedTable()
	}

	var raw map[string]liteLLMModel
	if err := json.Unmarshal(body, &raw); err != nil {
		return EmbeddedTable()
	}

	entries := make(map[string]model.PricingEntry, len(raw))
	for name, data := range raw {
		// Skip entries with no usable rates (metadata rows, embeddings, etc.)
		if data.InputCostPerToken == 0 && data.OutputCostPerToken == 0 {
			continue
		}
		entries[name] = model.PricingEntry{
			InputCostPerToken:           data.InputCostPerToken,
			OutputCostPerToken:          data.OutputCostPerToken,
			CacheReadInputTokenCost:     data.CacheReadCost,
			CacheCreationInputTokenCost: data.CacheCreationCost,
		}
	}

	tableCache = NewTable(entries)
	cacheTime = time.Now()
	return tableCache
}

// EmbeddedTable returns the fallback pricing table compiled into the binary.
func EmbeddedTable() *Table {
	return NewTable(map[string]model.PricingEntry{
		// Anthropic
		"claude-opus-4-5": {
			InputCostPerToken:           5e-06,
			OutputCostPerToken:          2.5e-05,
			CacheReadInputTokenCost:     5e-07,
			CacheCreationInputTokenCost: 6.25e-06,
		},
		"claude-opus-4-1": {
			InputCostPerToken:           1.5e-05,
			OutputCostPerToken:          7.5e-05,
			CacheReadInputTokenCost:     1.5e-06,
			CacheCreationInputTokenCost: 1.875e-05,
		},
		"claude-sonnet-4-5": {
			InputCostPerToken:           3e-06,
			OutputCostPerToken:          1.5e-05,
			CacheReadInputTokenCost:     3e-07,
			CacheCreationInputTokenCost: 3.75e-06,
		},
		"claude-sonnet-4-20250514": {
			InputCostPerToken:           3e-06,
			OutputCostPerToken:          1.5e-05,
			CacheReadInputTokenCost:     3e-07,
			CacheCreationInputTokenCost: 3.75e-06,
		},
		"claude-3-5-haiku-20241022": {
			InputCostPerToken:           8e-07,
			OutputCostPerToken:          4e-06,
			CacheReadInputTokenCost:     8e-08,
			CacheCreationInputTokenCost: 1e-06,
		},
		"claude-haiku-4-5": {
			InputCostPerToken:           1e-06,
			OutputCostPerToken:          5e-06,
			CacheReadInputTokenCost:     1e-07,
			CacheCreationInputTokenCost: 1.25e-06,
		},
		// OpenAI
		"gpt-5": {
			InputCostPerToken:       1.25e-06,
			OutputCostPerToken:      1e-05,
			CacheReadInputTokenCost: 1.25e-07,
		},
		"gpt-5-mini": {
			InputCostPerToken:       2.5e-07,
			OutputCostPerToken:      2e-06,
			CacheReadInputTokenCost: 2.5e-08,
		},
		"gpt-4o": {
			InputCostPerToken:       2.5e-06,
			OutputCostPerToken:      1e-05,
			CacheReadInputTokenCost: 1.25e-06,
		},
		"o3": {
			InputCostPerToken:       2e-06,
			OutputCostPerToken:      8e-06,
			CacheReadInputTokenCost: 5e-07,
		},
		// Google
		"gemini-2.5-pro": {
			InputCostPerToken:       1.25e-06,
			OutputCostPerToken:      1e-05,
			CacheReadInputTokenCost: 3.1e-07,
		},
		"gemini-2.5-flash": {
			InputCostPerToken:       3e-07,
			OutputCostPerToken:      2.5e-06,
			CacheReadInputTokenCost: 7.5e-08,
		},
	})
}
