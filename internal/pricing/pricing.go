package pricing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tokenboard/tokenboard/internal/model"
)

// providerPrefixes are tried when a model id appears without its vendor
// namespace (e.g. "claude-sonnet-4-5" vs "anthropic/claude-sonnet-4-5").
var providerPrefixes = []string{"anthropic/", "openai/", "google/", "bedrock/"}

var dateSuffixRe = regexp.MustCompile(`-\d{8}$`)

type indexedKey struct {
	original  string
	lowercase string
}

// Table is an immutable pricing table with pre-computed indices for
// deterministic fuzzy lookups.
type Table struct {
	entries map[string]model.PricingEntry
	// sortedKeys is ordered by original key; fuzzy ties resolve to the
	// first key in this order, which is positional rather than semantic.
	sortedKeys []indexedKey
}

// NewTable builds a Table from raw entries and finalizes its key index.
func NewTable(entries map[string]model.PricingEntry) *Table {
	keys := make([]indexedKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, indexedKey{original: k, lowercase: strings.ToLower(k)})
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].original < keys[j].original
	})
	return &Table{entries: entries, sortedKeys: keys}
}

// Len returns the number of pricing entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Resolve finds the pricing entry for a model id. Resolution order: exact
// key, provider-prefixed key, the same two checks against a normalized form
// of the id, then a word-boundary substring scan over keys in sorted order.
// Identical input always yields the identical entry.
func (t *Table) Resolve(modelID string) (model.PricingEntry, string, bool) {
	if p, ok := t.entries[modelID]; ok {
		return p, modelID, true
	}

	for _, prefix := range providerPrefixes {
		key := prefix + modelID
		if p, ok := t.entries[key]; ok {
			return p, key, true
		}
	}

	normalized := normalizeModelID(modelID)
	if normalized != "" {
		if p, ok := t.entries[normalized]; ok {
			return p, normalized, true
		}
		for _, prefix := range providerPrefixes {
			key := prefix + normalized
			if p, ok := t.entries[key]; ok {
				return p, key, true
			}
		}
	}

	lower := strings.ToLower(modelID)

	// First pass: a pricing key occurring inside the query is the more
	// specific signal (query carries extra decoration like a date suffix).
	for _, k := range t.sortedKeys {
		if containsWord(lower, k.lowercase) || (normalized != "" && containsWord(normalized, k.lowercase)) {
			return t.entries[k.original], k.original, true
		}
	}

	// Second pass: the query occurring inside a pricing key.
	for _, k := range t.sortedKeys {
		if containsWord(k.lowercase, lower) || (normalized != "" && containsWord(k.lowercase, normalized)) {
			return t.entries[k.original], k.original, true
		}
	}

	return model.PricingEntry{}, "", false
}

// CalculateCost computes the cost of a token breakdown at the given rates.
// Reasoning tokens bill at the output rate.
func CalculateCost(tokens model.TokenBreakdown, p model.PricingEntry) float64 {
	cost := float64(tokens.Input) * p.InputCostPerToken
	cost += float64(tokens.Output+tokens.Reasoning) * p.OutputCostPerToken
	cost += float64(tokens.CacheRead) * p.CacheReadInputTokenCost
	cost += float64(tokens.CacheWrite) * p.CacheCreationInputTokenCost
	return cost
}

// EventCost prices a single usage event. When no pricing entry resolves the
// event's self-reported cost is used, or 0 if it has none.
func (t *Table) EventCost(e model.UsageEvent) float64 {
	if p, _, ok := t.Resolve(e.ModelID); ok {
		return CalculateCost(e.Tokens, p)
	}
	if e.Cost != nil {
		return *e.Cost
	}
	return 0
}

// normalizeModelID lowercases the id, strips a trailing -YYYYMMDD date
// suffix, and collapses dots to dashes. Returns "" when normalization
// changes nothing.
func normalizeModelID(modelID string) string {
	n := strings.ToLower(modelID)
	n = dateSuffixRe.ReplaceAllString(n, "")
	n = strings.ReplaceAll(n, ".", "-")
	if n == modelID {
		return ""
	}
	return n
}

// containsWord reports whether needle occurs in haystack bounded by
// non-alphanumeric characters (or the string edges).
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return false
		}
		pos := from + i
		end := pos + len(needle)
		beforeOK := pos == 0 || !isAlphanumeric(haystack[pos-1])
		afterOK := end == len(haystack) || !isAlphanumeric(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		from = pos + 1
	}
}

func isAlphanumeric(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
