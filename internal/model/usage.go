package model

import "time"

// UsageEvent is one normalized token-usage event as produced by the
// source-specific session parsers (opencode, claude, codex, gemini, cursor).
type UsageEvent struct {
	Source      string         `json:"source"`
	ModelID     string         `json:"modelId"`
	ProviderID  string         `json:"providerId,omitempty"`
	TimestampMs int64          `json:"timestampMs"`
	Tokens      TokenBreakdown `json:"tokens"`
	// Cost is the event's self-reported cost, used only when no pricing
	// entry resolves for ModelID.
	Cost *float64 `json:"cost,omitempty"`
}

// Date returns the UTC calendar date of the event as YYYY-MM-DD.
func (e UsageEvent) Date() string {
	return time.UnixMilli(e.TimestampMs).UTC().Format("2006-01-02")
}

// TokenBreakdown holds token counts by type. All fields are non-negative;
// breakdowns combine componentwise.
type TokenBreakdown struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	CacheRead int64 `json:"cacheRead"`
	// CacheWrite is cache creation input tokens.
	CacheWrite int64 `json:"cacheWrite"`
	Reasoning  int64 `json:"reasoning"`
}

// Add combines another breakdown into this one.
func (t *TokenBreakdown) Add(o TokenBreakdown) {
	t.Input += o.Input
	t.Output += o.Output
	t.CacheRead += o.CacheRead
	t.CacheWrite += o.CacheWrite
	t.Reasoning += o.Reasoning
}

// Sum returns the total token count across all types.
func (t TokenBreakdown) Sum() int64 {
	return t.Input + t.Output + t.CacheRead + t.CacheWrite + t.Reasoning
}

// SourceContribution is one (source, model) slice of a single day.
type SourceContribution struct {
	Source     string         `json:"source"`
	ModelID    string         `json:"modelId"`
	ProviderID string         `json:"providerId,omitempty"`
	Tokens     TokenBreakdown `json:"tokens"`
	Cost       float64        `json:"cost"`
	Messages   int64          `json:"messages"`
}

// DailyTotals are the rolled-up numbers for one day.
type DailyTotals struct {
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Messages int64   `json:"messages"`
}

// DailyContribution is one calendar day of usage across all sources.
type DailyContribution struct {
	Date   string      `json:"date"`
	Totals DailyTotals `json:"totals"`
	// Intensity is a 0-4 heatmap grade relative to the max single-day cost.
	Intensity      int                  `json:"intensity"`
	TokenBreakdown TokenBreakdown       `json:"tokenBreakdown"`
	Sources        []SourceContribution `json:"sources"`
}

// YearSummary sums one calendar year of contributions.
type YearSummary struct {
	Year        string  `json:"year"`
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	RangeStart  string  `json:"rangeStart"`
	RangeEnd    string  `json:"rangeEnd"`
}

// DataSummary is the overall rollup across all contributions.
type DataSummary struct {
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	TotalDays   int     `json:"totalDays"`
	// ActiveDays counts days with tokens > 0.
	ActiveDays         int      `json:"activeDays"`
	AveragePerDay      float64  `json:"averagePerDay"`
	MaxCostInSingleDay float64  `json:"maxCostInSingleDay"`
	Sources            []string `json:"sources"`
	Models             []string `json:"models"`
}

// DateRange is an inclusive [start, end] span of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Meta describes when and by what a submission payload was generated.
type Meta struct {
	GeneratedAt string    `json:"generatedAt"`
	Version     string    `json:"version"`
	DateRange   DateRange `json:"dateRange"`
}

// ContributionData is the full submission payload one device sends to the
// server: a complete snapshot of that device's view of the user's usage.
type ContributionData struct {
	Meta          Meta                `json:"meta"`
	Summary       DataSummary         `json:"summary"`
	Years         []YearSummary       `json:"years"`
	Contributions []DailyContribution `json:"contributions"`
}

// PricingEntry holds per-token rates for one model.
type PricingEntry struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	// Cache rates are optional in upstream tables; zero means free.
	CacheReadInputTokenCost     float64 `json:"cache_read_input_token_cost"`
	CacheCreationInputTokenCost float64 `json:"cache_creation_input_token_cost"`
}
