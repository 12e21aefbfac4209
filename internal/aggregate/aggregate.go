// Package aggregate turns flat normalized usage events into the daily
// contribution structures submitted to and served by the ledger. Output
// ordering is fully specified so that identical input produces identical
// output, which the submission fingerprint depends on.
package aggregate

import (
	"sort"
	"time"

	"github.com/tokenboard/tokenboard/internal/model"
	"github.com/tokenboard/tokenboard/internal/pricing"
)

type dayAccumulator struct {
	totals    model.DailyTotals
	breakdown model.TokenBreakdown
	sources   map[string]*model.SourceContribution
}

// ByDay groups events into per-day contributions, pricing each event through
// the table, and assigns intensities. Days are sorted ascending by date and
// each day's sources by (source, modelId).
func ByDay(events []model.UsageEvent, table *pricing.Table) []model.DailyContribution {
	if len(events) == 0 {
		return nil
	}

	days := make(map[string]*dayAccumulator)
	for _, e := range events {
		date := e.Date()
		acc, ok := days[date]
		if !ok {
			acc = &dayAccumulator{sources: make(map[string]*model.SourceContribution)}
			days[date] = acc
		}

		cost := table.EventCost(e)

		acc.totals.Tokens += e.Tokens.Sum()
		acc.totals.Cost += cost
		acc.totals.Messages++
		acc.breakdown.Add(e.Tokens)

		key := e.Source + ":" + e.ModelID
		sc, ok := acc.sources[key]
		if !ok {
			sc = &model.SourceContribution{
				Source:     e.Source,
				ModelID:    e.ModelID,
				ProviderID: e.ProviderID,
			}
			acc.sources[key] = sc
		}
		sc.Tokens.Add(e.Tokens)
		sc.Cost += cost
		sc.Messages++
	}

	contributions := make([]model.DailyContribution, 0, len(days))
	for date, acc := range days {
		sources := make([]model.SourceContribution, 0, len(acc.sources))
		for _, sc := range acc.sources {
			sources = append(sources, *sc)
		}
		sort.Slice(sources, func(i, j int) bool {
			if sources[i].Source != sources[j].Source {
				return sources[i].Source < sources[j].Source
			}
			return sources[i].ModelID < sources[j].ModelID
		})
		contributions = append(contributions, model.DailyContribution{
			Date:           date,
			Totals:         acc.totals,
			TokenBreakdown: acc.breakdown,
			Sources:        sources,
		})
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Date < contributions[j].Date
	})

	ApplyIntensities(contributions)
	return contributions
}

// ApplyIntensities grades each day 0-4 against the max single-day cost.
// Boundaries are strict: a day at exactly 75% of the max grades 3, not 4,
// and a zero-cost day is always 0.
func ApplyIntensities(contributions []model.DailyContribution) {
	var maxCost float64
	for _, c := range contributions {
		if c.Totals.Cost > maxCost {
			maxCost = c.Totals.Cost
		}
	}

	for i := range contributions {
		contributions[i].Intensity = intensity(contributions[i].Totals.Cost, maxCost)
	}
}

func intensity(cost, maxCost float64) int {
	if cost == 0 || maxCost == 0 {
		return 0
	}
	ratio := cost / maxCost
	switch {
	case ratio > 0.75:
		return 4
	case ratio > 0.5:
		return 3
	case ratio > 0.25:
		return 2
	case ratio > 0:
		return 1
	}
	return 0
}

// Years groups contributions by 4-digit year, tracking sums and the
// [min, max] date range observed in each year. Sorted ascending by year.
func Years(contributions []model.DailyContribution) []model.YearSummary {
	type yearAcc struct {
		tokens     int64
		cost       float64
		start, end string
	}

	byYear := make(map[string]*yearAcc)
	for _, c := range contributions {
		if len(c.Date) < 4 {
			continue
		}
		year := c.Date[:4]
		acc, ok := byYear[year]
		if !ok {
			acc = &yearAcc{}
			byYear[year] = acc
		}
		acc.tokens += c.Totals.Tokens
		acc.cost += c.Totals.Cost
		if acc.start == "" || c.Date < acc.start {
			acc.start = c.Date
		}
		if acc.end == "" || c.Date > acc.end {
			acc.end = c.Date
		}
	}

	years := make([]model.YearSummary, 0, len(byYear))
	for year, acc := range byYear {
		years = append(years, model.YearSummary{
			Year:        year,
			TotalTokens: acc.tokens,
			TotalCost:   acc.cost,
			RangeStart:  acc.start,
			RangeEnd:    acc.end,
		})
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years
}

// Summarize computes the overall rollup across all contributions.
func Summarize(contributions []model.DailyContribution) model.DataSummary {
	var s model.DataSummary
	s.TotalDays = len(contributions)

	sourceSet := make(map[string]bool)
	modelSet := make(map[string]bool)

	for _, c := range contributions {
		s.TotalTokens += c.Totals.Tokens
		s.TotalCost += c.Totals.Cost
		if c.Totals.Tokens > 0 {
			s.ActiveDays++
		}
		if c.Totals.Cost > s.MaxCostInSingleDay {
			s.MaxCostInSingleDay = c.Totals.Cost
		}
		for _, sc := range c.Sources {
			sourceSet[sc.Source] = true
			modelSet[sc.ModelID] = true
		}
	}

	if s.ActiveDays > 0 {
		s.AveragePerDay = s.TotalCost / float64(s.ActiveDays)
	}

	s.Sources = sortedKeys(sourceSet)
	s.Models = sortedKeys(modelSet)
	return s
}

// Build assembles the full submission payload from events.
func Build(events []model.UsageEvent, table *pricing.Table, version string) model.ContributionData {
	contributions := ByDay(events, table)

	var rng model.DateRange
	if len(contributions) > 0 {
		rng.Start = contributions[0].Date
		rng.End = contributions[len(contributions)-1].Date
	}

	return model.ContributionData{
		Meta: model.Meta{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Version:     version,
			DateRange:   rng,
		},
		Summary:       Summarize(contributions),
		Years:         Years(contributions),
		Contributions: contributions,
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
