// Package validator checks submission payloads before they reach the merge
// path. All structural and semantic problems are collected into a single
// ValidationError so a client can fix everything in one round trip.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tokenboard/tokenboard/internal/model"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidationError carries every blocking issue found in a submission.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission invalid: %s", strings.Join(e.Issues, "; "))
}

// Result holds non-blocking findings for an accepted submission.
type Result struct {
	Warnings []string
}

// Validate checks a submission against the server clock. It returns a
// *ValidationError listing every blocking issue, or a Result carrying
// warnings for an acceptable payload.
func Validate(data *model.ContributionData, now time.Time) (*Result, error) {
	var issues []string
	var warnings []string

	if len(data.Contributions) == 0 {
		issues = append(issues, "no contributions in submission")
	}

	today := now.UTC().Format("2006-01-02")
	seen := make(map[string]bool)
	var recomputedTokens int64
	var recomputedCost float64

	for _, day := range data.Contributions {
		if !dateRe.MatchString(day.Date) {
			issues = append(issues, fmt.Sprintf("invalid date format %q", day.Date))
			continue
		}
		if day.Date > today {
			issues = append(issues, fmt.Sprintf("contribution date %s is in the future", day.Date))
		}
		if seen[day.Date] {
			issues = append(issues, fmt.Sprintf("duplicate contribution date %s", day.Date))
		}
		seen[day.Date] = true

		if day.Totals.Tokens < 0 || day.Totals.Cost < 0 || day.Totals.Messages < 0 {
			issues = append(issues, fmt.Sprintf("negative totals on %s", day.Date))
		}
		if negativeBreakdown(day.TokenBreakdown) {
			issues = append(issues, fmt.Sprintf("negative token counts on %s", day.Date))
		}
		if len(day.Sources) == 0 {
			issues = append(issues, fmt.Sprintf("contribution %s has no sources", day.Date))
		}

		var sourceTokens int64
		for _, sc := range day.Sources {
			if sc.Source == "" || sc.ModelID == "" {
				issues = append(issues, fmt.Sprintf("contribution %s has a source entry missing source or modelId", day.Date))
			}
			if negativeBreakdown(sc.Tokens) || sc.Cost < 0 || sc.Messages < 0 {
				issues = append(issues, fmt.Sprintf("negative source values on %s", day.Date))
			}
			sourceTokens += sc.Tokens.Sum()
		}

		// Source-sum drift is a warning: small discrepancies happen when a
		// client prices the same day from different pricing snapshots.
		if day.Totals.Tokens > 100 {
			diff := math.Abs(float64(sourceTokens - day.Totals.Tokens))
			if diff > 0.05*float64(day.Totals.Tokens) {
				warnings = append(warnings, fmt.Sprintf("day %s source sum %d differs from declared total %d by more than 5%%", day.Date, sourceTokens, day.Totals.Tokens))
			}
		}

		if rng := data.Meta.DateRange; rng.Start != "" && rng.End != "" {
			if day.Date < rng.Start || day.Date > rng.End {
				warnings = append(warnings, fmt.Sprintf("contribution date %s falls outside declared range %s..%s", day.Date, rng.Start, rng.End))
			}
		}

		recomputedTokens += day.Totals.Tokens
		recomputedCost += day.Totals.Cost
	}

	declared := data.Summary.TotalTokens
	tolerance := math.Max(0.01*float64(declared), 100)
	if math.Abs(float64(declared-recomputedTokens)) > tolerance {
		issues = append(issues, fmt.Sprintf("declared totalTokens %d differs from recomputed %d beyond tolerance", declared, recomputedTokens))
	}

	costTolerance := math.Max(0.01*data.Summary.TotalCost, 0.1)
	if math.Abs(data.Summary.TotalCost-recomputedCost) > costTolerance {
		warnings = append(warnings, fmt.Sprintf("declared totalCost %.4f differs from recomputed %.4f beyond tolerance", data.Summary.TotalCost, recomputedCost))
	}

	warnings = append(warnings, checkYears(data)...)

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return &Result{Warnings: warnings}, nil
}

func checkYears(data *model.ContributionData) []string {
	perYear := make(map[string]int64)
	for _, day := range data.Contributions {
		if len(day.Date) >= 4 {
			perYear[day.Date[:4]] += day.Totals.Tokens
		}
	}

	var warnings []string
	for _, y := range data.Years {
		if y.TotalTokens <= 1000 {
			continue
		}
		recomputed := perYear[y.Year]
		if math.Abs(float64(y.TotalTokens-recomputed)) > 0.01*float64(y.TotalTokens) {
			warnings = append(warnings, fmt.Sprintf("year %s declared %d tokens but contributions sum to %d", y.Year, y.TotalTokens, recomputed))
		}
	}
	return warnings
}

func negativeBreakdown(t model.TokenBreakdown) bool {
	return t.Input < 0 || t.Output < 0 || t.CacheRead < 0 || t.CacheWrite < 0 || t.Reasoning < 0
}

// Fingerprint returns a stable hash identifying the shape of a submission:
// its distinct sources, declared range, and contribution span. Totals are
// deliberately excluded because merging changes them; the fingerprint only
// signals "same submission" to clients, it is never a storage key.
func Fingerprint(data *model.ContributionData) string {
	sourceSet := make(map[string]bool)
	for _, day := range data.Contributions {
		for _, sc := range day.Sources {
			sourceSet[sc.Source] = true
		}
	}
	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var first, last string
	for _, day := range data.Contributions {
		if first == "" || day.Date < first {
			first = day.Date
		}
		if last == "" || day.Date > last {
			last = day.Date
		}
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%s",
		strings.Join(sources, ","),
		data.Meta.DateRange.Start, data.Meta.DateRange.End,
		len(data.Contributions), first, last,
	)
	return hex.EncodeToString(h.Sum(nil))
}
