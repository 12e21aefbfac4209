package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenboard/tokenboard/internal/model"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func day(date string, tokens int64, cost float64) model.DailyContribution {
	return model.DailyContribution{
		Date:           date,
		Totals:         model.DailyTotals{Tokens: tokens, Cost: cost, Messages: 1},
		TokenBreakdown: model.TokenBreakdown{Input: tokens},
		Sources: []model.SourceContribution{
			{
				Source:  "claude",
				ModelID: "claude-sonnet-4-5",
				Tokens:  model.TokenBreakdown{Input: tokens},
				Cost:    cost,
			},
		},
	}
}

func validData() *model.ContributionData {
	days := []model.DailyContribution{
		day("2025-06-01", 1000, 1.0),
		day("2025-06-02", 2000, 2.0),
	}
	return &model.ContributionData{
		Meta: model.Meta{
			GeneratedAt: testNow.Format(time.RFC3339),
			Version:     "0.1.0",
			DateRange:   model.DateRange{Start: "2025-06-01", End: "2025-06-02"},
		},
		Summary: model.DataSummary{
			TotalTokens: 3000,
			TotalCost:   3.0,
			TotalDays:   2,
			ActiveDays:  2,
		},
		Contributions: days,
	}
}

func TestValidate_AcceptsCleanSubmission(t *testing.T) {
	res, err := Validate(validData(), testNow)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestValidate_EmptySubmission(t *testing.T) {
	data := &model.ContributionData{}
	_, err := Validate(data, testNow)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "no contributions in submission")
}

func TestValidate_FutureDate(t *testing.T) {
	data := validData()
	data.Contributions = append(data.Contributions, day("2025-06-16", 0, 0))
	data.Summary.TotalTokens = 3000

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "contribution date 2025-06-16 is in the future")
}

func TestValidate_TodayIsNotFuture(t *testing.T) {
	data := validData()
	data.Contributions[1] = day("2025-06-15", 2000, 2.0)
	data.Meta.DateRange.End = "2025-06-15"

	_, err := Validate(data, testNow)
	assert.NoError(t, err)
}

func TestValidate_DuplicateDates(t *testing.T) {
	data := validData()
	data.Contributions = append(data.Contributions, day("2025-06-01", 500, 0.5))
	data.Summary.TotalTokens = 3500

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "duplicate contribution date 2025-06-01")
}

func TestValidate_BadDateFormat(t *testing.T) {
	data := validData()
	data.Contributions[0].Date = "06/01/2025"

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, `invalid date format "06/01/2025"`)
}

func TestValidate_NegativeValues(t *testing.T) {
	data := validData()
	data.Contributions[0].Totals.Tokens = -5

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "negative totals on 2025-06-01")
}

func TestValidate_MissingSourceFields(t *testing.T) {
	data := validData()
	data.Contributions[0].Sources[0].ModelID = ""

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 1)
}

func TestValidate_TokenTotalMismatch(t *testing.T) {
	t.Run("beyond tolerance is an error", func(t *testing.T) {
		data := validData()
		data.Summary.TotalTokens = 10000 // recomputed is 3000

		_, err := Validate(data, testNow)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Issues, 1)
		assert.Contains(t, verr.Issues[0], "declared totalTokens")
	})

	t.Run("within absolute floor is fine", func(t *testing.T) {
		data := validData()
		data.Summary.TotalTokens = 3080 // off by 80, floor is 100

		_, err := Validate(data, testNow)
		assert.NoError(t, err)
	})

	t.Run("within 1 percent is fine", func(t *testing.T) {
		data := validData()
		for i := range data.Contributions {
			data.Contributions[i].Totals.Tokens = 50000
		}
		data.Summary.TotalTokens = 100500 // recomputed 100000, 0.5% off

		_, err := Validate(data, testNow)
		assert.NoError(t, err)
	})
}

func TestValidate_CostMismatchIsWarning(t *testing.T) {
	data := validData()
	data.Summary.TotalCost = 10.0 // recomputed is 3.0

	res, err := Validate(data, testNow)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "declared totalCost")
}

func TestValidate_SourceSumDriftWarning(t *testing.T) {
	data := validData()
	// Declared day total 2000, but the single source only carries 1000
	data.Contributions[1].Sources[0].Tokens = model.TokenBreakdown{Input: 1000}

	res, err := Validate(data, testNow)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "source sum")
}

func TestValidate_OutsideDeclaredRangeWarning(t *testing.T) {
	data := validData()
	data.Meta.DateRange = model.DateRange{Start: "2025-06-02", End: "2025-06-02"}

	res, err := Validate(data, testNow)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "outside declared range")
}

func TestValidate_YearMismatchWarning(t *testing.T) {
	data := validData()
	data.Years = []model.YearSummary{
		{Year: "2025", TotalTokens: 50000, TotalCost: 3.0},
	}

	res, err := Validate(data, testNow)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "year 2025")
}

func TestValidate_SmallYearSkipsCheck(t *testing.T) {
	data := validData()
	// Below the 1000 token threshold, mismatches are ignored
	data.Years = []model.YearSummary{
		{Year: "2025", TotalTokens: 900},
	}
	data.Summary.TotalTokens = 3000

	res, err := Validate(data, testNow)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	data := validData()
	data.Contributions[0].Date = "bad"
	data.Contributions[1].Totals.Cost = -1
	data.Summary.TotalTokens = 99999

	_, err := Validate(data, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Issues), 3)
}

func TestFingerprint(t *testing.T) {
	t.Run("stable for identical payloads", func(t *testing.T) {
		assert.Equal(t, Fingerprint(validData()), Fingerprint(validData()))
	})

	t.Run("ignores totals", func(t *testing.T) {
		a := validData()
		b := validData()
		b.Summary.TotalTokens = 999999
		b.Contributions[0].Totals.Tokens = 5

		assert.Equal(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("ignores contribution order", func(t *testing.T) {
		a := validData()
		b := validData()
		b.Contributions[0], b.Contributions[1] = b.Contributions[1], b.Contributions[0]

		assert.Equal(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("changes with span", func(t *testing.T) {
		a := validData()
		b := validData()
		b.Contributions = append(b.Contributions, day("2025-06-03", 100, 0.1))

		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("changes with sources", func(t *testing.T) {
		a := validData()
		b := validData()
		b.Contributions[0].Sources[0].Source = "codex"

		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})
}
