package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tokenboard/tokenboard/internal/model"
)

// FormatNumber formats a number with thousand separators
func FormatNumber(n int64) string {
	if n == 0 {
		return "0"
	}

	str := fmt.Sprintf("%d", n)
	negative := n < 0
	if negative {
		str = str[1:]
	}

	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}

	if negative {
		return "-" + result
	}
	return result
}

// FormatCost formats a cost value as currency
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.2f", cost)
}

// PrintJSON prints the full snapshot as indented JSON
func PrintJSON(data *model.ContributionData) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}

// PrintReport prints a per-day usage table followed by a summary
func PrintReport(data *model.ContributionData) {
	if len(data.Contributions) == 0 {
		fmt.Println("No usage data found.")
		return
	}

	header := fmt.Sprintf("%-12s %10s %14s %10s  %s", "Date", "Tokens", "Input/Output", "Cost", "Sources")
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", len(header)))

	for _, day := range data.Contributions {
		sources := make([]string, 0, len(day.Sources))
		for _, s := range day.Sources {
			sources = append(sources, s.Source)
		}
		io := fmt.Sprintf("%s/%s",
			FormatNumber(day.TokenBreakdown.Input),
			FormatNumber(day.TokenBreakdown.Output))
		fmt.Printf("%-12s %10s %14s %10s  %s\n",
			day.Date,
			FormatNumber(day.Totals.Tokens),
			io,
			FormatCost(day.Totals.Cost),
			strings.Join(sources, ", "))
	}

	s := data.Summary
	fmt.Println()
	fmt.Printf("Total: %s tokens, %s across %d active days (avg %s/day)\n",
		FormatNumber(s.TotalTokens),
		FormatCost(s.TotalCost),
		s.ActiveDays,
		FormatCost(s.AveragePerDay))
	if len(s.Models) > 0 {
		fmt.Printf("Models: %s\n", strings.Join(s.Models, ", "))
	}
}

// PrintSubmitResult prints the server's response to a submission
func PrintSubmitResult(username, mode string, totalTokens int64, totalCost float64, warnings []string) {
	verb := "merged into"
	if mode == "create" {
		verb = "created for"
	}
	fmt.Printf("Submission %s %s: %s tokens, %s\n",
		verb, username, FormatNumber(totalTokens), FormatCost(totalCost))
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}
