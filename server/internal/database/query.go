package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tokenboard/tokenboard/internal/model"
)

// GetAggregate returns the user's persisted rollup, or nil when the user has
// never merged a submission.
func (db *DB) GetAggregate(userID string) (*Aggregate, error) {
	agg := &Aggregate{UserID: userID}
	var sourcesJSON, modelsJSON string
	err := db.QueryRow(`
		SELECT total_tokens, total_cost, input_tokens, output_tokens,
		       cache_read_tokens, cache_write_tokens, reasoning_tokens,
		       active_days, first_date, last_date, sources, models, updated_at
		FROM user_aggregates
		WHERE user_id = ?
	`, userID).Scan(
		&agg.TotalTokens, &agg.TotalCost,
		&agg.Tokens.Input, &agg.Tokens.Output, &agg.Tokens.CacheRead,
		&agg.Tokens.CacheWrite, &agg.Tokens.Reasoning,
		&agg.ActiveDays, &agg.FirstDate, &agg.LastDate,
		&sourcesJSON, &modelsJSON, &agg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sourcesJSON), &agg.Sources); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modelsJSON), &agg.Models); err != nil {
		return nil, err
	}
	return agg, nil
}

// GetUserDays returns the user's merged daily contributions in [from, to]
// (either bound may be empty), sources aggregated across device partitions.
// Intensities are not set; callers grade the slice they render.
func (db *DB) GetUserDays(userID, from, to string) ([]model.DailyContribution, error) {
	query := `
		SELECT date, total_tokens, total_cost, total_messages,
		       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, reasoning_tokens
		FROM days
		WHERE user_id = ?`
	args := []interface{}{userID}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []model.DailyContribution
	index := make(map[string]int)
	for rows.Next() {
		var c model.DailyContribution
		if err := rows.Scan(
			&c.Date, &c.Totals.Tokens, &c.Totals.Cost, &c.Totals.Messages,
			&c.TokenBreakdown.Input, &c.TokenBreakdown.Output,
			&c.TokenBreakdown.CacheRead, &c.TokenBreakdown.CacheWrite,
			&c.TokenBreakdown.Reasoning,
		); err != nil {
			return nil, err
		}
		index[c.Date] = len(contributions)
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(contributions) == 0 {
		return nil, nil
	}

	srcQuery := `
		SELECT date, source, model_id, MAX(provider_id),
		       SUM(input_tokens), SUM(output_tokens), SUM(cache_read_tokens),
		       SUM(cache_write_tokens), SUM(reasoning_tokens),
		       SUM(cost), SUM(messages)
		FROM contributions
		WHERE user_id = ?`
	srcArgs := []interface{}{userID}
	if from != "" {
		srcQuery += ` AND date >= ?`
		srcArgs = append(srcArgs, from)
	}
	if to != "" {
		srcQuery += ` AND date <= ?`
		srcArgs = append(srcArgs, to)
	}
	srcQuery += ` GROUP BY date, source, model_id ORDER BY date, source, model_id`

	srcRows, err := db.Query(srcQuery, srcArgs...)
	if err != nil {
		return nil, err
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var date string
		var sc model.SourceContribution
		if err := srcRows.Scan(
			&date, &sc.Source, &sc.ModelID, &sc.ProviderID,
			&sc.Tokens.Input, &sc.Tokens.Output, &sc.Tokens.CacheRead,
			&sc.Tokens.CacheWrite, &sc.Tokens.Reasoning,
			&sc.Cost, &sc.Messages,
		); err != nil {
			return nil, err
		}
		if i, ok := index[date]; ok {
			contributions[i].Sources = append(contributions[i].Sources, sc)
		}
	}
	if err := srcRows.Err(); err != nil {
		return nil, err
	}

	return contributions, nil
}

// LeaderboardEntry is one ranked row of the public leaderboard.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	Username    string    `json:"username"`
	TotalTokens int64     `json:"totalTokens"`
	TotalCost   float64   `json:"totalCost"`
	ActiveDays  int       `json:"activeDays"`
	Sources     []string  `json:"sources"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Leaderboard ranks users by total tokens, descending, username breaking
// ties for a stable order.
func (db *DB) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := db.Query(`
		SELECT u.username, a.total_tokens, a.total_cost, a.active_days, a.sources, a.updated_at
		FROM user_aggregates a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.total_tokens DESC, u.username
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var sourcesJSON string
		if err := rows.Scan(&e.Username, &e.TotalTokens, &e.TotalCost, &e.ActiveDays, &sourcesJSON, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &e.Sources); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
