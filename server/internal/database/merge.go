package database

import (
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tokenboard/tokenboard/internal/model"
)

// Aggregate is the persisted per-user rollup. It is always recomputed from
// the full set of ledger rows after a merge, never incremented in place.
type Aggregate struct {
	UserID      string
	TotalTokens int64
	TotalCost   float64
	Tokens      model.TokenBreakdown
	ActiveDays  int
	FirstDate   string
	LastDate    string
	Sources     []string
	Models      []string
	UpdatedAt   time.Time
}

// MergeResult reports what a merge did.
type MergeResult struct {
	// Mode is "create" when the user had no ledger rows before this
	// submission, "merge" otherwise.
	Mode      string
	Aggregate Aggregate
}

// dayUpdateChunk bounds the variables per batched day statement (9 bind
// variables per day, SQLite caps at 999 per statement).
const dayUpdateChunk = 100

// MergeSubmission merges one device's submission into the user's ledger.
//
// Each incoming (day, source) is a full snapshot of that device's view:
// the device's existing partition for it is replaced wholesale, which makes
// resubmission idempotent. Sources and devices the payload does not mention
// are left untouched. All derived rows (days, user aggregate) are recomputed
// from the contributions table inside the same transaction, so readers never
// observe a partially merged submission.
func (db *DB) MergeSubmission(userID, deviceID string, data *model.ContributionData) (*MergeResult, error) {
	// Serialize merges per user; other users proceed independently.
	mu := db.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var hadRows bool
	err = tx.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM contributions WHERE user_id = ?)`, userID,
	).Scan(&hadRows)
	if err != nil {
		return nil, err
	}

	affectedDates := make(map[string]bool)

	delStmt, err := tx.Prepare(`
		DELETE FROM contributions
		WHERE user_id = ? AND date = ? AND source = ? AND device_id = ?
	`)
	if err != nil {
		return nil, err
	}
	defer delStmt.Close()

	insStmt, err := tx.Prepare(`
		INSERT INTO contributions
		(user_id, date, source, device_id, model_id, provider_id,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, reasoning_tokens,
		 cost, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer insStmt.Close()

	for _, day := range data.Contributions {
		bySource := collapseDay(day.Sources)
		affectedDates[day.Date] = true

		// Replace this device's partition per source mentioned by the
		// payload; absent sources keep their existing rows.
		for source, entries := range bySource {
			if _, err := delStmt.Exec(userID, day.Date, source, deviceID); err != nil {
				return nil, err
			}
			for _, sc := range entries {
				_, err := insStmt.Exec(
					userID, day.Date, source, deviceID, sc.ModelID, sc.ProviderID,
					sc.Tokens.Input, sc.Tokens.Output, sc.Tokens.CacheRead,
					sc.Tokens.CacheWrite, sc.Tokens.Reasoning,
					sc.Cost, sc.Messages,
				)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if err := recomputeDays(tx, userID, affectedDates); err != nil {
		return nil, err
	}

	agg, err := recomputeAggregate(tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	mode := "merge"
	if !hadRows {
		mode = "create"
	}
	return &MergeResult{Mode: mode, Aggregate: *agg}, nil
}

// collapseDay groups a day's source contributions by source, summing any
// duplicate (source, modelId) entries. A well-formed submission has no
// duplicates, but they must be tolerated.
func collapseDay(sources []model.SourceContribution) map[string][]model.SourceContribution {
	type key struct{ source, modelID string }
	merged := make(map[key]*model.SourceContribution)
	var order []key

	for _, sc := range sources {
		k := key{sc.Source, sc.ModelID}
		if existing, ok := merged[k]; ok {
			existing.Tokens.Add(sc.Tokens)
			existing.Cost += sc.Cost
			existing.Messages += sc.Messages
			continue
		}
		copied := sc
		merged[k] = &copied
		order = append(order, k)
	}

	bySource := make(map[string][]model.SourceContribution)
	for _, k := range order {
		bySource[k.source] = append(bySource[k.source], *merged[k])
	}
	return bySource
}

type dayRow struct {
	date     string
	tokens   model.TokenBreakdown
	cost     float64
	messages int64
}

// recomputeDays rebuilds the days rows for every affected date from the
// contributions table, batching new dates into one multi-row insert and
// existing dates into values-list driven updates.
func recomputeDays(tx *sql.Tx, userID string, dates map[string]bool) error {
	if len(dates) == 0 {
		return nil
	}

	sorted := make([]string, 0, len(dates))
	for d := range dates {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	sumStmt, err := tx.Prepare(`
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(cache_write_tokens), 0),
		       COALESCE(SUM(reasoning_tokens), 0),
		       COALESCE(SUM(cost), 0), COALESCE(SUM(messages), 0)
		FROM contributions
		WHERE user_id = ? AND date = ?
	`)
	if err != nil {
		return err
	}
	defer sumStmt.Close()

	rows := make([]dayRow, 0, len(sorted))
	for _, date := range sorted {
		var r dayRow
		r.date = date
		err := sumStmt.QueryRow(userID, date).Scan(
			&r.tokens.Input, &r.tokens.Output, &r.tokens.CacheRead,
			&r.tokens.CacheWrite, &r.tokens.Reasoning,
			&r.cost, &r.messages,
		)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}

	existing, err := existingDates(tx, userID, sorted)
	if err != nil {
		return err
	}

	var toInsert, toUpdate []dayRow
	for _, r := range rows {
		if existing[r.date] {
			toUpdate = append(toUpdate, r)
		} else {
			toInsert = append(toInsert, r)
		}
	}

	for start := 0; start < len(toInsert); start += dayUpdateChunk {
		end := min(start+dayUpdateChunk, len(toInsert))
		if err := insertDayRows(tx, userID, toInsert[start:end]); err != nil {
			return err
		}
	}
	for start := 0; start < len(toUpdate); start += dayUpdateChunk {
		end := min(start+dayUpdateChunk, len(toUpdate))
		if err := updateDayRows(tx, userID, toUpdate[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func existingDates(tx *sql.Tx, userID string, dates []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(dates); start += dayUpdateChunk {
		end := min(start+dayUpdateChunk, len(dates))
		chunk := dates[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, userID)
		for _, d := range chunk {
			args = append(args, d)
		}

		rows, err := tx.Query(
			`SELECT date FROM days WHERE user_id = ? AND date IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var d string
			if err := rows.Scan(&d); err != nil {
				rows.Close()
				return nil, err
			}
			existing[d] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func insertDayRows(tx *sql.Tx, userID string, rows []dayRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO days
		(user_id, date, total_tokens, total_cost, total_messages,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, reasoning_tokens)
		VALUES `)

	args := make([]interface{}, 0, len(rows)*10)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, userID, r.date, r.tokens.Sum(), r.cost, r.messages,
			r.tokens.Input, r.tokens.Output, r.tokens.CacheRead,
			r.tokens.CacheWrite, r.tokens.Reasoning)
	}

	_, err := tx.Exec(sb.String(), args...)
	return err
}

func updateDayRows(tx *sql.Tx, userID string, rows []dayRow) error {
	if len(rows) == 0 {
		return nil
	}

	// UPDATE ... FROM (VALUES ...) keeps a many-day resync to one statement
	// per chunk instead of one per day.
	var sb strings.Builder
	sb.WriteString(`UPDATE days SET
		total_tokens = v.column2, total_cost = v.column3, total_messages = v.column4,
		input_tokens = v.column5, output_tokens = v.column6, cache_read_tokens = v.column7,
		cache_write_tokens = v.column8, reasoning_tokens = v.column9
		FROM (VALUES `)

	args := make([]interface{}, 0, len(rows)*9+1)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.date, r.tokens.Sum(), r.cost, r.messages,
			r.tokens.Input, r.tokens.Output, r.tokens.CacheRead,
			r.tokens.CacheWrite, r.tokens.Reasoning)
	}
	sb.WriteString(`) AS v WHERE days.user_id = ? AND days.date = v.column1`)
	args = append(args, userID)

	_, err := tx.Exec(sb.String(), args...)
	return err
}

// recomputeAggregate rebuilds the user's aggregate row by scanning every
// persisted ledger row for that user.
func recomputeAggregate(tx *sql.Tx, userID string) (*Aggregate, error) {
	agg := &Aggregate{UserID: userID}

	err := tx.QueryRow(`
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(cache_write_tokens), 0),
		       COALESCE(SUM(reasoning_tokens), 0), COALESCE(SUM(cost), 0)
		FROM contributions
		WHERE user_id = ?
	`, userID).Scan(
		&agg.Tokens.Input, &agg.Tokens.Output, &agg.Tokens.CacheRead,
		&agg.Tokens.CacheWrite, &agg.Tokens.Reasoning, &agg.TotalCost,
	)
	if err != nil {
		return nil, err
	}
	agg.TotalTokens = agg.Tokens.Sum()

	err = tx.QueryRow(`
		SELECT COUNT(*), COALESCE(MIN(date), ''), COALESCE(MAX(date), '')
		FROM days
		WHERE user_id = ? AND total_tokens > 0
	`, userID).Scan(&agg.ActiveDays, &agg.FirstDate, &agg.LastDate)
	if err != nil {
		return nil, err
	}

	agg.Sources, err = distinctColumn(tx, `SELECT DISTINCT source FROM contributions WHERE user_id = ? ORDER BY source`, userID)
	if err != nil {
		return nil, err
	}
	agg.Models, err = distinctColumn(tx, `SELECT DISTINCT model_id FROM contributions WHERE user_id = ? ORDER BY model_id`, userID)
	if err != nil {
		return nil, err
	}

	agg.UpdatedAt = time.Now().UTC()

	sourcesJSON, err := json.Marshal(agg.Sources)
	if err != nil {
		return nil, err
	}
	modelsJSON, err := json.Marshal(agg.Models)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO user_aggregates
		(user_id, total_tokens, total_cost, input_tokens, output_tokens,
		 cache_read_tokens, cache_write_tokens, reasoning_tokens,
		 active_days, first_date, last_date, sources, models, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_tokens = excluded.total_tokens,
			total_cost = excluded.total_cost,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_write_tokens = excluded.cache_write_tokens,
			reasoning_tokens = excluded.reasoning_tokens,
			active_days = excluded.active_days,
			first_date = excluded.first_date,
			last_date = excluded.last_date,
			sources = excluded.sources,
			models = excluded.models,
			updated_at = excluded.updated_at
	`, userID, agg.TotalTokens, agg.TotalCost,
		agg.Tokens.Input, agg.Tokens.Output, agg.Tokens.CacheRead,
		agg.Tokens.CacheWrite, agg.Tokens.Reasoning,
		agg.ActiveDays, agg.FirstDate, agg.LastDate,
		string(sourcesJSON), string(modelsJSON), agg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func distinctColumn(tx *sql.Tx, query, userID string) ([]string, error) {
	rows, err := tx.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
