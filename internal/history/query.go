package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// Filter selects rows from the load history
type Filter struct {
	Since      *time.Time // Earliest timestamp (inclusive), nil = no bound
	SessionID  string     // Only loads from this session
	FailedOnly bool       // Only loads that returned an error
	Limit      int        // Maximum rows, 0 = default
}

// DefaultLimit is the row limit used when Filter.Limit is zero
const DefaultLimit = 20

// LoadRecord is one row of the load history
type LoadRecord struct {
	ID         int64
	Time       time.Time
	SessionID  string
	Path       string
	Format     string
	Handle     int
	Channels   int
	SampleRate int
	Frames     int
	Duration   time.Duration
	Error      string
}

// Failed reports whether the load returned an error
func (r LoadRecord) Failed() bool {
	return r.Error != ""
}

// Summary aggregates the rows a filter selects
type Summary struct {
	Loads    int
	Failures int
	Sessions int
	Formats  map[string]int
}

// BuildWhereClause constructs the SQL WHERE clause and arguments for f
func (f *Filter) BuildWhereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since.Unix())
	}

	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}

	if f.FailedOnly {
		clauses = append(clauses, "error IS NOT NULL")
	}

	whereClause := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", whereClause, "arg_count", len(args))
	return whereClause, args
}

// Query returns the most recent loads matching filter, newest first
func Query(db *sql.DB, filter Filter) ([]LoadRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT id, timestamp, session_id, path, format, handle,
		       channels, sample_rate, frames, duration_ms, error
		FROM track_loads`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query load history: %w", err)
	}
	defer rows.Close()

	var results []LoadRecord
	for rows.Next() {
		var rec LoadRecord
		var ts, durationMs int64
		var format, errText sql.NullString

		if err := rows.Scan(&rec.ID, &ts, &rec.SessionID, &rec.Path, &format, &rec.Handle,
			&rec.Channels, &rec.SampleRate, &rec.Frames, &durationMs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan load history row: %w", err)
		}

		rec.Time = time.Unix(ts, 0)
		rec.Format = format.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Error = errText.String
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating load history rows: %w", err)
	}

	slog.Debug("queried load history", "rows", len(results), "limit", limit)
	return results, nil
}

// Summarize aggregates every load matching filter. Limit is ignored.
func Summarize(db *sql.DB, filter Filter) (*Summary, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT COALESCE(format, ''), COUNT(*),
		       SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END)
		FROM track_loads`
	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += " GROUP BY COALESCE(format, '')"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize load history: %w", err)
	}
	defer rows.Close()

	summary := &Summary{Formats: make(map[string]int)}
	for rows.Next() {
		var format string
		var loads, failures int
		if err := rows.Scan(&format, &loads, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.Loads += loads
		summary.Failures += failures
		if format != "" {
			summary.Formats[format] += loads
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	sessionQuery := "SELECT COUNT(DISTINCT session_id) FROM track_loads"
	if whereClause != "" {
		sessionQuery += " WHERE " + whereClause
	}
	if err := db.QueryRow(sessionQuery, args...).Scan(&summary.Sessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	return summary, nil
}

// ParseSince turns a --since argument into a lower time bound. Presets
// (today, yesterday, week, month) are tried first, then natural language
// such as "3 days ago" or "last monday".
func ParseSince(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if start, ok := presetStart(input, now); ok {
		slog.Debug("parsed date preset", "preset", input, "start", start)
		return start, nil
	}

	result, err := naturaldate.Parse(input, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		slog.Warn("failed to parse natural language date", "input", input, "error", err)
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", input, err)
	}
	if result.Equal(now) {
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': no time expression found", input)
	}

	slog.Debug("parsed natural language date", "input", input, "result", result)
	return result, nil
}

func presetStart(preset string, now time.Time) (time.Time, bool) {
	switch preset {
	case "today":
		return beginningOfDay(now), true
	case "yesterday":
		return beginningOfDay(now.AddDate(0, 0, -1)), true
	case "week", "this-week":
		return beginningOfWeek(now), true
	case "month", "this-month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00 of t's week
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, -int(weekday-1)))
}
