package history

import (
	"database/sql"
	"log/slog"
	"sync"

	"stemdeck.click/internal/player"
)

// Recorder writes every track load attempt to the history database.
// After the first write failure it disables itself so a broken database
// never interferes with playback.
type Recorder struct {
	mu       sync.Mutex
	db       *sql.DB
	disabled bool
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Hook returns the load hook to register with player.WithLoadHook
func (r *Recorder) Hook() player.LoadHook {
	return func(event player.LoadEvent) {
		r.Record(event)
	}
}

// Record stores one load event. It reports whether the row was written.
func (r *Recorder) Record(event player.LoadEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled || r.db == nil {
		return false
	}

	var errText sql.NullString
	if event.Err != nil {
		errText = sql.NullString{String: event.Err.Error(), Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO track_loads
			(timestamp, session_id, path, format, handle, channels, sample_rate, frames, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Time.Unix(),
		event.SessionID,
		event.Path,
		event.Format,
		event.Handle,
		event.Channels,
		event.SampleRate,
		event.Frames,
		event.Duration.Milliseconds(),
		errText,
	)
	if err != nil {
		slog.Warn("load history disabled after write failure", "error", err, "path", event.Path)
		r.disabled = true
		return false
	}

	slog.Debug("recorded track load",
		"session_id", event.SessionID,
		"path", event.Path,
		"handle", event.Handle,
		"failed", errText.Valid)
	return true
}

// Disabled reports whether a previous write failure stopped recording
func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}
