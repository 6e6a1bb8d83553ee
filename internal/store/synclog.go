package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matsen/labpubs/internal/model"
)

// SyncLogEntry is one recorded sync run.
type SyncLogEntry struct {
	Timestamp          time.Time           `json:"timestamp"`
	ResearchersChecked int                 `json:"researchers_checked"`
	NewWorks           int                 `json:"new_works"`
	UpdatedWorks       int                 `json:"updated_works"`
	TotalWorks         int                 `json:"total_works"`
	Errors             []model.SourceError `json:"errors,omitempty"`
}

// LogSync appends a run summary to the sync log.
func (s *Store) LogSync(result model.SyncResult) error {
	var errorsJSON any
	if len(result.Errors) > 0 {
		b, err := json.Marshal(result.Errors)
		if err != nil {
			return fmt.Errorf("encoding sync errors: %w", err)
		}
		errorsJSON = string(b)
	}
	_, err := s.db.Exec(
		`INSERT INTO sync_log (timestamp, researchers_checked, new_works,
			updated_works, total_works, errors)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.Timestamp.UTC().Format(time.RFC3339), result.ResearchersChecked,
		len(result.NewWorks), len(result.UpdatedWorks), result.TotalWorks, errorsJSON,
	)
	return err
}

// LastSyncTime returns when the most recent sync ran, or the zero time
// if no sync has been recorded.
func (s *Store) LastSyncTime() (time.Time, error) {
	var ts string
	err := s.db.QueryRow("SELECT timestamp FROM sync_log ORDER BY id DESC LIMIT 1").Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(ts), nil
}

// RecentSyncs returns the most recent sync log entries, newest first.
func (s *Store) RecentSyncs(limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT timestamp, researchers_checked, new_works, updated_works,
			total_works, errors
		 FROM sync_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyncLogEntry
	for rows.Next() {
		var (
			e         SyncLogEntry
			ts        string
			errorsRaw sql.NullString
		)
		if err := rows.Scan(&ts, &e.ResearchersChecked, &e.NewWorks, &e.UpdatedWorks, &e.TotalWorks, &errorsRaw); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		if errorsRaw.Valid && errorsRaw.String != "" {
			if err := json.Unmarshal([]byte(errorsRaw.String), &e.Errors); err != nil {
				return nil, fmt.Errorf("decoding sync errors: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
