package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/labpubs/internal/model"
)

// UpsertResearcher inserts or updates a roster entry keyed by name and
// returns its row ID. Native IDs supplied on the researcher are added
// append-only; IDs already in the database are never removed, so a
// roster edit cannot erase identifiers discovered during past syncs.
func (s *Store) UpsertResearcher(r model.Researcher) (int64, error) {
	var groupsJSON any
	if len(r.Groups) > 0 {
		b, err := json.Marshal(r.Groups)
		if err != nil {
			return 0, fmt.Errorf("encoding groups: %w", err)
		}
		groupsJSON = string(b)
	}

	var id int64
	err := s.db.QueryRow("SELECT id FROM researchers WHERE name = ?", r.Name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(
			`INSERT INTO researchers (name, orcid, affiliation, start_date, end_date, groups)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.Name, nullStr(r.ORCID), nullStr(r.Affiliation),
			nullStr(r.StartDate), nullStr(r.EndDate), groupsJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting researcher %q: %w", r.Name, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("looking up researcher %q: %w", r.Name, err)
	default:
		_, err = s.db.Exec(
			`UPDATE researchers
			 SET orcid = ?, affiliation = ?, start_date = ?, end_date = ?, groups = ?
			 WHERE id = ?`,
			nullStr(r.ORCID), nullStr(r.Affiliation),
			nullStr(r.StartDate), nullStr(r.EndDate), groupsJSON, id,
		)
		if err != nil {
			return 0, fmt.Errorf("updating researcher %q: %w", r.Name, err)
		}
	}

	for source, ids := range r.NativeIDs {
		for _, authorID := range ids {
			if err := s.AddResearcherNativeID(id, source, authorID); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// AddResearcherNativeID records a catalog author ID for a researcher.
// Inserts are idempotent and append-only: an existing ID for the same
// catalog is kept alongside the new one.
func (s *Store) AddResearcherNativeID(researcherID int64, source model.Source, authorID string) error {
	if authorID == "" {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO researcher_ids (researcher_id, source, author_id)
		 VALUES (?, ?, ?)`,
		researcherID, string(source), authorID,
	)
	if err != nil {
		return fmt.Errorf("adding native ID for researcher %d: %w", researcherID, err)
	}
	return nil
}

// ResearcherID finds a researcher row ID by case-insensitive partial
// name match.
func (s *Store) ResearcherID(name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM researchers WHERE LOWER(name) LIKE ? ORDER BY id LIMIT 1",
		"%"+strings.ToLower(name)+"%",
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("researcher %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Researchers returns the full roster with native IDs loaded.
func (s *Store) Researchers() ([]model.Researcher, error) {
	rows, err := s.db.Query(
		`SELECT id, name, orcid, affiliation, start_date, end_date, groups
		 FROM researchers ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Researcher
	var ids []int64
	for rows.Next() {
		var (
			id                                        int64
			name                                      string
			orcid, affiliation, start, end, groupsRaw sql.NullString
		)
		if err := rows.Scan(&id, &name, &orcid, &affiliation, &start, &end, &groupsRaw); err != nil {
			return nil, err
		}
		r := model.Researcher{
			Name:        name,
			ORCID:       orcid.String,
			Affiliation: affiliation.String,
			StartDate:   start.String,
			EndDate:     end.String,
		}
		if groupsRaw.Valid && groupsRaw.String != "" {
			if err := json.Unmarshal([]byte(groupsRaw.String), &r.Groups); err != nil {
				return nil, fmt.Errorf("decoding groups for %q: %w", name, err)
			}
		}
		results = append(results, r)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		native, err := s.researcherNativeIDs(id)
		if err != nil {
			return nil, err
		}
		results[i].NativeIDs = native
	}
	return results, nil
}

// ResearcherNativeIDs returns the stored catalog author IDs for one
// researcher.
func (s *Store) ResearcherNativeIDs(researcherID int64) (map[model.Source][]string, error) {
	return s.researcherNativeIDs(researcherID)
}

func (s *Store) researcherNativeIDs(researcherID int64) (map[model.Source][]string, error) {
	rows, err := s.db.Query(
		`SELECT source, author_id FROM researcher_ids
		 WHERE researcher_id = ? ORDER BY source, author_id`,
		researcherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var native map[model.Source][]string
	for rows.Next() {
		var source, authorID string
		if err := rows.Scan(&source, &authorID); err != nil {
			return nil, err
		}
		if native == nil {
			native = make(map[model.Source][]string)
		}
		native[model.Source(source)] = append(native[model.Source(source)], authorID)
	}
	return native, rows.Err()
}
