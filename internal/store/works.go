package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matsen/labpubs/internal/dedup"
	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

const workColumns = `id, doi, title, title_normalized, publication_date, year, venue,
	work_type, abstract, open_access, open_access_url, citation_count, tldr,
	sources, raw_metadata, verified, verified_by, verified_at,
	verification_issue_url, notes, first_seen, last_updated`

// InsertWork persists a new canonical work and all its relationship
// rows (authors, native IDs, funding, linked resources) in one
// transaction, so a crash mid-run cannot leave a half-linked work.
func (s *Store) InsertWork(w model.Work) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	firstSeen := w.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = now
	}

	sourcesJSON, rawJSON, err := encodeProvenance(w)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		`INSERT INTO works (doi, title, title_normalized, publication_date, year,
			venue, work_type, abstract, open_access, open_access_url,
			citation_count, tldr, sources, raw_metadata, verified, verified_by,
			verified_at, verification_issue_url, notes, first_seen, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(normalize.DOI(w.DOI)), w.Title, normalize.Title(w.Title),
		nullStr(w.PublicationDate), nullInt(w.Year), nullStr(w.Venue),
		nullStr(string(w.Type)), nullStr(w.Abstract), encodeBoolPtr(w.OpenAccess),
		nullStr(w.OpenAccessURL), nullInt(w.CitationCount), nullStr(w.TLDR),
		sourcesJSON, rawJSON, boolToInt(w.Verified), nullStr(w.VerifiedBy),
		encodeTime(w.VerifiedAt), nullStr(w.VerificationIssueURL), nullStr(w.Notes),
		firstSeen.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting work %q: %w", w.Title, err)
	}
	workID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertRelations(tx, workID, w); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return workID, nil
}

// UpdateWork rewrites an existing work's row and relationship rows from
// a merged record. The original first_seen timestamp is preserved;
// relationship rows are replaced wholesale so repeated merges cannot
// duplicate them.
func (s *Store) UpdateWork(workID int64, w model.Work) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sourcesJSON, rawJSON, err := encodeProvenance(w)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`UPDATE works SET doi = ?, title = ?, title_normalized = ?,
			publication_date = ?, year = ?, venue = ?, work_type = ?, abstract = ?,
			open_access = ?, open_access_url = ?, citation_count = ?, tldr = ?,
			sources = ?, raw_metadata = ?, verified = ?, verified_by = ?,
			verified_at = ?, verification_issue_url = ?, notes = ?, last_updated = ?
		 WHERE id = ?`,
		nullStr(normalize.DOI(w.DOI)), w.Title, normalize.Title(w.Title),
		nullStr(w.PublicationDate), nullInt(w.Year), nullStr(w.Venue),
		nullStr(string(w.Type)), nullStr(w.Abstract), encodeBoolPtr(w.OpenAccess),
		nullStr(w.OpenAccessURL), nullInt(w.CitationCount), nullStr(w.TLDR),
		sourcesJSON, rawJSON, boolToInt(w.Verified), nullStr(w.VerifiedBy),
		encodeTime(w.VerifiedAt), nullStr(w.VerificationIssueURL), nullStr(w.Notes),
		time.Now().UTC().Format(time.RFC3339), workID,
	)
	if err != nil {
		return fmt.Errorf("updating work %d: %w", workID, err)
	}

	for _, table := range []string{"work_authors", "work_ids", "work_awards", "work_funders", "linked_resources"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE work_id = ?", workID); err != nil {
			return fmt.Errorf("clearing %s for work %d: %w", table, workID, err)
		}
	}
	if err := insertRelations(tx, workID, w); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRelations(tx *sql.Tx, workID int64, w model.Work) error {
	for i, a := range w.Authors {
		_, err := tx.Exec(
			`INSERT INTO work_authors (work_id, author_name, author_openalex_id,
				author_semantic_scholar_id, author_orcid, author_affiliation, author_position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			workID, a.Name, nullStr(a.OpenAlexID), nullStr(a.SemanticScholarID),
			nullStr(a.ORCID), nullStr(a.Affiliation), i,
		)
		if err != nil {
			return fmt.Errorf("inserting author %q: %w", a.Name, err)
		}
	}

	for source, nativeID := range w.NativeIDs {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO work_ids (work_id, source, native_id) VALUES (?, ?, ?)`,
			workID, string(source), nativeID,
		)
		if err != nil {
			return fmt.Errorf("inserting native ID for %s: %w", source, err)
		}
	}

	if err := persistFunding(tx, workID, w); err != nil {
		return err
	}

	for _, r := range w.LinkedResources {
		addedAt := r.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now().UTC()
		}
		_, err := tx.Exec(
			`INSERT INTO linked_resources (work_id, url, resource_type, name, description, added_by, added_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			workID, r.URL, r.Type, nullStr(r.Name), nullStr(r.Description),
			nullStr(r.AddedBy), addedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting linked resource %q: %w", r.URL, err)
		}
	}
	return nil
}

// LinkResearcherWork records that a sync run attributed the work to the
// researcher. Idempotent.
func (s *Store) LinkResearcherWork(researcherID, workID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO researcher_works (researcher_id, work_id) VALUES (?, ?)`,
		researcherID, workID,
	)
	return err
}

// WorkByID returns a fully hydrated work.
func (s *Store) WorkByID(workID int64) (model.Work, error) {
	row := s.db.QueryRow("SELECT "+workColumns+" FROM works WHERE id = ?", workID)
	w, id, err := scanWork(row)
	if err == sql.ErrNoRows {
		return model.Work{}, fmt.Errorf("work %d: %w", workID, ErrNotFound)
	}
	if err != nil {
		return model.Work{}, err
	}
	if err := s.hydrate(id, &w); err != nil {
		return model.Work{}, err
	}
	return w, nil
}

// WorkIDByDOI resolves a normalized DOI to a work row ID.
func (s *Store) WorkIDByDOI(doi string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM works WHERE doi = ?", normalize.DOI(doi)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("work with DOI %q: %w", doi, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MatchingWorks returns the minimal per-work tuples the dedup engine
// needs: normalized title, DOI, year, and author surnames.
func (s *Store) MatchingWorks() ([]dedup.ExistingWork, error) {
	rows, err := s.db.Query("SELECT id, title_normalized, doi, year FROM works")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []dedup.ExistingWork
	for rows.Next() {
		var (
			m    dedup.ExistingWork
			doi  sql.NullString
			year sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.NormTitle, &doi, &year); err != nil {
			return nil, err
		}
		m.DOI = doi.String
		m.Year = int(year.Int64)
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		surnames, err := s.workSurnames(results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Surnames = surnames
	}
	return results, nil
}

func (s *Store) workSurnames(workID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT author_name FROM work_authors WHERE work_id = ? ORDER BY author_position`,
		workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var surnames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if sn := normalize.Surname(name); sn != "" {
			surnames = append(surnames, sn)
		}
	}
	return surnames, rows.Err()
}

// TotalWorks returns the number of canonical works.
func (s *Store) TotalWorks() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM works").Scan(&n)
	return n, err
}

// MarkVerified sets a work's verification fields.
func (s *Store) MarkVerified(workID int64, verifiedBy, issueURL, notes string) error {
	res, err := s.db.Exec(
		`UPDATE works SET verified = 1, verified_by = ?, verified_at = ?,
			verification_issue_url = ?, notes = COALESCE(?, notes)
		 WHERE id = ?`,
		nullStr(verifiedBy), time.Now().UTC().Format(time.RFC3339),
		nullStr(issueURL), nullStr(notes), workID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("work %d: %w", workID, ErrNotFound)
	}
	return nil
}

// AddLinkedResource attaches a single resource to a work.
func (s *Store) AddLinkedResource(workID int64, r model.LinkedResource, addedBy string) error {
	_, err := s.db.Exec(
		`INSERT INTO linked_resources (work_id, url, resource_type, name, description, added_by, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		workID, r.URL, r.Type, nullStr(r.Name), nullStr(r.Description),
		nullStr(addedBy), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func encodeProvenance(w model.Work) (sourcesJSON, rawJSON any, err error) {
	if len(w.Sources) > 0 {
		b, err := json.Marshal(w.Sources)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding sources: %w", err)
		}
		sourcesJSON = string(b)
	}
	if len(w.Raw) > 0 {
		b, err := json.Marshal(w.Raw)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding raw metadata: %w", err)
		}
		rawJSON = string(b)
	}
	return sourcesJSON, rawJSON, nil
}

func encodeBoolPtr(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
