package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/labpubs/internal/model"
)

type scanner interface {
	Scan(dest ...any) error
}

// scanWork reads one works row into a model.Work plus its row ID.
// Relationship tables are loaded separately by hydrate.
func scanWork(row scanner) (model.Work, int64, error) {
	var (
		id                                      int64
		title, titleNorm                        string
		doi, pubDate, venue, workType, abstract sql.NullString
		year, citations, openAccess             sql.NullInt64
		oaURL, tldr, sourcesRaw, rawMeta        sql.NullString
		verified                                int
		verifiedBy, verifiedAt, issueURL, notes sql.NullString
		firstSeen, lastUpdated                  sql.NullString
	)
	err := row.Scan(
		&id, &doi, &title, &titleNorm, &pubDate, &year, &venue,
		&workType, &abstract, &openAccess, &oaURL, &citations, &tldr,
		&sourcesRaw, &rawMeta, &verified, &verifiedBy, &verifiedAt,
		&issueURL, &notes, &firstSeen, &lastUpdated,
	)
	if err != nil {
		return model.Work{}, 0, err
	}

	w := model.Work{
		DOI:                  doi.String,
		Title:                title,
		PublicationDate:      pubDate.String,
		Year:                 int(year.Int64),
		Venue:                venue.String,
		Type:                 model.WorkType(workType.String),
		Abstract:             abstract.String,
		OpenAccessURL:        oaURL.String,
		CitationCount:        int(citations.Int64),
		TLDR:                 tldr.String,
		Verified:             verified != 0,
		VerifiedBy:           verifiedBy.String,
		VerifiedAt:           parseTime(verifiedAt.String),
		VerificationIssueURL: issueURL.String,
		Notes:                notes.String,
		FirstSeen:            parseTime(firstSeen.String),
		LastUpdated:          parseTime(lastUpdated.String),
	}
	if openAccess.Valid {
		oa := openAccess.Int64 != 0
		w.OpenAccess = &oa
	}
	if sourcesRaw.Valid && sourcesRaw.String != "" {
		if err := json.Unmarshal([]byte(sourcesRaw.String), &w.Sources); err != nil {
			return model.Work{}, 0, fmt.Errorf("decoding sources for work %d: %w", id, err)
		}
	}
	if rawMeta.Valid && rawMeta.String != "" {
		if err := json.Unmarshal([]byte(rawMeta.String), &w.Raw); err != nil {
			return model.Work{}, 0, fmt.Errorf("decoding raw metadata for work %d: %w", id, err)
		}
	}
	return w, id, nil
}

// hydrate loads a work's relationship rows: authors in published order,
// native IDs, awards, funders, and linked resources.
func (s *Store) hydrate(workID int64, w *model.Work) error {
	authors, err := s.loadAuthors(workID)
	if err != nil {
		return err
	}
	w.Authors = authors

	nativeIDs, err := s.loadNativeIDs(workID)
	if err != nil {
		return err
	}
	w.NativeIDs = nativeIDs

	awards, err := s.loadWorkAwards(workID)
	if err != nil {
		return err
	}
	w.Awards = awards

	funders, err := s.loadWorkFunders(workID)
	if err != nil {
		return err
	}
	w.Funders = funders

	resources, err := s.loadLinkedResources(workID)
	if err != nil {
		return err
	}
	w.LinkedResources = resources
	return nil
}

func (s *Store) loadAuthors(workID int64) ([]model.Author, error) {
	rows, err := s.db.Query(
		`SELECT author_name, author_openalex_id, author_semantic_scholar_id,
			author_orcid, author_affiliation
		 FROM work_authors WHERE work_id = ? ORDER BY author_position`,
		workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []model.Author
	for rows.Next() {
		var (
			name                     string
			oaID, s2ID, orcid, affil sql.NullString
		)
		if err := rows.Scan(&name, &oaID, &s2ID, &orcid, &affil); err != nil {
			return nil, err
		}
		authors = append(authors, model.Author{
			Name:              name,
			OpenAlexID:        oaID.String,
			SemanticScholarID: s2ID.String,
			ORCID:             orcid.String,
			Affiliation:       affil.String,
		})
	}
	return authors, rows.Err()
}

func (s *Store) loadNativeIDs(workID int64) (map[model.Source]string, error) {
	rows, err := s.db.Query(
		`SELECT source, native_id FROM work_ids WHERE work_id = ? ORDER BY source`,
		workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids map[model.Source]string
	for rows.Next() {
		var source, nativeID string
		if err := rows.Scan(&source, &nativeID); err != nil {
			return nil, err
		}
		if ids == nil {
			ids = make(map[model.Source]string)
		}
		ids[model.Source(source)] = nativeID
	}
	return ids, rows.Err()
}

func (s *Store) loadLinkedResources(workID int64) ([]model.LinkedResource, error) {
	rows, err := s.db.Query(
		`SELECT url, resource_type, name, description, added_by, added_at
		 FROM linked_resources WHERE work_id = ? ORDER BY id`,
		workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []model.LinkedResource
	for rows.Next() {
		var (
			url, resType      string
			name, description sql.NullString
			addedBy, addedAt  sql.NullString
		)
		if err := rows.Scan(&url, &resType, &name, &description, &addedBy, &addedAt); err != nil {
			return nil, err
		}
		resources = append(resources, model.LinkedResource{
			URL:         url,
			Type:        resType,
			Name:        name.String,
			Description: description.String,
			AddedBy:     addedBy.String,
			AddedAt:     parseTime(addedAt.String),
		})
	}
	return resources, rows.Err()
}

// Filter narrows ListWorks results. Zero values mean "no filter".
type Filter struct {
	ResearcherID int64
	Year         int
	Type         model.WorkType
	VerifiedOnly bool
	WithResource bool   // only works that have at least one linked resource
	FunderName   string // case-insensitive partial funder name match
	AwardNumber  string // funder-assigned grant number
}

// ListWorks returns hydrated works matching the filter, newest first.
func (s *Store) ListWorks(f Filter) ([]model.Work, error) {
	query := "SELECT DISTINCT w.id, w.year, w.title FROM works w"
	var conditions []string
	var params []any

	if f.ResearcherID != 0 {
		query += " JOIN researcher_works rw ON w.id = rw.work_id"
		conditions = append(conditions, "rw.researcher_id = ?")
		params = append(params, f.ResearcherID)
	}
	if f.FunderName != "" {
		query += ` LEFT JOIN work_funders wf ON w.id = wf.work_id
			LEFT JOIN funders f ON wf.funder_id = f.id
			LEFT JOIN work_awards wa2 ON w.id = wa2.work_id
			LEFT JOIN awards a2 ON wa2.award_id = a2.id
			LEFT JOIN funders af ON a2.funder_id = af.id`
		conditions = append(conditions, "(LOWER(f.name) LIKE ? OR LOWER(af.name) LIKE ?)")
		pattern := "%" + strings.ToLower(f.FunderName) + "%"
		params = append(params, pattern, pattern)
	}
	if f.AwardNumber != "" {
		query += ` JOIN work_awards wa ON w.id = wa.work_id
			JOIN awards a ON wa.award_id = a.id`
		conditions = append(conditions, "LOWER(a.funder_award_id) = ?")
		params = append(params, strings.ToLower(f.AwardNumber))
	}
	if f.Year != 0 {
		conditions = append(conditions, "w.year = ?")
		params = append(params, f.Year)
	}
	if f.Type != "" {
		conditions = append(conditions, "w.work_type = ?")
		params = append(params, string(f.Type))
	}
	if f.VerifiedOnly {
		conditions = append(conditions, "w.verified = 1")
	}
	if f.WithResource {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM linked_resources lr WHERE lr.work_id = w.id)")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY w.year DESC, w.title"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	// Collect IDs before hydrating: with a single connection, nested
	// queries would block while the cursor is open.
	var ids []int64
	for rows.Next() {
		var (
			id    int64
			year  sql.NullInt64
			title string
		)
		if err := rows.Scan(&id, &year, &title); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	return s.worksByIDs(ids)
}

// SearchWorks does a substring search over titles and abstracts.
func (s *Store) SearchWorks(query string, limit int) ([]model.Work, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT id FROM works WHERE title LIKE ? OR abstract LIKE ?
		 ORDER BY year DESC LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return s.worksByIDs(ids)
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) worksByIDs(ids []int64) ([]model.Work, error) {
	works := make([]model.Work, 0, len(ids))
	for _, id := range ids {
		w, err := s.WorkByID(id)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	return works, nil
}
