// Package store persists canonical works, the researcher roster, funding
// entities, and sync history in a local SQLite database.
//
// A single writer process is assumed per database file; WAL mode lets
// readers (listing, export) proceed while a sync writes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found in store")

const schema = `
CREATE TABLE IF NOT EXISTS researchers (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	orcid TEXT,
	affiliation TEXT,
	start_date TEXT,
	end_date TEXT,
	groups TEXT
);

CREATE TABLE IF NOT EXISTS researcher_ids (
	researcher_id INTEGER NOT NULL REFERENCES researchers(id),
	source TEXT NOT NULL,
	author_id TEXT NOT NULL,
	PRIMARY KEY (researcher_id, source, author_id)
);

CREATE TABLE IF NOT EXISTS works (
	id INTEGER PRIMARY KEY,
	doi TEXT UNIQUE,
	title TEXT NOT NULL,
	title_normalized TEXT NOT NULL,
	publication_date TEXT,
	year INTEGER,
	venue TEXT,
	work_type TEXT,
	abstract TEXT,
	open_access INTEGER,
	open_access_url TEXT,
	citation_count INTEGER,
	tldr TEXT,
	sources TEXT,
	raw_metadata TEXT,
	verified INTEGER NOT NULL DEFAULT 0,
	verified_by TEXT,
	verified_at TEXT,
	verification_issue_url TEXT,
	notes TEXT,
	first_seen TEXT,
	last_updated TEXT
);

CREATE TABLE IF NOT EXISTS work_ids (
	work_id INTEGER NOT NULL REFERENCES works(id),
	source TEXT NOT NULL,
	native_id TEXT NOT NULL,
	PRIMARY KEY (work_id, source)
);

CREATE TABLE IF NOT EXISTS work_authors (
	work_id INTEGER NOT NULL REFERENCES works(id),
	author_name TEXT NOT NULL,
	author_openalex_id TEXT,
	author_semantic_scholar_id TEXT,
	author_orcid TEXT,
	author_affiliation TEXT,
	author_position INTEGER NOT NULL,
	PRIMARY KEY (work_id, author_position)
);

CREATE TABLE IF NOT EXISTS researcher_works (
	researcher_id INTEGER NOT NULL REFERENCES researchers(id),
	work_id INTEGER NOT NULL REFERENCES works(id),
	PRIMARY KEY (researcher_id, work_id)
);

CREATE TABLE IF NOT EXISTS funders (
	id INTEGER PRIMARY KEY,
	openalex_id TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	ror_id TEXT,
	crossref_id TEXT,
	country TEXT,
	alternate_names TEXT
);

CREATE TABLE IF NOT EXISTS awards (
	id INTEGER PRIMARY KEY,
	openalex_id TEXT UNIQUE NOT NULL,
	display_name TEXT,
	description TEXT,
	funder_award_id TEXT,
	funder_id INTEGER REFERENCES funders(id),
	doi TEXT,
	amount INTEGER,
	funding_type TEXT,
	start_year INTEGER,
	lead_investigator_name TEXT,
	lead_investigator_orcid TEXT,
	funded_outputs_count INTEGER
);

CREATE TABLE IF NOT EXISTS award_investigators (
	award_id INTEGER NOT NULL REFERENCES awards(id),
	given_name TEXT,
	family_name TEXT,
	orcid TEXT,
	affiliation_name TEXT,
	affiliation_country TEXT,
	position INTEGER NOT NULL,
	PRIMARY KEY (award_id, position)
);

CREATE TABLE IF NOT EXISTS work_awards (
	work_id INTEGER NOT NULL REFERENCES works(id),
	award_id INTEGER NOT NULL REFERENCES awards(id),
	PRIMARY KEY (work_id, award_id)
);

CREATE TABLE IF NOT EXISTS work_funders (
	work_id INTEGER NOT NULL REFERENCES works(id),
	funder_id INTEGER NOT NULL REFERENCES funders(id),
	PRIMARY KEY (work_id, funder_id)
);

CREATE TABLE IF NOT EXISTS linked_resources (
	id INTEGER PRIMARY KEY,
	work_id INTEGER NOT NULL REFERENCES works(id),
	url TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	name TEXT,
	description TEXT,
	added_by TEXT,
	added_at TEXT
);

CREATE TABLE IF NOT EXISTS sync_log (
	id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	researchers_checked INTEGER,
	new_works INTEGER,
	updated_works INTEGER,
	total_works INTEGER,
	errors TEXT
);

CREATE INDEX IF NOT EXISTS idx_works_doi ON works(doi);
CREATE INDEX IF NOT EXISTS idx_works_title ON works(title_normalized);
CREATE INDEX IF NOT EXISTS idx_works_year ON works(year);
CREATE INDEX IF NOT EXISTS idx_works_verified ON works(verified);
CREATE INDEX IF NOT EXISTS idx_work_ids_native ON work_ids(source, native_id);
CREATE INDEX IF NOT EXISTS idx_researcher_works_work ON researcher_works(work_id);
CREATE INDEX IF NOT EXISTS idx_awards_funder ON awards(funder_id);
CREATE INDEX IF NOT EXISTS idx_awards_number ON awards(funder_award_id);
CREATE INDEX IF NOT EXISTS idx_linked_resources_work ON linked_resources(work_id);
`

// Store is a SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. The caller must Close the returned store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite does not support concurrent writers on one
	// connection pool; serialize access through a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullStr converts "" to NULL for insertion.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt converts 0 to NULL for insertion.
func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
