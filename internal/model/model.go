// Package model defines the core domain types shared across labpubs:
// works, researchers, funding entities, and sync results.
package model

import (
	"encoding/json"
	"time"
)

// Source identifies an upstream bibliographic catalog.
type Source string

// Known upstream catalogs.
const (
	SourceOpenAlex        Source = "openalex"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceCrossref        Source = "crossref"
)

// WorkType classifies a scholarly work.
type WorkType string

// Work type classifications, normalized across catalogs.
const (
	TypeJournalArticle  WorkType = "journal-article"
	TypeConferencePaper WorkType = "conference-paper"
	TypePreprint        WorkType = "preprint"
	TypeBookChapter     WorkType = "book-chapter"
	TypeDissertation    WorkType = "dissertation"
	TypeOther           WorkType = "other"
)

// Author is a single author on a work's author list. Most authors are
// not tracked researchers; IDs are filled only when a catalog provides them.
type Author struct {
	Name              string `json:"name"`
	OpenAlexID        string `json:"openalex_id,omitempty"`
	SemanticScholarID string `json:"semantic_scholar_id,omitempty"`
	ORCID             string `json:"orcid,omitempty"`
	Affiliation       string `json:"affiliation,omitempty"`
}

// Researcher is a member of the configured roster. NativeIDs holds the
// per-catalog author identifiers known for the researcher; the set is
// append-only across sync runs (resolution failures never clear it).
type Researcher struct {
	Name        string              `json:"name"`
	ORCID       string              `json:"orcid,omitempty"`
	Affiliation string              `json:"affiliation,omitempty"`
	StartDate   string              `json:"start_date,omitempty"`
	EndDate     string              `json:"end_date,omitempty"`
	Groups      []string            `json:"groups,omitempty"`
	NativeIDs   map[Source][]string `json:"native_ids,omitempty"`
}

// IDsFor returns the known native author IDs for one catalog.
func (r Researcher) IDsFor(s Source) []string {
	if r.NativeIDs == nil {
		return nil
	}
	return r.NativeIDs[s]
}

// Funder is a funding organization.
type Funder struct {
	OpenAlexID     string   `json:"openalex_id"`
	Name           string   `json:"name"`
	RORID          string   `json:"ror_id,omitempty"`
	CrossrefID     string   `json:"crossref_id,omitempty"`
	Country        string   `json:"country,omitempty"`
	AlternateNames []string `json:"alternate_names,omitempty"`
}

// Investigator is a grant PI or co-PI.
type Investigator struct {
	GivenName          string `json:"given_name,omitempty"`
	FamilyName         string `json:"family_name,omitempty"`
	ORCID              string `json:"orcid,omitempty"`
	AffiliationName    string `json:"affiliation_name,omitempty"`
	AffiliationCountry string `json:"affiliation_country,omitempty"`
}

// Award is a funding award or grant linked to works.
type Award struct {
	OpenAlexID         string         `json:"openalex_id"`
	DisplayName        string         `json:"display_name,omitempty"`
	Description        string         `json:"description,omitempty"`
	FunderAwardID      string         `json:"funder_award_id,omitempty"`
	Funder             *Funder        `json:"funder,omitempty"`
	DOI                string         `json:"doi,omitempty"`
	Amount             int            `json:"amount,omitempty"`
	FundingType        string         `json:"funding_type,omitempty"`
	StartYear          int            `json:"start_year,omitempty"`
	LeadInvestigator   *Investigator  `json:"lead_investigator,omitempty"`
	Investigators      []Investigator `json:"investigators,omitempty"`
	FundedOutputsCount int            `json:"funded_outputs_count,omitempty"`
}

// LinkedResource is a code repository, dataset, or other artifact
// attached to a work. AddedBy and AddedAt record who attached it and
// when; merges carry them through untouched.
type LinkedResource struct {
	URL         string    `json:"url"`
	Type        string    `json:"type"` // "code", "dataset", "slides", "video", "other"
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	AddedBy     string    `json:"added_by,omitempty"`
	AddedAt     time.Time `json:"added_at,omitzero"`
}

// Work is a canonical publication record, deduplicated across catalogs.
// A Work row is created once and mutated in place by merges.
type Work struct {
	DOI             string   `json:"doi,omitempty"`
	Title           string   `json:"title"`
	Authors         []Author `json:"authors,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"` // ISO date
	Year            int      `json:"year,omitempty"`
	Venue           string   `json:"venue,omitempty"`
	Type            WorkType `json:"type,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`

	// NativeIDs maps each contributing catalog to its record ID for this
	// work. Additive across merges, never overwritten.
	NativeIDs map[Source]string `json:"native_ids,omitempty"`

	OpenAccess    *bool  `json:"open_access,omitempty"`
	OpenAccessURL string `json:"open_access_url,omitempty"`
	CitationCount int    `json:"citation_count,omitempty"`
	TLDR          string `json:"tldr,omitempty"`

	Awards  []Award  `json:"awards,omitempty"`
	Funders []Funder `json:"funders,omitempty"`

	LinkedResources []LinkedResource `json:"linked_resources,omitempty"`

	Verified             bool      `json:"verified,omitempty"`
	VerifiedBy           string    `json:"verified_by,omitempty"`
	VerifiedAt           time.Time `json:"verified_at,omitzero"`
	VerificationIssueURL string    `json:"verification_issue_url,omitempty"`
	Notes                string    `json:"notes,omitempty"`

	Sources []Source `json:"sources,omitempty"`

	// Raw holds the unparsed catalog payload per contributing source,
	// kept for audit and debugging. Additive across merges.
	Raw map[Source]json.RawMessage `json:"-"`

	FirstSeen   time.Time `json:"first_seen,omitzero"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// NativeID returns the work's record ID at the given catalog.
func (w Work) NativeID(s Source) string {
	if w.NativeIDs == nil {
		return ""
	}
	return w.NativeIDs[s]
}

// SetNativeID records a catalog record ID on the work.
func (w *Work) SetNativeID(s Source, id string) {
	if id == "" {
		return
	}
	if w.NativeIDs == nil {
		w.NativeIDs = make(map[Source]string)
	}
	w.NativeIDs[s] = id
}

// SetRaw attaches the raw catalog payload for a source.
func (w *Work) SetRaw(s Source, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if w.Raw == nil {
		w.Raw = make(map[Source]json.RawMessage)
	}
	w.Raw[s] = json.RawMessage(payload)
}

// SourceError records a failed backend call during a sync run.
type SourceError struct {
	Researcher string `json:"researcher"`
	Source     Source `json:"source"`
	Message    string `json:"message"`
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Timestamp          time.Time     `json:"timestamp"`
	ResearchersChecked int           `json:"researchers_checked"`
	NewWorks           []Work        `json:"new_works,omitempty"`
	UpdatedWorks       []Work        `json:"updated_works,omitempty"`
	TotalWorks         int           `json:"total_works"`
	Errors             []SourceError `json:"errors,omitempty"`
}
