// Package openalex implements the OpenAlex source backend, the primary
// catalog with the broadest free coverage and stable author IDs.
package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
	"github.com/matsen/labpubs/internal/source"
)

const (
	// BaseURL is the OpenAlex API root.
	BaseURL = "https://api.openalex.org"

	// RateLimit is 10 requests per second per OpenAlex documentation.
	RateLimit = 10.0

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	perPage = 200
)

var typeMap = map[string]model.WorkType{
	"article":             model.TypeJournalArticle,
	"journal-article":     model.TypeJournalArticle,
	"proceedings-article": model.TypeConferencePaper,
	"posted-content":      model.TypePreprint,
	"preprint":            model.TypePreprint,
	"book-chapter":        model.TypeBookChapter,
	"dissertation":        model.TypeDissertation,
}

// Client is a rate-limited OpenAlex API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
}

// Option configures a Client.
type Option func(*Client)

// WithEmail sets the contact email for the OpenAlex polite pool.
func WithEmail(email string) Option {
	return func(c *Client) { c.email = email }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates an OpenAlex client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements source.Backend.
func (c *Client) Name() model.Source {
	return model.SourceOpenAlex
}

// ResolveAndFetch resolves the researcher's OpenAlex author identity
// and fetches their works. ORCID lookup is tried first; if it fails and
// no IDs are stored, a bounded name search runs as a fallback. Works
// are fetched from the union of stored and newly resolved IDs and
// deduplicated by OpenAlex work ID.
func (c *Client) ResolveAndFetch(ctx context.Context, r model.Researcher) (source.Result, error) {
	ids := append([]string(nil), r.IDsFor(model.SourceOpenAlex)...)

	var resolved string
	if r.ORCID != "" {
		// A failed lookup leaves the researcher unresolved for this run;
		// stored IDs and the name fallback below still apply.
		if id, err := c.authorByORCID(ctx, r.ORCID); err == nil {
			resolved = id
		}
	}
	if resolved == "" && len(ids) == 0 {
		id, err := c.searchAuthor(ctx, r.Name, r.Affiliation)
		if err != nil {
			return source.Result{}, fmt.Errorf("openalex author search for %q: %w", r.Name, err)
		}
		resolved = id
	}
	if resolved != "" && !contains(ids, resolved) {
		ids = append(ids, resolved)
	}
	if len(ids) == 0 {
		// Unresolved is not an error; there is just nothing to fetch.
		return source.Result{}, nil
	}

	seen := make(map[string]bool)
	var works []model.Work
	for _, authorID := range ids {
		fetched, err := c.worksForAuthor(ctx, authorID)
		if err != nil {
			return source.Result{}, fmt.Errorf("openalex works for %q (%s): %w", r.Name, authorID, err)
		}
		for _, w := range fetched {
			nativeID := w.NativeID(model.SourceOpenAlex)
			if nativeID != "" && seen[nativeID] {
				continue
			}
			seen[nativeID] = true
			works = append(works, w)
		}
	}
	return source.Result{Works: works, ResolvedID: resolved}, nil
}

type authorJSON struct {
	ID                    string  `json:"id"`
	DisplayName           string  `json:"display_name"`
	ORCID                 string  `json:"orcid"`
	LastKnownInstitutions []struct {
		DisplayName string `json:"display_name"`
	} `json:"last_known_institutions"`
}

func (c *Client) authorByORCID(ctx context.Context, orcid string) (string, error) {
	var author authorJSON
	u := c.baseURL + "/authors/orcid:" + url.PathEscape(orcid) + c.mailto("?")
	err := source.GetJSON(ctx, c.httpClient, c.limiter, u, nil, func(body []byte) error {
		return json.Unmarshal(body, &author)
	})
	if err != nil {
		return "", err
	}
	return author.ID, nil
}

// searchAuthor runs the bounded name-search fallback: at most
// MaxNameCandidates results are examined, optionally filtered by
// affiliation substring, and an ID is returned only when exactly one
// candidate survives. Ambiguity yields "", not an error.
func (c *Client) searchAuthor(ctx context.Context, name, affiliation string) (string, error) {
	if name == "" {
		return "", nil
	}
	var result struct {
		Results []authorJSON `json:"results"`
	}
	u := fmt.Sprintf("%s/authors?search=%s&per-page=%d%s",
		c.baseURL, url.QueryEscape(name), source.MaxNameCandidates, c.mailto("&"))
	err := source.GetJSON(ctx, c.httpClient, c.limiter, u, nil, func(body []byte) error {
		return json.Unmarshal(body, &result)
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	var matches []string
	for _, a := range result.Results {
		if affiliation != "" {
			var inst string
			if len(a.LastKnownInstitutions) > 0 {
				inst = a.LastKnownInstitutions[0].DisplayName
			}
			if inst == "" || !strings.Contains(normalize.Title(inst), normalize.Title(affiliation)) {
				continue
			}
		}
		matches = append(matches, a.ID)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return "", nil
}

func (c *Client) worksForAuthor(ctx context.Context, authorID string) ([]model.Work, error) {
	var works []model.Work
	cursor := "*"
	for cursor != "" {
		var page struct {
			Meta struct {
				NextCursor string `json:"next_cursor"`
			} `json:"meta"`
			Results []json.RawMessage `json:"results"`
		}
		u := fmt.Sprintf("%s/works?filter=author.id:%s&per-page=%d&cursor=%s%s",
			c.baseURL, url.QueryEscape(authorID), perPage, url.QueryEscape(cursor), c.mailto("&"))
		err := source.GetJSON(ctx, c.httpClient, c.limiter, u, nil, func(body []byte) error {
			return json.Unmarshal(body, &page)
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Results {
			w, err := parseWork(raw)
			if err != nil {
				// Malformed records are dropped, not fatal for the page.
				continue
			}
			works = append(works, w)
		}
		cursor = page.Meta.NextCursor
	}
	return works, nil
}

func (c *Client) mailto(sep string) string {
	if c.email == "" {
		return ""
	}
	return sep + "mailto=" + url.QueryEscape(c.email)
}

type workJSON struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	PublicationYear int    `json:"publication_year"`
	Type            string `json:"type"`
	CitedByCount    int    `json:"cited_by_count"`
	Authorships     []struct {
		Author struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			ORCID       string `json:"orcid"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`
	OpenAccess struct {
		IsOA  *bool  `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Grants                []struct {
		Funder            string `json:"funder"`
		FunderDisplayName string `json:"funder_display_name"`
		AwardID           string `json:"award_id"`
	} `json:"grants"`
}

func parseWork(raw json.RawMessage) (model.Work, error) {
	var wj workJSON
	if err := json.Unmarshal(raw, &wj); err != nil {
		return model.Work{}, err
	}
	if wj.Title == "" {
		return model.Work{}, fmt.Errorf("work %s has no title", wj.ID)
	}

	w := model.Work{
		DOI:             normalize.DOI(wj.DOI),
		Title:           wj.Title,
		PublicationDate: wj.PublicationDate,
		Year:            wj.PublicationYear,
		Venue:           wj.PrimaryLocation.Source.DisplayName,
		Type:            mapType(wj.Type),
		Abstract:        reconstructAbstract(wj.AbstractInvertedIndex),
		OpenAccess:      wj.OpenAccess.IsOA,
		OpenAccessURL:   wj.OpenAccess.OAURL,
		CitationCount:   wj.CitedByCount,
		Sources:         []model.Source{model.SourceOpenAlex},
	}
	w.SetNativeID(model.SourceOpenAlex, wj.ID)
	w.SetRaw(model.SourceOpenAlex, raw)

	for _, a := range wj.Authorships {
		var affiliation string
		if len(a.Institutions) > 0 {
			affiliation = a.Institutions[0].DisplayName
		}
		name := a.Author.DisplayName
		if name == "" {
			name = "Unknown"
		}
		w.Authors = append(w.Authors, model.Author{
			Name:        name,
			OpenAlexID:  a.Author.ID,
			ORCID:       a.Author.ORCID,
			Affiliation: affiliation,
		})
	}

	for _, g := range wj.Grants {
		if g.Funder == "" || g.FunderDisplayName == "" {
			continue
		}
		funder := model.Funder{OpenAlexID: g.Funder, Name: g.FunderDisplayName}
		w.Funders = append(w.Funders, funder)
		if g.AwardID != "" {
			w.Awards = append(w.Awards, model.Award{
				OpenAlexID:    g.Funder + "/" + g.AwardID,
				FunderAwardID: g.AwardID,
				Funder:        &funder,
			})
		}
	}
	return w, nil
}

func mapType(raw string) model.WorkType {
	if t, ok := typeMap[raw]; ok {
		return t
	}
	return model.TypeOther
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted
// index (word -> positions).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	slots := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p < len(slots) {
				slots[p] = word
			}
		}
	}
	var parts []string
	for _, s := range slots {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
