// Package semanticscholar implements the Semantic Scholar source
// backend, a secondary catalog with faster preprint pickup and TLDR
// summaries.
package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
	"github.com/matsen/labpubs/internal/source"
)

const (
	// BaseURL is the Semantic Scholar Graph API root.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// RateLimit is 1 request per second, the unauthenticated quota.
	RateLimit = 1.0

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// paperFields are the fields requested for author paper listings.
	paperFields = "title,abstract,venue,year,publicationDate,publicationTypes,externalIds,authors,citationCount,isOpenAccess,openAccessPdf,tldr"

	pageSize = 100
)

var typeMap = map[string]model.WorkType{
	"JournalArticle": model.TypeJournalArticle,
	"Conference":     model.TypeConferencePaper,
	"Review":         model.TypeJournalArticle,
	"Book":           model.TypeBookChapter,
}

// Client is a rate-limited Semantic Scholar API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key for higher rate limits.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates a Semantic Scholar client.
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
	return model.SourceSemanticScholar
}

func (c *Client) header() http.Header {
	if c.apiKey == "" {
		return nil
	}
	return http.Header{"X-Api-Key": []string{c.apiKey}}
}

// ResolveAndFetch resolves the researcher's Semantic Scholar author ID
// (ORCID first, bounded name search as fallback) and fetches papers
// from all known IDs, deduplicated by paper ID.
func (c *Client) ResolveAndFetch(ctx context.Context, r model.Researcher) (source.Result, error) {
	ids := append([]string(nil), r.IDsFor(model.SourceSemanticScholar)...)

	var resolved string
	if r.ORCID != "" {
		// A failed lookup leaves the researcher unresolved for this run;
		// stored IDs and the name fallback below still apply.
		if id, err := c.authorByORCID(ctx, r.ORCID); err == nil {
			resolved = id
		}
	}
	if resolved == "" && len(ids) == 0 {
		id, err := c.searchAuthor(ctx, r.Name)
		if err != nil {
			return source.Result{}, fmt.Errorf("s2 author search for %q: %w", r.Name, err)
		}
		resolved = id
	}
	if resolved != "" && !contains(ids, resolved) {
		ids = append(ids, resolved)
	}
	if len(ids) == 0 {
		return source.Result{}, nil
	}

	seen := make(map[string]bool)
	var works []model.Work
	for _, authorID := range ids {
		fetched, err := c.papersForAuthor(ctx, authorID)
		if err != nil {
			return source.Result{}, fmt.Errorf("s2 papers for %q (%s): %w", r.Name, authorID, err)
		}
		for _, w := range fetched {
			nativeID := w.NativeID(model.SourceSemanticScholar)
			if nativeID != "" && seen[nativeID] {
				continue
			}
			seen[nativeID] = true
			works = append(works, w)
		}
	}
	return source.Result{Works: works, ResolvedID: resolved}, nil
}

func (c *Client) authorByORCID(ctx context.Context, orcid string) (string, error) {
	var author struct {
		AuthorID string `json:"authorId"`
	}
	u := c.baseURL + "/author/ORCID:" + url.PathEscape(orcid) + "?fields=name"
	err := source.GetJSON(ctx, c.httpClient, c.limiter, u, c.header(), func(body []byte) error {
		return json.Unmarshal(body, &author)
	})
	if err != nil {
		return "", err
	}
	return author.AuthorID, nil
}

// searchAuthor returns an author ID only when the bounded search yields
// exactly one candidate; ambiguity is "unresolved", not an error.
func (c *Client) searchAuthor(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	var result struct {
		Data []struct {
			AuthorID string `json:"authorId"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/author/search?query=%s&limit=%d",
		c.baseURL, url.QueryEscape(name), source.MaxNameCandidates)
	err := source.GetJSON(ctx, c.httpClient, c.limiter, u, c.header(), func(body []byte) error {
		return json.Unmarshal(body, &result)
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if len(result.Data) == 1 {
		return result.Data[0].AuthorID, nil
	}
	return "", nil
}

func (c *Client) papersForAuthor(ctx context.Context, authorID string) ([]model.Work, error) {
	var works []model.Work
	offset := 0
	for {
		var page struct {
			Data []json.RawMessage `json:"data"`
			Next *int              `json:"next"`
		}
		u := fmt.Sprintf("%s/author/%s/papers?fields=%s&limit=%d&offset=%d",
			c.baseURL, url.PathEscape(authorID), url.QueryEscape(paperFields), pageSize, offset)
		err := source.GetJSON(ctx, c.httpClient, c.limiter, u, c.header(), func(body []byte) error {
			return json.Unmarshal(body, &page)
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Data {
			w, err := parsePaper(raw)
			if err != nil {
				continue
			}
			works = append(works, w)
		}
		if page.Next == nil || len(page.Data) == 0 {
			break
		}
		offset = *page.Next
	}
	return works, nil
}

type paperJSON struct {
	PaperID          string   `json:"paperId"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	Venue            string   `json:"venue"`
	Year             int      `json:"year"`
	PublicationDate  string   `json:"publicationDate"`
	PublicationTypes []string `json:"publicationTypes"`
	CitationCount    int      `json:"citationCount"`
	IsOpenAccess     *bool    `json:"isOpenAccess"`
	ExternalIDs      struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	OpenAccessPdf struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	TLDR struct {
		Text string `json:"text"`
	} `json:"tldr"`
	Authors []struct {
		AuthorID string `json:"authorId"`
		Name     string `json:"name"`
	} `json:"authors"`
}

func parsePaper(raw json.RawMessage) (model.Work, error) {
	var pj paperJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return model.Work{}, err
	}
	if pj.Title == "" {
		return model.Work{}, fmt.Errorf("paper %s has no title", pj.PaperID)
	}

	year := pj.Year
	if year == 0 && len(pj.PublicationDate) >= 4 {
		if t, err := time.Parse("2006-01-02", pj.PublicationDate); err == nil {
			year = t.Year()
		}
	}

	workType := model.TypeOther
	for _, t := range pj.PublicationTypes {
		if mapped, ok := typeMap[t]; ok {
			workType = mapped
			break
		}
	}

	w := model.Work{
		DOI:             normalize.DOI(pj.ExternalIDs.DOI),
		Title:           pj.Title,
		PublicationDate: pj.PublicationDate,
		Year:            year,
		Venue:           pj.Venue,
		Type:            workType,
		Abstract:        pj.Abstract,
		OpenAccess:      pj.IsOpenAccess,
		OpenAccessURL:   pj.OpenAccessPdf.URL,
		CitationCount:   pj.CitationCount,
		TLDR:            pj.TLDR.Text,
		Sources:         []model.Source{model.SourceSemanticScholar},
	}
	w.SetNativeID(model.SourceSemanticScholar, pj.PaperID)
	w.SetRaw(model.SourceSemanticScholar, raw)

	for _, a := range pj.Authors {
		name := a.Name
		if name == "" {
			name = "Unknown"
		}
		w.Authors = append(w.Authors, model.Author{
			Name:              name,
			SemanticScholarID: a.AuthorID,
		})
	}
	return w, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
