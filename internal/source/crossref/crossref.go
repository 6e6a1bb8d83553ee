// Package crossref implements a Crossref lookup client used to enrich
// works known only by DOI, such as those pulled out of imported PDFs.
// Crossref is not a roster backend; it answers single-DOI queries.
package crossref

import (
	"context"
	"encoding/json"
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
	// BaseURL is the Crossref REST API root.
	BaseURL = "https://api.crossref.org"

	// RateLimit keeps us comfortably inside Crossref's polite-pool quota.
	RateLimit = 5.0

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

var typeMap = map[string]model.WorkType{
	"journal-article":     model.TypeJournalArticle,
	"proceedings-article": model.TypeConferencePaper,
	"posted-content":      model.TypePreprint,
	"book-chapter":        model.TypeBookChapter,
	"dissertation":        model.TypeDissertation,
}

// Client is a rate-limited Crossref API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
}

// Option configures a Client.
type Option func(*Client)

// WithEmail sets the contact email for the Crossref polite pool.
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

// New creates a Crossref client.
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

// WorkByDOI fetches Crossref metadata for one DOI and returns it as a
// candidate work. Returns source.ErrNotFound when the DOI is unknown.
func (c *Client) WorkByDOI(ctx context.Context, doi string) (model.Work, error) {
	doi = normalize.DOI(doi)
	if doi == "" {
		return model.Work{}, fmt.Errorf("empty DOI")
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	u := c.baseURL + "/works/" + url.PathEscape(doi) + c.mailto()
	err := source.GetJSON(ctx, c.httpClient, c.limiter, u, nil, func(body []byte) error {
		return json.Unmarshal(body, &envelope)
	})
	if err != nil {
		return model.Work{}, fmt.Errorf("crossref lookup %s: %w", doi, err)
	}
	return parseMessage(envelope.Message)
}

func (c *Client) mailto() string {
	if c.email == "" {
		return ""
	}
	return "?mailto=" + url.QueryEscape(c.email)
}

type messageJSON struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Type           string   `json:"type"`
	Abstract       string   `json:"abstract"`
	ReferencedBy   int      `json:"is-referenced-by-count"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		ORCID  string `json:"ORCID"`
	} `json:"author"`
	PublishedPrint struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-print"`
	PublishedOnline struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-online"`
}

func parseMessage(raw json.RawMessage) (model.Work, error) {
	var mj messageJSON
	if err := json.Unmarshal(raw, &mj); err != nil {
		return model.Work{}, fmt.Errorf("%w: %v", source.ErrInvalidResponse, err)
	}
	if len(mj.Title) == 0 || mj.Title[0] == "" {
		return model.Work{}, fmt.Errorf("%w: record has no title", source.ErrInvalidResponse)
	}

	date, year := earliestDate(mj.PublishedPrint.DateParts, mj.PublishedOnline.DateParts)

	w := model.Work{
		DOI:             normalize.DOI(mj.DOI),
		Title:           mj.Title[0],
		PublicationDate: date,
		Year:            year,
		Type:            mapType(mj.Type),
		Abstract:        stripJATS(mj.Abstract),
		CitationCount:   mj.ReferencedBy,
		Sources:         []model.Source{model.SourceCrossref},
	}
	if len(mj.ContainerTitle) > 0 {
		w.Venue = mj.ContainerTitle[0]
	}
	w.SetNativeID(model.SourceCrossref, w.DOI)
	w.SetRaw(model.SourceCrossref, raw)

	for _, a := range mj.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			continue
		}
		w.Authors = append(w.Authors, model.Author{
			Name:  name,
			ORCID: a.ORCID,
		})
	}
	return w, nil
}

func mapType(raw string) model.WorkType {
	if t, ok := typeMap[raw]; ok {
		return t
	}
	return model.TypeOther
}

// earliestDate picks the earlier of print and online publication dates.
// Crossref date-parts are [[year, month, day]] with month and day
// optional.
func earliestDate(print, online [][]int) (string, int) {
	pd, py := formatDateParts(print)
	od, oy := formatDateParts(online)
	switch {
	case py == 0:
		return od, oy
	case oy == 0:
		return pd, py
	case od < pd:
		return od, oy
	default:
		return pd, py
	}
}

func formatDateParts(parts [][]int) (string, int) {
	if len(parts) == 0 || len(parts[0]) == 0 {
		return "", 0
	}
	p := parts[0]
	year, month, day := p[0], 1, 1
	if len(p) > 1 {
		month = p[1]
	}
	if len(p) > 2 {
		day = p[2]
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), year
}

// stripJATS removes the JATS XML tags Crossref embeds in abstracts.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}
	var b strings.Builder
	inTag := false
	for _, r := range abstract {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
