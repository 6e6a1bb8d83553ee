package semanticscholar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/matsen/labpubs/internal/model"
)

func testClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append(opts, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c := New(opts...)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func samplePaper(id, title string) map[string]any {
	return map[string]any{
		"paperId":          id,
		"title":            title,
		"abstract":         "An abstract.",
		"venue":            "bioRxiv",
		"year":             2024,
		"publicationDate":  "2024-02-10",
		"publicationTypes": []string{"JournalArticle"},
		"citationCount":    3,
		"isOpenAccess":     true,
		"externalIds":      map[string]any{"DOI": "10.1101/2024.02.10.579000"},
		"openAccessPdf":    map[string]any{"url": "https://example.org/paper.pdf"},
		"tldr":             map[string]any{"text": "Short summary."},
		"authors": []map[string]any{
			{"authorId": "144", "name": "Jane Doe"},
		},
	}
}

func papersPage(next *int, papers ...map[string]any) map[string]any {
	page := map[string]any{"data": papers}
	if next != nil {
		page["next"] = *next
	}
	return page
}

func TestResolveAndFetchByORCID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/author/ORCID:"):
			json.NewEncoder(w).Encode(map[string]any{"authorId": "144", "name": "Jane Doe"})
		case r.URL.Path == "/author/144/papers":
			json.NewEncoder(w).Encode(papersPage(nil, samplePaper("p1", "Clonal Family Inference")))
		default:
			http.NotFound(w, r)
		}
	}))

	res, err := c.ResolveAndFetch(context.Background(), model.Researcher{
		Name:  "Jane Doe",
		ORCID: "0000-0001-0000-0001",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "144" {
		t.Errorf("ResolvedID = %q", res.ResolvedID)
	}
	if len(res.Works) != 1 {
		t.Fatalf("got %d works", len(res.Works))
	}
	w := res.Works[0]
	if w.DOI != "10.1101/2024.02.10.579000" {
		t.Errorf("DOI = %q", w.DOI)
	}
	if w.TLDR != "Short summary." {
		t.Errorf("TLDR = %q", w.TLDR)
	}
	if w.OpenAccess == nil || !*w.OpenAccess || w.OpenAccessURL != "https://example.org/paper.pdf" {
		t.Errorf("open access fields: %+v", w)
	}
	if w.Type != model.TypeJournalArticle {
		t.Errorf("Type = %q", w.Type)
	}
	if len(w.Authors) != 1 || w.Authors[0].SemanticScholarID != "144" {
		t.Errorf("authors = %+v", w.Authors)
	}
}

func TestOffsetPagination(t *testing.T) {
	next := 100
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "0":
			json.NewEncoder(w).Encode(papersPage(&next, samplePaper("p1", "First")))
		case "100":
			json.NewEncoder(w).Encode(papersPage(nil, samplePaper("p2", "Second")))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
			http.NotFound(w, r)
		}
	}))

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceSemanticScholar: {"144"}},
	}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Works) != 2 {
		t.Fatalf("got %d works, want 2", len(res.Works))
	}
}

func TestSearchFallbackSingleCandidate(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/author/search":
			if got := r.URL.Query().Get("limit"); got != "5" {
				t.Errorf("limit = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"authorId": "987"}},
			})
		case "/author/987/papers":
			json.NewEncoder(w).Encode(papersPage(nil))
		default:
			http.NotFound(w, r)
		}
	}))

	res, err := c.ResolveAndFetch(context.Background(), model.Researcher{Name: "Rare Name"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "987" {
		t.Errorf("ResolvedID = %q", res.ResolvedID)
	}
}

func TestSearchFallbackAmbiguous(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"authorId": "1"}, {"authorId": "2"}},
		})
	}))

	res, err := c.ResolveAndFetch(context.Background(), model.Researcher{Name: "J Smith"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "" || len(res.Works) != 0 {
		t.Errorf("ambiguous search must stay unresolved, got %+v", res)
	}
}

func TestORCIDLookupErrorUsesStoredIDs(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/author/ORCID:"):
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Path == "/author/144/papers":
			json.NewEncoder(w).Encode(papersPage(nil, samplePaper("p1", "Stored ID Paper")))
		default:
			http.NotFound(w, r)
		}
	}))

	// A broken ORCID lookup must not take down the whole backend; papers
	// from already-known author IDs are still fetched.
	r := model.Researcher{
		Name:      "Jane Doe",
		ORCID:     "0000-0001-0000-0001",
		NativeIDs: map[model.Source][]string{model.SourceSemanticScholar: {"144"}},
	}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Works) != 1 || res.ResolvedID != "" {
		t.Errorf("res = %+v", res)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "sekrit" {
			t.Errorf("X-Api-Key = %q", got)
		}
		json.NewEncoder(w).Encode(papersPage(nil))
	}), WithAPIKey("sekrit"))

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceSemanticScholar: {"144"}},
	}
	if _, err := c.ResolveAndFetch(context.Background(), r); err != nil {
		t.Fatal(err)
	}
}

func TestParsePaperYearFromDate(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"paperId":         "p1",
		"title":           "Dated Paper",
		"publicationDate": "2022-11-30",
	})
	w, err := parsePaper(raw)
	if err != nil {
		t.Fatal(err)
	}
	if w.Year != 2022 {
		t.Errorf("Year = %d", w.Year)
	}
}

func TestParsePaperUntitledDropped(t *testing.T) {
	if _, err := parsePaper(json.RawMessage(`{"paperId":"p1"}`)); err == nil {
		t.Fatal("expected error for untitled paper")
	}
}
