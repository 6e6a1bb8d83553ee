package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/source"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func worksPage(nextCursor string, works ...map[string]any) map[string]any {
	return map[string]any{
		"meta":    map[string]any{"next_cursor": nextCursor},
		"results": works,
	}
}

func sampleWorkJSON(id, doi, title string) map[string]any {
	return map[string]any{
		"id":               id,
		"doi":              doi,
		"title":            title,
		"publication_date": "2023-05-01",
		"publication_year": 2023,
		"type":             "article",
		"cited_by_count":   7,
		"authorships": []map[string]any{
			{
				"author": map[string]any{
					"id":           "https://openalex.org/A1",
					"display_name": "Jane Doe",
					"orcid":        "https://orcid.org/0000-0001-0000-0001",
				},
				"institutions": []map[string]any{{"display_name": "Example University"}},
			},
		},
		"open_access": map[string]any{"is_oa": true, "oa_url": "https://example.org/pdf"},
		"primary_location": map[string]any{
			"source": map[string]any{"display_name": "Journal of Examples"},
		},
	}
}

func TestResolveAndFetchByORCID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/authors/orcid:"):
			json.NewEncoder(w).Encode(map[string]any{"id": "https://openalex.org/A42"})
		case r.URL.Path == "/works":
			if got := r.URL.Query().Get("filter"); got != "author.id:https://openalex.org/A42" {
				t.Errorf("filter = %q", got)
			}
			json.NewEncoder(w).Encode(worksPage("",
				sampleWorkJSON("https://openalex.org/W1", "https://doi.org/10.1/ABC", "Tree Inference")))
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
	if res.ResolvedID != "https://openalex.org/A42" {
		t.Errorf("ResolvedID = %q", res.ResolvedID)
	}
	if len(res.Works) != 1 {
		t.Fatalf("got %d works, want 1", len(res.Works))
	}
	w := res.Works[0]
	if w.DOI != "10.1/abc" {
		t.Errorf("DOI = %q, want normalized 10.1/abc", w.DOI)
	}
	if w.NativeID(model.SourceOpenAlex) != "https://openalex.org/W1" {
		t.Errorf("native ID = %q", w.NativeID(model.SourceOpenAlex))
	}
	if w.CitationCount != 7 || w.Year != 2023 || w.Type != model.TypeJournalArticle {
		t.Errorf("unexpected fields: %+v", w)
	}
	if len(w.Authors) != 1 || w.Authors[0].Affiliation != "Example University" {
		t.Errorf("authors = %+v", w.Authors)
	}
	if w.Raw[model.SourceOpenAlex] == nil {
		t.Error("raw payload not recorded")
	}
}

func TestResolveAndFetchPagination(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "*":
			json.NewEncoder(w).Encode(worksPage("page2",
				sampleWorkJSON("https://openalex.org/W1", "", "First")))
		case "page2":
			json.NewEncoder(w).Encode(worksPage("",
				sampleWorkJSON("https://openalex.org/W2", "", "Second"),
				sampleWorkJSON("https://openalex.org/W1", "", "First")))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
			http.NotFound(w, r)
		}
	}))

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	// W1 appears on both pages; dedup by native ID keeps one copy.
	if len(res.Works) != 2 {
		t.Fatalf("got %d works, want 2", len(res.Works))
	}
	if res.ResolvedID != "" {
		t.Errorf("ResolvedID = %q, want empty when using stored IDs", res.ResolvedID)
	}
}

func TestSearchAuthorAmbiguousUnresolved(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authors" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "https://openalex.org/A1", "display_name": "J Smith"},
				{"id": "https://openalex.org/A2", "display_name": "J Smith"},
			},
		})
	}))

	res, err := c.ResolveAndFetch(context.Background(), model.Researcher{Name: "J Smith"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "" || len(res.Works) != 0 {
		t.Errorf("ambiguous search must yield empty result, got %+v", res)
	}
}

func TestSearchAuthorAffiliationFilter(t *testing.T) {
	var worksCalled bool
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authors":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"id":                      "https://openalex.org/A1",
						"display_name":            "J Smith",
						"last_known_institutions": []map[string]any{{"display_name": "Fred Hutchinson Cancer Center"}},
					},
					{
						"id":                      "https://openalex.org/A2",
						"display_name":            "J Smith",
						"last_known_institutions": []map[string]any{{"display_name": "Elsewhere Institute"}},
					},
				},
			})
		case "/works":
			worksCalled = true
			json.NewEncoder(w).Encode(worksPage(""))
		default:
			http.NotFound(w, r)
		}
	}))

	res, err := c.ResolveAndFetch(context.Background(), model.Researcher{
		Name:        "J Smith",
		Affiliation: "Fred Hutchinson",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "https://openalex.org/A1" {
		t.Errorf("ResolvedID = %q", res.ResolvedID)
	}
	if !worksCalled {
		t.Error("works endpoint never called for the resolved author")
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(worksPage(""))
	}))

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	if _, err := c.ResolveAndFetch(context.Background(), r); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAuthError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	_, err := c.ResolveAndFetch(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), source.ErrAuthError.Error()) {
		t.Fatalf("err = %v, want auth error", err)
	}
}

func TestParseWorkRebuildsAbstract(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"id":    "https://openalex.org/W9",
		"title": "Indexed Abstract",
		"abstract_inverted_index": map[string][]int{
			"phylogenetics": {2},
			"modern":        {1},
			"Practical":     {0},
		},
	})
	w, err := parseWork(raw)
	if err != nil {
		t.Fatal(err)
	}
	if w.Abstract != "Practical modern phylogenetics" {
		t.Errorf("Abstract = %q", w.Abstract)
	}
}

func TestParseWorkGrants(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"id":    "https://openalex.org/W9",
		"title": "Funded Work",
		"grants": []map[string]any{
			{"funder": "https://openalex.org/F1", "funder_display_name": "NIH", "award_id": "R01-123"},
			{"funder": "https://openalex.org/F2", "funder_display_name": "NSF"},
		},
	})
	w, err := parseWork(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Funders) != 2 {
		t.Fatalf("funders = %+v", w.Funders)
	}
	if len(w.Awards) != 1 || w.Awards[0].FunderAwardID != "R01-123" {
		t.Fatalf("awards = %+v", w.Awards)
	}
	if w.Awards[0].Funder == nil || w.Awards[0].Funder.Name != "NIH" {
		t.Errorf("award funder = %+v", w.Awards[0].Funder)
	}
}

func TestParseWorkNoTitle(t *testing.T) {
	if _, err := parseWork(json.RawMessage(`{"id":"https://openalex.org/W9"}`)); err == nil {
		t.Fatal("expected error for untitled record")
	}
}

func TestMailtoParam(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mailto"); got != "lab@example.org" {
			t.Errorf("mailto = %q", got)
		}
		json.NewEncoder(w).Encode(worksPage(""))
	}))
	c.email = "lab@example.org"

	r := model.Researcher{
		Name:      "Jane Doe",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	if _, err := c.ResolveAndFetch(context.Background(), r); err != nil {
		t.Fatal(err)
	}
}

func TestORCIDNotFoundFallsThrough(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/authors/orcid:"):
			http.NotFound(w, r)
		case r.URL.Path == "/works":
			json.NewEncoder(w).Encode(worksPage("",
				sampleWorkJSON("https://openalex.org/W1", "", fmt.Sprintf("Work %d", 1))))
		default:
			http.NotFound(w, r)
		}
	}))

	// Stored IDs exist, so the name search is skipped and works are still
	// fetched after the failed ORCID lookup.
	r := model.Researcher{
		Name:      "Jane Doe",
		ORCID:     "0000-0001-0000-0001",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Works) != 1 || res.ResolvedID != "" {
		t.Errorf("res = %+v", res)
	}
}

func TestORCIDLookupErrorUsesStoredIDs(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/authors/orcid:"):
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Path == "/works":
			json.NewEncoder(w).Encode(worksPage("",
				sampleWorkJSON("https://openalex.org/W1", "", "Stored ID Work")))
		default:
			http.NotFound(w, r)
		}
	}))

	// A broken ORCID lookup must not take down the whole backend; works
	// from already-known author IDs are still fetched.
	r := model.Researcher{
		Name:      "Jane Doe",
		ORCID:     "0000-0001-0000-0001",
		NativeIDs: map[model.Source][]string{model.SourceOpenAlex: {"A42"}},
	}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Works) != 1 || res.ResolvedID != "" {
		t.Errorf("res = %+v", res)
	}
}

func TestORCIDLookupErrorFallsBackToSearch(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/authors/orcid:"):
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Path == "/authors":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "https://openalex.org/A1", "display_name": "Jane Doe"},
				},
			})
		case r.URL.Path == "/works":
			json.NewEncoder(w).Encode(worksPage("",
				sampleWorkJSON("https://openalex.org/W1", "", "Searched Work")))
		default:
			http.NotFound(w, r)
		}
	}))

	r := model.Researcher{Name: "Jane Doe", ORCID: "0000-0001-0000-0001"}
	res, err := c.ResolveAndFetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResolvedID != "https://openalex.org/A1" {
		t.Errorf("ResolvedID = %q, want name-search fallback to resolve", res.ResolvedID)
	}
	if len(res.Works) != 1 {
		t.Errorf("works = %d, want 1", len(res.Works))
	}
}
