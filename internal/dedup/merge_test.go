package dedup

import (
	"testing"

	"github.com/matsen/labpubs/internal/model"
)

func TestMergeFillsMissingScalars(t *testing.T) {
	existing := model.Work{
		Title: "Deep Learning for X",
		DOI:   "10.1/abc",
		Year:  2022,
	}
	candidate := model.Work{
		Title:    "Deep learning for X.",
		Year:     2022,
		Venue:    "Journal of X",
		Abstract: "An abstract.",
		Type:     model.TypeJournalArticle,
	}
	merged := Merge(existing, candidate)

	if merged.Title != "Deep Learning for X" {
		t.Errorf("existing title should win, got %q", merged.Title)
	}
	if merged.DOI != "10.1/abc" {
		t.Errorf("DOI = %q", merged.DOI)
	}
	if merged.Venue != "Journal of X" {
		t.Errorf("missing venue should fill, got %q", merged.Venue)
	}
	if merged.Abstract != "An abstract." {
		t.Errorf("missing abstract should fill, got %q", merged.Abstract)
	}
	if merged.Type != model.TypeJournalArticle {
		t.Errorf("type other should yield to candidate, got %q", merged.Type)
	}
}

func TestMergeCitationMonotonic(t *testing.T) {
	a := model.Work{Title: "T", CitationCount: 12}
	b := model.Work{Title: "T", CitationCount: 7}

	if got := Merge(a, b).CitationCount; got != 12 {
		t.Errorf("Merge(12, 7) citations = %d, want 12", got)
	}
	if got := Merge(b, a).CitationCount; got != 12 {
		t.Errorf("Merge(7, 12) citations = %d, want 12", got)
	}
}

func TestMergeNativeIDUnion(t *testing.T) {
	existing := model.Work{Title: "T"}
	existing.SetNativeID(model.SourceOpenAlex, "W1")
	candidate := model.Work{Title: "T"}
	candidate.SetNativeID(model.SourceSemanticScholar, "abc123")

	merged := Merge(existing, candidate)
	if merged.NativeID(model.SourceOpenAlex) != "W1" {
		t.Errorf("openalex ID lost: %v", merged.NativeIDs)
	}
	if merged.NativeID(model.SourceSemanticScholar) != "abc123" {
		t.Errorf("s2 ID not added: %v", merged.NativeIDs)
	}

	// Conflicting ID for the same source: existing wins.
	candidate.SetNativeID(model.SourceOpenAlex, "W2")
	merged = Merge(existing, candidate)
	if merged.NativeID(model.SourceOpenAlex) != "W1" {
		t.Errorf("existing native ID overwritten: %v", merged.NativeIDs)
	}
}

func TestMergeSourcesOrderedUnion(t *testing.T) {
	existing := model.Work{Title: "T", Sources: []model.Source{model.SourceOpenAlex}}
	candidate := model.Work{Title: "T", Sources: []model.Source{model.SourceSemanticScholar, model.SourceOpenAlex}}

	merged := Merge(existing, candidate)
	want := []model.Source{model.SourceOpenAlex, model.SourceSemanticScholar}
	if len(merged.Sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", merged.Sources, want)
	}
	for i := range want {
		if merged.Sources[i] != want[i] {
			t.Errorf("Sources[%d] = %q, want %q", i, merged.Sources[i], want[i])
		}
	}
}

func TestMergeAuthorsPrefersLongerList(t *testing.T) {
	existing := model.Work{
		Title:   "T",
		Authors: []model.Author{{Name: "Jane Doe"}},
	}
	candidate := model.Work{
		Title: "T",
		Authors: []model.Author{
			{Name: "Jane Doe"},
			{Name: "Kim Lee"},
			{Name: "Sam Smith"},
		},
	}
	merged := Merge(existing, candidate)
	if len(merged.Authors) != 3 {
		t.Fatalf("Authors = %v, want candidate's longer list", merged.Authors)
	}
	if merged.Authors[0].Name != "Jane Doe" || merged.Authors[2].Name != "Sam Smith" {
		t.Errorf("author order not preserved: %v", merged.Authors)
	}
}

func TestMergeAuthorsKeepsExtraAttribution(t *testing.T) {
	// The longer list wins but a name present only in the shorter list
	// is still appended.
	existing := model.Work{
		Title: "T",
		Authors: []model.Author{
			{Name: "Jane Doe"},
			{Name: "Kim Lee"},
		},
	}
	candidate := model.Work{
		Title:   "T",
		Authors: []model.Author{{Name: "Pat Jones"}},
	}
	merged := Merge(existing, candidate)
	if len(merged.Authors) != 3 {
		t.Fatalf("Authors = %v, want 3 entries", merged.Authors)
	}
	if merged.Authors[2].Name != "Pat Jones" {
		t.Errorf("missing attribution not appended: %v", merged.Authors)
	}
}

func TestMergeVerificationUntouched(t *testing.T) {
	existing := model.Work{Title: "T", Verified: true, VerifiedBy: "erick"}
	candidate := model.Work{Title: "T", Notes: "from elsewhere"}

	merged := Merge(existing, candidate)
	if !merged.Verified || merged.VerifiedBy != "erick" {
		t.Errorf("verification fields changed by merge: %+v", merged)
	}
}

func TestMergeAwardsAndFundersByID(t *testing.T) {
	existing := model.Work{
		Title:   "T",
		Awards:  []model.Award{{OpenAlexID: "A1", DisplayName: "Grant one"}},
		Funders: []model.Funder{{OpenAlexID: "F1", Name: "NIH"}},
	}
	candidate := model.Work{
		Title: "T",
		Awards: []model.Award{
			{OpenAlexID: "A1", DisplayName: "Grant one (dup)"},
			{OpenAlexID: "A2", DisplayName: "Grant two"},
		},
		Funders: []model.Funder{{OpenAlexID: "F1", Name: "National Institutes of Health"}},
	}
	merged := Merge(existing, candidate)
	if len(merged.Awards) != 2 {
		t.Fatalf("Awards = %v", merged.Awards)
	}
	if merged.Awards[0].DisplayName != "Grant one" {
		t.Errorf("existing award should win on ID conflict: %v", merged.Awards)
	}
	if len(merged.Funders) != 1 || merged.Funders[0].Name != "NIH" {
		t.Errorf("Funders = %v", merged.Funders)
	}
}

// End-to-end field behavior from the two-source scenario: a DOI-bearing
// candidate followed by a DOI-less one with a higher citation count.
func TestMergeTwoSourceScenario(t *testing.T) {
	a := model.Work{
		Title:         "Deep Learning for X",
		DOI:           "10.1/abc",
		Year:          2022,
		CitationCount: 5,
		Sources:       []model.Source{model.SourceOpenAlex},
	}
	a.SetNativeID(model.SourceOpenAlex, "W1")

	b := model.Work{
		Title:         "Deep learning for X.",
		Year:          2022,
		CitationCount: 9,
		Sources:       []model.Source{model.SourceSemanticScholar},
	}
	b.SetNativeID(model.SourceSemanticScholar, "p99")

	merged := Merge(a, b)
	if merged.DOI != "10.1/abc" {
		t.Errorf("DOI = %q", merged.DOI)
	}
	if merged.CitationCount != 9 {
		t.Errorf("CitationCount = %d, want 9", merged.CitationCount)
	}
	if merged.NativeID(model.SourceOpenAlex) != "W1" || merged.NativeID(model.SourceSemanticScholar) != "p99" {
		t.Errorf("native IDs = %v", merged.NativeIDs)
	}
	if len(merged.Sources) != 2 {
		t.Errorf("Sources = %v", merged.Sources)
	}
}
