package export

import (
	"strings"
	"testing"

	"github.com/matsen/labpubs/internal/model"
)

func sampleWork() model.Work {
	return model.Work{
		DOI:             "10.1093/sysbio/syab001",
		Title:           "Adaptive Tree Proposals & Variational Inference",
		PublicationDate: "2021-02-03",
		Year:            2021,
		Venue:           "Systematic Biology",
		Type:            model.TypeJournalArticle,
		Authors: []model.Author{
			{Name: "Jane Doe"},
			{Name: "John Q Smith"},
		},
	}
}

func TestToBibTeX(t *testing.T) {
	got := ToBibTeX(sampleWork())

	wants := []string{
		"@article{doe2021adaptive,",
		"author = {Doe, Jane and Smith, John Q},",
		`title = {Adaptive Tree Proposals \& Variational Inference},`,
		"journal = {Systematic Biology},",
		"year = {2021},",
		"month = {2},",
		"doi = {10.1093/sysbio/syab001},",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestToBibTeXConferenceUsesBooktitle(t *testing.T) {
	w := sampleWork()
	w.Type = model.TypeConferencePaper
	w.Venue = "NeurIPS"
	got := ToBibTeX(w)
	if !strings.Contains(got, "@inproceedings{") || !strings.Contains(got, "booktitle = {NeurIPS},") {
		t.Errorf("conference entry wrong:\n%s", got)
	}
}

func TestToBibTeXPreprint(t *testing.T) {
	w := sampleWork()
	w.Type = model.TypePreprint
	w.Venue = "bioRxiv"
	got := ToBibTeX(w)
	if !strings.Contains(got, "@misc{") || !strings.Contains(got, "howpublished = {bioRxiv},") {
		t.Errorf("preprint entry wrong:\n%s", got)
	}
}

func TestCitationKey(t *testing.T) {
	tests := []struct {
		name string
		work model.Work
		want string
	}{
		{"basic", sampleWork(), "doe2021adaptive"},
		{
			"stop word skipped",
			model.Work{
				Title:   "The Wright-Fisher Model Revisited",
				Year:    2019,
				Authors: []model.Author{{Name: "Erick Matsen"}},
			},
			"matsen2019wrightfisher",
		},
		{
			"no authors",
			model.Work{Title: "Orphan Work", Year: 2020},
			"anon2020orphan",
		},
		{
			"diacritics stripped",
			model.Work{
				Title:   "Méthodes Bayésiennes",
				Year:    2022,
				Authors: []model.Author{{Name: "Élodie Dupré"}},
			},
			"dupr2022methodes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CitationKey(tt.work); got != tt.want {
				t.Errorf("CitationKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToBibTeXList(t *testing.T) {
	got := ToBibTeXList([]model.Work{sampleWork(), sampleWork()})
	if strings.Count(got, "@article{") != 2 {
		t.Errorf("expected two entries:\n%s", got)
	}
}

func TestEscapeLatex(t *testing.T) {
	got := escapeLatex("100% of $x_i & friends #1")
	want := `100\% of \$x\_i \& friends \#1`
	if got != want {
		t.Errorf("escapeLatex = %q, want %q", got, want)
	}
}
