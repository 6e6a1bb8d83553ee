package export

import (
	"encoding/json"
	"time"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

var cslTypes = map[model.WorkType]string{
	model.TypeJournalArticle:  "article-journal",
	model.TypeConferencePaper: "paper-conference",
	model.TypePreprint:        "article",
	model.TypeBookChapter:     "chapter",
	model.TypeDissertation:    "thesis",
	model.TypeOther:           "document",
}

// cslItem is one CSL-JSON entry.
type cslItem struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Author         []cslName `json:"author,omitempty"`
	Issued         *cslDate  `json:"issued,omitempty"`
	ContainerTitle string    `json:"container-title,omitempty"`
	DOI            string    `json:"DOI,omitempty"`
	URL            string    `json:"URL,omitempty"`
	Abstract       string    `json:"abstract,omitempty"`
}

type cslName struct {
	Family string `json:"family,omitempty"`
	Given  string `json:"given,omitempty"`
}

type cslDate struct {
	DateParts [][]int `json:"date-parts"`
}

// ToCSLJSON renders works as a CSL-JSON array, the interchange format
// understood by Zotero, Pandoc, and citeproc.
func ToCSLJSON(works []model.Work) ([]byte, error) {
	items := make([]cslItem, 0, len(works))
	for _, w := range works {
		items = append(items, toCSLItem(w))
	}
	return json.MarshalIndent(items, "", "  ")
}

func toCSLItem(w model.Work) cslItem {
	item := cslItem{
		ID:             CitationKey(w),
		Type:           cslType(w),
		Title:          w.Title,
		ContainerTitle: w.Venue,
		DOI:            w.DOI,
		URL:            w.OpenAccessURL,
		Abstract:       w.Abstract,
	}
	for _, a := range w.Authors {
		given, family := normalize.SplitName(a.Name)
		item.Author = append(item.Author, cslName{Family: family, Given: given})
	}
	if parts := issuedParts(w); len(parts) > 0 {
		item.Issued = &cslDate{DateParts: [][]int{parts}}
	}
	return item
}

func cslType(w model.Work) string {
	if t, ok := cslTypes[w.Type]; ok {
		return t
	}
	return "document"
}

func issuedParts(w model.Work) []int {
	if t, err := time.Parse("2006-01-02", w.PublicationDate); err == nil {
		return []int{t.Year(), int(t.Month()), t.Day()}
	}
	if w.Year > 0 {
		return []int{w.Year}
	}
	return nil
}
