// Package pdfimport pulls DOIs out of publication PDFs and turns them
// into catalog candidates via Crossref.
package pdfimport

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// doiSearchPages bounds the scan; a paper's DOI sits on the first page
// almost always.
const doiSearchPages = 3

// Enricher fetches full metadata for a DOI. *crossref.Client satisfies
// this.
type Enricher interface {
	WorkByDOI(ctx context.Context, doi string) (model.Work, error)
}

// ExtractDOI scans the first pages of a PDF for a DOI. Returns "" with
// no error when none is found.
func ExtractDOI(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	maxPages := doiSearchPages
	if r.NumPage() < maxPages {
		maxPages = r.NumPage()
	}
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if doi := FindDOI(text); doi != "" {
			return doi, nil
		}
	}
	return "", nil
}

// Import extracts the DOI from a PDF and resolves it to a candidate
// work through the enricher.
func Import(ctx context.Context, filePath string, enricher Enricher) (model.Work, error) {
	doi, err := ExtractDOI(filePath)
	if err != nil {
		return model.Work{}, err
	}
	if doi == "" {
		return model.Work{}, fmt.Errorf("no DOI found in %s", filePath)
	}
	w, err := enricher.WorkByDOI(ctx, doi)
	if err != nil {
		return model.Work{}, fmt.Errorf("enriching %s: %w", doi, err)
	}
	return w, nil
}

// FindDOI returns the first valid DOI in text, normalized.
func FindDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return normalize.DOI(match)
		}
	}
	return ""
}

func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}
