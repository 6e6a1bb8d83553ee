// Package export renders the canonical works catalog as BibTeX and
// CSL-JSON for lab websites and reference managers.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

var entryTypes = map[model.WorkType]string{
	model.TypeJournalArticle:  "article",
	model.TypeConferencePaper: "inproceedings",
	model.TypePreprint:        "misc",
	model.TypeBookChapter:     "incollection",
	model.TypeDissertation:    "phdthesis",
	model.TypeOther:           "misc",
}

// Title words skipped when building citation keys.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "of": true,
	"in": true, "for": true, "and": true, "to": true, "with": true,
}

// ToBibTeX converts one work to a BibTeX entry.
func ToBibTeX(w model.Work) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType(w), CitationKey(w)))
	if len(w.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(w.Authors)))
	}
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(w.Title)))
	if w.Venue != "" {
		fieldName := "journal"
		switch entryType(w) {
		case "inproceedings", "incollection":
			fieldName = "booktitle"
		case "misc":
			fieldName = "howpublished"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(w.Venue)))
	}
	if w.Year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", w.Year))
	}
	if month := publicationMonth(w.PublicationDate); month > 0 {
		b.WriteString(fmt.Sprintf("  month = {%d},\n", month))
	}
	if w.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", w.DOI))
	}
	if w.OpenAccessURL != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", w.OpenAccessURL))
	}
	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple works to BibTeX entries separated by
// blank lines.
func ToBibTeXList(works []model.Work) string {
	var entries []string
	for _, w := range works {
		entries = append(entries, ToBibTeX(w))
	}
	return strings.Join(entries, "\n")
}

// CitationKey builds a key of the form doe2023tree: first author's
// surname, the year, and the first significant title word.
func CitationKey(w model.Work) string {
	surname := "anon"
	if len(w.Authors) > 0 {
		_, family := normalize.SplitName(w.Authors[0].Name)
		if s := keyToken(family); s != "" {
			surname = s
		}
	}

	word := ""
	for _, t := range strings.Fields(normalize.Title(w.Title)) {
		if !stopWords[t] {
			word = keyToken(t)
			break
		}
	}

	key := surname
	if w.Year > 0 {
		key += fmt.Sprintf("%d", w.Year)
	}
	return key + word
}

// keyToken lowercases and strips anything unsafe for a BibTeX key.
func keyToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func entryType(w model.Work) string {
	if t, ok := entryTypes[w.Type]; ok {
		return t
	}
	return "misc"
}

// formatAuthors renders "Last, First and Last, First".
func formatAuthors(authors []model.Author) string {
	var formatted []string
	for _, a := range authors {
		given, family := normalize.SplitName(a.Name)
		if given != "" {
			formatted = append(formatted, fmt.Sprintf("%s, %s", escapeLatex(family), escapeLatex(given)))
		} else {
			formatted = append(formatted, escapeLatex(family))
		}
	}
	return strings.Join(formatted, " and ")
}

func publicationMonth(date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	return int(t.Month())
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
