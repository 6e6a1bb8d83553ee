// Package dedup decides whether candidate publication records denote
// works already in the canonical set, and merges matched records.
//
// Matching is a strict three-tier cascade: exact normalized DOI, fuzzy
// title similarity, then title + year + author-surname overlap as a
// fallback for short or mangled titles. The engine is pure; it never
// touches storage.
package dedup

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

const (
	// DefaultTitleThreshold is the minimum token-sort similarity (0-100)
	// for a tier-2 title match.
	DefaultTitleThreshold = 90

	// DefaultFallbackThreshold is the minimum title similarity for the
	// tier-3 title+year+surname fallback.
	DefaultFallbackThreshold = 80
)

// ExistingWork is the minimal view of a stored work needed for matching.
type ExistingWork struct {
	ID        int64
	NormTitle string
	DOI       string
	Year      int
	Surnames  []string
}

// FromWork builds an ExistingWork entry from a full work record, for
// extending an in-memory match set after an insert.
func FromWork(id int64, w model.Work) ExistingWork {
	return ExistingWork{
		ID:        id,
		NormTitle: normalize.Title(w.Title),
		DOI:       normalize.DOI(w.DOI),
		Year:      w.Year,
		Surnames:  surnames(w),
	}
}

// Matcher applies the tiered matching cascade with fixed thresholds.
type Matcher struct {
	titleThreshold    int
	fallbackThreshold int
}

// NewMatcher returns a Matcher with the default thresholds.
func NewMatcher() *Matcher {
	return &Matcher{
		titleThreshold:    DefaultTitleThreshold,
		fallbackThreshold: DefaultFallbackThreshold,
	}
}

// NewMatcherWithThresholds returns a Matcher with custom tier-2 and
// tier-3 thresholds. Out-of-range values fall back to the defaults.
func NewMatcherWithThresholds(title, fallback int) *Matcher {
	m := NewMatcher()
	if title > 0 && title <= 100 {
		m.titleThreshold = title
	}
	if fallback > 0 && fallback <= 100 {
		m.fallbackThreshold = fallback
	}
	return m
}

// FindMatch returns the ID of the existing work the candidate denotes,
// or ok=false if no tier matches. Tiers are evaluated in order and the
// first match short-circuits; within a tier, existing works are scanned
// in slice order, so results depend only on the data.
func (m *Matcher) FindMatch(candidate model.Work, existing []ExistingWork) (int64, bool) {
	candDOI := normalize.DOI(candidate.DOI)
	candTitle := normalize.Title(candidate.Title)
	candSurnames := surnames(candidate)

	// Tier 1: exact DOI match.
	if candDOI != "" {
		for _, ew := range existing {
			if ew.DOI != "" && ew.DOI == candDOI {
				return ew.ID, true
			}
		}
	}

	// Tier 2: fuzzy title match.
	for _, ew := range existing {
		if TitleScore(candTitle, ew.NormTitle) >= m.titleThreshold {
			return ew.ID, true
		}
	}

	// Tier 3: close title + same year + overlapping surname.
	if candidate.Year != 0 && len(candSurnames) > 0 {
		for _, ew := range existing {
			if ew.Year != candidate.Year {
				continue
			}
			if TitleScore(candTitle, ew.NormTitle) < m.fallbackThreshold {
				continue
			}
			if overlaps(candSurnames, ew.Surnames) {
				return ew.ID, true
			}
		}
	}

	return 0, false
}

// TitleScore computes a token-order-insensitive similarity between two
// normalized titles on a 0-100 scale: tokens are sorted and rejoined,
// then scored by Levenshtein distance relative to the longer string.
func TitleScore(a, b string) int {
	sa := tokenSort(a)
	sb := tokenSort(b)
	if sa == sb {
		return 100
	}
	maxLen := len(sa)
	if len(sb) > maxLen {
		maxLen = len(sb)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(sa, sb)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

func tokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// surnames returns the sorted set of lowercased author family names.
func surnames(w model.Work) []string {
	seen := make(map[string]bool)
	for _, a := range w.Authors {
		if s := normalize.Surname(a.Name); s != "" {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = true
	}
	for _, s := range a {
		if set[strings.ToLower(s)] {
			return true
		}
	}
	return false
}
