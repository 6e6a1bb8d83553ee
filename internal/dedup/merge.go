package dedup

import (
	"encoding/json"

	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/normalize"
)

// Merge combines a newly fetched candidate into an existing canonical
// work. Existing scalar values win; missing ones are filled from the
// candidate. Citation counts always take the higher value. Native IDs,
// raw snapshots, sources, awards, and funders are additive unions.
// Verification fields belong to the existing record and are never
// touched by a merge.
func Merge(existing, candidate model.Work) model.Work {
	merged := existing

	if merged.DOI == "" {
		merged.DOI = candidate.DOI
	}
	merged.Authors = mergeAuthors(existing.Authors, candidate.Authors)
	if merged.PublicationDate == "" {
		merged.PublicationDate = candidate.PublicationDate
	}
	if merged.Year == 0 {
		merged.Year = candidate.Year
	}
	if merged.Venue == "" {
		merged.Venue = candidate.Venue
	}
	if merged.Type == "" || merged.Type == model.TypeOther {
		if candidate.Type != "" {
			merged.Type = candidate.Type
		}
	}
	if merged.Abstract == "" {
		merged.Abstract = candidate.Abstract
	}
	if merged.OpenAccess == nil {
		merged.OpenAccess = candidate.OpenAccess
	}
	if merged.OpenAccessURL == "" {
		merged.OpenAccessURL = candidate.OpenAccessURL
	}
	if candidate.CitationCount > merged.CitationCount {
		merged.CitationCount = candidate.CitationCount
	}
	if merged.TLDR == "" {
		merged.TLDR = candidate.TLDR
	}

	merged.NativeIDs = mergeNativeIDs(existing.NativeIDs, candidate.NativeIDs)
	merged.Raw = mergeRaw(existing.Raw, candidate.Raw)
	merged.Sources = mergeSources(existing.Sources, candidate.Sources)
	merged.Awards = mergeAwards(existing.Awards, candidate.Awards)
	merged.Funders = mergeFunders(existing.Funders, candidate.Funders)

	merged.FirstSeen = existing.FirstSeen
	if candidate.LastUpdated.After(existing.LastUpdated) {
		merged.LastUpdated = candidate.LastUpdated
	}

	return merged
}

// mergeAuthors keeps the longer author list and appends any names from
// the shorter list that are missing by normalized-name equality, so an
// incomplete catalog never drops attribution the other one carried.
func mergeAuthors(a, b []model.Author) []model.Author {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	kept, other := a, b
	if len(b) > len(a) {
		kept, other = b, a
	}

	seen := make(map[string]bool, len(kept))
	for _, au := range kept {
		seen[normalize.Title(au.Name)] = true
	}
	out := append([]model.Author(nil), kept...)
	for _, au := range other {
		if !seen[normalize.Title(au.Name)] {
			out = append(out, au)
		}
	}
	return out
}

func mergeNativeIDs(a, b map[model.Source]string) map[model.Source]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[model.Source]string, len(a)+len(b))
	for s, id := range b {
		out[s] = id
	}
	for s, id := range a {
		out[s] = id // existing wins on conflict
	}
	return out
}

func mergeRaw(a, b map[model.Source]json.RawMessage) map[model.Source]json.RawMessage {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[model.Source]json.RawMessage, len(a)+len(b))
	for s, raw := range b {
		out[s] = raw
	}
	for s, raw := range a {
		out[s] = raw
	}
	return out
}

func mergeSources(a, b []model.Source) []model.Source {
	seen := make(map[model.Source]bool)
	var out []model.Source
	for _, s := range append(append([]model.Source(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// mergeAwards unions award lists, deduplicating by OpenAlex ID with the
// existing entry winning.
func mergeAwards(a, b []model.Award) []model.Award {
	seen := make(map[string]bool, len(a))
	out := append([]model.Award(nil), a...)
	for _, aw := range a {
		seen[aw.OpenAlexID] = true
	}
	for _, aw := range b {
		if !seen[aw.OpenAlexID] {
			seen[aw.OpenAlexID] = true
			out = append(out, aw)
		}
	}
	return out
}

func mergeFunders(a, b []model.Funder) []model.Funder {
	seen := make(map[string]bool, len(a))
	out := append([]model.Funder(nil), a...)
	for _, f := range a {
		seen[f.OpenAlexID] = true
	}
	for _, f := range b {
		if !seen[f.OpenAlexID] {
			seen[f.OpenAlexID] = true
			out = append(out, f)
		}
	}
	return out
}
