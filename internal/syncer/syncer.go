// Package syncer orchestrates a sync run: fetch candidate works for
// every roster researcher from every enabled backend, deduplicate them
// against the catalog, and persist the results.
package syncer

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/labpubs/internal/dedup"
	"github.com/matsen/labpubs/internal/model"
	"github.com/matsen/labpubs/internal/source"
	"github.com/matsen/labpubs/internal/store"
)

// Syncer runs sync passes over a roster.
type Syncer struct {
	store    *store.Store
	backends []source.Backend
	matcher  *dedup.Matcher
	logger   *zap.Logger
}

// New creates a Syncer. A nil logger disables logging.
func New(st *store.Store, backends []source.Backend, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:    st,
		backends: backends,
		matcher:  dedup.NewMatcher(),
		logger:   logger,
	}
}

// fetchOutcome is one (researcher, backend) fetch delivered to the
// single-writer loop.
type fetchOutcome struct {
	researcherID int64
	researcher   string
	backend      model.Source
	result       source.Result
	err          error
}

// Run executes one full sync pass. Backend fetches run concurrently,
// one goroutine per (researcher, backend) pair; all database writes
// happen on this goroutine as outcomes arrive, so the store never sees
// concurrent writers. A failing (researcher, backend) pair is recorded
// in the result's Errors and never aborts the rest of the run.
func (s *Syncer) Run(ctx context.Context, roster []model.Researcher) (model.SyncResult, error) {
	result := model.SyncResult{
		Timestamp:          time.Now().UTC(),
		ResearchersChecked: len(roster),
	}

	// The caller's roster is a configuration snapshot; work on a copy.
	roster = append([]model.Researcher(nil), roster...)

	ids := make([]int64, len(roster))
	for i, r := range roster {
		id, err := s.store.UpsertResearcher(r)
		if err != nil {
			return result, err
		}
		ids[i] = id
		stored, err := s.store.ResearcherNativeIDs(id)
		if err != nil {
			return result, err
		}
		roster[i].NativeIDs = stored
	}

	outcomes := make(chan fetchOutcome)
	var wg sync.WaitGroup
	for i, r := range roster {
		for _, b := range s.backends {
			wg.Add(1)
			go func(researcherID int64, r model.Researcher, b source.Backend) {
				defer wg.Done()
				res, err := b.ResolveAndFetch(ctx, r)
				outcomes <- fetchOutcome{
					researcherID: researcherID,
					researcher:   r.Name,
					backend:      b.Name(),
					result:       res,
					err:          err,
				}
			}(ids[i], r, b)
		}
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	existing, err := s.store.MatchingWorks()
	if err != nil {
		return result, err
	}

	for o := range outcomes {
		if o.err != nil {
			s.logger.Warn("backend fetch failed",
				zap.String("researcher", o.researcher),
				zap.String("source", string(o.backend)),
				zap.Error(o.err))
			result.Errors = append(result.Errors, model.SourceError{
				Researcher: o.researcher,
				Source:     o.backend,
				Message:    o.err.Error(),
			})
			continue
		}

		if o.result.ResolvedID != "" {
			if err := s.store.AddResearcherNativeID(o.researcherID, o.backend, o.result.ResolvedID); err != nil {
				return result, err
			}
			s.logger.Info("resolved author identity",
				zap.String("researcher", o.researcher),
				zap.String("source", string(o.backend)),
				zap.String("author_id", o.result.ResolvedID))
		}

		for _, w := range o.result.Works {
			existing, err = s.reconcile(o.researcherID, w, existing, &result)
			if err != nil {
				return result, err
			}
		}
	}

	result.TotalWorks, err = s.store.TotalWorks()
	if err != nil {
		return result, err
	}
	if err := s.store.LogSync(result); err != nil {
		return result, err
	}

	s.logger.Info("sync complete",
		zap.Int("researchers", result.ResearchersChecked),
		zap.Int("new_works", len(result.NewWorks)),
		zap.Int("updated_works", len(result.UpdatedWorks)),
		zap.Int("total_works", result.TotalWorks),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// Ingest reconciles one externally sourced candidate (a PDF import,
// for example) into the catalog. Reports whether a new work was
// created; otherwise the candidate merged into an existing one.
func (s *Syncer) Ingest(candidate model.Work) (bool, error) {
	existing, err := s.store.MatchingWorks()
	if err != nil {
		return false, err
	}
	matchID, ok := s.matcher.FindMatch(candidate, existing)
	if !ok {
		if _, err := s.store.InsertWork(candidate); err != nil {
			return false, err
		}
		return true, nil
	}
	current, err := s.store.WorkByID(matchID)
	if err != nil {
		return false, err
	}
	merged := dedup.Merge(current, candidate)
	if !reflect.DeepEqual(merged, current) {
		if err := s.store.UpdateWork(matchID, merged); err != nil {
			return false, err
		}
	}
	return false, nil
}

// reconcile matches one candidate against the known works and either
// merges into the match or inserts a new row. The returned slice
// reflects inserts and merges, so later candidates in the same run
// match against the current state (a merge that fills a missing DOI
// makes that DOI matchable immediately).
func (s *Syncer) reconcile(researcherID int64, candidate model.Work, existing []dedup.ExistingWork, result *model.SyncResult) ([]dedup.ExistingWork, error) {
	matchID, ok := s.matcher.FindMatch(candidate, existing)
	if !ok {
		id, err := s.store.InsertWork(candidate)
		if err != nil {
			return existing, err
		}
		if err := s.store.LinkResearcherWork(researcherID, id); err != nil {
			return existing, err
		}
		result.NewWorks = append(result.NewWorks, candidate)
		existing = append(existing, dedup.FromWork(id, candidate))
		s.logger.Debug("new work",
			zap.String("title", candidate.Title),
			zap.String("doi", candidate.DOI))
		return existing, nil
	}

	current, err := s.store.WorkByID(matchID)
	if err != nil {
		return existing, err
	}
	merged := dedup.Merge(current, candidate)
	if !reflect.DeepEqual(merged, current) {
		if err := s.store.UpdateWork(matchID, merged); err != nil {
			return existing, err
		}
		result.UpdatedWorks = append(result.UpdatedWorks, merged)
		s.logger.Debug("merged work",
			zap.String("title", merged.Title),
			zap.String("doi", merged.DOI))
	}
	for i := range existing {
		if existing[i].ID == matchID {
			existing[i] = dedup.FromWork(matchID, merged)
			break
		}
	}
	if err := s.store.LinkResearcherWork(researcherID, matchID); err != nil {
		return existing, err
	}
	return existing, nil
}
