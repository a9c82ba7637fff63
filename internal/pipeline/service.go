package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/cache"
	"github.com/JakeFAU/paper-feeds/internal/crossref"
	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/metrics"
)

// Crossref is the subset of *crossref.Client used by the pipeline.
type Crossref interface {
	SearchJournals(ctx context.Context, query string) ([]feeds.NewJournal, error)
	FetchPaperPage(ctx context.Context, req crossref.PageRequest) (crossref.Page, error)
}

// HomepageResolver is satisfied by *openalex.Client.
type HomepageResolver interface {
	JournalHomepages(ctx context.Context, issns []string) map[string]string
}

// Enqueuer accepts fetch jobs for background processing. TryEnqueue fails
// with feeds.ErrQueueFull instead of waiting for a free slot.
type Enqueuer interface {
	Enqueue(ctx context.Context, job feeds.FetchJob) error
	TryEnqueue(job feeds.FetchJob) error
}

// Config tunes paging.
type Config struct {
	// PageRows is the Crossref rows parameter (max 1000).
	PageRows int
	// DefaultLimit caps papers consumed per fetch when the caller passes 0.
	DefaultLimit int
}

// Deps bundles the Service collaborators.
type Deps struct {
	Store     feeds.Store
	Crossref  Crossref
	Homepages HomepageResolver
	Cache     cache.SearchCache
	Queue     Enqueuer
	Clock     feeds.Clock
	IDs       feeds.IDGenerator
}

// Service implements the journal and paper workflows.
type Service struct {
	store     feeds.Store
	crossref  Crossref
	homepages HomepageResolver
	cache     cache.SearchCache
	queue     Enqueuer
	clock     feeds.Clock
	ids       feeds.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if cfg.PageRows <= 0 {
		cfg.PageRows = 100
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 1000
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     deps.Store,
		crossref:  deps.Crossref,
		homepages: deps.Homepages,
		cache:     deps.Cache,
		queue:     deps.Queue,
		clock:     deps.Clock,
		ids:       deps.IDs,
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
	}
}

// SearchJournals runs a Crossref journal search (through the cache), stores
// the results and enriches newly created journals with OpenAlex homepages.
func (s *Service) SearchJournals(ctx context.Context, query string) ([]feeds.Journal, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []feeds.Journal{}, nil
	}
	results, err := s.searchCrossref(ctx, query)
	if err != nil {
		return nil, err
	}
	journals, created, err := s.StoreJournals(ctx, results)
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return journals, nil
	}

	enriched, err := s.EnrichHomepages(ctx, created)
	if err != nil {
		s.logger.Warn("homepage enrichment failed", zap.Error(err))
		return journals, nil
	}
	homes := make(map[int64]string, len(enriched))
	for _, j := range enriched {
		if j.HomepageURL != "" {
			homes[j.ID] = j.HomepageURL
		}
	}
	for i := range journals {
		if home, ok := homes[journals[i].ID]; ok {
			journals[i].HomepageURL = home
		}
	}
	return journals, nil
}

func (s *Service) searchCrossref(ctx context.Context, query string) ([]feeds.NewJournal, error) {
	cached, ok, err := s.cache.Get(ctx, query)
	switch {
	case err != nil:
		metrics.ObserveSearchCache("error")
		s.logger.Warn("search cache read failed", zap.String("query", query), zap.Error(err))
	case ok:
		metrics.ObserveSearchCache("hit")
		return cached, nil
	default:
		metrics.ObserveSearchCache("miss")
	}

	results, err := s.crossref.SearchJournals(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("crossref journal search: %w", err)
	}
	if err := s.cache.Set(ctx, query, results); err != nil {
		s.logger.Warn("search cache write failed", zap.String("query", query), zap.Error(err))
	}
	return results, nil
}

// StoreJournals persists search results in input order. A result whose first
// ISSN is already stored resolves to the stored journal. The second return
// lists the journals created by this call.
func (s *Service) StoreJournals(ctx context.Context, results []feeds.NewJournal) ([]feeds.Journal, []feeds.Journal, error) {
	journals := make([]feeds.Journal, 0, len(results))
	created := make([]feeds.Journal, 0)
	for _, r := range results {
		if r.PrimaryISSN() == "" {
			continue
		}
		j, isNew, err := s.store.CreateJournal(ctx, r)
		if err != nil {
			return nil, nil, fmt.Errorf("store journal %s: %w", r.PrimaryISSN(), err)
		}
		if isNew {
			created = append(created, j)
		}
		journals = append(journals, j)
	}
	return journals, created, nil
}

// EnrichHomepages resolves homepages for the journals' first ISSNs and
// persists the non-empty ones. It returns the journals with HomepageURL set.
func (s *Service) EnrichHomepages(ctx context.Context, journals []feeds.Journal) ([]feeds.Journal, error) {
	if s.homepages == nil || len(journals) == 0 {
		return journals, nil
	}
	issns := make([]string, 0, len(journals))
	for _, j := range journals {
		if issn := j.PrimaryISSN(); issn != "" {
			issns = append(issns, issn)
		}
	}
	found := s.homepages.JournalHomepages(ctx, issns)

	updates := make(map[string]string, len(issns))
	out := make([]feeds.Journal, len(journals))
	copy(out, journals)
	for i := range out {
		home := found[out[i].PrimaryISSN()]
		if home == "" {
			continue
		}
		updates[out[i].PrimaryISSN()] = home
		out[i].HomepageURL = home
	}
	if len(updates) == 0 {
		return out, nil
	}
	if err := s.store.UpdateHomepages(ctx, updates); err != nil {
		return journals, fmt.Errorf("store homepages: %w", err)
	}
	return out, nil
}

// EnableFeed turns on the feed for a journal and queues its first fetch.
// When the queue is full the feed stays enabled and the error wraps
// feeds.ErrQueueFull; the next scheduled refresh fetches its papers.
func (s *Service) EnableFeed(ctx context.Context, issn string) (feeds.Journal, string, error) {
	journal, err := s.store.EnableFeed(ctx, issn, s.now())
	if err != nil {
		return feeds.Journal{}, "", fmt.Errorf("enable feed %s: %w", issn, err)
	}
	runID, err := s.enqueue(ctx, journal, 0, feeds.ReasonFeedCreated, false)
	if err != nil {
		s.logger.Warn("feed enabled without initial fetch",
			zap.String("issn", journal.PrimaryISSN()),
			zap.Error(err),
		)
		return journal, "", err
	}
	s.logger.Info("feed enabled", zap.String("issn", journal.PrimaryISSN()), zap.String("run_id", runID))
	return journal, runID, nil
}

// RequestRefresh queues a fetch for a stored journal.
func (s *Service) RequestRefresh(ctx context.Context, issn, reason string) (string, error) {
	journal, err := s.store.GetJournalByISSN(ctx, issn)
	if err != nil {
		return "", fmt.Errorf("refresh %s: %w", issn, err)
	}
	return s.enqueue(ctx, journal, 0, reason, false)
}

// RefreshFeeds queues a fetch for every journal with its feed enabled. It
// returns how many jobs were queued.
func (s *Service) RefreshFeeds(ctx context.Context, reason string) (int, error) {
	journals, err := s.store.ListFeedJournals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feed journals: %w", err)
	}
	queued := 0
	var errs []error
	for _, j := range journals {
		if _, err := s.enqueue(ctx, j, 0, reason, true); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

// enqueue waits for a queue slot only when wait is set. Request handlers
// pass false so a full queue surfaces immediately.
func (s *Service) enqueue(ctx context.Context, journal feeds.Journal, limit int, reason string, wait bool) (string, error) {
	if s.queue == nil {
		return "", errors.New("no fetch queue configured")
	}
	runID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	job := feeds.FetchJob{
		RunID:  runID,
		ISSN:   journal.PrimaryISSN(),
		Limit:  limit,
		Reason: reason,
	}
	if wait {
		err = s.queue.Enqueue(ctx, job)
	} else {
		err = s.queue.TryEnqueue(job)
	}
	if err != nil {
		return "", fmt.Errorf("enqueue fetch for %s: %w", job.ISSN, err)
	}
	return runID, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
