// Package memory provides an in-process feeds.Store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// Store keeps journals, papers and fetch runs in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	journals    map[int64]feeds.Journal
	issnOwner   map[string]int64
	nextJournal int64

	papers    map[string]feeds.Paper
	nextPaper int64

	runs     map[string]feeds.FetchRun
	runOrder []string
}

var _ feeds.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		journals:  make(map[int64]feeds.Journal),
		issnOwner: make(map[string]int64),
		papers:    make(map[string]feeds.Paper),
		runs:      make(map[string]feeds.FetchRun),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// CreateJournal stores j unless its primary ISSN is already known.
// ISSNs owned by another journal are not re-assigned.
func (s *Store) CreateJournal(_ context.Context, j feeds.NewJournal) (feeds.Journal, bool, error) {
	primary := j.PrimaryISSN()
	if primary == "" {
		return feeds.Journal{}, false, errors.New("journal has no ISSN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.issnOwner[primary]; ok {
		return cloneJournal(s.journals[id]), false, nil
	}
	s.nextJournal++
	journal := feeds.Journal{
		ID:               s.nextJournal,
		Title:            j.Title,
		Publisher:        j.Publisher,
		RecentPaperCount: j.RecentPaperCount,
	}
	for _, issn := range j.ISSNs {
		if _, taken := s.issnOwner[issn.Value]; taken {
			continue
		}
		s.issnOwner[issn.Value] = journal.ID
		journal.ISSNs = append(journal.ISSNs, issn)
	}
	s.journals[journal.ID] = journal
	return cloneJournal(journal), true, nil
}

// GetJournalByISSN resolves any of a journal's ISSNs.
func (s *Store) GetJournalByISSN(_ context.Context, issn string) (feeds.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.issnOwner[issn]
	if !ok {
		return feeds.Journal{}, feeds.ErrNotFound
	}
	return cloneJournal(s.journals[id]), nil
}

// EnableFeed sets feed=true, keeping the first feed_created.
func (s *Store) EnableFeed(_ context.Context, issn string, at time.Time) (feeds.Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.issnOwner[issn]
	if !ok {
		return feeds.Journal{}, feeds.ErrNotFound
	}
	journal := s.journals[id]
	journal.Feed = true
	if journal.FeedCreated == nil {
		created := at.UTC()
		journal.FeedCreated = &created
	}
	s.journals[id] = journal
	return cloneJournal(journal), nil
}

// UpdateHomepages sets homepage_url on the owners of known ISSNs.
func (s *Store) UpdateHomepages(_ context.Context, homepages map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for issn, home := range homepages {
		id, ok := s.issnOwner[issn]
		if !ok || home == "" {
			continue
		}
		journal := s.journals[id]
		journal.HomepageURL = home
		s.journals[id] = journal
	}
	return nil
}

// ListFeedJournals returns feed-enabled journals by ID.
func (s *Store) ListFeedJournals(context.Context) ([]feeds.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feeds.Journal, 0)
	for _, j := range s.journals {
		if j.Feed {
			out = append(out, cloneJournal(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// UpsertPapers inserts or updates papers by DOI and attaches them to journalID.
func (s *Store) UpsertPapers(_ context.Context, journalID int64, papers []feeds.PaperMeta) (feeds.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.journals[journalID]; !ok {
		return feeds.UpsertResult{}, feeds.ErrNotFound
	}
	res := feeds.UpsertResult{Papers: make([]feeds.Paper, 0, len(papers))}
	for _, meta := range papers {
		existing, ok := s.papers[meta.DOI]
		if ok {
			existing.JournalID = journalID
			existing.PaperMeta = meta
			s.papers[meta.DOI] = existing
			res.Updated++
			res.Papers = append(res.Papers, existing)
			continue
		}
		s.nextPaper++
		paper := feeds.Paper{ID: s.nextPaper, JournalID: journalID, PaperMeta: meta}
		s.papers[meta.DOI] = paper
		res.Inserted++
		res.Papers = append(res.Papers, paper)
	}
	return res, nil
}

// LatestIndexed returns the newest indexed timestamp for the journal.
func (s *Store) LatestIndexed(_ context.Context, journalID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, p := range s.papers {
		if p.JournalID != journalID {
			continue
		}
		if latest == nil || p.Indexed.After(*latest) {
			ts := p.Indexed
			latest = &ts
		}
	}
	return latest, nil
}

// ListPapers orders by published desc (nulls last), then created desc.
func (s *Store) ListPapers(_ context.Context, journalID int64, limit, offset int) ([]feeds.Paper, error) {
	papers := s.journalPapers(journalID)
	sort.Slice(papers, func(i, k int) bool {
		a, b := papers[i], papers[k]
		switch {
		case a.Published == nil && b.Published != nil:
			return false
		case a.Published != nil && b.Published == nil:
			return true
		case a.Published != nil && !a.Published.Equal(*b.Published):
			return a.Published.After(*b.Published)
		case !a.Created.Equal(b.Created):
			return a.Created.After(b.Created)
		default:
			return a.ID > b.ID
		}
	})
	return window(papers, limit, offset), nil
}

// RecentPapers orders by created desc.
func (s *Store) RecentPapers(_ context.Context, journalID int64, limit int) ([]feeds.Paper, error) {
	papers := s.journalPapers(journalID)
	sort.Slice(papers, func(i, k int) bool {
		if !papers[i].Created.Equal(papers[k].Created) {
			return papers[i].Created.After(papers[k].Created)
		}
		return papers[i].ID > papers[k].ID
	})
	return window(papers, limit, 0), nil
}

// CountPapers counts a journal's papers.
func (s *Store) CountPapers(_ context.Context, journalID int64) (int, error) {
	return len(s.journalPapers(journalID)), nil
}

// StartRun records a run in running state.
func (s *Store) StartRun(_ context.Context, run feeds.FetchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("fetch run already exists")
	}
	if run.Status == "" {
		run.Status = feeds.RunRunning
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// CompleteRun finalizes a run.
func (s *Store) CompleteRun(
	_ context.Context,
	id string,
	finishedAt time.Time,
	status feeds.FetchRunStatus,
	fetched int,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return feeds.ErrNotFound
	}
	finished := finishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = status
	run.Fetched = fetched
	run.ErrorMessage = errMsg
	s.runs[id] = run
	return nil
}

// ListRuns returns runs newest first, optionally filtered by ISSN.
func (s *Store) ListRuns(_ context.Context, issn string, limit, offset int) ([]feeds.FetchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feeds.FetchRun, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		run := s.runs[s.runOrder[i]]
		if issn != "" && run.ISSN != issn {
			continue
		}
		out = append(out, run)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return window(out, limit, offset), nil
}

func (s *Store) journalPapers(journalID int64) []feeds.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feeds.Paper, 0)
	for _, p := range s.papers {
		if p.JournalID == journalID {
			out = append(out, p)
		}
	}
	return out
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneJournal(j feeds.Journal) feeds.Journal {
	j.ISSNs = append([]feeds.ISSN(nil), j.ISSNs...)
	if j.FeedCreated != nil {
		ts := *j.FeedCreated
		j.FeedCreated = &ts
	}
	return j
}
