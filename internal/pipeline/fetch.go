package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/crossref"
	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/metrics"
)

// FetchStats summarizes one FetchPapers call.
type FetchStats struct {
	Pages int
	// Consumed counts raw Crossref items, including skipped ones.
	Consumed int
	Inserted int
	Updated  int
	Skipped  int
	// Since is the indexed-date lower bound used, nil for a full fetch.
	Since *time.Time
}

// Stored is the number of papers written (inserted or updated).
func (s FetchStats) Stored() int {
	return s.Inserted + s.Updated
}

// PageFunc receives the papers stored from each page.
type PageFunc func(papers []feeds.Paper)

// FetchPapers pulls up to limit works for the journal from Crossref, newest
// first, starting from the latest indexed date already stored. Every page is
// upserted before the next is requested.
func (s *Service) FetchPapers(ctx context.Context, issn string, limit int, onPage PageFunc) (FetchStats, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	journal, err := s.store.GetJournalByISSN(ctx, issn)
	if err != nil {
		return FetchStats{}, fmt.Errorf("fetch papers %s: %w", issn, err)
	}
	since, err := s.store.LatestIndexed(ctx, journal.ID)
	if err != nil {
		return FetchStats{}, fmt.Errorf("fetch papers %s: %w", issn, err)
	}

	stats := FetchStats{Since: since}
	for stats.Consumed < limit {
		rows := min(s.cfg.PageRows, limit-stats.Consumed)
		page, err := s.crossref.FetchPaperPage(ctx, crossref.PageRequest{
			ISSN:         issn,
			Rows:         rows,
			Offset:       stats.Consumed,
			IndexedSince: since,
		})
		if err != nil {
			return stats, fmt.Errorf("fetch page at offset %d: %w", stats.Consumed, err)
		}
		stats.Pages++
		stats.Skipped += page.Skipped

		papers := DedupeByDOI(page.Papers)
		var res feeds.UpsertResult
		if len(papers) > 0 {
			res, err = s.store.UpsertPapers(ctx, journal.ID, papers)
			if err != nil {
				return stats, fmt.Errorf("store page at offset %d: %w", stats.Consumed, err)
			}
			stats.Inserted += res.Inserted
			stats.Updated += res.Updated
		}
		metrics.ObserveFetchPage(res.Inserted, res.Updated, page.Skipped)
		if onPage != nil {
			onPage(res.Papers)
		}

		stats.Consumed += page.RawCount
		if page.RawCount < rows {
			break
		}
	}
	return stats, nil
}

// PopulatePapers runs FetchPapers and logs progress per page. It backs the
// background fetch workers and the `fetch` command.
func (s *Service) PopulatePapers(ctx context.Context, issn string, limit int) (FetchStats, error) {
	logger := s.logger.With(zap.String("issn", issn))
	logger.Debug("fetching papers", zap.Int("limit", limit))

	fetched := 0
	stats, err := s.FetchPapers(ctx, issn, limit, func(papers []feeds.Paper) {
		fetched += len(papers)
		logger.Debug("fetched papers", zap.Int("page_papers", len(papers)), zap.Int("total", fetched))
	})
	if err != nil {
		return stats, err
	}
	logger.Info("completed paper fetch",
		zap.Int("pages", stats.Pages),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Timep("since", stats.Since),
	)
	return stats, nil
}

// DedupeByDOI drops repeated DOIs within one page. The last occurrence wins
// and keeps the position of the first.
func DedupeByDOI(papers []feeds.PaperMeta) []feeds.PaperMeta {
	index := make(map[string]int, len(papers))
	out := make([]feeds.PaperMeta, 0, len(papers))
	for _, p := range papers {
		if i, ok := index[p.DOI]; ok {
			out[i] = p
			continue
		}
		index[p.DOI] = len(out)
		out = append(out, p)
	}
	return out
}
