package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

const journalColumns = `j.id, j.title, j.publisher, j.recent_paper_count, j.feed, j.feed_created, COALESCE(j.homepage_url, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournal(row rowScanner) (feeds.Journal, error) {
	var j feeds.Journal
	err := row.Scan(&j.ID, &j.Title, &j.Publisher, &j.RecentPaperCount, &j.Feed, &j.FeedCreated, &j.HomepageURL)
	return j, err
}

// CreateJournal inserts the journal and its ISSNs in one transaction unless
// the primary ISSN already exists. ISSNs owned by another journal are skipped.
func (s *Store) CreateJournal(ctx context.Context, nj feeds.NewJournal) (feeds.Journal, bool, error) {
	primary := nj.PrimaryISSN()
	if primary == "" {
		return feeds.Journal{}, false, errors.New("journal has no ISSN")
	}
	existing, err := s.GetJournalByISSN(ctx, primary)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, feeds.ErrNotFound) {
		return feeds.Journal{}, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return feeds.Journal{}, false, fmt.Errorf("begin create journal: %w", err)
	}
	defer rollback(ctx, tx)

	journal := feeds.Journal{
		Title:            nj.Title,
		Publisher:        nj.Publisher,
		RecentPaperCount: nj.RecentPaperCount,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO journals (title, publisher, recent_paper_count)
VALUES ($1, $2, $3)
RETURNING id`,
		nj.Title, nj.Publisher, nj.RecentPaperCount,
	).Scan(&journal.ID)
	if err != nil {
		return feeds.Journal{}, false, fmt.Errorf("insert journal: %w", err)
	}

	for i, issn := range nj.ISSNs {
		tag, err := tx.Exec(ctx, `
INSERT INTO issns (journal_id, type, value, position)
VALUES ($1, $2, $3, $4)
ON CONFLICT (value) DO NOTHING`,
			journal.ID, issn.Type, issn.Value, i,
		)
		if err != nil {
			return feeds.Journal{}, false, fmt.Errorf("insert issn %s: %w", issn.Value, err)
		}
		if tag.RowsAffected() == 0 {
			if i == 0 {
				// Lost a race on the primary ISSN; the other writer's row wins.
				rollback(ctx, tx)
				existing, err := s.GetJournalByISSN(ctx, primary)
				return existing, false, err
			}
			continue
		}
		journal.ISSNs = append(journal.ISSNs, issn)
	}

	if err := tx.Commit(ctx); err != nil {
		return feeds.Journal{}, false, fmt.Errorf("commit journal: %w", err)
	}
	return journal, true, nil
}

// GetJournalByISSN resolves any of a journal's ISSNs.
func (s *Store) GetJournalByISSN(ctx context.Context, issn string) (feeds.Journal, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+journalColumns+`
FROM journals j
JOIN issns i ON i.journal_id = j.id
WHERE i.value = $1`, issn)
	journal, err := scanJournal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return feeds.Journal{}, feeds.ErrNotFound
	}
	if err != nil {
		return feeds.Journal{}, fmt.Errorf("get journal %s: %w", issn, err)
	}
	issns, err := s.issnsFor(ctx, []int64{journal.ID})
	if err != nil {
		return feeds.Journal{}, err
	}
	journal.ISSNs = issns[journal.ID]
	return journal, nil
}

// EnableFeed sets feed=true. feed_created keeps its first value.
func (s *Store) EnableFeed(ctx context.Context, issn string, at time.Time) (feeds.Journal, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE journals
SET feed = TRUE, feed_created = COALESCE(feed_created, $2)
WHERE id = (SELECT journal_id FROM issns WHERE value = $1)`,
		issn, at.UTC(),
	)
	if err != nil {
		return feeds.Journal{}, fmt.Errorf("enable feed %s: %w", issn, err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.Journal{}, feeds.ErrNotFound
	}
	return s.GetJournalByISSN(ctx, issn)
}

// UpdateHomepages sets homepage_url on the journals owning each ISSN.
func (s *Store) UpdateHomepages(ctx context.Context, homepages map[string]string) error {
	issns := make([]string, 0, len(homepages))
	for issn, home := range homepages {
		if home != "" {
			issns = append(issns, issn)
		}
	}
	sort.Strings(issns)
	for _, issn := range issns {
		if _, err := s.pool.Exec(ctx, `
UPDATE journals
SET homepage_url = $2
WHERE id = (SELECT journal_id FROM issns WHERE value = $1)`,
			issn, homepages[issn],
		); err != nil {
			return fmt.Errorf("update homepage %s: %w", issn, err)
		}
	}
	return nil
}

// ListFeedJournals returns feed-enabled journals ordered by ID.
func (s *Store) ListFeedJournals(ctx context.Context) ([]feeds.Journal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+journalColumns+`
FROM journals j
WHERE j.feed
ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("list feed journals: %w", err)
	}
	defer rows.Close()

	journals := make([]feeds.Journal, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		journals = append(journals, j)
		ids = append(ids, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journals: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return journals, nil
	}

	issns, err := s.issnsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range journals {
		journals[i].ISSNs = issns[journals[i].ID]
	}
	return journals, nil
}

func (s *Store) issnsFor(ctx context.Context, ids []int64) (map[int64][]feeds.ISSN, error) {
	rows, err := s.pool.Query(ctx, `
SELECT journal_id, type, value
FROM issns
WHERE journal_id = ANY($1)
ORDER BY journal_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("list issns: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]feeds.ISSN, len(ids))
	for rows.Next() {
		var (
			id   int64
			issn feeds.ISSN
		)
		if err := rows.Scan(&id, &issn.Type, &issn.Value); err != nil {
			return nil, fmt.Errorf("scan issn: %w", err)
		}
		out[id] = append(out[id], issn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issns: %w", err)
	}
	return out, nil
}
