package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// paperColumns is the column order shared by inserts and scans.
var paperColumns = []string{
	"doi", "title", "subtitle", "short_title", "author", "type", "abstract",
	"publisher", "edition_number", "issue", "volume", "page",
	"created", "indexed", "posted", "published", "deposited", "issued", "accepted",
	"content_created", "content_updated", "published_print", "published_online",
	"group_title", "reference_count", "references_count", "subject",
	"url", "source", "unpaywall", "scihub",
}

var (
	paperSelect = "id, journal_id, " + strings.Join(paperColumns, ", ")
	upsertPaper = buildUpsertPaper()
)

func buildUpsertPaper() string {
	placeholders := make([]string, 0, len(paperColumns)+1)
	updates := make([]string, 0, len(paperColumns))
	placeholders = append(placeholders, "$1")
	for i, col := range paperColumns {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		if col != "doi" {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	return "INSERT INTO papers (journal_id, " + strings.Join(paperColumns, ", ") + ")\n" +
		"VALUES (" + strings.Join(placeholders, ", ") + ")\n" +
		"ON CONFLICT (doi) DO UPDATE SET journal_id = EXCLUDED.journal_id, " + strings.Join(updates, ", ") + "\n" +
		"RETURNING id, (xmax = 0) AS inserted"
}

func paperValues(journalID int64, m feeds.PaperMeta) []any {
	return []any{
		journalID,
		m.DOI, m.Title, m.Subtitle, m.ShortTitle, m.Author, m.Type, m.Abstract,
		m.Publisher, m.EditionNumber, m.Issue, m.Volume, m.Page,
		m.Created, m.Indexed, m.Posted, m.Published, m.Deposited, m.Issued, m.Accepted,
		m.ContentCreated, m.ContentUpdated, m.PublishedPrint, m.PublishedOnline,
		m.GroupTitle, m.ReferenceCount, m.ReferencesCount, m.Subject,
		m.URL, m.Source, m.Unpaywall, m.SciHub,
	}
}

func scanPaper(row rowScanner) (feeds.Paper, error) {
	var (
		p         feeds.Paper
		journalID *int64
	)
	m := &p.PaperMeta
	err := row.Scan(
		&p.ID, &journalID,
		&m.DOI, &m.Title, &m.Subtitle, &m.ShortTitle, &m.Author, &m.Type, &m.Abstract,
		&m.Publisher, &m.EditionNumber, &m.Issue, &m.Volume, &m.Page,
		&m.Created, &m.Indexed, &m.Posted, &m.Published, &m.Deposited, &m.Issued, &m.Accepted,
		&m.ContentCreated, &m.ContentUpdated, &m.PublishedPrint, &m.PublishedOnline,
		&m.GroupTitle, &m.ReferenceCount, &m.ReferencesCount, &m.Subject,
		&m.URL, &m.Source, &m.Unpaywall, &m.SciHub,
	)
	if journalID != nil {
		p.JournalID = *journalID
	}
	return p, err
}

// UpsertPapers writes papers keyed on DOI in one transaction.
func (s *Store) UpsertPapers(ctx context.Context, journalID int64, papers []feeds.PaperMeta) (feeds.UpsertResult, error) {
	res := feeds.UpsertResult{Papers: make([]feeds.Paper, 0, len(papers))}
	if len(papers) == 0 {
		return res, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return feeds.UpsertResult{}, fmt.Errorf("begin upsert papers: %w", err)
	}
	defer rollback(ctx, tx)

	for _, meta := range papers {
		var (
			id       int64
			inserted bool
		)
		if err := tx.QueryRow(ctx, upsertPaper, paperValues(journalID, meta)...).Scan(&id, &inserted); err != nil {
			return feeds.UpsertResult{}, fmt.Errorf("upsert paper %s: %w", meta.DOI, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		res.Papers = append(res.Papers, feeds.Paper{ID: id, JournalID: journalID, PaperMeta: meta})
	}
	if err := tx.Commit(ctx); err != nil {
		return feeds.UpsertResult{}, fmt.Errorf("commit papers: %w", err)
	}
	return res, nil
}

// LatestIndexed returns max(indexed) for the journal, nil when it has no papers.
func (s *Store) LatestIndexed(ctx context.Context, journalID int64) (*time.Time, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx,
		`SELECT max(indexed) FROM papers WHERE journal_id = $1`, journalID,
	).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest indexed: %w", err)
	}
	if latest != nil {
		utc := latest.UTC()
		latest = &utc
	}
	return latest, nil
}

// ListPapers pages through a journal's papers, newest publication first.
func (s *Store) ListPapers(ctx context.Context, journalID int64, limit, offset int) ([]feeds.Paper, error) {
	return s.queryPapers(ctx, `
SELECT `+paperSelect+`
FROM papers
WHERE journal_id = $1
ORDER BY published DESC NULLS LAST, created DESC, id DESC
LIMIT $2 OFFSET $3`, journalID, limit, offset)
}

// RecentPapers returns the newest papers by Crossref creation date.
func (s *Store) RecentPapers(ctx context.Context, journalID int64, limit int) ([]feeds.Paper, error) {
	return s.queryPapers(ctx, `
SELECT `+paperSelect+`
FROM papers
WHERE journal_id = $1
ORDER BY created DESC, id DESC
LIMIT $2`, journalID, limit)
}

// CountPapers counts a journal's papers.
func (s *Store) CountPapers(ctx context.Context, journalID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM papers WHERE journal_id = $1`, journalID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count papers: %w", err)
	}
	return n, nil
}

func (s *Store) queryPapers(ctx context.Context, sql string, args ...any) ([]feeds.Paper, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()
	papers := make([]feeds.Paper, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return papers, nil
}
