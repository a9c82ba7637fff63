package feeds

import (
	"context"
	"time"
)

// JournalStore persists journals and their ISSNs.
type JournalStore interface {
	// CreateJournal stores j unless its primary ISSN already exists, in which
	// case the existing journal is returned with created=false.
	CreateJournal(ctx context.Context, j NewJournal) (journal Journal, created bool, err error)
	// GetJournalByISSN matches any of the journal's ISSNs or returns ErrNotFound.
	GetJournalByISSN(ctx context.Context, issn string) (Journal, error)
	// EnableFeed marks the journal as a feed. feed_created keeps its first value.
	EnableFeed(ctx context.Context, issn string, at time.Time) (Journal, error)
	// UpdateHomepages sets homepage_url for the journals owning each ISSN key.
	UpdateHomepages(ctx context.Context, homepages map[string]string) error
	// ListFeedJournals returns all journals with feed enabled.
	ListFeedJournals(ctx context.Context) ([]Journal, error)
}

// PaperStore persists papers keyed on DOI.
type PaperStore interface {
	// UpsertPapers inserts new DOIs and updates existing ones, attaching all of
	// them to journalID.
	UpsertPapers(ctx context.Context, journalID int64, papers []PaperMeta) (UpsertResult, error)
	// LatestIndexed returns the newest indexed timestamp among the journal's papers.
	LatestIndexed(ctx context.Context, journalID int64) (*time.Time, error)
	// ListPapers pages through a journal's papers, newest publication first.
	ListPapers(ctx context.Context, journalID int64, limit, offset int) ([]Paper, error)
	// RecentPapers returns the newest papers by Crossref creation date.
	RecentPapers(ctx context.Context, journalID int64, limit int) ([]Paper, error)
	// CountPapers counts a journal's papers.
	CountPapers(ctx context.Context, journalID int64) (int, error)
}

// FetchRunStore records fetch run history.
type FetchRunStore interface {
	StartRun(ctx context.Context, run FetchRun) error
	CompleteRun(
		ctx context.Context,
		id string,
		finishedAt time.Time,
		status FetchRunStatus,
		fetched int,
		errMsg *string,
	) error
	// ListRuns filters by ISSN when issn is non-empty.
	ListRuns(ctx context.Context, issn string, limit, offset int) ([]FetchRun, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	JournalStore
	PaperStore
	FetchRunStore
	Ping(ctx context.Context) error
	Close()
}

// Queue provides enqueue/dequeue semantics for fetch jobs.
type Queue interface {
	Enqueue(ctx context.Context, job FetchJob) error
	// TryEnqueue never blocks; it fails with ErrQueueFull instead.
	TryEnqueue(job FetchJob) error
	Dequeue(ctx context.Context) (FetchJob, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
