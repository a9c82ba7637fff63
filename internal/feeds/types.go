package feeds

import (
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested journal or paper does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedDate is returned for Crossref date objects with no usable field.
	ErrUnsupportedDate = errors.New("unsupported date")
	// ErrUnsupportedAuthor is returned for author entries with an unknown sequence.
	ErrUnsupportedAuthor = errors.New("unsupported author sequence")
	// ErrQueueClosed is returned by a Queue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned by TryEnqueue when no slot is free.
	ErrQueueFull = errors.New("fetch queue full")
)

// ISSN is one identifier of a journal, typed as print or electronic.
type ISSN struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewJournal is a journal as returned by a Crossref search, before it is stored.
type NewJournal struct {
	Title            string `json:"title"`
	Publisher        string `json:"publisher"`
	RecentPaperCount int    `json:"recent_paper_count"`
	ISSNs            []ISSN `json:"issn"`
}

// PrimaryISSN returns the first ISSN, which identifies the journal.
func (j NewJournal) PrimaryISSN() string {
	if len(j.ISSNs) == 0 {
		return ""
	}
	return j.ISSNs[0].Value
}

// Journal is a stored journal with its ISSNs.
type Journal struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Publisher        string     `json:"publisher"`
	RecentPaperCount int        `json:"recent_paper_count"`
	Feed             bool       `json:"feed"`
	FeedCreated      *time.Time `json:"feed_created,omitempty"`
	HomepageURL      string     `json:"homepage_url,omitempty"`
	ISSNs            []ISSN     `json:"issn"`
}

// PrimaryISSN returns the first ISSN, which identifies the journal.
func (j Journal) PrimaryISSN() string {
	if len(j.ISSNs) == 0 {
		return ""
	}
	return j.ISSNs[0].Value
}

// PaperMeta holds the Crossref work fields kept for each paper.
type PaperMeta struct {
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle,omitempty"`
	ShortTitle    string `json:"short_title,omitempty"`
	Author        string `json:"author"`
	Type          string `json:"type"`
	Abstract      string `json:"abstract,omitempty"`
	Publisher     string `json:"publisher"`
	EditionNumber string `json:"edition_number,omitempty"`
	Issue         string `json:"issue,omitempty"`
	Volume        string `json:"volume,omitempty"`
	Page          string `json:"page,omitempty"`

	Created         time.Time  `json:"created"`
	Indexed         time.Time  `json:"indexed"`
	Deposited       time.Time  `json:"deposited"`
	Posted          *time.Time `json:"posted,omitempty"`
	Published       *time.Time `json:"published,omitempty"`
	Issued          *time.Time `json:"issued,omitempty"`
	Accepted        *time.Time `json:"accepted,omitempty"`
	ContentCreated  *time.Time `json:"content_created,omitempty"`
	ContentUpdated  *time.Time `json:"content_updated,omitempty"`
	PublishedPrint  *time.Time `json:"published_print,omitempty"`
	PublishedOnline *time.Time `json:"published_online,omitempty"`

	GroupTitle      string `json:"group_title,omitempty"`
	ReferenceCount  *int   `json:"reference_count,omitempty"`
	ReferencesCount *int   `json:"references_count,omitempty"`
	Subject         string `json:"subject,omitempty"`

	URL       string `json:"url,omitempty"`
	Source    string `json:"source,omitempty"`
	Unpaywall string `json:"unpaywall,omitempty"`
	SciHub    string `json:"scihub,omitempty"`
}

// Paper is a stored paper attached to a journal.
type Paper struct {
	ID        int64 `json:"id"`
	JournalID int64 `json:"journal_id"`
	PaperMeta
}

// UpsertResult reports what a batch upsert did.
type UpsertResult struct {
	Inserted int
	Updated  int
	Papers   []Paper
}

// FetchRunStatus mirrors the fetch_runs status column.
type FetchRunStatus string

// Fetch run statuses persisted in fetch_runs.status.
const (
	RunRunning FetchRunStatus = "running"
	RunSuccess FetchRunStatus = "success"
	RunError   FetchRunStatus = "error"
)

// FetchRun records one execution of the paper pipeline for a journal.
type FetchRun struct {
	ID           string         `json:"id"`
	ISSN         string         `json:"issn"`
	Reason       string         `json:"reason"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Status       FetchRunStatus `json:"status"`
	Fetched      int            `json:"fetched"`
	ErrorMessage *string        `json:"error,omitempty"`
}

// Reasons a fetch job was queued.
const (
	ReasonFeedCreated = "feed_created"
	ReasonScheduled   = "scheduled"
	ReasonManual      = "manual"
)

// FetchJob is a queued request to populate papers for one journal.
type FetchJob struct {
	RunID  string
	ISSN   string
	Limit  int
	Reason string
}
