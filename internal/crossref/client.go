package crossref

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// JSONGetter is the transport used by Client; *apiclient.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error
}

// Client wraps the Crossref journals and works endpoints.
type Client struct {
	api    JSONGetter
	logger *zap.Logger
}

// New constructs a Client.
func New(api JSONGetter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger.Named("crossref")}
}

// SearchJournals queries /journals. Items without typed ISSNs are dropped.
func (c *Client) SearchJournals(ctx context.Context, query string) ([]feeds.NewJournal, error) {
	var resp journalsResponse
	if err := c.api.GetJSON(ctx, "journals", url.Values{"query": {query}}, &resp); err != nil {
		return nil, fmt.Errorf("search journals: %w", err)
	}
	out := make([]feeds.NewJournal, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		if len(item.ISSNType) == 0 {
			continue
		}
		out = append(out, normalizeJournal(item))
	}
	return out, nil
}

// PageRequest selects one page of a journal's works.
type PageRequest struct {
	ISSN   string
	Rows   int
	Offset int
	// IndexedSince limits results to works indexed on or after this day.
	IndexedSince *time.Time
}

// Page is one normalized page of works.
type Page struct {
	Papers []feeds.PaperMeta
	// RawCount is the number of items Crossref returned before filtering.
	RawCount int
	// Skipped counts items dropped by type or failed normalization.
	Skipped int
}

// FetchPaperPage fetches journals/{issn}/works sorted by publication date, newest first.
func (c *Client) FetchPaperPage(ctx context.Context, req PageRequest) (Page, error) {
	params := url.Values{
		"sort":   {"published"},
		"order":  {"desc"},
		"rows":   {strconv.Itoa(req.Rows)},
		"offset": {strconv.Itoa(req.Offset)},
	}
	if req.IndexedSince != nil {
		params.Set("filter", "from-index-date:"+req.IndexedSince.UTC().Format(time.DateOnly))
	}

	var resp worksResponse
	endpoint := "journals/" + url.PathEscape(req.ISSN) + "/works"
	if err := c.api.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return Page{}, fmt.Errorf("fetch works for %s: %w", req.ISSN, err)
	}

	page := Page{
		Papers:   make([]feeds.PaperMeta, 0, len(resp.Message.Items)),
		RawCount: len(resp.Message.Items),
	}
	for _, work := range resp.Message.Items {
		if !IsPaperType(work.Type) {
			page.Skipped++
			continue
		}
		meta, err := NormalizeWork(work)
		if err != nil {
			page.Skipped++
			c.logger.Warn("skipping work",
				zap.String("issn", req.ISSN),
				zap.String("doi", work.DOI),
				zap.Error(err),
			)
			continue
		}
		page.Papers = append(page.Papers, meta)
	}
	return page, nil
}
