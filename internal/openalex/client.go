// Package openalex resolves journal homepages from ISSNs via the OpenAlex
// sources endpoint.
package openalex

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxBatchSize is the largest per_page OpenAlex accepts for an OR filter.
const MaxBatchSize = 50

// JSONGetter is the transport used by Client; *apiclient.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error
}

type sourcesResponse struct {
	Results []source `json:"results"`
}

type source struct {
	ISSN        []string `json:"issn"`
	HomepageURL *string  `json:"homepage_url"`
}

// Client queries OpenAlex sources in batches.
type Client struct {
	api       JSONGetter
	batchSize int
	logger    *zap.Logger
}

// New constructs a Client. batchSize is clamped to 1..MaxBatchSize.
func New(api JSONGetter, batchSize int, logger *zap.Logger) *Client {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, batchSize: batchSize, logger: logger.Named("openalex")}
}

// JournalHomepages maps each ISSN known to OpenAlex to its source homepage.
// Failed batches are logged and skipped; empty homepages are omitted.
func (c *Client) JournalHomepages(ctx context.Context, issns []string) map[string]string {
	out := make(map[string]string)
	for start := 0; start < len(issns); start += c.batchSize {
		end := min(start+c.batchSize, len(issns))
		batch := issns[start:end]

		params := url.Values{
			"select":   {"issn,homepage_url"},
			"per_page": {strconv.Itoa(c.batchSize)},
			"filter":   {"issn:" + strings.Join(batch, "|")},
		}
		var resp sourcesResponse
		if err := c.api.GetJSON(ctx, "sources", params, &resp); err != nil {
			if ctx.Err() != nil {
				return out
			}
			c.logger.Warn("homepage batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}
		for _, src := range resp.Results {
			if src.HomepageURL == nil || strings.TrimSpace(*src.HomepageURL) == "" {
				continue
			}
			for _, issn := range src.ISSN {
				out[issn] = *src.HomepageURL
			}
		}
	}
	return out
}
