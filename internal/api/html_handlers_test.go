package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

func TestIndexRendersSearchForm(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, `hx-post="/search"`)
	require.Contains(t, body, `name="search"`)
}

func TestSearchRendersJournalList(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	_, err := env.store.EnableFeed(context.Background(), "0896-6273", testTime)
	require.NoError(t, err)
	env.service.results = []feeds.NewJournal{neuronJournal(), {
		Title:     "eLife",
		Publisher: "eLife Sciences Publications, Ltd",
		ISSNs:     []feeds.ISSN{{Type: "electronic", Value: "2050-084X"}},
	}}

	rec := env.do(t, http.MethodPost, "/search", "search=neuron")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Neuron")
	require.Contains(t, body, "0896-6273 (print), 1097-4199 (electronic)")
	require.Contains(t, body, `href="https://feeds.example.org/journals/0896-6273/rss"`)
	require.Contains(t, body, `hx-post="/journals/2050-084X/feed"`)
	require.Contains(t, body, "eLife Sciences Publications, Ltd")

	env.service.results = nil
	rec = env.do(t, http.MethodPost, "/search", "search=nothing")
	require.Contains(t, rec.Body.String(), "No journals found.")

	rec = env.do(t, http.MethodPost, "/search", "search=")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMakeFeedSwapsInRSSButton(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/journals/1097-4199/feed", "feed_id=1097-4199")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "run-1", rec.Header().Get("X-Fetch-Run"))
	require.Contains(t, rec.Body.String(), `class="rss-button" href="https://feeds.example.org/journals/0896-6273/rss"`)

	journal, err := env.store.GetJournalByISSN(context.Background(), "0896-6273")
	require.NoError(t, err)
	require.True(t, journal.Feed)
	require.Equal(t, feeds.ReasonFeedCreated, env.service.queued[0].Reason)

	rec = env.do(t, http.MethodPost, "/journals/0000-0000/feed", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMakeFeedQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.service.queueErr = feeds.ErrQueueFull
	rec := env.do(t, http.MethodPost, "/journals/0896-6273/feed", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "fetch queue is full")
	require.Empty(t, rec.Header().Get("X-Fetch-Run"))

	journal, err := env.store.GetJournalByISSN(context.Background(), "0896-6273")
	require.NoError(t, err)
	require.True(t, journal.Feed, "feed stays enabled for the next scheduled refresh")
}

func TestJournalPagePaginates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 5)
	rec := env.do(t, http.MethodGet, "/journals/0896-6273?limit=2&offset=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "<h1>Neuron</h1>")
	require.Contains(t, body, "5 papers")
	require.Contains(t, body, "Paper 02")
	require.Contains(t, body, "Paper 03")
	require.NotContains(t, body, "Paper 04")
	require.Contains(t, body, `start="3"`)
	require.Contains(t, body, `href="/journals/0896-6273?limit=2&offset=0"`)
	require.Contains(t, body, `href="/journals/0896-6273?limit=2&offset=4"`)

	rec = env.do(t, http.MethodGet, "/journals/0896-6273?limit=nope", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/journals/0000-0000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJournalRSS(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	rec := env.do(t, http.MethodGet, "/journals/1097-4199/rss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))

	feed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)
	require.Equal(t, "Neuron", feed.Title)
	require.Len(t, feed.Items, 3)
	require.Equal(t, "Paper 00", feed.Items[0].Title)

	rec = env.do(t, http.MethodGet, "/journals/0000-0000/rss", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/static/style.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), ".rss-button")
}
