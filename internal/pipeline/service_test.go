package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/crossref"
	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/storage/memory"
)

type mockCrossref struct {
	mock.Mock
}

func (m *mockCrossref) SearchJournals(ctx context.Context, query string) ([]feeds.NewJournal, error) {
	args := m.Called(ctx, query)
	journals, _ := args.Get(0).([]feeds.NewJournal)
	return journals, args.Error(1)
}

func (m *mockCrossref) FetchPaperPage(ctx context.Context, req crossref.PageRequest) (crossref.Page, error) {
	args := m.Called(ctx, req)
	page, _ := args.Get(0).(crossref.Page)
	return page, args.Error(1)
}

type fakeHomepages struct {
	mu    sync.Mutex
	calls [][]string
	homes map[string]string
}

func (f *fakeHomepages) JournalHomepages(_ context.Context, issns []string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), issns...))
	out := map[string]string{}
	for _, issn := range issns {
		if home, ok := f.homes[issn]; ok {
			out[issn] = home
		}
	}
	return out
}

type fakeCache struct {
	data map[string][]feeds.NewJournal
}

func (c *fakeCache) Get(_ context.Context, q string) ([]feeds.NewJournal, bool, error) {
	j, ok := c.data[q]
	return j, ok, nil
}

func (c *fakeCache) Set(_ context.Context, q string, j []feeds.NewJournal) error {
	c.data[q] = j
	return nil
}

type recordingQueue struct {
	jobs []feeds.FetchJob
	err  error
	// full makes TryEnqueue fail while blocking Enqueue still succeeds.
	full   bool
	waited int
}

func (q *recordingQueue) Enqueue(_ context.Context, job feeds.FetchJob) error {
	q.waited++
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) TryEnqueue(job feeds.FetchJob) error {
	if q.err != nil {
		return q.err
	}
	if q.full {
		return feeds.ErrQueueFull
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type fixture struct {
	svc       *Service
	store     *memory.Store
	crossref  *mockCrossref
	homepages *fakeHomepages
	cache     *fakeCache
	queue     *recordingQueue
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		crossref:  &mockCrossref{},
		homepages: &fakeHomepages{homes: map[string]string{"0896-6273": "https://www.cell.com/neuron"}},
		cache:     &fakeCache{data: map[string][]feeds.NewJournal{}},
		queue:     &recordingQueue{},
	}
	f.svc = New(Deps{
		Store:     f.store,
		Crossref:  f.crossref,
		Homepages: f.homepages,
		Cache:     f.cache,
		Queue:     f.queue,
		Clock:     fixedClock{t: testNow},
		IDs:       &seqIDs{},
	}, cfg, zap.NewNop())
	t.Cleanup(func() { f.crossref.AssertExpectations(t) })
	return f
}

func neuron() feeds.NewJournal {
	return feeds.NewJournal{
		Title:            "Neuron",
		Publisher:        "Elsevier BV",
		RecentPaperCount: 812,
		ISSNs: []feeds.ISSN{
			{Type: "print", Value: "0896-6273"},
			{Type: "electronic", Value: "1097-4199"},
		},
	}
}

func elife() feeds.NewJournal {
	return feeds.NewJournal{
		Title:     "eLife",
		Publisher: "eLife Sciences Publications, Ltd",
		ISSNs:     []feeds.ISSN{{Type: "electronic", Value: "2050-084X"}},
	}
}

func TestSearchJournalsStoresAndEnrichesNewJournals(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()
	f.crossref.On("SearchJournals", mock.Anything, "neuron").
		Return([]feeds.NewJournal{neuron(), elife(), neuron()}, nil).Once()

	journals, err := f.svc.SearchJournals(ctx, "  neuron ")
	require.NoError(t, err)
	require.Len(t, journals, 3)
	require.Equal(t, journals[0].ID, journals[2].ID, "duplicates resolve to the stored journal")
	require.Equal(t, "https://www.cell.com/neuron", journals[0].HomepageURL)
	require.Empty(t, journals[1].HomepageURL)

	stored, err := f.store.GetJournalByISSN(ctx, "1097-4199")
	require.NoError(t, err)
	require.Equal(t, "https://www.cell.com/neuron", stored.HomepageURL)
	require.Equal(t, [][]string{{"0896-6273", "2050-084X"}}, f.homepages.calls)

	// Second search is served from the cache and creates nothing new.
	again, err := f.svc.SearchJournals(ctx, "neuron")
	require.NoError(t, err)
	require.Equal(t, journals[0].ID, again[0].ID)
	require.Len(t, f.homepages.calls, 1)
}

func TestSearchJournalsEmptyQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	journals, err := f.svc.SearchJournals(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, journals)
}

func TestSearchJournalsCrossrefError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.crossref.On("SearchJournals", mock.Anything, "boom").
		Return(nil, errors.New("status 500")).Once()

	_, err := f.svc.SearchJournals(context.Background(), "boom")
	require.ErrorContains(t, err, "crossref journal search: status 500")
	require.Empty(t, f.cache.data)
}

func TestEnableFeedQueuesFetch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()
	_, _, err := f.store.CreateJournal(ctx, neuron())
	require.NoError(t, err)

	journal, runID, err := f.svc.EnableFeed(ctx, "1097-4199")
	require.NoError(t, err)
	require.True(t, journal.Feed)
	require.Equal(t, testNow, *journal.FeedCreated)
	require.Equal(t, "run-1", runID)
	require.Equal(t, []feeds.FetchJob{{
		RunID:  "run-1",
		ISSN:   "0896-6273",
		Reason: feeds.ReasonFeedCreated,
	}}, f.queue.jobs)

	_, _, err = f.svc.EnableFeed(ctx, "0000-0000")
	require.ErrorIs(t, err, feeds.ErrNotFound)
}

func TestEnableFeedWithFullQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.queue.full = true
	ctx := context.Background()
	_, _, err := f.store.CreateJournal(ctx, neuron())
	require.NoError(t, err)

	journal, runID, err := f.svc.EnableFeed(ctx, "0896-6273")
	require.ErrorIs(t, err, feeds.ErrQueueFull)
	require.Empty(t, runID)
	require.Empty(t, f.queue.jobs)
	require.Zero(t, f.queue.waited, "request path must not wait for a queue slot")

	// The feed stays on so the next scheduled refresh picks it up.
	require.True(t, journal.Feed)
	listed, err := f.store.ListFeedJournals(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = f.svc.RefreshFeeds(ctx, feeds.ReasonScheduled)
	require.NoError(t, err)
	require.Equal(t, 1, f.queue.waited)
	require.Len(t, f.queue.jobs, 1)
}

func TestRequestRefreshWithFullQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.queue.full = true
	_, _, err := f.store.CreateJournal(context.Background(), neuron())
	require.NoError(t, err)

	_, err = f.svc.RequestRefresh(context.Background(), "0896-6273", feeds.ReasonManual)
	require.ErrorIs(t, err, feeds.ErrQueueFull)
	require.Zero(t, f.queue.waited)
}

func TestRefreshFeedsQueuesEveryFeedJournal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()
	for _, nj := range []feeds.NewJournal{neuron(), elife()} {
		_, _, err := f.store.CreateJournal(ctx, nj)
		require.NoError(t, err)
	}
	_, err := f.store.EnableFeed(ctx, "2050-084X", testNow)
	require.NoError(t, err)

	n, err := f.svc.RefreshFeeds(ctx, feeds.ReasonScheduled)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, f.queue.jobs, 1)
	require.Equal(t, "2050-084X", f.queue.jobs[0].ISSN)
	require.Equal(t, feeds.ReasonScheduled, f.queue.jobs[0].Reason)

	f.queue.err = errors.New("queue full")
	n, err = f.svc.RefreshFeeds(ctx, feeds.ReasonScheduled)
	require.Zero(t, n)
	require.ErrorContains(t, err, "queue full")
}

func TestRequestRefreshUnknownJournal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	_, err := f.svc.RequestRefresh(context.Background(), "0000-0000", feeds.ReasonManual)
	require.ErrorIs(t, err, feeds.ErrNotFound)
	require.Empty(t, f.queue.jobs)
}
