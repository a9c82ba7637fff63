package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || fetchPapersTotal == nil || fetchRunsTotal == nil ||
		upstreamRequestsTotal == nil || searchCacheTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchPage(t *testing.T) {
	Init()
	beforePages := testutil.ToFloat64(fetchPagesTotal)
	beforeInserted := testutil.ToFloat64(fetchPapersTotal.WithLabelValues("inserted"))
	beforeSkipped := testutil.ToFloat64(fetchPapersTotal.WithLabelValues("skipped"))

	ObserveFetchPage(3, 1, 2)

	if got := testutil.ToFloat64(fetchPagesTotal) - beforePages; got != 1 {
		t.Errorf("expected one page observed, got %f", got)
	}
	if got := testutil.ToFloat64(fetchPapersTotal.WithLabelValues("inserted")) - beforeInserted; got != 3 {
		t.Errorf("expected 3 inserted papers, got %f", got)
	}
	if got := testutil.ToFloat64(fetchPapersTotal.WithLabelValues("skipped")) - beforeSkipped; got != 2 {
		t.Errorf("expected 2 skipped papers, got %f", got)
	}
}

func TestObserveUpstreamAndRuns(t *testing.T) {
	Init()
	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("crossref", "503"))
	ObserveUpstream("crossref", 503, 250*time.Millisecond)
	if got := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("crossref", "503")) - before; got != 1 {
		t.Errorf("expected one upstream request, got %f", got)
	}

	beforeRuns := testutil.ToFloat64(fetchRunsTotal.WithLabelValues("error"))
	ObserveFetchRun("error")
	if got := testutil.ToFloat64(fetchRunsTotal.WithLabelValues("error")) - beforeRuns; got != 1 {
		t.Errorf("expected one errored run, got %f", got)
	}

	IncActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got < 1 {
		t.Errorf("expected active workers >= 1, got %f", got)
	}
	DecActiveWorkers()
}

func TestObserveSearchCacheAndDelay(t *testing.T) {
	Init()
	before := testutil.ToFloat64(searchCacheTotal.WithLabelValues("hit"))
	ObserveSearchCache("hit")
	if got := testutil.ToFloat64(searchCacheTotal.WithLabelValues("hit")) - before; got != 1 {
		t.Errorf("expected one cache hit, got %f", got)
	}

	ObserveRateLimitDelay("api.crossref.org", 100*time.Millisecond)
	if n := testutil.CollectAndCount(rateLimitDelaySeconds); n < 1 {
		t.Errorf("expected rate limit histogram series, got %d", n)
	}
}
