package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("test_total", "A test counter")
	c.Inc()
	c.Inc()
	c.Add(5)
	assert.Equal(t, int64(7), c.Value())
	assert.Same(t, c, r.Counter("test_total", ""))
}

func TestGauge(t *testing.T) {
	g := New().Gauge("test_gauge", "A test gauge")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	g.Add(0.5)
	assert.InDelta(t, 43.5, g.Value(), 1e-9)
}

func TestGauge_ConcurrentAdd(t *testing.T) {
	g := New().Gauge("g", "")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Add(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, float64(50), g.Value())
}

func TestHistogram_Buckets(t *testing.T) {
	h := New().Histogram("test_seconds", "", []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}
	buckets, cumulative, sum, count := h.snapshot()
	assert.Equal(t, []float64{0.1, 0.5, 1}, buckets)
	assert.Equal(t, []uint64{2, 3, 4}, cumulative)
	assert.InDelta(t, 3.25, sum, 1e-9)
	assert.Equal(t, uint64(5), count)
	assert.Equal(t, uint64(5), h.Count())
}

func TestHistogram_Since(t *testing.T) {
	h := New().Histogram("d", "", nil)
	h.Since(time.Now().Add(-time.Second))
	_, _, sum, _ := h.snapshot()
	assert.GreaterOrEqual(t, sum, 1.0)
}

func TestWithLabels(t *testing.T) {
	assert.Equal(t, `req_total{method="GET",code="200"}`, WithLabels("req_total", "method", "GET", "code", "200"))
	assert.Equal(t, "req_total", WithLabels("req_total"))
	assert.Equal(t, "req_total", WithLabels("req_total", "odd"))
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("req_total", "code", "500"), "Requests.").Add(2)
	r.Counter(WithLabels("req_total", "code", "200"), "").Add(9)
	r.Gauge("rows", "Rows.").Set(1.5)
	h := r.Histogram(WithLabels("lat_seconds", "stage", "fetch"), "Latency.", []float64{1, 2})
	h.Observe(1.5)

	out := r.Render()
	assert.Contains(t, out, "# HELP req_total Requests.\n# TYPE req_total counter\n"+
		`req_total{code="200"} 9`+"\n"+`req_total{code="500"} 2`+"\n")
	assert.Contains(t, out, "# TYPE rows gauge\nrows 1.5\n")
	assert.Contains(t, out, `lat_seconds_bucket{le="1",stage="fetch"} 0`)
	assert.Contains(t, out, `lat_seconds_bucket{le="2",stage="fetch"} 1`)
	assert.Contains(t, out, `lat_seconds_bucket{le="+Inf",stage="fetch"} 1`)
	assert.Contains(t, out, `lat_seconds_sum{stage="fetch"} 1.5`)
	assert.Contains(t, out, `lat_seconds_count{stage="fetch"} 1`)
	assert.Less(t, strings.Index(out, "req_total"), strings.Index(out, "rows"))
}

func TestRender_UnlabelledHistogram(t *testing.T) {
	r := New()
	r.Histogram("h", "", []float64{1}).Observe(0.5)
	out := r.Render()
	assert.Contains(t, out, `h_bucket{le="1"} 1`)
	assert.Contains(t, out, "h_sum 0.5\n")
	assert.Contains(t, out, "h_count 1\n")
}

func TestKindConflictPanics(t *testing.T) {
	r := New()
	r.Counter("x", "")
	assert.Panics(t, func() { r.Gauge("x", "") })
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "hits_total 1")
}

func TestCollectRuntime(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.CollectRuntime(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return r.Gauge("go_goroutines", "").Value() > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Positive(t, r.Gauge("go_memstats_heap_alloc_bytes", "").Value())
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New().Serve(ctx, "127.0.0.1:0", nil) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestSets(t *testing.T) {
	r := New()
	in := NewIngest(r)
	in.Pages.Add(3)
	in.StageSeconds("fetch").Observe(2)
	assert.Same(t, in.StageSeconds("fetch"), in.StageSeconds("fetch"))

	q := NewQuery(r)
	q.Requests.Inc()
	q.IndexRows.Set(12)

	out := r.Render()
	assert.Contains(t, out, "issuesim_pages_fetched_total 3")
	assert.Contains(t, out, `issuesim_ingest_stage_seconds_count{stage="fetch"} 1`)
	assert.Contains(t, out, "issuesim_queries_total 1")
	assert.Contains(t, out, "issuesim_index_rows 12")
}
