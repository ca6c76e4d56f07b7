package metrics

// Ingest holds the metrics an ingestion run reports.
type Ingest struct {
	Pages         *Counter
	Cooldowns     *Counter
	Issues        *Counter
	PullRequests  *Counter
	Uncommented   *Counter
	ShortComments *Counter
	Rows          *Counter
	Embedded      *Counter
	Failures      *Counter
	StageSeconds  func(stage string) *Histogram
	CorpusRows    *Gauge
}

// NewIngest registers the ingestion metrics on r.
func NewIngest(r *Registry) *Ingest {
	return &Ingest{
		Pages:         r.Counter("issuesim_pages_fetched_total", "Issue list pages fetched."),
		Cooldowns:     r.Counter("issuesim_rate_limit_cooldowns_total", "Rate-limit window cooldowns taken."),
		Issues:        r.Counter("issuesim_issues_fetched_total", "Issue records fetched."),
		PullRequests:  r.Counter("issuesim_pull_requests_dropped_total", "Pull requests dropped from the corpus."),
		Uncommented:   r.Counter("issuesim_uncommented_dropped_total", "Issues dropped for having no comments."),
		ShortComments: r.Counter("issuesim_short_comments_dropped_total", "Comments dropped for being too short."),
		Rows:          r.Counter("issuesim_rows_built_total", "Corpus rows built."),
		Embedded:      r.Counter("issuesim_rows_embedded_total", "Corpus rows embedded."),
		Failures:      r.Counter("issuesim_ingest_failures_total", "Ingestion runs that failed."),
		StageSeconds: func(stage string) *Histogram {
			return r.Histogram(WithLabels("issuesim_ingest_stage_seconds", "stage", stage),
				"Ingestion stage duration.", []float64{0.1, 1, 10, 60, 300, 1800, 3600, 7200})
		},
		CorpusRows: r.Gauge("issuesim_corpus_rows", "Rows in the current corpus."),
	}
}

// Query holds the metrics the query service reports.
type Query struct {
	Requests  *Counter
	Errors    *Counter
	Latency   *Histogram
	IndexRows *Gauge
	Reloads   *Counter
}

// NewQuery registers the query metrics on r.
func NewQuery(r *Registry) *Query {
	return &Query{
		Requests:  r.Counter("issuesim_queries_total", "Similarity queries served."),
		Errors:    r.Counter("issuesim_query_errors_total", "Similarity queries that failed."),
		Latency:   r.Histogram("issuesim_query_seconds", "Similarity query latency.", nil),
		IndexRows: r.Gauge("issuesim_index_rows", "Rows in the loaded index."),
		Reloads:   r.Counter("issuesim_index_reloads_total", "Index reloads after a rebuild event."),
	}
}
