package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// PublishBuckets for full publish operations (validation + store + fan-out)
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// StoreBuckets for individual Pebble operations
	StoreBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1}

	// TranslateBuckets for remote translation calls
	TranslateBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
)

// Publication Metrics
var (
	// TopicsCreatedTotal counts topics created, labeled by category id
	TopicsCreatedTotal CounterVec = noopCounterVec{}

	// PostsCreatedTotal counts posts created, labeled by category id
	PostsCreatedTotal CounterVec = noopCounterVec{}

	// PostEditsTotal counts post edits by kind (content, endorse, reschedule)
	PostEditsTotal CounterVec = noopCounterVec{}

	// PublishFailuresTotal counts rejected publish operations by error code
	PublishFailuresTotal CounterVec = noopCounterVec{}

	// PublishDurationSeconds measures publish operation latency by operation
	PublishDurationSeconds HistogramVec = noopHistogramVec{}

	// FlaggedContentTotal counts posts flagged by the banned-word filter
	FlaggedContentTotal Counter = NoopStat{}

	// ScheduledTopicsTotal counts topics created in the scheduled state
	ScheduledTopicsTotal Counter = NoopStat{}
)

// Fan-out Metrics
var (
	// CommitStepsTotal counts commit-plan steps by step name and result
	CommitStepsTotal CounterVec = noopCounterVec{}

	// CommitPartialFailuresTotal counts commit plans that failed after some
	// steps already applied (logged for index repair)
	CommitPartialFailuresTotal Counter = NoopStat{}
)

// Cache & Signal Metrics
var (
	// PostCacheHits counts rendered-post cache lookups by result
	PostCacheHits CounterVec = noopCounterVec{}

	// PostCacheInvalidationsTotal counts invalidations by origin (local, remote)
	PostCacheInvalidationsTotal CounterVec = noopCounterVec{}

	// SignalPublishFailuresTotal counts failed signal bus publishes
	SignalPublishFailuresTotal Counter = NoopStat{}
)

// Translation Metrics
var (
	// TranslateRequestsTotal counts translation calls by result (ok, fail_open)
	TranslateRequestsTotal CounterVec = noopCounterVec{}

	// TranslateDurationSeconds measures translation call latency
	TranslateDurationSeconds Histogram = NoopStat{}
)

// Forum Size Gauges (updated by the collector)
var (
	// TopicCount is the global topic counter value
	TopicCount Gauge = NoopStat{}

	// PostCount is the global post counter value
	PostCount Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	TopicsCreatedTotal = NewCounterVec(
		"topics_created_total",
		"Topics created by category",
		[]string{"cid"},
	)
	PostsCreatedTotal = NewCounterVec(
		"posts_created_total",
		"Posts created by category",
		[]string{"cid"},
	)
	PostEditsTotal = NewCounterVec(
		"post_edits_total",
		"Post edits by kind",
		[]string{"kind"},
	)
	PublishFailuresTotal = NewCounterVec(
		"publish_failures_total",
		"Rejected publish operations by error code",
		[]string{"code"},
	)
	PublishDurationSeconds = NewHistogramVec(
		"publish_duration_seconds",
		"Publish operation duration in seconds",
		[]string{"operation"},
		PublishBuckets,
	)
	FlaggedContentTotal = NewCounter(
		"flagged_content_total",
		"Posts flagged by the banned-word filter",
	)
	ScheduledTopicsTotal = NewCounter(
		"scheduled_topics_total",
		"Topics created in the scheduled state",
	)

	CommitStepsTotal = NewCounterVec(
		"commit_steps_total",
		"Commit-plan steps by name and result",
		[]string{"step", "result"},
	)
	CommitPartialFailuresTotal = NewCounter(
		"commit_partial_failures_total",
		"Commit plans that failed after some steps applied",
	)

	PostCacheHits = NewCounterVec(
		"post_cache_lookups_total",
		"Rendered-post cache lookups by result",
		[]string{"result"},
	)
	PostCacheInvalidationsTotal = NewCounterVec(
		"post_cache_invalidations_total",
		"Rendered-post cache invalidations by origin",
		[]string{"origin"},
	)
	SignalPublishFailuresTotal = NewCounter(
		"signal_publish_failures_total",
		"Failed signal bus publishes",
	)

	TranslateRequestsTotal = NewCounterVec(
		"translate_requests_total",
		"Translation calls by result",
		[]string{"result"},
	)
	TranslateDurationSeconds = NewHistogramWithBuckets(
		"translate_duration_seconds",
		"Translation call duration in seconds",
		TranslateBuckets,
	)

	TopicCount = NewGauge(
		"topic_count",
		"Global topic counter value",
	)
	PostCount = NewGauge(
		"post_count",
		"Global post counter value",
	)
}
