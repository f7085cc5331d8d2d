package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000, 30000, 50000, 100000, 200000, 500000, 1000000, 2000000, 5000000, 10000000, 10000000)

var (
	EventKind, _ = tag.NewKey("event") // name of the contract event being projected
	Job, _       = tag.NewKey("job")   // name of job
	Name, _      = tag.NewKey("name")  // name of running instance of the indexer
	Table, _     = tag.NewKey("table") // name of table data is persisted for
	API, _       = tag.NewKey("api")   // name of method on the chain rpc api
	Status, _    = tag.NewKey("status")
)

var (
	ProcessingDuration  = stats.Float64("processing_duration_ms", "Time taken to project a single event", stats.UnitMilliseconds)
	PersistDuration     = stats.Float64("persist_duration_ms", "Duration of a models persist operation", stats.UnitMilliseconds)
	PersistModel        = stats.Int64("persist_model", "Number of models persisted", stats.UnitDimensionless)
	LensRequestDuration = stats.Float64("lens_request_duration_ms", "Duration of chain rpc requests", stats.UnitMilliseconds)
	EventsProcessed     = stats.Int64("events_processed", "Number of contract events projected", stats.UnitDimensionless)
	ProcessingFailure   = stats.Int64("processing_failure", "Number of events whose projection was rolled back", stats.UnitDimensionless)
	PersistFailure      = stats.Int64("persist_failure", "Number of persistence failures", stats.UnitDimensionless)
	MissingReference    = stats.Int64("missing_reference", "Number of events referencing an entity that does not exist", stats.UnitDimensionless)
	CursorHeight        = stats.Int64("cursor_height", "Block number of the last event applied to the store", stats.UnitDimensionless)
	WatchHeight         = stats.Int64("watch_height", "The chain head last seen by the watch command", stats.UnitDimensionless)
	HeaderCacheHit      = stats.Int64("header_cache_hit", "Number of block timestamps served from cache", stats.UnitDimensionless)
	JobStart            = stats.Int64("job_start", "Number of jobs started", stats.UnitDimensionless)
	JobComplete         = stats.Int64("job_complete", "Number of jobs completed without error", stats.UnitDimensionless)
	JobError            = stats.Int64("job_error", "Number of jobs stopped due to a fatal error", stats.UnitDimensionless)
)

var DefaultViews = []*view.View{
	{
		Measure:     ProcessingDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{EventKind},
	},
	{
		Measure:     PersistDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Table},
	},
	{
		Measure:     LensRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{API},
	},
	{
		Name:        "lens_request_total",
		Measure:     LensRequestDuration,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{API},
	},
	{
		Name:        EventsProcessed.Name() + "_total",
		Measure:     EventsProcessed,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{EventKind, Status},
	},
	{
		Name:        ProcessingFailure.Name() + "_total",
		Measure:     ProcessingFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{EventKind},
	},
	{
		Name:        PersistFailure.Name() + "_total",
		Measure:     PersistFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Table},
	},
	{
		Name:        MissingReference.Name() + "_total",
		Measure:     MissingReference,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{EventKind, Table},
	},
	{
		Measure:     CursorHeight,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Job},
	},
	{
		Measure:     WatchHeight,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Job},
	},
	{
		Name:        HeaderCacheHit.Name() + "_total",
		Measure:     HeaderCacheHit,
		Aggregation: view.Sum(),
	},
	{
		Name:        PersistModel.Name() + "_total",
		Measure:     PersistModel,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{Table},
	},
	{
		Name:        JobStart.Name() + "_total",
		Measure:     JobStart,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Job},
	},
	{
		Name:        JobComplete.Name() + "_total",
		Measure:     JobComplete,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Job},
	},
	{
		Name:        JobError.Name() + "_total",
		Measure:     JobError,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Job},
	},
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
	}
}

// RecordInc is a convenience function that increments a counter.
func RecordInc(ctx context.Context, m *stats.Int64Measure) {
	stats.Record(ctx, m.M(1))
}

// RecordCount is a convenience function that increments a counter by a count.
func RecordCount(ctx context.Context, m *stats.Int64Measure, count int) {
	stats.Record(ctx, m.M(int64(count)))
}

// RecordValue records an absolute value such as a block height.
func RecordValue(ctx context.Context, m *stats.Int64Measure, v int64) {
	stats.Record(ctx, m.M(v))
}

// WithTagValue is a convenience function that upserts the tag value in the given context.
func WithTagValue(ctx context.Context, k tag.Key, v string) context.Context {
	ctx, _ = tag.New(ctx, tag.Upsert(k, v))
	return ctx
}
