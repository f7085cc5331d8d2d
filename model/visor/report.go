package visor

import (
	"context"
	"time"

	"go.opencensus.io/tag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

const (
	ProcessingStatusOK    = "OK"
	ProcessingStatusInfo  = "INFO"  // Processing was successful but the handler reported information in the StatusInformation column
	ProcessingStatusError = "ERROR" // the event's writes were rolled back, a reason is given in ErrorsDetected
	ProcessingStatusSkip  = "SKIP"  // no processing was attempted, a reason may be given in the StatusInformation column
)

// A ProcessingReport records the outcome of projecting a single contract event.
type ProcessingReport struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"visor_processing_reports"`

	BlockNumber     int64  `pg:",pk,use_zero"`
	LogIndex        int64  `pg:",pk,use_zero"`
	TransactionHash string `pg:",pk,notnull"`

	// Reporter is the name of the instance that is reporting the result
	Reporter string `pg:",pk,notnull"`

	// EventKind is the name of the decoded event, empty if the log could not be decoded
	EventKind string

	StartedAt   time.Time `pg:",use_zero"`
	CompletedAt time.Time `pg:",use_zero"`

	Status            string `pg:",notnull"`
	StatusInformation string
	ErrorsDetected    interface{} `pg:",type:jsonb"`
}

func (p *ProcessingReport) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "visor_processing_reports"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, p)
}

type ProcessingReportList []*ProcessingReport

func (pl ProcessingReportList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(pl) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("").Start(ctx, "ProcessingReportList.Persist", trace.WithAttributes(attribute.Int("count", len(pl))))
	defer span.End()

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "visor_processing_reports"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(pl))
	return s.PersistModel(ctx, pl)
}

// Counts returns the number of reports with each status.
func (pl ProcessingReportList) Counts() map[string]int {
	out := map[string]int{}
	for _, r := range pl {
		out[r.Status]++
	}
	return out
}
