package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
)

// DefaultBatchSize matches the largest batch the Airtable API accepts.
const DefaultBatchSize = 10

// Sink stores rows. WriteBatch is all or nothing for its batch.
type Sink interface {
	Name() string
	WriteBatch(ctx context.Context, exportID string, records []Record) error
}

// BatchRecorder is told about every batch written.
type BatchRecorder interface {
	ObserveExportBatch(sink string, records int, err error)
}

type noopBatches struct{}

func (noopBatches) ObserveExportBatch(string, int, error) {}

// Exporter writes a record to its sink in fixed-size batches.
type Exporter struct {
	sink      Sink
	batchSize int
	log       *zap.Logger
	recorder  BatchRecorder
}

func NewExporter(sink Sink, batchSize int, log *zap.Logger, recorder BatchRecorder) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = noopBatches{}
	}
	return &Exporter{sink: sink, batchSize: batchSize, log: log, recorder: recorder}
}

// Export flattens record and writes it batch by batch. A failed batch is
// logged and skipped; the rest are still written. It returns the number of
// rows written and the joined batch errors.
func (e *Exporter) Export(ctx context.Context, record template.Node) (int, error) {
	rows := Flatten(record)
	exportID := uuid.NewString()

	var errs []error
	written := 0
	for start := 0; start < len(rows); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		end := min(start+e.batchSize, len(rows))
		batch := rows[start:end]
		err := e.sink.WriteBatch(ctx, exportID, batch)
		e.recorder.ObserveExportBatch(e.sink.Name(), len(batch), err)
		if err != nil {
			e.log.Error("export batch failed",
				zap.String("sink", e.sink.Name()),
				zap.String("export", exportID),
				zap.Int("from", start),
				zap.Int("records", len(batch)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", start, end-1, err))
			continue
		}
		written += len(batch)
		e.log.Debug("export batch written", zap.String("sink", e.sink.Name()), zap.Int("records", len(batch)))
	}

	e.log.Info("record exported",
		zap.String("sink", e.sink.Name()),
		zap.String("export", exportID),
		zap.Int("records", len(rows)),
		zap.Int("written", written))
	return written, errors.Join(errs...)
}
