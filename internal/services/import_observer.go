package services

import (
	"context"

	"tally/internal/log"
)

// LogObserver writes one record per import row through logger.
type LogObserver struct {
	logger *log.Logger
}

var _ RowObserver = (*LogObserver)(nil)

func NewLogObserver(logger *log.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithComponent(log.ComponentImport)}
}

func (o *LogObserver) RowImported(ctx context.Context, batchID string, row RowOutcome) {
	o.logger.DebugContext(ctx, "Import row stored",
		log.FieldBatchID, batchID,
		log.FieldLine, row.Line,
		log.FieldRow, row.Row,
		log.FieldExpenseID, row.ExpenseID)
}

func (o *LogObserver) RowSkipped(ctx context.Context, batchID string, row RowOutcome) {
	args := []any{
		log.FieldBatchID, batchID,
		log.FieldLine, row.Line,
		log.FieldRow, row.Row,
		log.FieldReason, string(row.Reason),
	}
	if row.Detail != "" {
		args = append(args, log.FieldDetail, row.Detail)
	}
	o.logger.WarnContext(ctx, "Import row skipped", args...)
}

func (o *LogObserver) BatchFailed(ctx context.Context, batchID string, err error) {
	o.logger.ErrorContext(ctx, "Import batch rolled back",
		log.FieldBatchID, batchID,
		log.FieldError, err)
}
