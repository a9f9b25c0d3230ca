package worker

import (
	"context"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	"payauth-service/internal/settlement"

	"go.uber.org/zap"
)

const (
	settlementQueueSize  = 256
	settlementMaxTries   = 3
	settlementRetryDelay = 2 * time.Second
)

// SettlementWorker confirms committed card-rail payments out of band. The
// ledger record is already terminal when a job is enqueued; the settlement
// outcome only appends to its status history, it never rewrites the status.
type SettlementWorker struct {
	ledger   repository.LedgerRepository
	provider settlement.Provider
	logger   *zap.Logger
	jobs     chan *domain.TransactionRecord
}

func NewSettlementWorker(ledger repository.LedgerRepository, provider settlement.Provider, logger *zap.Logger) *SettlementWorker {
	return &SettlementWorker{
		ledger:   ledger,
		provider: provider,
		logger:   logger,
		jobs:     make(chan *domain.TransactionRecord, settlementQueueSize),
	}
}

// Enqueue hands a committed record to the worker. Non-blocking: if the queue
// is full the job is dropped and logged; the record itself is already safe in
// the ledger.
func (w *SettlementWorker) Enqueue(rec *domain.TransactionRecord) {
	select {
	case w.jobs <- rec:
	default:
		w.logger.Warn("settlement queue full, dropping job", zap.String("record_id", rec.ID))
	}
}

func (w *SettlementWorker) Run(ctx context.Context) {
	for {
		select {
		case rec := <-w.jobs:
			w.process(ctx, rec)
		case <-ctx.Done():
			w.logger.Info("settlement worker stopped")
			return
		}
	}
}

func (w *SettlementWorker) process(ctx context.Context, rec *domain.TransactionRecord) {
	var reference string
	var err error

	for attempt := 1; attempt <= settlementMaxTries; attempt++ {
		reference, err = w.provider.Settle(ctx, rec)
		if err == nil {
			break
		}
		w.logger.Warn("settlement attempt failed",
			zap.String("record_id", rec.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < settlementMaxTries {
			select {
			case <-time.After(settlementRetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return
			}
		}
	}

	change := domain.StatusChange{Timestamp: time.Now()}
	if err != nil {
		change.Status = domain.StatusSettlementFailed
		change.Reason = err.Error()
	} else {
		change.Status = domain.StatusSettlementConfirmed
		change.Reason = reference
	}

	if herr := w.ledger.AppendStatusHistory(ctx, rec.ID, change); herr != nil {
		w.logger.Error("record settlement outcome",
			zap.String("record_id", rec.ID),
			zap.Error(herr),
		)
		return
	}
	w.logger.Info("settlement recorded",
		zap.String("record_id", rec.ID),
		zap.String("status", string(change.Status)),
	)
}
