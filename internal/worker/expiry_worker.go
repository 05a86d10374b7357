package worker

import (
	"context"
	"sync"
	"time"

	"github.com/kudzimusar/stolen-pay/internal/observability"
	"github.com/kudzimusar/stolen-pay/internal/service"
	"go.uber.org/zap"
)

// ExpiryWorker sweeps multisig transactions whose signing window has
// closed. Safe for concurrent instances thanks to FOR UPDATE SKIP LOCKED.
type ExpiryWorker struct {
	svc          *service.MultiSigService
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewExpiryWorker constructs a worker with default polling settings.
func NewExpiryWorker(svc *service.MultiSigService) *ExpiryWorker {
	return &ExpiryWorker{
		svc:          svc,
		pollInterval: time.Minute,
		batchSize:    50,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval updates the poll interval.
func (w *ExpiryWorker) WithPollInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize updates the sweep batch size.
func (w *ExpiryWorker) WithBatchSize(size int32) *ExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce sweeps a single batch immediately and refreshes the
// pending-transactions gauge. Useful for testing or manual triggering.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (int64, error) {
	expired, err := w.svc.ExpirePending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	pending, err := w.svc.PendingCount(ctx)
	if err != nil {
		zap.L().Warn("counting pending multisig transactions failed", zap.Error(err))
	} else {
		observability.SetMultiSigPending(pending)
	}
	return expired, nil
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	expired, err := w.RunOnce(ctx)
	if err != nil {
		observability.IncrementWorkerRun("multisig_expiry", "failed")
		zap.L().Error("multisig expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("multisig_expiry", "success")
	if expired > 0 {
		zap.L().Info("expired multisig transactions", zap.Int64("count", expired))
	}
}
