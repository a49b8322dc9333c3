package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wachat/internal/constants"
	"wachat/internal/models"
)

// RetryWorker periodically re-dispatches deliveries that have not reached the
// provider yet and trims expired attachment payloads. It is the fallback for
// sends that failed inline; the first attempt always happens on the request
// path.
type RetryWorker struct {
	deliveries  DeliveryStore
	attachments AttachmentStore
	reconciler  Reconciler
	logger      *logrus.Logger

	interval      time.Duration
	maxAttempts   int
	batchSize     int
	retentionDays int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type RetryWorkerConfig struct {
	Interval      time.Duration
	MaxAttempts   int
	BatchSize     int
	RetentionDays int
}

func NewRetryWorker(
	deliveries DeliveryStore,
	attachments AttachmentStore,
	reconciler Reconciler,
	logger *logrus.Logger,
	cfg RetryWorkerConfig,
) *RetryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultRetryWorkerIntervalSec * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = constants.DefaultMaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultRetryBatchSize
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = constants.DefaultRetentionDays
	}
	return &RetryWorker{
		deliveries:    deliveries,
		attachments:   attachments,
		reconciler:    reconciler,
		logger:        logger,
		interval:      cfg.Interval,
		maxAttempts:   cfg.MaxAttempts,
		batchSize:     cfg.BatchSize,
		retentionDays: cfg.RetentionDays,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the worker loop. It returns immediately; Stop or context
// cancellation ends the loop.
func (w *RetryWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.WithField("interval", w.interval).Info("Retry worker started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop to end and waits for the in-flight pass to finish.
func (w *RetryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

func (w *RetryWorker) runOnce(ctx context.Context) {
	w.retryPending(ctx)
	w.trimAttachments(ctx)
}

func (w *RetryWorker) retryPending(ctx context.Context) {
	records, err := w.deliveries.ListRetryableDeliveries(ctx, w.maxAttempts, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to list retryable deliveries")
		return
	}
	if len(records) == 0 {
		return
	}

	w.logger.WithField("count", len(records)).Info("Retrying pending deliveries")

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The first attempt happens on the request path. Skip records the
		// API created moments ago so we do not race an in-flight send.
		if rec.RetryCount == 0 && rec.State == models.DeliveryStateOutgoing &&
			time.Since(rec.UpdatedAt) < w.interval {
			continue
		}

		if err := w.reconciler.RetryDelivery(ctx, rec); err != nil {
			w.logger.WithError(err).WithField("deliveryId", rec.ID).Warn("Delivery retry failed")
		}
	}
}

func (w *RetryWorker) trimAttachments(ctx context.Context) {
	if err := w.attachments.ClearOldAttachmentData(ctx, w.retentionDays); err != nil {
		w.logger.WithError(err).Error("Failed to trim expired attachment payloads")
	}
}
