package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Index is the part of the vector index the worker refreshes
type Index interface {
	Load(ctx context.Context) error
	Len() int
}

// IndexSyncWorker periodically merges the document repository into the vector index so
// that documents written by other server instances become searchable.
//
// Load only adds documents, so a failed cycle keeps serving the current content.
type IndexSyncWorker struct {
	index    Index
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewIndexSyncWorker creates a new worker reloading index every interval
func NewIndexSyncWorker(index Index, interval time.Duration) *IndexSyncWorker {
	return &IndexSyncWorker{
		index:    index,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sync loop without blocking
func (w *IndexSyncWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("sync interval must be positive", goerr.V("interval", w.interval))
	}
	logging.Default().Info("Index sync worker starting", "interval", w.interval.String())

	go w.run(ctx)
	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *IndexSyncWorker) Stop() {
	logging.Default().Info("Index sync worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Index sync worker stopped")
}

func (w *IndexSyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sync(ctx); err != nil {
				logging.Default().Error("Index sync failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Index sync worker context cancelled")
			return
		}
	}
}

func (w *IndexSyncWorker) sync(ctx context.Context) error {
	startTime := time.Now()
	before := w.index.Len()

	if err := w.index.Load(ctx); err != nil {
		return goerr.Wrap(err, "failed to reload vector index")
	}

	logging.Default().Debug("Index sync completed",
		"before", before,
		"after", w.index.Len(),
		"duration", time.Since(startTime).String())
	return nil
}
