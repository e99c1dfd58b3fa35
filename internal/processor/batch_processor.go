package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommap/server/config"
	"roommap/server/internal/database"
	"roommap/server/internal/models"
	"roommap/server/internal/queue"
)

// Transactor runs a function inside a database transaction.
type Transactor interface {
	Transaction(fc func(tx *gorm.DB) error) error
}

// BatchProcessor stores listing batches from the queue and tells the map engine to
// reload once a batch is committed.
type BatchProcessor struct {
	db          Transactor
	logger      *logrus.Logger
	config      *config.Config
	queue       *queue.ListingQueue
	mu          sync.RWMutex
	onCommitted func(batch []*models.PropertyRecord)
	startOnce   sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Transactor, queue *queue.ListingQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		queue:  queue,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnCommitted registers the function called after every committed batch.
func (p *BatchProcessor) OnCommitted(fn func(batch []*models.PropertyRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCommitted = fn
}

// Start subscribes to the queue and starts its workers
func (p *BatchProcessor) Start() {
	p.startOnce.Do(func() {
		p.queue.Subscribe(p.processBatch)
		p.queue.Start(p.config.BatchProcessing.ProcessorCount)
	})
}

// Stop gracefully shuts down the processor. Batches waiting for a retry are
// abandoned.
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.queue.Close()
}

// processBatch handles a single batch of listings with transaction and retry logic
func (p *BatchProcessor) processBatch(batch []*models.PropertyRecord) error {
	if len(batch) == 0 {
		return nil
	}

	maxRetries := max(p.config.BatchProcessing.MaxRetries, 0)
	var err error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"attempt":     attempt,
				"max_retries": maxRetries,
			}).Info("Retrying batch processing")
			select {
			case <-p.ctx.Done():
				return fmt.Errorf("batch processing cancelled after %d attempts: %w", attempts, err)
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		attempts++
		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertListings(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert listings batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.WithField("batch_size", len(batch)).Info("Successfully processed batch")
			p.mu.RLock()
			onCommitted := p.onCommitted
			p.mu.RUnlock()
			if onCommitted != nil {
				onCommitted(batch)
			}
			return nil
		}

		p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Batch processing failed")
		if !database.IsRetryable(err) {
			break
		}
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", attempts, err)
}
