package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tally/internal/log"
	"tally/internal/storage"
)

// SyncProcessorConfig holds configuration for the pending drain loop.
type SyncProcessorConfig struct {
	// PollInterval is how often pending items are drained (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of items synced per poll (default: 10)
	BatchSize int

	// StartupBatchSize is used for the first drain after Start (default: 5x BatchSize)
	StartupBatchSize int
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:     30 * time.Second,
		BatchSize:        10,
		StartupBatchSize: 50,
	}
}

// PendingLister returns line items still waiting to be mirrored.
type PendingLister interface {
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSyncItem, error)
}

// ItemSyncer mirrors one stored line item.
type ItemSyncer interface {
	SyncLineItem(ctx context.Context, id int64) error
}

// SyncProcessor periodically re-syncs line items whose AMQP message was
// lost or whose first sync attempt failed.
type SyncProcessor struct {
	pending PendingLister
	syncer  ItemSyncer
	config  SyncProcessorConfig
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(pending PendingLister, syncer ItemSyncer, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.StartupBatchSize <= 0 {
		config.StartupBatchSize = config.BatchSize * 5
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncProcessor{
		pending: pending,
		syncer:  syncer,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Start drains once with the startup batch size, then keeps polling until
// Stop is called or ctx is done. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.drainLogged(ctx, p.config.StartupBatchSize)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainLogged(ctx, p.config.BatchSize)
		}
	}
}

func (p *SyncProcessor) drainLogged(ctx context.Context, limit int) {
	synced, failed, err := p.Drain(ctx, limit)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to drain pending line items", log.FieldError, err.Error())
		return
	}
	if synced+failed > 0 {
		p.logger.InfoContext(ctx, "Drained pending line items",
			log.FieldSucceeded, synced,
			log.FieldFailed, failed)
	}
}

// Drain syncs up to limit pending items one at a time. A failed item is
// counted and skipped; the drain stops early when ctx is done or Stop is
// called.
func (p *SyncProcessor) Drain(ctx context.Context, limit int) (synced, failed int, err error) {
	items, err := p.pending.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending line items: %w", err)
	}

	for _, item := range items {
		if p.stopping(ctx) {
			break
		}
		if err := p.syncer.SyncLineItem(ctx, item.ID); err != nil {
			p.logger.WarnContext(ctx, "Pending line item sync failed",
				"id", item.ID,
				log.FieldOperation, log.OpSync,
				log.FieldError, err.Error())
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (p *SyncProcessor) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
