package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tally/internal/core"
	"tally/internal/log"
)

// LineItemStore is the local durable store line items land in first.
type LineItemStore interface {
	CreateLineItem(ctx context.Context, it core.LineItem) (int64, error)
	Close() error
}

// SyncPublisher announces a stored line item to the sync worker.
type SyncPublisher interface {
	PublishLineItemSync(ctx context.Context, id int64) error
	Close() error
}

// LineItemService saves line items locally and asks the worker to mirror
// them to Google Sheets.
type LineItemService struct {
	store     LineItemStore
	publisher SyncPublisher
	logger    *log.Logger
}

// NewLineItemService accepts a nil publisher; items then stay pending until
// the worker's periodic drain picks them up.
func NewLineItemService(store LineItemStore, publisher SyncPublisher, logger *log.Logger) *LineItemService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LineItemService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentStorage),
	}
}

// Insert saves the item and publishes a sync message. A failed publish is
// logged only: the item is already stored and will be drained later.
func (s *LineItemService) Insert(ctx context.Context, it core.LineItem) (string, error) {
	id, err := s.store.CreateLineItem(ctx, it)
	if err != nil {
		return "", fmt.Errorf("save line item: %w", err)
	}

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, line item left pending", "id", id)
	} else if err := s.publisher.PublishLineItemSync(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish sync message", "id", id, log.FieldError, err.Error())
	}

	return "sqlite:" + strconv.FormatInt(id, 10), nil
}

// Close closes the store and the publisher.
func (s *LineItemService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close line item service: %w", errors.Join(errs...))
	}
	return nil
}
