package records

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound record stores.
type (
	// RecordWriter stores one line item and returns a store-specific reference.
	RecordWriter interface {
		Insert(ctx context.Context, item core.LineItem) (ref string, err error)
	}

	// RecordLister returns every stored record, oldest first.
	RecordLister interface {
		List(ctx context.Context) ([]core.Record, error)
	}

	Store interface {
		RecordWriter
		RecordLister
	}
)
