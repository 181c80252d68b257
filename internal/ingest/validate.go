package ingest

import "tally/internal/core"

// Validate checks the first row for a category column. Later rows are not
// inspected; rows without a category are skipped by Aggregate instead.
func Validate(rows []core.NormalizedRow) error {
	if len(rows) == 0 || !rows[0].Has(core.KeyCategory) {
		return &core.SchemaError{Column: core.KeyCategory}
	}
	return nil
}
