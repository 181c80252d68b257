package core

import (
	"errors"
	"fmt"
)

// User-facing messages.
const (
	MsgNoCategoryColumn = "No 'category' column"
	MsgDecodeFailed     = "Could not read spreadsheet"
	MsgFetchFailed      = "Could not fetch data"
)

var (
	ErrDecode           = errors.New("decode spreadsheet")
	ErrNoCategoryColumn = errors.New("no category column")
	ErrUnsupportedXLS   = errors.New("legacy .xls workbooks are not supported")
	ErrTooManyRows      = errors.New("too many rows")
)

// ErrorKind classifies failures that end a pipeline run.
type ErrorKind string

const (
	KindDecode ErrorKind = "decode"
	KindSchema ErrorKind = "schema"
)

// DecodeError reports file content that could not be read as a spreadsheet.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode spreadsheet: %s", e.Reason)
	}
	return fmt.Sprintf("decode spreadsheet: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// NewDecodeError wraps err as a DecodeError.
func NewDecodeError(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

// SchemaError reports a spreadsheet missing a required column.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return MsgNoCategoryColumn
}

func (e *SchemaError) Unwrap() error {
	return ErrNoCategoryColumn
}

// RowPersistError records a single failed write. It never fails the batch.
type RowPersistError struct {
	Index int
	Err   error
}

func (e *RowPersistError) Error() string {
	return fmt.Sprintf("persist row %d: %v", e.Index, e.Err)
}

func (e *RowPersistError) Unwrap() error {
	return e.Err
}

// PipelineError is the single message shown to the user after a failed run.
type PipelineError struct {
	Kind    ErrorKind
	Message string
}

func (e PipelineError) Error() string {
	return e.Message
}

// AsPipelineError maps a run failure to its user-facing form. Decode
// failures share a generic message; schema failures keep their fixed text.
func AsPipelineError(err error) (PipelineError, bool) {
	var schemaErr *SchemaError
	switch {
	case err == nil:
		return PipelineError{}, false
	case errors.As(err, &schemaErr):
		return PipelineError{Kind: KindSchema, Message: MsgNoCategoryColumn}, true
	case errors.Is(err, ErrDecode):
		return PipelineError{Kind: KindDecode, Message: MsgDecodeFailed}, true
	default:
		return PipelineError{}, false
	}
}
