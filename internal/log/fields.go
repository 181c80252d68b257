package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldRunID      = "run_id"
	FieldGeneration = "generation"
	FieldPhase      = "phase"
	FieldFileName   = "file_name"
	FieldFileSize   = "file_size"
	FieldRows       = "rows"
	FieldRowIndex   = "row_index"
	FieldCategory   = "category"
	FieldCategories = "categories"
	FieldItem       = "item"
	FieldPrice      = "price"
	FieldRecordRef  = "record_ref"
	FieldSucceeded  = "succeeded"
	FieldFailed     = "failed"
	FieldBackend    = "backend"
	FieldError      = "error"
	FieldErrorKind  = "error_kind"
	FieldOperation  = "operation"
	FieldDuration   = "duration_ms"
	FieldStatusCode = "status_code"
	FieldClientIP   = "client_ip"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentIngest   = "ingest"
	ComponentSink     = "sink"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentRedis    = "redis"
	ComponentPostgres = "postgres"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpDecode    = "decode"
	OpNormalize = "normalize"
	OpValidate  = "validate"
	OpPersist   = "persist"
	OpAggregate = "aggregate"
	OpInsert    = "insert"
	OpList      = "list"
	OpSync      = "sync"
	OpPreload   = "preload"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRun(runID string, generation uint64) LogFields {
	f[FieldRunID] = runID
	f[FieldGeneration] = generation
	return f
}

// WithError adds the error text; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithLineItem adds the fields identifying one persisted row.
func (f LogFields) WithLineItem(index int, item, category, price string) LogFields {
	f[FieldRowIndex] = index
	f[FieldItem] = item
	f[FieldCategory] = category
	f[FieldPrice] = price
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
