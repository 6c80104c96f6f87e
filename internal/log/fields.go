package log

// Field names for structured logging.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldOwnerID     = "owner_id"
	FieldExpenseID   = "expense_id"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldBatchID     = "batch_id"
	FieldLine        = "line"
	FieldRow         = "row"
	FieldReason      = "reason"
	FieldDetail      = "detail"
	FieldImported    = "imported"
	FieldSkipped     = "skipped"
	FieldEventType   = "event_type"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentImport    = "import"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operation names.
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpImport   = "import"
	OpSummary  = "summary"
	OpPublish  = "publish"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// Error type categories.
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeInternal      = "internal_error"
)

// Fields builds structured log attributes.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithComponent(component string) Fields {
	f[FieldComponent] = component
	return f
}

func (f Fields) WithRequestID(id string) Fields {
	f[FieldRequestID] = id
	return f
}

func (f Fields) WithClientIP(ip string) Fields {
	f[FieldClientIP] = ip
	return f
}

// WithError is a no-op for a nil err.
func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

func (f Fields) WithOwner(ownerID int64) Fields {
	f[FieldOwnerID] = ownerID
	return f
}

func (f Fields) WithPeriod(year, month int) Fields {
	f[FieldYear] = year
	f[FieldMonth] = month
	return f
}

func (f Fields) WithHTTPRequest(method, path, query, userAgent string) Fields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f Fields) WithHTTPResponse(statusCode int, durationMs int64) Fields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens f into slog key/value arguments.
func (f Fields) ToSlice() []any {
	out := make([]any, 0, len(f)*2)
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
