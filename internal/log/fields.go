package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldReportType = "report_type"
	FieldGranular   = "granularity"
	FieldCurrency   = "currency"
	FieldFrom       = "from"
	FieldUntil      = "until"
	FieldRows       = "rows"
	FieldCacheHit   = "cache_hit"
	FieldBytes      = "bytes"
	FieldErrorType  = "error_type"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentReports  = "reports"
	ComponentRates    = "rates"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentBackend  = "backend"
)

// Operations defines standard operation names
const (
	OpGetCategoryReport = "get_category_report"
	OpGetBudget         = "get_budget"
	OpFetchRates        = "fetch_rates"
	OpInvalidate        = "invalidate"
	OpImport            = "import"
	OpShutdown          = "shutdown"
	OpStartup           = "startup"
	OpReady             = "ready"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeUpstream    = "upstream_error"
	ErrorTypeMissingRate = "missing_rate_error"
	ErrorTypeTimeout     = "timeout_error"
	ErrorTypeInternal    = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithReport adds the parameters that identify a report request.
func (f LogFields) WithReport(userID, reportType, granularity, currency string) LogFields {
	f[FieldUserID] = userID
	if reportType != "" {
		f[FieldReportType] = reportType
	}
	f[FieldGranular] = granularity
	f[FieldCurrency] = currency
	return f
}

// WithWindow adds the resolved date window.
func (f LogFields) WithWindow(from, until string) LogFields {
	f[FieldFrom] = from
	f[FieldUntil] = until
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
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
