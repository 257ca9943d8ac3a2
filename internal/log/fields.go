package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldReferer      = "referer"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldResource     = "resource"
	FieldSubscription = "subscription_id"
	FieldSubStatus    = "subscription_status"
	FieldItemID       = "item_id"
	FieldMRR          = "mrr"
	FieldMonthlyRev   = "monthly_revenue"
	FieldLookupSource = "lookup_source"
	FieldLookupKey    = "lookup_key"
	FieldEntryDate    = "entry_date"
	FieldSnapshotID   = "snapshot_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentBusiness  = "business"
	ComponentStripe    = "stripe"
	ComponentMedia     = "media"
	ComponentJournal   = "journal"
	ComponentNotion    = "notion"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRead      = "read"
	OpList      = "list"
	OpFetch     = "fetch"
	OpLookup    = "lookup"
	OpNormalize = "normalize"
	OpSnapshot  = "snapshot"
	OpPrune     = "prune"
	OpPublish   = "publish"
	OpValidate  = "validate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeUpstream      = "upstream_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
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

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithResource tags the upstream resource a call was made against,
// e.g. "subscriptions:active" or "charges".
func (f LogFields) WithResource(resource string) LogFields {
	f[FieldResource] = resource
	return f
}

// WithLineItem adds the identifiers of a subscription line item.
func (f LogFields) WithLineItem(subscriptionID, itemID string) LogFields {
	f[FieldSubscription] = subscriptionID
	f[FieldItemID] = itemID
	return f
}

// WithMetrics adds the headline business figures.
func (f LogFields) WithMetrics(mrr, monthlyRevenue int64) LogFields {
	f[FieldMRR] = mrr
	f[FieldMonthlyRev] = monthlyRevenue
	return f
}

// WithLookup adds the media lookup key and the source that answered it.
func (f LogFields) WithLookup(key, source string) LogFields {
	f[FieldLookupKey] = key
	if source != "" {
		f[FieldLookupSource] = source
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
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
