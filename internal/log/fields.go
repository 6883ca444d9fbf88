// Package log defines shared structured-logging vocabulary.
package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldTemplateID   = "template_id"
	FieldEntryID      = "entry_id"
	FieldFrequency    = "frequency"
	FieldNextDue      = "next_due"
	FieldProcessDate  = "processing_date"
	FieldDueCount     = "due"
	FieldProcessCount = "processed"
	FieldSkipCount    = "skipped"
	FieldFailCount    = "failed"
)

// Components defines standard component names
const (
	ComponentHTTP      = "http"
	ComponentScheduler = "scheduler"
	ComponentWorker    = "worker"
)
