package logging

// Shared attribute keys so log consumers can rely on stable field names.
const (
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldIdentity  = "identity"
	FieldRequestID = "request_id"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
)
