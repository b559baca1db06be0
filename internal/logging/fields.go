package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID identifies one pipeline run.
	FieldSessionID = "session_id"
	// FieldItem is the source file a record refers to.
	FieldItem = "item"
	// FieldStage is the pipeline stage name.
	FieldStage = "stage"
	// FieldEventType classifies a record for filtering (stage_start, deploy_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for the operator.
	FieldErrorHint = "error_hint"
	// FieldErrorKind mirrors services.Kind for failed operations.
	FieldErrorKind = "error_kind"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)
