package logging

// Standardized structured field names used across the pipeline.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldRequestID = "request_id"
	FieldSceneID   = "scene_id"
	FieldJobID     = "job_id"
	FieldPhase     = "phase"
)
