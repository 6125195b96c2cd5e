package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldRunID is the standardized structured logging key for scenario run identifiers.
	FieldRunID = "run_id"
	// FieldEventType is the standardized structured logging key for machine-readable event labels.
	FieldEventType = "event_type"
	// FieldFile is the standardized structured logging key for the file a stage is working on.
	FieldFile = "file"
	// FieldExitCode is the standardized structured logging key for child process exit codes.
	FieldExitCode = "exit_code"
)
