package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates a capability provider is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the caller is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeRunNotFound indicates no run exists for the given id.
	ErrCodeRunNotFound ErrorCode = "RUN_NOT_FOUND"
	// ErrCodeRunNotReplayable indicates the run has not reached a terminal stage.
	ErrCodeRunNotReplayable ErrorCode = "RUN_NOT_REPLAYABLE"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidGraph indicates a structurally invalid task graph.
	ErrCodeInvalidGraph ErrorCode = "INVALID_GRAPH"
	// ErrCodeCycleDetected indicates the task graph contains a cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeDanglingEdge indicates an edge references an unknown node.
	ErrCodeDanglingEdge ErrorCode = "DANGLING_EDGE"
	// ErrCodeDuplicateID indicates two nodes share an id.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"
)

// Execution errors
const (
	// ErrCodeUnresolvedReference indicates an input template could not be resolved against run state.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"
	// ErrCodeExecutorFailed indicates a node's capability call failed.
	ErrCodeExecutorFailed ErrorCode = "EXECUTOR_FAILED"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeExternalService:    true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
