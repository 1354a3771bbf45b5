// Package errors provides the structured error type used across taskflow.
//
// Every error that crosses a package boundary towards a user (CLI output,
// HTTP response, run summary) is an *AppError carrying a machine-readable
// ErrorCode, a retryable flag, an HTTP status and optional details.
//
// # Usage
//
//	err := errors.CycleDetected([]string{"a", "b", "a"})
//	c.JSON(err.HTTPStatus, err.ToResponse())
package errors
