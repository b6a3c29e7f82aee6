// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyRequestID is returned when a request ID is missing.
	ErrEmptyRequestID = errors.New("request ID cannot be empty")

	// ErrEmptyCorrelationID is returned when a correlation ID is missing.
	ErrEmptyCorrelationID = errors.New("correlation ID cannot be empty")

	// ErrEmptyStudentID is returned when a student ID is missing.
	ErrEmptyStudentID = errors.New("student ID cannot be empty")

	// ErrEmptyStudentQuery is returned when the query text is empty.
	ErrEmptyStudentQuery = errors.New("student query cannot be empty")

	// ErrInvalidGradeLevel is returned when a grade level is not a
	// positive integer.
	ErrInvalidGradeLevel = errors.New("grade level must be positive")

	// ErrInvalidRequestStatus is returned when a status is not part of
	// the request lifecycle.
	ErrInvalidRequestStatus = errors.New("invalid request status")

	// ErrInvalidTransition is returned when a status update does not
	// follow the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidAux is returned when the auxiliary metadata payload is
	// malformed or internally inconsistent.
	ErrInvalidAux = errors.New("invalid request metadata")
)
