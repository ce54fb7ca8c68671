package helpers

import (
	"fmt"
	"sync"

	"device-push/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type PushError struct {
	Message string
	Cause   error
}

func (e *PushError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PushError) Unwrap() error {
	return e.Cause
}

// Distinct error types for the failure taxonomy. Authentication and transport
// failures are fatal to one connection; the message-level ones are not.
type AuthenticationError struct{ PushError }
type MalformedMessageError struct{ PushError }
type UnknownActionError struct{ PushError }
type DeliveryError struct{ PushError }
type TransportError struct{ PushError }

// -----------------------------------------------------------------------------

func NewAuthenticationError(message string, cause error) *AuthenticationError {
	return &AuthenticationError{PushError{Message: message, Cause: cause}}
}

func NewMalformedMessageError(message string, cause error) *MalformedMessageError {
	return &MalformedMessageError{PushError{Message: message, Cause: cause}}
}

func NewUnknownActionError(action string) *UnknownActionError {
	return &UnknownActionError{PushError{Message: fmt.Sprintf("unknown action: %s", action)}}
}

func NewDeliveryError(userID int64, cause error) *DeliveryError {
	return &DeliveryError{PushError{Message: fmt.Sprintf("delivery to user %d failed", userID), Cause: cause}}
}

func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{PushError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler keeps per-category error counts. There is no retry logic
// anywhere in this subsystem; delivery is best-effort at-most-once, so the
// handler only logs and counts.
type ErrorHandler struct {
	Logger *logger.Logger

	mu     sync.Mutex
	counts map[string]int
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		Logger: log,
		counts: make(map[string]int),
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) Handle(category string, err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.counts[category]++
	e.mu.Unlock()
	e.Logger.Error("Error in %s: %v", category, err)
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) Count(category string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[category]
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ResetCounts() {
	e.mu.Lock()
	e.counts = make(map[string]int)
	e.mu.Unlock()
}
