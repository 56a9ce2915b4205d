package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrCanvasNotFound reports a canvas that is missing, deleted, or owned by
// someone else. The three cases are indistinguishable to the caller.
func ErrCanvasNotFound(canvasID string) *DomainError {
	return domainError(http.StatusNotFound, "CANVAS_NOT_FOUND", "Canvas not found", map[string]any{"canvasId": canvasID})
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}
