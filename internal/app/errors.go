package app

import (
	"errors"
	"fmt"
	"net/http"

	"facilityfix/api/internal/docstore"
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

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func errInvalidState(message string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE", message, nil)
}

func errInvalidTransition(from, to string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_TRANSITION",
		fmt.Sprintf("cannot transition from %s to %s", from, to), nil)
}

func errInvalidRole(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_ROLE", message, nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errDependency(err error) *DomainError {
	return domainError(http.StatusServiceUnavailable, "DEPENDENCY_FAILURE",
		"A backing service failed; the operation was not applied", err.Error())
}

// storeError translates document store failures: missing records map to
// NotFound and anything unexpected is a dependency failure. Guard
// conflicts are handled by callers since their meaning depends on the
// operation.
func storeError(err error, notFoundMessage string) *DomainError {
	if errors.Is(err, docstore.ErrNotFound) {
		return errNotFound(notFoundMessage)
	}
	return errDependency(err)
}
