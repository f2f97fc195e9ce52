package services

import (
	"net/http"

	"github.com/Code4me2/data-compose/internal/platform/apierr"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
)

// API error codes carried in error envelopes.
const (
	CodeValidation            = "VALIDATION"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeResourceExhausted     = "RESOURCE_EXHAUSTED"
	CodeInternal              = "INTERNAL"
)

func validationError(err error) *apierr.Error {
	return apierr.New(http.StatusBadRequest, CodeValidation, err)
}

func notFoundError(err error) *apierr.Error {
	return apierr.New(http.StatusNotFound, CodeNotFound, err)
}

func conflictError(err error) *apierr.Error {
	return apierr.New(http.StatusConflict, CodeConflict, err)
}

func unavailableError(err error) *apierr.Error {
	return apierr.New(http.StatusServiceUnavailable, CodeDependencyUnavailable, err)
}

func exhaustedError(err error) *apierr.Error {
	return apierr.New(http.StatusRequestEntityTooLarge, CodeResourceExhausted, err)
}

func internalError(err error) *apierr.Error {
	return apierr.New(http.StatusInternalServerError, CodeInternal, err)
}

// storeError maps adapter failures into the API taxonomy: unreachable
// store means 503, a missing document 404, anything else is internal.
func storeError(err error) *apierr.Error {
	switch {
	case elastic.IsUnavailable(err):
		return unavailableError(err)
	case elastic.IsNotFound(err):
		return notFoundError(err)
	default:
		return internalError(err)
	}
}
