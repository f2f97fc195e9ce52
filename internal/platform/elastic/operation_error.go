package elastic

import (
	"errors"
	"fmt"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorNotFound        OperationErrorCode = "not_found"
	OperationErrorVersionConflict OperationErrorCode = "version_conflict"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "elasticsearch operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf(
			"elasticsearch operation failed (op=%s code=%s status=%d): %s",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Message,
		)
	}
	if e.Cause != nil {
		return fmt.Sprintf(
			"elasticsearch operation failed (op=%s code=%s status=%d): %v",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Cause,
		)
	}
	return fmt.Sprintf(
		"elasticsearch operation failed (op=%s code=%s status=%d)",
		e.Operation,
		e.Code,
		e.StatusCode,
	)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HTTPStatusCode makes OperationError usable with httpx retryability checks.
func (e *OperationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

// IsNotFound reports whether err is a document- or index-missing store error.
func IsNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == OperationErrorNotFound
}

// IsVersionConflict reports whether err is an optimistic-concurrency write conflict.
func IsVersionConflict(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == OperationErrorVersionConflict
}

// IsUnavailable reports whether err indicates the store could not be reached at all.
func IsUnavailable(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Code == OperationErrorTransportFailed || oe.Code == OperationErrorTimeout
}
