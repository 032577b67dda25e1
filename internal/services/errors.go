// Package services holds the forecaster's business logic between the HTTP
// handlers, the worker and the storage, job store and queue collaborators.
package services

import "errors"

// Service error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUploadNotFound   = "UPLOAD_NOT_FOUND"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeResultNotReady   = "RESULT_NOT_READY"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeQueueUnavailable = "QUEUE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// AsServiceError unwraps err into a ServiceError, wrapping unknown errors
// as internal ones. A nil err yields nil.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return NewServiceError(CodeInternal, err.Error())
}
