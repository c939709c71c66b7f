package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalid   ErrorCode = "invalid"
	ErrorSession   ErrorCode = "session"
	ErrorForbidden ErrorCode = "forbidden"
	ErrorNotFound  ErrorCode = "not_found"
	ErrorStorage   ErrorCode = "storage"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewSessionError(msg string) error   { return &ServiceError{Code: ErrorSession, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }

// NewStorageError wraps a document or session store failure. The participant
// may retry; session state is left as it was before the failing call.
func NewStorageError(msg string, err error) error {
	return &ServiceError{Code: ErrorStorage, Message: msg, Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// QuestionErrors maps the index of a regular question (as a string, the way
// the frontend keys its error labels) to a human readable message.
type QuestionErrors map[string]string

func (e QuestionErrors) Error() string {
	return fmt.Sprintf("%d question(s) failed validation", len(e))
}

// ErrAnswerFormat is the hard failure for structurally broken answers.
var ErrAnswerFormat = errors.New("Incorrect answer format.")
