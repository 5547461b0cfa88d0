// Package errs defines the error taxonomy shared by every component.
// Classification decides retry eligibility at the resilience layer and
// the user-facing code at the facade.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrDuplicateRegistration = &Error{Kind: KindDuplicate, Code: "duplicate_registration", Message: "worker already registered"}
	ErrAlreadyApproved       = &Error{Kind: KindDuplicate, Code: "already_approved", Message: "already approved"}
	ErrWorkerNotFound        = &Error{Kind: KindNotFound, Code: "worker_not_found", Message: "worker not found"}
	ErrServiceNotFound       = &Error{Kind: KindNotFound, Code: "service_not_found", Message: "service not found"}
	ErrRequestNotFound       = &Error{Kind: KindNotFound, Code: "request_not_found", Message: "request not found"}
)

type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindDuplicate
	KindTransient
	KindProvisioning
	KindInternal
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "validation", Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: fmt.Sprintf(format, args...)}
}

// Transient marks a dependency failure as retriable, tagged with the
// dependency and operation that failed.
func Transient(dependency, operation string, err error) *Error {
	return &Error{
		Kind:    KindTransient,
		Code:    "transient_dependency",
		Message: fmt.Sprintf("%s %s failed", dependency, operation),
		Err:     err,
	}
}

// Provisioning is fatal for the surrounding approval operation and
// triggers rollback of any partial state.
func Provisioning(err error) *Error {
	return &Error{Kind: KindProvisioning, Code: "credential_provisioning", Message: "credential provisioning failed", Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsTransient reports whether err should be retried. Validation and
// business errors are never transient; raw network and deadline
// failures always are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsDuplicate(err error) bool { return KindOf(err) == KindDuplicate }
