package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the storefront services.
type ErrorKind string

const (
	// ErrorKindValidation marks input rejected before any write.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindMigrationTargetRequired marks a category deletion that needs a target category.
	ErrorKindMigrationTargetRequired ErrorKind = "migration_target_required"
	// ErrorKindStoreWriteFailed marks a failed write to a backing store.
	ErrorKindStoreWriteFailed ErrorKind = "store_write_failed"
	// ErrorKindUploadFailed marks a failed image host upload.
	ErrorKindUploadFailed ErrorKind = "upload_failed"
	// ErrorKindResolutionFailed marks a share key that matched no product. It is logged, never returned
	// to shoppers.
	ErrorKindResolutionFailed ErrorKind = "resolution_failed"
)

// Error is the typed error returned by services.
type Error struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether err (or anything it wraps) is a service Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Kind == kind
}

// KindOf returns the kind of the first service Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return "", false
	}
	return svcErr.Kind, true
}

func validationError(op, message string) error {
	return &Error{Op: op, Kind: ErrorKindValidation, Message: message}
}

func storeWriteError(op string, err error) error {
	return &Error{Op: op, Kind: ErrorKindStoreWriteFailed, Message: "store write failed", Err: err}
}
