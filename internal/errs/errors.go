// Package errs defines the error taxonomy for the operations console core.
// Callers classify failures with the Is* helpers rather than matching strings.
package errs

import (
	"errors"
	"fmt"

	"opsconsole/internal/schema"
)

// VendorUnavailableError indicates a single source's fetch failed or timed
// out. The unified feed still renders for the remaining sources; the failed
// source contributes zero alerts for the poll.
type VendorUnavailableError struct {
	Source schema.Source
	Err    error
}

func (e *VendorUnavailableError) Error() string {
	return fmt.Sprintf("vendor %s unavailable: %v", e.Source, e.Err)
}

func (e *VendorUnavailableError) Unwrap() error { return e.Err }

// NotConfiguredError indicates a vendor integration has no credentials.
// Surfaced as "not connected", distinct from an error state.
type NotConfiguredError struct {
	Source schema.Source
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("vendor %s is not configured", e.Source)
}

// ValidationError rejects a mutation before anything is applied.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError indicates a state transition that is not valid for the
// alert's current lifecycle state, e.g. reopening an alert that has no
// closure record. Concurrent ownership and close races are not conflicts;
// last write wins for those.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// MitigationDispatchError carries a vendor's rejection of a mitigation or
// device command verbatim. Dispatches are not retried by the core.
type MitigationDispatchError struct {
	Source schema.Source
	Action string
	Err    error
}

func (e *MitigationDispatchError) Error() string {
	return fmt.Sprintf("%s rejected %s: %v", e.Source, e.Action, e.Err)
}

func (e *MitigationDispatchError) Unwrap() error { return e.Err }

// IsVendorUnavailable reports whether err classifies as VendorUnavailable.
func IsVendorUnavailable(err error) bool {
	var e *VendorUnavailableError
	return errors.As(err, &e)
}

// IsNotConfigured reports whether err classifies as NotConfigured.
func IsNotConfigured(err error) bool {
	var e *NotConfiguredError
	return errors.As(err, &e)
}

// IsValidation reports whether err classifies as a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsConflict reports whether err classifies as a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsMitigationDispatch reports whether err classifies as a MitigationDispatchError.
func IsMitigationDispatch(err error) bool {
	var e *MitigationDispatchError
	return errors.As(err, &e)
}
