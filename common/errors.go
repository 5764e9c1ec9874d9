package common

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed deployment error matches exactly one of these with
// errors.Is, so callers can branch on the kind without knowing the type.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrPathValidation       = errors.New("invalid path")
	ErrRemoteState          = errors.New("remote state error")
	ErrUpload               = errors.New("upload failed")
	ErrRoleReconciliation   = errors.New("role reconciliation failed")
)

// ConfigurationError reports a missing or invalid configuration value. It is
// raised before any network call where the problem is detectable.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
	kind   error
}

// NewConfigurationError creates a ConfigurationError of kind ErrInvalidConfiguration.
func NewConfigurationError(field, value, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Reason: reason, kind: ErrInvalidConfiguration}
}

// NewPathValidationError creates a ConfigurationError of kind ErrPathValidation.
// It matches both ErrPathValidation and ErrInvalidConfiguration.
func NewPathValidationError(value, reason string) *ConfigurationError {
	return &ConfigurationError{Field: "path", Value: value, Reason: reason, kind: ErrPathValidation}
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

// Is reports kind membership.
func (e *ConfigurationError) Is(target error) bool {
	if target == ErrInvalidConfiguration {
		return true
	}
	return target == e.kind
}

// RemoteStateError wraps listing or lookup failures against the remote store.
type RemoteStateError struct {
	Op     string
	Target string
	Err    error
}

func (e *RemoteStateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteStateError) Unwrap() error { return e.Err }

func (e *RemoteStateError) Is(target error) bool { return target == ErrRemoteState }

// UploadError wraps an individual object upload failure.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// RoleReconciliationError attaches the role name to any unexpected failure
// while converging an IAM role.
type RoleReconciliationError struct {
	Role  string
	State string
	Err   error
}

func (e *RoleReconciliationError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("IAM role %s: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("IAM role %s (%s): %v", e.Role, e.State, e.Err)
}

func (e *RoleReconciliationError) Unwrap() error { return e.Err }

func (e *RoleReconciliationError) Is(target error) bool { return target == ErrRoleReconciliation }

// UserFacingError pairs a short message for the user with the detailed cause
// that was already logged.
type UserFacingError struct {
	Message string
	Cause   error
}

func (e *UserFacingError) Error() string { return e.Message }

func (e *UserFacingError) Unwrap() error { return e.Cause }
