package modular

import (
	"errors"
	"net/http"
)

// Registration errors
var (
	// Validation errors
	ErrValidationFailed  = errors.New("module validation failed")
	ErrSignatureMismatch = errors.New("module signature mismatch")
	ErrSignatureMissing  = errors.New("module signature missing")
	ErrUnsafeCode        = errors.New("module source failed safety scan")
	ErrInvalidSchema     = errors.New("invalid config schema")

	// Lifecycle errors
	ErrDuplicateModule     = errors.New("module already registered")
	ErrModuleNotFound      = errors.New("module not found")
	ErrHasDependents       = errors.New("module has dependents")
	ErrRegistryStopped     = errors.New("registry is stopped")
	ErrRequestNotFound     = errors.New("registration request not found")
	ErrMemoryLimitExceeded = errors.New("registry memory limit exceeded")
	ErrModuleBusy          = errors.New("module has an operation in progress")
	ErrEntryPointNotFound  = errors.New("no factory registered for entry point")
	ErrModuleLoadFailed    = errors.New("module failed to load")

	// Dependency resolution errors
	ErrDependencyUnresolved = errors.New("dependency unresolved")
	ErrCircularDependency   = errors.New("circular dependency detected")
	ErrInvalidVersion       = errors.New("invalid version")
	ErrInvalidConstraint    = errors.New("invalid version constraint")

	// Routing errors
	ErrRouteConflict        = errors.New("route conflict")
	ErrModuleRoutesNotFound = errors.New("module has no registered routes")

	// Collaborator errors
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrHealthCheckFailure  = errors.New("health check failure")
	ErrHealthProbePanicked = errors.New("health probe panicked")

	// Config errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrDefaultValueParseError     = errors.New("failed to parse default value")
	ErrUnsupportedFormatType      = errors.New("unsupported format type")
	ErrConfigFeederError          = errors.New("config feeder error")
)

// ErrorKind is the coarse classification used in registration results and
// mapped onto HTTP status codes by the admin API.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindDuplicate   ErrorKind = "duplicate"
	ErrorKindDependency  ErrorKind = "dependency"
	ErrorKindConflict    ErrorKind = "route_conflict"
	ErrorKindPersistence ErrorKind = "persistence"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindInternal    ErrorKind = "internal"
)

// ClassifyError maps err onto the registration error taxonomy.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrSignatureMismatch),
		errors.Is(err, ErrSignatureMissing),
		errors.Is(err, ErrUnsafeCode),
		errors.Is(err, ErrInvalidSchema):
		return ErrorKindValidation
	case errors.Is(err, ErrDuplicateModule):
		return ErrorKindDuplicate
	case errors.Is(err, ErrDependencyUnresolved),
		errors.Is(err, ErrCircularDependency),
		errors.Is(err, ErrHasDependents):
		return ErrorKindDependency
	case errors.Is(err, ErrRouteConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrPersistenceFailure):
		return ErrorKindPersistence
	case errors.Is(err, ErrModuleNotFound),
		errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrModuleRoutesNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrRegistryStopped),
		errors.Is(err, ErrModuleBusy),
		errors.Is(err, ErrMemoryLimitExceeded):
		return ErrorKindUnavailable
	default:
		return ErrorKindInternal
	}
}

// HTTPStatus returns the status code the admin API uses for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrorKindNone:
		return http.StatusOK
	case ErrorKindValidation:
		return http.StatusUnprocessableEntity
	case ErrorKindDuplicate, ErrorKindConflict, ErrorKindDependency:
		return http.StatusConflict
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
