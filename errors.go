package gemtot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common SDK error conditions.
var (
	// ErrInvalidConfig indicates the SDK settings are invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the SDK has been closed.
	ErrClosed = errors.New("sdk is closed")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation represents rejected input such as an out of range major.
	KindValidation = "validation"

	// KindNotFound represents a missing beacon configuration.
	KindNotFound = "not_found"

	// KindConfiguration represents invalid SDK settings.
	KindConfiguration = "configuration"

	// KindDependency represents a failing capability the SDK relies on, such
	// as the hash function or a back end connection.
	KindDependency = "dependency"

	// KindRadio represents an unavailable or failing Bluetooth radio.
	KindRadio = "radio"

	// KindStorage represents a failure loading or saving the beacon.
	KindStorage = "storage"

	// KindInternal represents internal SDK errors.
	KindInternal = "internal"
)

// Error wraps an underlying error with the operation that failed and the
// category of failure. It supports errors.Is and errors.As.
//
// Example usage:
//
//	var gerr *gemtot.Error
//	if errors.As(err, &gerr) && gerr.Kind == gemtot.KindRadio {
//		showBluetoothPrompt()
//	}
type Error struct {
	// Op is the operation that failed (e.g., "SDK.SetMajor").
	Op string

	// Kind categorizes the error (e.g., KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional debugging information (optional).
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gemtot: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("gemtot: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("gemtot: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error by Kind, and by Op when the target sets one.
// Otherwise it delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewDependencyError creates a new Error with KindDependency.
func NewDependencyError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindDependency, Err: err}
}

// NewRadioError creates a new Error with KindRadio.
func NewRadioError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindRadio, Err: err}
}

// NewStorageError creates a new Error with KindStorage.
func NewStorageError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindStorage, Err: err}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog closes closer and logs any error at warning level. It is
// intended for defer statements. A nil logger uses slog.Default().
//
// Example usage:
//
//	defer gemtot.CloseWithLog(sdk, logger, "gemtot sdk")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
