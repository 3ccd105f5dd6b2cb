package fastmssql

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a Connection after Close.
	ErrClosed = errors.New("fastmssql: connection is closed")

	// ErrColumnNotFound is returned by Row.Get for a column name that does
	// not exist in the result set. It is distinct from a SQL NULL value,
	// which is returned as nil without an error.
	ErrColumnNotFound = errors.New("fastmssql: column not found")
)

// ConfigurationError reports an invalid construction-time option, such as
// pool bounds that contradict each other or mutually exclusive TLS settings.
// It is always detected before any network activity.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("fastmssql: invalid configuration %q: %s", e.Option, e.Reason)
}

func configErr(option, format string, args ...interface{}) error {
	return &ConfigurationError{Option: option, Reason: fmt.Sprintf(format, args...)}
}

// ConnectError reports a failure to establish a physical connection during
// pool initialization. The pool remains uninitialized and a later call to
// Connect or Execute retries from scratch.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("fastmssql: unable to establish connection pool: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PoolErrorKind discriminates the ways a pool checkout can fail.
type PoolErrorKind int

const (
	// PoolTimeout means the checkout wait exceeded the configured
	// connection timeout or the caller's context deadline.
	PoolTimeout PoolErrorKind = iota
	// PoolExhausted means every connection was busy and no wait was
	// possible.
	PoolExhausted
	// PoolDialFailed means a new physical connection was needed and the
	// dial failed.
	PoolDialFailed
)

func (k PoolErrorKind) String() string {
	switch k {
	case PoolTimeout:
		return "timeout"
	case PoolExhausted:
		return "exhausted"
	case PoolDialFailed:
		return "dial failed"
	}
	return "unknown"
}

// PoolError reports a failed connection checkout. Timeout and Exhausted are
// retryable; consider increasing MaxSize or reducing concurrent load.
type PoolError struct {
	Kind PoolErrorKind
	Err  error
}

func (e *PoolError) Error() string {
	msg := fmt.Sprintf("fastmssql: connection pool checkout failed (%s)", e.Kind)
	if e.Kind == PoolTimeout || e.Kind == PoolExhausted {
		msg += "; consider increasing the pool max size or reducing concurrency"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PoolError) Unwrap() error { return e.Err }

// ExecutionError reports a server-side SQL failure: syntax errors, constraint
// violations, permission failures and the like. The statement is not retried;
// the underlying connection is returned to the pool unless the transport
// itself broke.
type ExecutionError struct {
	// Message is the server-reported error text.
	Message string
	// Number is the SQL Server error number when the driver exposed one,
	// zero otherwise.
	Number int32
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Number != 0 {
		return fmt.Sprintf("fastmssql: execution failed (error %d): %s", e.Number, e.Message)
	}
	return fmt.Sprintf("fastmssql: execution failed: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TypeConversionError reports an input parameter that cannot be represented
// as a wire parameter. Output cells never produce this error; an undecodable
// cell degrades to nil instead.
type TypeConversionError struct {
	Index  int
	GoType string
	Reason string
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("fastmssql: parameter %d of type %s cannot be encoded: %s", e.Index, e.GoType, e.Reason)
}

// CredentialError reports a failed token acquisition. Hint suggests a
// remediation such as running an interactive login or enabling a managed
// identity on the host.
type CredentialError struct {
	Hint string
	Err  error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("fastmssql: credential acquisition failed: %v", e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }
