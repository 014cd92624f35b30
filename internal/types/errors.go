package types

import "fmt"

// ParseError reports a malformed outline construct. Line is 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	}
	return "parse error: " + e.Msg
}

// ConfigError reports missing or unusable configuration. It halts the
// operation before any remote work.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// StateError reports a corrupt or incompatible baseline file.
type StateError struct {
	Path string
	Msg  string
	Hint string
}

func (e *StateError) Error() string {
	s := fmt.Sprintf("state error in %s: %s", e.Path, e.Msg)
	if e.Hint != "" {
		s += " (" + e.Hint + ")"
	}
	return s
}

// RemoteError reports a failed tracker call. Transient errors are
// retried with backoff; permanent ones are recorded per action.
type RemoteError struct {
	Transient bool
	Msg       string
	Err       error
}

func (e *RemoteError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("remote error (%s): %s: %v", kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("remote error (%s): %s", kind, e.Msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NewTransientRemoteError wraps err as a retryable remote failure.
func NewTransientRemoteError(msg string, err error) *RemoteError {
	return &RemoteError{Transient: true, Msg: msg, Err: err}
}

// NewPermanentRemoteError wraps err as a non-retryable remote failure.
func NewPermanentRemoteError(msg string, err error) *RemoteError {
	return &RemoteError{Transient: false, Msg: msg, Err: err}
}

// BusyError reports that another invocation holds the baseline lock.
type BusyError struct {
	Path string
}

func (e *BusyError) Error() string {
	return "busy: another sync holds the lock on " + e.Path
}

// DuplicateBindingError is fatal: two headings claim the same issue
// number. No side effects are performed when it is raised.
type DuplicateBindingError struct {
	Number     int
	Identities []string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("duplicate binding: issue #%d is bound by %d headings %v",
		e.Number, len(e.Identities), e.Identities)
}
