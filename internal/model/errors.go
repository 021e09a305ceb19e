package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a repository does not exist on the source tracker
	ErrNotFound = errors.New("repository not found")

	// ErrInvalidIdentifier is returned for repository strings not in owner/name form
	ErrInvalidIdentifier = errors.New("repository not in the format 'owner/name'")

	// ErrNotInstalled is returned when the app has no installation on a repository
	ErrNotInstalled = errors.New("app not installed on this repository")

	// ErrModelNotTrained is returned when the classifier has no model for a repository
	ErrModelNotTrained = errors.New("train the model before you can use it")

	// ErrNotReady is returned when an incremental run is requested before the
	// first batch classification completed
	ErrNotReady = errors.New("no model associated to this repository or batch classification still in progress")
)

// RemoteError wraps a failed source tracker or classifier call.
// It is retryable by a later reconciliation pass.
type RemoteError struct {
	Operation string
	Err       error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err as a RemoteError for operation. A nil err stays nil.
func Remote(operation string, err error) error {
	if err == nil {
		return nil
	}

	return &RemoteError{Operation: operation, Err: err}
}

// IsRemote reports whether err is, or wraps, a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
