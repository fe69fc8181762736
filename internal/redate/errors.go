package redate

import (
	"errors"
	"fmt"
)

var (
	// ErrUserAborted means the caller declined to proceed at the
	// confirmation step.
	ErrUserAborted = errors.New("aborted by user")

	// ErrRepositoryState means the repository is not in a state that
	// permits a full history rewrite (dirty worktree, operation in
	// progress, shallow clone, unsupported object format).
	ErrRepositoryState = errors.New("repository not in a rewritable state")

	// ErrBackupCreation means the safety ref could not be created.
	// Always fatal; nothing has been mutated when it is returned.
	ErrBackupCreation = errors.New("backup creation failed")

	// ErrRefUpdate means one specific ref could not be moved. Other
	// refs are still attempted; the failed ref is left untouched.
	ErrRefUpdate = errors.New("ref update failed")
)

// Error carries the failure taxonomy of a redate run. Kind is always one
// of the sentinel errors above so callers can errors.Is against them.
type Error struct {
	Kind  error
	Ref   string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Ref != "" {
		s += ": " + e.Ref
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Aborted wraps a confirmation failure as a user abort.
func Aborted(cause error) error {
	return &Error{Kind: ErrUserAborted, Cause: cause}
}

func stateErrf(format string, args ...any) error {
	return &Error{Kind: ErrRepositoryState, Msg: fmt.Sprintf(format, args...)}
}

func backupErr(ref string, cause error) error {
	return &Error{Kind: ErrBackupCreation, Ref: ref, Cause: cause}
}

func refErr(ref string, cause error) error {
	return &Error{Kind: ErrRefUpdate, Ref: ref, Cause: cause}
}

func refErrf(ref string, format string, args ...any) error {
	return &Error{Kind: ErrRefUpdate, Ref: ref, Msg: fmt.Sprintf(format, args...)}
}
