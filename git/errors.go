package git

import (
	"errors"
	"fmt"
)

// ErrEmptyRepository reports a repository without any
// commit. Stores that cannot express it as a status
// code wrap this sentinel.
var ErrEmptyRepository = errors.New(
	"repository has no commits",
)

// StatusError is a platform call failure carrying the
// HTTP status code of the response.
type StatusError struct {
	// Op names the failed operation.
	Op string
	// StatusCode is the HTTP response status.
	StatusCode int
	// Err is the underlying client error.
	Err error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"%s: status %d: %v", e.Op, e.StatusCode, e.Err,
	)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err,
// or 0 when err holds no *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}

	return 0
}

// EmptyRepoFunc reports whether a branch lookup error
// means the repository has no commits yet.
type EmptyRepoFunc func(err error) bool

// StatusIs returns an EmptyRepoFunc matching errors
// that carry the given HTTP status code.
func StatusIs(code int) EmptyRepoFunc {
	return func(err error) bool {
		return err != nil && StatusCode(err) == code
	}
}

// IsEmptyRepository matches errors wrapping
// ErrEmptyRepository.
func IsEmptyRepository(err error) bool {
	return errors.Is(err, ErrEmptyRepository)
}
