// This file contains the sentinel errors of backend operations. All errors
// can be checked using errors.Is() for programmatic handling.
package vcs

import (
	"errors"
	"fmt"
)

// ErrRefNotFound is returned when a named reference does not exist in the
// repository or on the remote being fetched from.
var ErrRefNotFound = errors.New("reference not found")

// ErrCannotResolve is returned when a revision expression cannot be resolved
// to a commit, for example when walking history of a bare, empty repository.
var ErrCannotResolve = errors.New("cannot resolve revision")

// ErrEmptyCommit is returned when a commit is requested but the index does
// not differ from the parent commit.
var ErrEmptyCommit = errors.New("nothing to commit")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while
// preserving the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
