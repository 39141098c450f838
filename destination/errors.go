// This file contains the sentinel errors of the writer protocol. All errors
// can be checked using errors.Is() for programmatic handling.
package destination

import (
	"errors"
	"fmt"
)

// ErrPolicy is returned for user or configuration mistakes that need fixing
// before the migration can proceed, such as a missing committer identity or
// a non-fast-forward push where fetch and push references are equal.
var ErrPolicy = errors.New("policy violation")

// ErrChangeRejected is returned when the user declines the confirmation
// prompt. The change is never pushed and the migration is not retried.
var ErrChangeRejected = errors.New("change rejected by user")

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
