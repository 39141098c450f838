package glob

import (
	"errors"
	"fmt"
)

// ErrNoPatterns is returned when a filter is built without include patterns.
var ErrNoPatterns = errors.New("no include patterns")

// ErrBadPattern is returned when a pattern is not valid doublestar syntax.
var ErrBadPattern = errors.New("bad glob pattern")

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
