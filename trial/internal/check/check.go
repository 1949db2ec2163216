// Package check provides precondition helpers that return an error instead of
// panicking. Each helper takes an optional message (and format arguments) that
// is prepended to the generated description of the failed condition.
package check

import (
	"cmp"
	"fmt"

	"github.com/pkg/errors"
)

// True returns an error if the condition is false.
func True(condition bool, msgAndArgs ...interface{}) error {
	if !condition {
		return check(msgAndArgs, "expected condition to be true")
	}
	return nil
}

// False returns an error if the condition is true.
func False(condition bool, msgAndArgs ...interface{}) error {
	if condition {
		return check(msgAndArgs, "expected condition to be false")
	}
	return nil
}

// Equal returns an error if actual != expected.
func Equal[T comparable](actual, expected T, msgAndArgs ...interface{}) error {
	if actual != expected {
		return check(msgAndArgs, "%v is not equal to %v", actual, expected)
	}
	return nil
}

// GreaterThan returns an error if actual <= expected.
func GreaterThan[T cmp.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	if actual <= expected {
		return check(msgAndArgs, "%v is not greater than %v", actual, expected)
	}
	return nil
}

// GreaterThanOrEqualTo returns an error if actual < expected.
func GreaterThanOrEqualTo[T cmp.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	if actual < expected {
		return check(msgAndArgs, "%v is not greater than or equal to %v", actual, expected)
	}
	return nil
}

// LessThanOrEqualTo returns an error if actual > expected.
func LessThanOrEqualTo[T cmp.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	if actual > expected {
		return check(msgAndArgs, "%v is not less than or equal to %v", actual, expected)
	}
	return nil
}

func check(msgAndArgs []interface{}, format string, args ...interface{}) error {
	detail := fmt.Sprintf(format, args...)
	if msg := message(msgAndArgs); msg != "" {
		return errors.Errorf("%s: %s", msg, detail)
	}
	return errors.New(detail)
}

func message(msgAndArgs []interface{}) string {
	switch len(msgAndArgs) {
	case 0:
		return ""
	case 1:
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprint(msgAndArgs[0])
	default:
		if format, ok := msgAndArgs[0].(string); ok {
			return fmt.Sprintf(format, msgAndArgs[1:]...)
		}
		return fmt.Sprint(msgAndArgs...)
	}
}
