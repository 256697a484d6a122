// Package assert provides lightweight runtime invariant checks.
// A failed assertion panics; it is meant for conditions that indicate
// a programming error, never for recoverable runtime failures.
package assert

import "fmt"

// Assert panics with the formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// IsNotNil panics with the formatted message if v is nil.
func IsNotNil(v any, format string, args ...any) {
	if v == nil {
		panic(fmt.Sprintf(format, args...))
	}
}

// IsNil panics if err is non-nil. If format is provided it is used as
// the panic message, otherwise err's own message is used.
func IsNil(err error, format ...any) {
	if err == nil {
		return
	}
	if len(format) == 0 {
		panic(err.Error())
	}
	msg, ok := format[0].(string)
	if !ok {
		panic(err.Error())
	}
	panic(fmt.Sprintf(msg, format[1:]...))
}

// Never panics unconditionally; it marks code paths that should be
// unreachable. With no arguments it panics with a generic message.
func Never(format ...any) {
	if len(format) == 0 {
		panic("unreachable code reached")
	}
	msg, ok := format[0].(string)
	if !ok {
		panic("unreachable code reached")
	}
	panic(fmt.Sprintf(msg, format[1:]...))
}
