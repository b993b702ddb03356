package render

import (
	"errors"
	"strings"
)

// Exception renders an error as the outermost message followed by the
// chain of wrapped errors, innermost last.
func Exception(err error) string {
	if err == nil {
		return ""
	}

	var trace []string

	for _, cause := range causes(err) {
		trace = append(trace, Encode(cause.Error()))
	}

	return Div("exception",
		Div("exception-message", Encode(err.Error())),
		Div("exception-trace", strings.Join(trace, "<br>")),
	)
}

// causes walks the wrap chain below err depth first, following every
// branch of joined errors.
func causes(err error) []error {
	var out []error

	switch x := err.(type) { //nolint:errorlint // walking the chain by hand
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			out = append(out, inner)
			out = append(out, causes(inner)...)
		}
	default:
		if inner := errors.Unwrap(err); inner != nil {
			out = append(out, inner)
			out = append(out, causes(inner)...)
		}
	}

	return out
}
