// Package failure holds the error values the generation pipeline reports to its callers.
package failure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type Kind string

const (
	InvalidInput              Kind = "InvalidInput"
	UpstreamServiceError      Kind = "UpstreamServiceError"
	RateLimited               Kind = "RateLimited"
	SynthesisFailed           Kind = "SynthesisFailed"
	ResponseShapeUnrecognized Kind = "ResponseShapeUnrecognized"
	InvalidPayload            Kind = "InvalidPayload"
)

// Error is a terminal pipeline failure. Status and Attempts are set for backend failures,
// Present for responses that matched no known shape.
type Error struct {
	Kind     Kind
	Message  string
	Status   int
	Attempts int
	Present  []string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if len(e.Present) > 0 {
		fmt.Fprintf(&b, " [present: %s]", strings.Join(e.Present, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: RateLimited}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Reason is the message shown to a person.
func (e *Error) Reason() string {
	switch e.Kind {
	case InvalidInput:
		return "please enter a description"
	case UpstreamServiceError:
		return "translation failed, try again."
	case SynthesisFailed:
		return lo.Ternary(e.Status != 0,
			fmt.Sprintf("image generation failed (status %d): %s", e.Status, e.Message),
			"image generation failed: "+e.Message)
	case ResponseShapeUnrecognized:
		return "the image service returned an unexpected response"
	case InvalidPayload:
		return "the image service returned corrupt image data"
	default:
		return e.Message
	}
}

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput              = &Error{Kind: InvalidInput}
	ErrUpstreamService           = &Error{Kind: UpstreamServiceError}
	ErrRateLimited               = &Error{Kind: RateLimited}
	ErrSynthesisFailed           = &Error{Kind: SynthesisFailed}
	ErrResponseShapeUnrecognized = &Error{Kind: ResponseShapeUnrecognized}
	ErrInvalidPayload            = &Error{Kind: InvalidPayload}
)
