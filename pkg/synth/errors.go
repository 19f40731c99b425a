package synth

import "errors"

var (
	// ErrEndpointsExhausted is returned when every candidate endpoint failed.
	ErrEndpointsExhausted = errors.New("all synthesis endpoints failed")
	// ErrUnexpectedContentType is returned when a successful response is not audio.
	ErrUnexpectedContentType = errors.New("unexpected response content type")
)

// DefaultFailureMessage is shown when no endpoint left a usable message.
const DefaultFailureMessage = "Unable to generate audio"

// Failure is a synthesis error carrying the message shown to the reader.
type Failure struct {
	Kind    error
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	return f.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (f *Failure) Unwrap() []error {
	out := []error{f.Kind}
	if f.Cause != nil {
		out = append(out, f.Cause)
	}
	return out
}
