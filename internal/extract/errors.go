package extract

import "errors"

// Reason classifies why extraction failed.
type Reason string

const (
	NotDecodable       Reason = "NotDecodable"
	NoRecognizedSchema Reason = "NoRecognizedSchema"
)

var (
	ErrNotDecodable       = errors.New("payload could not be decoded")
	ErrNoRecognizedSchema = errors.New("no recognized conversation schema")
)

// ExtractionError is the recoverable, per-call failure of the chain.
// errors.Is matches it against ErrNotDecodable or ErrNoRecognizedSchema.
type ExtractionError struct {
	Reason Reason
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := e.sentinel().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *ExtractionError) sentinel() error {
	if e.Reason == NotDecodable {
		return ErrNotDecodable
	}
	return ErrNoRecognizedSchema
}

// ReasonOf returns the failure reason carried by err, or "" when err is not
// an extraction failure.
func ReasonOf(err error) Reason {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ""
}
