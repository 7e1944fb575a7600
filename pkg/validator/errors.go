package validator

import "fmt"

// ParseError reports event bytes that are not a well-formed event.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse event: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// VerificationError reports a well-formed event whose id or signature does not
// match its content and author.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify event: %s", e.Reason)
}
