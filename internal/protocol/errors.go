package protocol

import (
	"errors"
	"fmt"
)

// ErrIncomplete is returned by Decode when the input does not yet contain a terminator
var ErrIncomplete = errors.New("protocol: incomplete response")

// EncodingError reports a request parameter the protocol cannot represent
type EncodingError struct {
	Code   Code
	Param  string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("protocol: cannot encode %s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("protocol: cannot encode %s param %s: %s", e.Code, e.Param, e.Reason)
}

// DecodeError reports malformed or truncated bytes read from a printer
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "protocol: malformed response: " + e.Reason
}

// ParseError reports a response whose payload lacks a required field
type ParseError struct {
	Code   Code
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: cannot parse %s response field %q: %s", e.Code, e.Field, e.Reason)
}
