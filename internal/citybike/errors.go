package citybike

import (
	"errors"
	"fmt"
)

// ErrInvalidEndpoint is returned when the configured feed URL cannot be used.
// A fixed endpoint makes this a configuration defect rather than a runtime condition.
var ErrInvalidEndpoint = errors.New("citybike: invalid endpoint")

// TransportError wraps network and HTTP level failures
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to fetch racks: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// DecodeError wraps payloads that do not match the expected feed schema
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode racks: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// ErrorKind classifies fetch failures
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindInvalidEndpoint ErrorKind = "invalid_endpoint"
	KindTransport       ErrorKind = "transport"
	KindDecode          ErrorKind = "decode"
)

// User-facing messages, one per error kind
const (
	MessageTransport = "Could not retrieve data"
	MessageDecode    = "Received invalid data"
	MessageInternal  = "Internal configuration error"
)

// Kind classifies err. Unknown errors are reported as KindInvalidEndpoint
// since they can only originate from misconfiguration.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return KindTransport
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return KindDecode
	}
	return KindInvalidEndpoint
}

// UserMessage maps a fetch error to the message shown in place of the list
func UserMessage(err error) string {
	switch Kind(err) {
	case KindTransport:
		return MessageTransport
	case KindDecode:
		return MessageDecode
	default:
		return MessageInternal
	}
}
