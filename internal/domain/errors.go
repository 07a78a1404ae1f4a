package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBind reports that the ingestion socket could not be bound.
	ErrBind = errors.New("bind ingestion socket")

	// ErrMalformedContact reports a datagram that does not decode to a contact.
	ErrMalformedContact = errors.New("malformed contact datagram")

	// ErrLookupTransport reports a network failure or unexpected HTTP status
	// while calling the callsign directory.
	ErrLookupTransport = errors.New("lookup transport failure")

	// ErrLookupDecode reports a directory response that could not be parsed.
	ErrLookupDecode = errors.New("lookup response decode failure")
)

// RemoteError is an application-level error reported by the callsign
// directory, such as "Not found: ZZFAKE".
type RemoteError struct {
	Call    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lookup %s: directory returned no callsign", e.Call)
	}
	return fmt.Sprintf("lookup %s: %s", e.Call, e.Message)
}

// LookupErrorKind classifies a lookup failure for logs and metrics.
func LookupErrorKind(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &remote):
		return "remote"
	case errors.Is(err, ErrLookupDecode):
		return "decode"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrLookupTransport):
		return "transport"
	default:
		return "unknown"
	}
}
