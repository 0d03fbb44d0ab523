package retrieval

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by a connector for feed kinds its network cannot serve.
var ErrUnsupported = errors.New("feed kind not supported by connector")

// ConfigurationError reports a feed that lacks the identity fields a connector needs.
// It is not retried.
type ConfigurationError struct {
	FeedID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.FeedID == "" {
		return "misconfigured feed: " + e.Reason
	}
	return fmt.Sprintf("misconfigured feed %q: %s", e.FeedID, e.Reason)
}

// Misconfigured builds a ConfigurationError.
func Misconfigured(feedID, format string, args ...any) error {
	return &ConfigurationError{FeedID: feedID, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a network or authentication failure while fetching a page.
type TransportError struct {
	Network string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Network, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError for network. Nil stays nil.
func Transport(network string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Network: network, Err: err}
}

// ParseError reports a single malformed record. The engine skips the record and
// keeps paginating.
type ParseError struct {
	RecordID string
	Err      error
}

func (e *ParseError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("parse record: %v", e.Err)
	}
	return fmt.Sprintf("parse record %q: %v", e.RecordID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Malformed builds a ParseError.
func Malformed(recordID, format string, args ...any) error {
	return &ParseError{RecordID: recordID, Err: fmt.Errorf(format, args...)}
}
