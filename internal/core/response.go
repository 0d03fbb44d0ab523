package core

import (
	"time"
)

// Budget bounds the work of one retrieval call.
type Budget struct {
	// MaxRequests caps page fetches. Values <= 0 mean a single request.
	MaxRequests int `json:"max_requests" yaml:"max_requests"`
	// MaxResults caps accumulated items. Values <= 0 mean no cap.
	MaxResults int `json:"max_results" yaml:"max_results"`
	// Timeout is a wall-clock bound checked at the same point as MaxRequests.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Normalize fills in defaults.
func (b Budget) Normalize() Budget {
	if b.MaxRequests <= 0 {
		b.MaxRequests = 1
	}
	if b.MaxResults < 0 {
		b.MaxResults = 0
	}
	if b.Timeout < 0 {
		b.Timeout = 0
	}
	return b
}

// ResultsExhausted reports whether n accumulated items reach the result cap.
func (b Budget) ResultsExhausted(n int) bool {
	return b.MaxResults > 0 && n >= b.MaxResults
}

// StopReason records why a retrieval call stopped paginating.
type StopReason string

const (
	StopExhausted      StopReason = "exhausted"
	StopWatermark      StopReason = "watermark"
	StopMaxRequests    StopReason = "max_requests"
	StopMaxResults     StopReason = "max_results"
	StopDeadline       StopReason = "deadline"
	StopTransportError StopReason = "transport_error"
	StopCancelled      StopReason = "cancelled"
	StopUnsupported    StopReason = "unsupported"
	StopMisconfigured  StopReason = "misconfigured"
)

// Response is the aggregated result of one retrieval call.
type Response struct {
	Items            []*Item
	RequestsConsumed int
	// Watermark is the advanced watermark to assign back to the feed.
	Watermark time.Time
	Stop      StopReason
	// Err is the condition that terminated retrieval early, if any. It is
	// informational: Items still holds everything collected before it.
	Err error
}

// Empty reports whether the response carries no items.
func (r Response) Empty() bool {
	return len(r.Items) == 0
}
