// transport.go — Segment sender interface and error taxonomy.
// The pipeline only ever calls SendSegment; everything else about the wire
// format lives behind this boundary. Failures must be distinguishable as
// retryable (network) vs non-retryable (rate limited by the collector).
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/session"
)

// SendRequest carries one compressed segment and its metadata.
type SendRequest struct {
	ReplayID      string
	SegmentID     int
	RecordingData []byte // compressed (or plain JSON when degraded) event batch
	Session       session.Session
	EventContext  event.Context
	Timestamp     time.Time
}

// Sender ships one segment to the collector.
type Sender interface {
	SendSegment(ctx context.Context, req SendRequest) error
}

// FuncSender adapts a bare function to the Sender interface.
type FuncSender func(ctx context.Context, req SendRequest) error

// SendSegment implements Sender.
func (f FuncSender) SendSegment(ctx context.Context, req SendRequest) error {
	return f(ctx, req)
}

// RateLimitError means the collector rejected the segment and further
// attempts must not be retried.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transport: rate limited by collector (retry after %s)", e.RetryAfter)
}
