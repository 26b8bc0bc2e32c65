// http.go — HTTP segment sender.
// POSTs the recording payload to the collector with segment metadata in
// headers. A 429 is surfaced as *RateLimitError (non-retryable); any other
// non-2xx status or network error is a retryable failure.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultSendTimeout = 30 * time.Second

// HTTPSender ships segments to a collector URL over HTTP.
type HTTPSender struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPSender creates a sender posting to url. A nil client falls back
// to one with a sane timeout.
func NewHTTPSender(url string, client *http.Client, log zerolog.Logger) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &HTTPSender{url: url, client: client, log: log}
}

// SendSegment implements Sender.
func (s *HTTPSender) SendSegment(ctx context.Context, req SendRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(req.RecordingData))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}

	eventContext, err := json.Marshal(req.EventContext)
	if err != nil {
		return fmt.Errorf("transport: encode event context: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("X-Replay-Id", req.ReplayID)
	httpReq.Header.Set("X-Replay-Segment-Id", strconv.Itoa(req.SegmentID))
	httpReq.Header.Set("X-Replay-Timestamp", strconv.FormatInt(req.Timestamp.UnixMilli(), 10))
	httpReq.Header.Set("X-Replay-Event-Context", string(eventContext))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: send segment %d: %w", req.SegmentID, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.log.Debug().
			Str("replay_id", req.ReplayID).
			Int("segment_id", req.SegmentID).
			Int("bytes", len(req.RecordingData)).
			Msg("segment sent")
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	default:
		return fmt.Errorf("transport: collector returned status %d for segment %d", resp.StatusCode, req.SegmentID)
	}
}

// parseRetryAfter interprets a Retry-After header as delay seconds,
// defaulting to one minute when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}
