// http_test.go — Unit tests for the HTTP segment sender.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSendRequest() SendRequest {
	return SendRequest{
		ReplayID:      "replay-1",
		SegmentID:     3,
		RecordingData: []byte("compressed-bytes"),
		Session:       session.Session{ID: "replay-1", SegmentID: 3},
		EventContext:  event.Context{URLs: []string{"https://example.com"}},
		Timestamp:     time.UnixMilli(1_700_000_000_000),
	}
}

func TestSendSegmentSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, nil, zerolog.Nop())
	require.NoError(t, s.SendSegment(context.Background(), testSendRequest()))

	assert.Equal(t, "compressed-bytes", string(gotBody))
	assert.Equal(t, "replay-1", gotHeaders.Get("X-Replay-Id"))
	assert.Equal(t, "3", gotHeaders.Get("X-Replay-Segment-Id"))
	assert.Equal(t, "1700000000000", gotHeaders.Get("X-Replay-Timestamp"))
	assert.Contains(t, gotHeaders.Get("X-Replay-Event-Context"), "example.com")
}

func TestSendSegmentRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, nil, zerolog.Nop())
	err := s.SendSegment(context.Background(), testSendRequest())

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 30*time.Second, rlErr.RetryAfter)
}

func TestSendSegmentServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, nil, zerolog.Nop())
	err := s.SendSegment(context.Background(), testSendRequest())

	require.Error(t, err)
	var rlErr *RateLimitError
	assert.False(t, errors.As(err, &rlErr), "5xx must not be classified as rate limited")
}

func TestSendSegmentNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	s := NewHTTPSender(srv.URL, nil, zerolog.Nop())
	err := s.SendSegment(context.Background(), testSendRequest())
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Minute, parseRetryAfter(""))
	assert.Equal(t, time.Minute, parseRetryAfter("soon"))
}

func TestFuncSender(t *testing.T) {
	called := false
	s := FuncSender(func(ctx context.Context, req SendRequest) error {
		called = true
		return nil
	})
	require.NoError(t, s.SendSegment(context.Background(), testSendRequest()))
	assert.True(t, called)
}
