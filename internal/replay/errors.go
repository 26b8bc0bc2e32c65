// errors.go — Error taxonomy and stop reasons for the replay container.
// The public start/stop/flush surface never propagates these to the host
// application; they exist for internal control flow, logging, and tests.
package replay

import "errors"

var (
	// ErrNotStarted is returned by operations requiring an active recording.
	ErrNotStarted = errors.New("replay: not started")
	// ErrSessionExpired means a flush was attempted on an expired session;
	// the buffer is left untouched, callers must not retry blindly.
	ErrSessionExpired = errors.New("replay: session expired")

	// errSegmentTooShort: flush attempted before MinReplayDuration; a
	// later attempt is re-queued.
	errSegmentTooShort = errors.New("replay: segment below minimum duration")
	// errSegmentTooLong: segment outlived MaxReplayDuration plus slack;
	// dropped, never retried.
	errSegmentTooLong = errors.New("replay: segment exceeds maximum duration")
)

// Stop reasons reported when the container shuts recording down on its own.
const (
	ReasonStopCalled           = "stop"
	ReasonAddEventSizeExceeded = "addEventSizeExceeded"
	ReasonSendError            = "sendError"
	ReasonSessionTooLong       = "sessionTooLong"
	ReasonMutationLimit        = "mutationLimit"
	ReasonSessionUnsampled     = "sessionUnsampled"
)
