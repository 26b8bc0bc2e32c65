// throttle.go — Sliding-window rate limiter for recording-event ingestion.
// Counts calls in whole-second buckets, evicting buckets older than the
// window on every attempt. Distinguishes the first rejection of a streak
// (Throttled) from subsequent ones (Skipped) so the caller can emit exactly
// one marker event when dropping begins.
package throttle

import (
	"sync"
	"time"
)

// Result is the outcome of a rate-limited attempt.
type Result int

const (
	// Allowed means the call was under the limit and should proceed.
	Allowed Result = iota
	// Throttled means this call is the first rejection of a streak.
	Throttled
	// Skipped means the call was rejected while already over the limit.
	Skipped
)

// String returns a human-readable result name for logging.
func (r Result) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case Throttled:
		return "throttled"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Limiter bounds the rate of calls to maxCount per window.
// Thread-safe: all access guarded by mu.
type Limiter struct {
	mu       sync.Mutex
	maxCount int
	window   time.Duration
	buckets  map[int64]int // whole-second unix timestamp -> count
	limited  bool          // currently in a rejection streak

	now func() time.Time // injectable for tests
}

// NewLimiter creates a limiter allowing maxCount calls per durationSeconds.
func NewLimiter(maxCount int, durationSeconds int) *Limiter {
	return &Limiter{
		maxCount: maxCount,
		window:   time.Duration(durationSeconds) * time.Second,
		buckets:  make(map[int64]int),
		now:      time.Now,
	}
}

// Attempt records one call attempt and returns whether it may proceed.
// The first rejection after a successful call returns Throttled; rejections
// while still over the limit return Skipped. A successful attempt resets
// the streak.
func (l *Limiter) Attempt() Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowSec := l.now().Unix()
	oldest := nowSec - int64(l.window/time.Second)

	total := 0
	for sec, count := range l.buckets {
		if sec < oldest {
			delete(l.buckets, sec)
			continue
		}
		total += count
	}

	if total >= l.maxCount {
		wasLimited := l.limited
		l.limited = true
		if wasLimited {
			return Skipped
		}
		return Throttled
	}

	l.limited = false
	l.buckets[nowSec]++
	return Allowed
}

// Wrap returns a rate-limited version of fn: fn runs only when the attempt
// is Allowed, and the caller receives the attempt outcome either way.
func Wrap(fn func(), maxCount, durationSeconds int) func() Result {
	l := NewLimiter(maxCount, durationSeconds)
	return func() Result {
		res := l.Attempt()
		if res == Allowed {
			fn()
		}
		return res
	}
}
