// channel.go — Request/response RPC over an asynchronous message boundary
// to one long-lived compression worker.
// Correlation is by per-request unique id plus method, never by queue
// order, so any number of requests may be outstanding concurrently without
// a lock around the round trip itself.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/replaykit/replay-go/internal/util"
	"github.com/rs/zerolog"
)

const requestQueueSize = 64

// ErrChannelClosed is returned for operations on a destroyed channel.
var ErrChannelClosed = errors.New("worker: channel destroyed")

// ErrWorkerFailed means the worker exited (or never signalled readiness).
var ErrWorkerFailed = errors.New("worker: worker failed")

// RequestFailedError is returned when the worker answers success=false.
type RequestFailedError struct {
	Method  string
	Message string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("worker: %s request failed: %s", e.Method, e.Message)
}

// pendingKey correlates a response to its request.
type pendingKey struct {
	id     int64
	method string
}

// Channel is the main-side endpoint of the worker protocol.
type Channel struct {
	log zerolog.Logger

	requests  chan Request
	responses chan Response

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[pendingKey]chan Response

	ready    chan struct{} // closed once readiness is decided
	readyErr error         // written before ready is closed

	destroyOnce sync.Once
	destroyed   chan struct{}
	stopWorker  func()
}

// NewChannel spawns a worker via factory and starts the response
// dispatcher. The returned channel is usable immediately; callers that
// need the worker to be up await EnsureReady.
func NewChannel(factory Factory, log zerolog.Logger) *Channel {
	c := &Channel{
		log:       log,
		requests:  make(chan Request, requestQueueSize),
		responses: make(chan Response, requestQueueSize),
		pending:   make(map[pendingKey]chan Response),
		ready:     make(chan struct{}),
		destroyed: make(chan struct{}),
	}

	stop, err := factory(c.requests, c.responses)
	if err != nil {
		c.readyErr = fmt.Errorf("%w: %v", ErrWorkerFailed, err)
		close(c.ready)
		c.Destroy()
		return c
	}
	c.stopWorker = stop

	util.SafeGo(log, c.dispatch)
	return c
}

// EnsureReady blocks until the worker has sent its unsolicited init signal,
// the worker fails, or ctx expires. The outcome is memoized: once decided,
// every call returns the same result immediately.
func (c *Channel) EnsureReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-c.destroyed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post sends one request and blocks until its matching response arrives.
// Safe for concurrent use: each call registers its own one-shot listener
// keyed by (id, method), which is removed after the match regardless of
// outcome.
func (c *Channel) Post(ctx context.Context, method string, arg []byte) (Response, error) {
	id := c.nextID.Add(1)
	key := pendingKey{id: id, method: method}
	respCh := make(chan Response, 1)

	c.mu.Lock()
	c.pending[key] = respCh
	c.mu.Unlock()

	req := Request{ID: id, Method: method, Arg: arg}
	select {
	case c.requests <- req:
	case <-c.destroyed:
		c.unregister(key)
		return Response{}, ErrChannelClosed
	case <-ctx.Done():
		c.unregister(key)
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-respCh:
		if !resp.Success {
			return resp, &RequestFailedError{Method: method, Message: string(resp.Response)}
		}
		return resp, nil
	case <-c.destroyed:
		c.unregister(key)
		return Response{}, ErrChannelClosed
	case <-ctx.Done():
		c.unregister(key)
		return Response{}, ctx.Err()
	}
}

// Destroy terminates the worker. Outstanding requests are abandoned with
// ErrChannelClosed — by the time Destroy is called the owner has already
// degraded or is shutting down. Safe to call multiple times.
func (c *Channel) Destroy() {
	c.destroyOnce.Do(func() {
		close(c.destroyed)
		if c.stopWorker != nil {
			c.stopWorker()
		}
	})
}

// dispatch routes incoming responses to their registered listeners.
// The first message from a healthy worker is the init signal; a worker
// that exits before sending it is reported as failed.
func (c *Channel) dispatch() {
	for {
		select {
		case resp, ok := <-c.responses:
			if !ok {
				c.failReady()
				c.Destroy()
				return
			}
			if resp.Method == MethodInit {
				c.markReady()
				continue
			}
			c.deliver(resp)
		case <-c.destroyed:
			c.failReady()
			return
		}
	}
}

// deliver hands a response to its one-shot listener, if still registered.
func (c *Channel) deliver(resp Response) {
	key := pendingKey{id: resp.ID, method: resp.Method}

	c.mu.Lock()
	respCh, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Int64("id", resp.ID).Str("method", resp.Method).Msg("unmatched worker response dropped")
		return
	}
	respCh <- resp
}

func (c *Channel) markReady() {
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// failReady records a worker failure if readiness was still undecided.
func (c *Channel) failReady() {
	select {
	case <-c.ready:
	default:
		c.readyErr = ErrWorkerFailed
		close(c.ready)
	}
}

func (c *Channel) unregister(key pendingKey) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}
