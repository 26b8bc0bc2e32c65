// proxy.go — Buffer proxy with graceful worker degradation.
// Starts on the sync buffer while the compression worker loads. Once the
// worker signals readiness, already-buffered events are migrated into the
// compressing buffer (preserving the checkout flag, after all in-flight
// adds have completed) and the proxy switches over. If the worker never
// becomes ready the proxy stays on the sync buffer permanently — the
// failure is logged, never retried, never surfaced to the caller.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/util"
	"github.com/replaykit/replay-go/internal/worker"
	"github.com/rs/zerolog"
)

const defaultWorkerReadyTimeout = 10 * time.Second

// ProxyBuffer forwards all calls to whichever implementation is active.
type ProxyBuffer struct {
	log zerolog.Logger

	mu      sync.RWMutex
	used    EventBuffer
	syncBuf *SyncBuffer
	compBuf *CompressionBuffer
	channel *worker.Channel

	readyTimeout time.Duration
	decided      chan struct{} // closed once the sync-vs-compression choice is final
}

// NewProxy spawns the worker and returns a proxy initially backed by the
// sync buffer.
func NewProxy(factory worker.Factory, estimate event.SizeEstimator, log zerolog.Logger) *ProxyBuffer {
	return newProxy(factory, estimate, log, defaultWorkerReadyTimeout)
}

func newProxy(factory worker.Factory, estimate event.SizeEstimator, log zerolog.Logger, readyTimeout time.Duration) *ProxyBuffer {
	channel := worker.NewChannel(factory, log)
	p := &ProxyBuffer{
		log:          log,
		syncBuf:      NewSync(estimate),
		compBuf:      NewCompression(channel, estimate),
		channel:      channel,
		readyTimeout: readyTimeout,
		decided:      make(chan struct{}),
	}
	p.used = p.syncBuf
	util.SafeGo(log, p.watchWorker)
	return p
}

// watchWorker awaits worker readiness and migrates, or falls back for good.
func (p *ProxyBuffer) watchWorker() {
	defer close(p.decided)

	ctx, cancel := context.WithTimeout(context.Background(), p.readyTimeout)
	defer cancel()

	if err := p.channel.EnsureReady(ctx); err != nil {
		p.log.Debug().Err(err).Msg("compression worker unavailable, staying on sync buffer")
		p.compBuf.Destroy()
		return
	}
	p.migrate()
}

// migrate moves buffered events from the sync buffer into the compressing
// buffer and switches the active implementation. Holding the write lock
// means every in-flight add has completed and no add can slip into the
// drained sync buffer.
func (p *ProxyBuffer) migrate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	events, hasCheckout := p.syncBuf.drain()

	ctx, cancel := context.WithTimeout(context.Background(), p.readyTimeout)
	defer cancel()

	for i, e := range events {
		if err := p.compBuf.AddEvent(ctx, e); err != nil {
			p.log.Debug().Err(err).Int("migrated", i).Msg("buffer migration failed, staying on sync buffer")
			p.compBuf.Destroy()
			p.restore(events, hasCheckout)
			return
		}
	}
	p.compBuf.SetHasCheckout(hasCheckout)
	p.used = p.compBuf

	p.log.Debug().Int("migrated", len(events)).Msg("switched to compression buffer")
}

// restore puts drained events back into the sync buffer after a failed
// migration. They fit by construction: they were under the cap before.
func (p *ProxyBuffer) restore(events []event.Event, hasCheckout bool) {
	for _, e := range events {
		if err := p.syncBuf.AddEvent(context.Background(), e); err != nil {
			p.log.Debug().Err(err).Msg("event lost while restoring after failed migration")
		}
	}
	p.syncBuf.SetHasCheckout(hasCheckout)
}

// AddEvent forwards to the active buffer. The read lock is held across the
// call so a concurrent migration cannot strand the event in the drained
// sync buffer.
func (p *ProxyBuffer) AddEvent(ctx context.Context, e event.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.AddEvent(ctx, e)
}

func (p *ProxyBuffer) HasEvents() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.HasEvents()
}

func (p *ProxyBuffer) HasCheckout() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.HasCheckout()
}

func (p *ProxyBuffer) SetHasCheckout(v bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.used.SetHasCheckout(v)
}

func (p *ProxyBuffer) EarliestTimestamp() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.EarliestTimestamp()
}

func (p *ProxyBuffer) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.Size()
}

func (p *ProxyBuffer) Finish(ctx context.Context) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.Finish(ctx)
}

func (p *ProxyBuffer) Clear(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used.Clear(ctx)
}

// Destroy tears down both implementations; the worker channel shutdown is
// idempotent, so this is safe whichever buffer is active.
func (p *ProxyBuffer) Destroy() {
	p.compBuf.Destroy()
	p.syncBuf.Destroy()
}
