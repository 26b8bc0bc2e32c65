// context.go — Per-segment event context accumulation.
// The orchestrator records URLs, error ids, and trace ids seen while a
// segment is open; the collected context is popped atomically at flush time
// and attached to the outgoing segment.
package event

import "sync"

// Context is the metadata attached to one flushed segment.
type Context struct {
	URLs     []string `json:"urls,omitempty"`
	ErrorIDs []string `json:"error_ids,omitempty"`
	TraceIDs []string `json:"trace_ids,omitempty"`
}

// ContextCollector accumulates segment context between flushes.
// Thread-safe; ids are de-duplicated, URLs keep visit order.
type ContextCollector struct {
	mu       sync.Mutex
	urls     []string
	errorIDs map[string]struct{}
	traceIDs map[string]struct{}
}

// NewContextCollector creates an empty collector.
func NewContextCollector() *ContextCollector {
	return &ContextCollector{
		errorIDs: make(map[string]struct{}),
		traceIDs: make(map[string]struct{}),
	}
}

// AddURL records a visited URL in order, sanitized; data: URLs and other
// noise are dropped.
func (c *ContextCollector) AddURL(url string) {
	url = SanitizeURL(url)
	if url == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, url)
}

// AddErrorID records an error id associated with the open segment.
func (c *ContextCollector) AddErrorID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorIDs[id] = struct{}{}
}

// AddTraceID records a trace id associated with the open segment.
func (c *ContextCollector) AddTraceID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traceIDs[id] = struct{}{}
}

// Pop returns the collected context and resets the collector, so the next
// segment starts clean.
func (c *ContextCollector) Pop() Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := Context{
		URLs:     c.urls,
		ErrorIDs: setToSlice(c.errorIDs),
		TraceIDs: setToSlice(c.traceIDs),
	}
	c.urls = nil
	c.errorIDs = make(map[string]struct{})
	c.traceIDs = make(map[string]struct{})
	return ctx
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
