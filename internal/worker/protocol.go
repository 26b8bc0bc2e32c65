// protocol.go — Request/response message types for the compression worker.
// For every request there is at most one matching response, correlated by
// id AND method; responses may arrive out of order.
package worker

// Methods understood by the compression worker.
const (
	MethodInit     = "init" // unsolicited, sent once by the worker on startup
	MethodClear    = "clear"
	MethodAddEvent = "addEvent"
	MethodFinish   = "finish"
	MethodCompress = "compress"
)

// Request is one message from the channel to the worker. IDs are strictly
// increasing per channel, starting at 1; 0 is reserved for the unsolicited
// init response.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Arg    []byte `json:"arg,omitempty"`
}

// Response is the worker's answer to one request (or the init signal).
type Response struct {
	ID       int64  `json:"id"`
	Method   string `json:"method"`
	Success  bool   `json:"success"`
	Response []byte `json:"response,omitempty"`
}

// Factory spawns a worker that consumes requests and produces responses.
// The worker owns the responses channel and must close it when it exits;
// it must stop promptly when the returned stop func is called. A non-nil
// error means the worker could not be spawned at all.
type Factory func(requests <-chan Request, responses chan<- Response) (stop func(), err error)
