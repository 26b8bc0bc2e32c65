// compressor.go — In-process compression worker.
// Services the channel protocol from its own goroutine: accumulates
// serialized events, and on finish emits them as one zlib-compressed JSON
// array. Requests are processed FIFO; the protocol itself tolerates
// out-of-order responses, the worker just never produces them.
package worker

import (
	"bytes"
	"compress/zlib"
	"os"

	"github.com/replaykit/replay-go/internal/util"
	"github.com/rs/zerolog"
)

// Compressor is a Factory spawning the in-process zlib worker.
func Compressor(requests <-chan Request, responses chan<- Response) (func(), error) {
	w := &compressWorker{
		requests:  requests,
		responses: responses,
		quit:      make(chan struct{}),
	}
	// The factory signature carries no logger; a worker panic still has to
	// land somewhere visible.
	util.SafeGo(zerolog.New(os.Stderr).With().Timestamp().Logger(), w.run)
	return w.stop, nil
}

type compressWorker struct {
	requests  <-chan Request
	responses chan<- Response
	quit      chan struct{}

	events [][]byte // serialized events buffered since the last finish/clear
}

func (w *compressWorker) stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
}

func (w *compressWorker) run() {
	defer close(w.responses)

	// Unsolicited ready signal, first message after spawn.
	if !w.send(Response{ID: 0, Method: MethodInit, Success: true}) {
		return
	}

	for {
		select {
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			if !w.send(w.handle(req)) {
				return
			}
		case <-w.quit:
			return
		}
	}
}

// send delivers a response unless the worker is being stopped.
func (w *compressWorker) send(resp Response) bool {
	select {
	case w.responses <- resp:
		return true
	case <-w.quit:
		return false
	}
}

func (w *compressWorker) handle(req Request) Response {
	resp := Response{ID: req.ID, Method: req.Method}

	switch req.Method {
	case MethodAddEvent:
		buf := make([]byte, len(req.Arg))
		copy(buf, req.Arg)
		w.events = append(w.events, buf)
		resp.Success = true

	case MethodFinish:
		compressed, err := compress(joinJSONArray(w.events))
		w.events = nil
		if err != nil {
			resp.Response = []byte(err.Error())
			return resp
		}
		resp.Success = true
		resp.Response = compressed

	case MethodClear:
		w.events = nil
		resp.Success = true

	case MethodCompress:
		compressed, err := compress(req.Arg)
		if err != nil {
			resp.Response = []byte(err.Error())
			return resp
		}
		resp.Success = true
		resp.Response = compressed

	default:
		resp.Response = []byte("unknown method " + req.Method)
	}
	return resp
}

// joinJSONArray builds a JSON array from already-serialized elements
// without re-parsing them.
func joinJSONArray(items [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
