package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kamilpajak/nourish/internal/llm"
)

// SSEEmitter streams generation progress as Server-Sent Events. Each event
// carries an increasing id, the progress type as its event name and the
// JSON-encoded llm.ProgressEvent as data.
type SSEEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// NewSSEEmitter writes the stream headers and returns an emitter, or nil if
// w cannot flush.
func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// nginx buffers proxied responses unless told otherwise.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSEEmitter{w: w, flusher: f}
}

// Emit writes one event and flushes it to the client.
func (e *SSEEmitter) Emit(ev llm.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", e.seq, ev.Type, data)
	e.flusher.Flush()
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
