package server

import (
	"encoding/json"
	"net/http"

	"github.com/solace-labs/solace/internal/rerank"
)

// Wire framing for the streamed response: raw text deltas, then one
// optional metadata frame, then the terminator. Both marker frames
// start on a fresh line so clients can split on the prefix.
const (
	metaMarker = "\n[META]"
	doneMarker = "\n[DONE]"
)

// metaFrame is the payload of the [META] frame.
type metaFrame struct {
	Citations []rerank.Citation `json:"citations"`
}

// streamWriter writes deltas straight to the client, flushing after
// each one so tokens appear as they are generated.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

// Started reports whether any bytes have reached the client. Once true
// the response status is committed and errors must go in-band.
func (s *streamWriter) Started() bool {
	return s.started
}

func (s *streamWriter) WriteDelta(delta string) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.started = true
	}
	if _, err := s.w.Write([]byte(delta)); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// WriteMeta emits the citation frame. Skipped when there is nothing to
// cite.
func (s *streamWriter) WriteMeta(citations []rerank.Citation) error {
	if len(citations) == 0 {
		return nil
	}
	payload, err := json.Marshal(metaFrame{Citations: citations})
	if err != nil {
		return err
	}
	return s.WriteDelta(metaMarker + string(payload))
}

func (s *streamWriter) WriteDone() error {
	return s.WriteDelta(doneMarker)
}
