package httpserver

import (
	"net/http"
)

// sseSink writes hub payloads as Server-Sent Events.
//
// Each payload is already a complete JSON snapshot, sent with the
// "data: " prefix followed by two newlines as required by the SSE
// specification.
type sseSink struct {
	w http.ResponseWriter
}

func (s sseSink) Send(payload []byte) error {
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Flush pushes the event to the client immediately; snapshots are small
// and latency matters more than throughput on this path.
func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
