package server

import (
	"bytes"
	"net/http"

	"langrpc/rpc/message"
)

// eventWriter writes a text/event-stream response. Frames are always JSON.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	buf     bytes.Buffer
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &eventWriter{w: w, flusher: flusher}, true
}

func (ew *eventWriter) start() {
	h := ew.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	ew.w.WriteHeader(http.StatusOK)
	ew.flusher.Flush()
}

func (ew *eventWriter) event(name string, v message.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return ew.write(name, data)
}

func (ew *eventWriter) end() error {
	return ew.write("end", nil)
}

func (ew *eventWriter) write(name string, data []byte) error {
	ew.buf.Reset()
	ew.buf.WriteString("event: ")
	ew.buf.WriteString(name)
	ew.buf.WriteByte('\n')
	if data != nil {
		// JSON text never holds a raw newline, one data line is enough
		ew.buf.WriteString("data: ")
		ew.buf.Write(data)
		ew.buf.WriteByte('\n')
	}
	ew.buf.WriteByte('\n')
	if _, err := ew.w.Write(ew.buf.Bytes()); err != nil {
		return err
	}
	ew.flusher.Flush()
	return nil
}
