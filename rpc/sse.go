package rpc

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// event is one server-sent event.
type event struct {
	name string
	id   string
	data []byte
}

// eventReader decodes the text/event-stream format one event at a time.
type eventReader struct {
	r *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// next returns io.EOF once the stream ends without a pending event.
func (er *eventReader) next() (event, error) {
	var (
		ev      event
		data    bytes.Buffer
		hasData bool
		pending bool
	)
	for {
		line, err := er.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return event{}, err
		}
		eof := err == io.EOF
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if pending {
				ev.data = data.Bytes()
				return ev, nil
			}
			if eof {
				return event{}, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			// comment, used as keep-alive
			if eof {
				return event{}, io.EOF
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		pending = true
		switch field {
		case "event":
			ev.name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			ev.id = value
		}
		if eof {
			// a final event without the blank line still counts
			ev.data = data.Bytes()
			return ev, nil
		}
	}
}
