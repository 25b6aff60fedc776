package message

import "io"

// Response is the transport's answer to a Request.
type Response struct {
	StatusCode int
	// Meta holds the first value of each response header
	Meta map[string]string
	// Data is the whole body. It is empty when Body is set.
	Data []byte
	// Body is the still-open body of a successful stream call. The
	// receiver owns it and must close it.
	Body io.ReadCloser
}

func (resp *Response) OK() bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
