package rpc

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"langrpc/rpc/message"
)

const eventStreamContentType = "text/event-stream"

var _ Proxy = (*httpProxy)(nil)

// httpProxy is the innermost Proxy: one HTTP exchange per request.
type httpProxy struct {
	client *http.Client
}

func (p *httpProxy) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	var body io.Reader
	if req.Data != nil {
		body = bytes.NewReader(req.Data)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Route.Method(), req.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, "rpc: build http request")
	}
	if req.Data != nil && req.Serializer != "" {
		hreq.Header.Set("Content-Type", req.Serializer)
	}
	if req.Compressor != "" {
		if req.Data != nil {
			hreq.Header.Set("Content-Encoding", req.Compressor)
		}
		hreq.Header.Set("Accept-Encoding", req.Compressor)
	}
	if req.Route == message.RouteStream {
		hreq.Header.Set("Accept", eventStreamContentType)
	}
	for k, v := range req.Meta {
		hreq.Header.Set(k, v)
	}

	hresp, err := p.client.Do(hreq)
	if err != nil {
		return nil, transportError(ctx, req.Route, err)
	}
	resp := &message.Response{
		StatusCode: hresp.StatusCode,
		Meta:       make(map[string]string, len(hresp.Header)),
	}
	for k, vs := range hresp.Header {
		if len(vs) > 0 {
			resp.Meta[k] = vs[0]
		}
	}
	if req.Route == message.RouteStream && resp.OK() {
		// the Stream owns the body from here on
		resp.Body = hresp.Body
		return resp, nil
	}
	defer func() {
		_ = hresp.Body.Close()
	}()
	resp.Data, err = io.ReadAll(hresp.Body)
	if err != nil {
		return nil, transportError(ctx, req.Route, err)
	}
	return resp, nil
}
