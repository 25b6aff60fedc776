package rpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"
	"golang.org/x/sync/singleflight"

	"langrpc/internal/errs"
	"langrpc/rpc/compress"
	"langrpc/rpc/message"
	"langrpc/rpc/serialize"
	"langrpc/rpc/serialize/json"
)

var log = logging.MustGetLogger("rpc")

const schemaCacheSize = 64

var _ Proxy = (*Client)(nil)

// Client calls one served pipeline. It only holds configuration fixed at
// construction, so concurrent calls share nothing mutable.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	serializer serialize.Serializer
	compressor compress.Compressor
	headers    map[string]string
	timeout    time.Duration
	mdls       []Middleware
	validate   bool

	// proxy is the transport wrapped by mdls
	proxy   Proxy
	schemas *lru.Cache
	group   *singleflight.Group
}

// NewClient -> create Client for the pipeline served at endpoint
func NewClient(endpoint string, opts ...option.Option[Client]) (*Client, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	schemas, err := lru.New(schemaCacheSize)
	if err != nil {
		return nil, err
	}
	client := &Client{
		endpoint:   ep,
		httpClient: http.DefaultClient,
		serializer: json.Serializer{},
		// avoid nil checks
		compressor: compress.DoNothingCompressor{},
		schemas:    schemas,
		group:      &singleflight.Group{},
	}
	for _, opt := range opts {
		opt(client)
	}
	var proxy Proxy = &httpProxy{client: client.httpClient}
	for i := len(client.mdls) - 1; i >= 0; i-- {
		proxy = client.mdls[i](proxy)
	}
	client.proxy = proxy
	return client, nil
}

// ClientWithHTTPClient -> option, the transport used for every call
func ClientWithHTTPClient(hc *http.Client) option.Option[Client] {
	return func(client *Client) {
		client.httpClient = hc
	}
}

// ClientWithSerializer -> option
func ClientWithSerializer(s serialize.Serializer) option.Option[Client] {
	return func(client *Client) {
		client.serializer = s
	}
}

// ClientWithCompressor -> option
func ClientWithCompressor(c compress.Compressor) option.Option[Client] {
	return func(client *Client) {
		client.compressor = c
	}
}

// ClientWithTimeout -> option, default maximum duration of each call
func ClientWithTimeout(d time.Duration) option.Option[Client] {
	return func(client *Client) {
		client.timeout = d
	}
}

// ClientWithHeader -> option, a header sent on every call
func ClientWithHeader(key, value string) option.Option[Client] {
	return func(client *Client) {
		if client.headers == nil {
			client.headers = make(map[string]string, 4)
		}
		client.headers[key] = value
	}
}

// ClientWithMiddlewares -> option, the first middleware is the outermost
func ClientWithMiddlewares(mdls ...Middleware) option.Option[Client] {
	return func(client *Client) {
		client.mdls = append(client.mdls, mdls...)
	}
}

// ClientWithInputValidation -> option, check inputs against the remote
// input schema before sending them
func ClientWithInputValidation() option.Option[Client] {
	return func(client *Client) {
		client.validate = true
	}
}

func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// CallOption adjusts one call.
type CallOption func(o *callOptions)

type callOptions struct {
	timeout time.Duration
	config  message.Value
	headers map[string]string
}

// WithTimeout bounds the call, including the whole consumption of a stream.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithConfig sends a runnable config, e.g. tags, metadata or configurable.
func WithConfig(config message.Value) CallOption {
	return func(o *callOptions) {
		o.config = config
	}
}

func WithCallHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, 2)
		}
		o.headers[key] = value
	}
}

// Call sends a prepared request through the middlewares and transport.
func (c *Client) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	return c.proxy.Call(ctx, req)
}

// Invoke runs the pipeline once on input.
func (c *Client) Invoke(ctx context.Context, input message.Value, opts ...CallOption) (message.Value, error) {
	co := c.callOptions(opts)
	ctx, cancel := c.withTimeout(ctx, co)
	defer cancel()
	if err := c.validateInputs(ctx, message.RouteInvoke, input); err != nil {
		return message.Value{}, err
	}
	body, err := c.send(ctx, message.RouteInvoke, message.InvokeEnvelope(input, co.config), co)
	if err != nil {
		return message.Value{}, err
	}
	return message.Output(body), nil
}

// Output decodes the output of an invoke response obtained through Call,
// e.g. one collected by a broadcast.
func (c *Client) Output(resp *message.Response) (message.Value, error) {
	if !resp.OK() {
		return message.Value{}, statusError(message.RouteInvoke, resp.StatusCode, c.uncompressOrRaw(resp))
	}
	body, err := c.decode(message.RouteInvoke, resp)
	if err != nil {
		return message.Value{}, err
	}
	return message.Output(body), nil
}

// Batch runs the pipeline on each input in one call. Result i belongs to
// input i. A failure of any item fails the whole call.
func (c *Client) Batch(ctx context.Context, inputs []message.Value, opts ...CallOption) ([]message.Value, error) {
	if len(inputs) == 0 {
		return nil, errs.ErrEmptyBatch
	}
	co := c.callOptions(opts)
	ctx, cancel := c.withTimeout(ctx, co)
	defer cancel()
	if err := c.validateInputs(ctx, message.RouteBatch, inputs...); err != nil {
		return nil, err
	}
	body, err := c.send(ctx, message.RouteBatch, message.BatchEnvelope(inputs, co.config), co)
	if err != nil {
		return nil, err
	}
	out := message.Output(body)
	if out.Kind() != message.KindList {
		return nil, &RemoteError{
			Kind:   KindExecution,
			Route:  message.RouteBatch,
			Reason: fmt.Sprintf("batch output is a %s, not a list", out.Kind()),
		}
	}
	if out.Len() != len(inputs) {
		return nil, &RemoteError{
			Kind:   KindExecution,
			Route:  message.RouteBatch,
			Reason: fmt.Sprintf("got %d results for %d inputs", out.Len(), len(inputs)),
			cause:  errs.ErrBatchMismatch,
		}
	}
	res := make([]message.Value, out.Len())
	copy(res, out.Items())
	return res, nil
}

// Stream starts a streamed run and returns once the response headers
// arrive. The caller must Close the Stream unless Next has returned false.
func (c *Client) Stream(ctx context.Context, input message.Value, opts ...CallOption) (*Stream, error) {
	co := c.callOptions(opts)
	ctx, cancel := c.withTimeout(ctx, co)
	if err := c.validateInputs(ctx, message.RouteStream, input); err != nil {
		cancel()
		return nil, err
	}
	req, err := c.newRequest(message.RouteStream, message.InvokeEnvelope(input, co.config), co)
	if err != nil {
		cancel()
		return nil, err
	}
	log.Debugf("stream %s", req.URL)
	resp, err := c.proxy.Call(ctx, req)
	if err != nil {
		err = callError(ctx, message.RouteStream, err)
		cancel()
		log.Warningf("stream %s: %v", req.URL, err)
		return nil, err
	}
	if !resp.OK() {
		cancel()
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, statusError(message.RouteStream, resp.StatusCode, c.uncompressOrRaw(resp))
	}
	return newStream(ctx, cancel, resp), nil
}

// send performs a buffered call and decodes the response body.
func (c *Client) send(ctx context.Context, route message.Route, payload message.Value, co callOptions) (message.Value, error) {
	req, err := c.newRequest(route, payload, co)
	if err != nil {
		return message.Value{}, err
	}
	log.Debugf("%s %s", route, req.URL)
	resp, err := c.proxy.Call(ctx, req)
	if err != nil {
		err = callError(ctx, route, err)
		log.Warningf("%s %s: %v", route, req.URL, err)
		return message.Value{}, err
	}
	if !resp.OK() {
		err = statusError(route, resp.StatusCode, c.uncompressOrRaw(resp))
		log.Warningf("%s %s: %v", route, req.URL, err)
		return message.Value{}, err
	}
	return c.decode(route, resp)
}

func (c *Client) newRequest(route message.Route, payload message.Value, co callOptions) (*message.Request, error) {
	data, err := c.serializer.Encode(payload)
	if err != nil {
		return nil, err
	}
	data, err = c.compressor.Compress(data)
	if err != nil {
		return nil, err
	}
	req := &message.Request{
		Route:      route,
		URL:        c.endpoint.Route(route),
		Serializer: c.serializer.ContentType(),
		Compressor: c.compressor.Name(),
		Data:       data,
	}
	c.applyHeaders(req, co.headers)
	return req, nil
}

func (c *Client) applyHeaders(req *message.Request, extra map[string]string) {
	for k, v := range c.headers {
		req.SetMeta(k, v)
	}
	for k, v := range extra {
		req.SetMeta(k, v)
	}
}

func (c *Client) decode(route message.Route, resp *message.Response) (message.Value, error) {
	data, err := c.uncompress(resp)
	if err != nil {
		return message.Value{}, &RemoteError{Kind: KindExecution, Route: route, StatusCode: resp.StatusCode,
			Reason: "undecodable response encoding", cause: err}
	}
	var body message.Value
	if err = c.serializerFor(resp).Decode(data, &body); err != nil {
		return message.Value{}, &RemoteError{Kind: KindExecution, Route: route, StatusCode: resp.StatusCode,
			Reason: "undecodable response body", cause: err}
	}
	return body, nil
}

func (c *Client) uncompress(resp *message.Response) ([]byte, error) {
	encoding := resp.Meta["Content-Encoding"]
	if encoding == "" || encoding == "identity" {
		return resp.Data, nil
	}
	if encoding != c.compressor.Name() {
		return nil, fmt.Errorf("rpc: unsupported content encoding %q", encoding)
	}
	return c.compressor.Uncompress(resp.Data)
}

func (c *Client) uncompressOrRaw(resp *message.Response) []byte {
	data, err := c.uncompress(resp)
	if err != nil {
		return resp.Data
	}
	return data
}

// serializerFor falls back to JSON when the response is JSON, e.g. a
// FastAPI error body answering a protobuf request.
func (c *Client) serializerFor(resp *message.Response) serialize.Serializer {
	ct := resp.Meta["Content-Type"]
	if strings.HasPrefix(ct, json.ContentType) {
		return json.Serializer{}
	}
	return c.serializer
}

func (c *Client) callOptions(opts []CallOption) callOptions {
	co := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&co)
	}
	return co
}

func (c *Client) withTimeout(ctx context.Context, co callOptions) (context.Context, context.CancelFunc) {
	if co.timeout > 0 {
		return context.WithTimeout(ctx, co.timeout)
	}
	return context.WithCancel(ctx)
}
