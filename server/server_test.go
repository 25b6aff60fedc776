package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"langrpc/registry"
	"langrpc/rpc"
	"langrpc/rpc/compress/gzip"
	"langrpc/rpc/compress/zstd"
	"langrpc/rpc/message"
	"langrpc/rpc/serialize/proto"
)

// upperModel answers a prompt with the prompt in upper case, streamed
// word by word, as a message object.
type upperModel struct {
	failAfter int
}

func (m upperModel) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	prompt, ok := input.AsString()
	if !ok {
		return message.Value{}, fmt.Errorf("%w: prompt must be a string", ErrInvalidInput)
	}
	return message.Object(message.F("content", message.String(strings.ToUpper(prompt)))), nil
}

func (m upperModel) Stream(ctx context.Context, input message.Value, emit func(message.Value) error) error {
	prompt, _ := input.AsString()
	for i, word := range strings.SplitAfter(strings.ToUpper(prompt), " ") {
		if m.failAfter > 0 && i == m.failAfter {
			return errors.New("model overloaded")
		}
		if err := emit(message.Object(message.F("content", message.String(word)))); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T, opts ...RouteOption) *httptest.Server {
	s := NewServer("summarizer", ServerWithCORS(), ServerWithMaxConcurrency(2))
	chain := Pipe(NewPromptTemplate("{text}"), upperModel{}, StrOutputParser{})
	require.NoError(t, s.AddRoutes("/summarize", chain, opts...))
	require.NoError(t, s.AddRoutes("/broken", Pipe(NewPromptTemplate("{text}"), upperModel{failAfter: 1}, StrOutputParser{})))
	require.NoError(t, s.AddRoutes("/chain", RunnableFunc(func(ctx context.Context, input message.Value) (message.Value, error) {
		return message.String(ChainID(ctx)), nil
	})))
	require.NoError(t, s.AddRoutes("/fail", RunnableFunc(func(ctx context.Context, input message.Value) (message.Value, error) {
		if n, err := input.Int64(); err == nil && n < 0 {
			return message.Value{}, fmt.Errorf("%w: negative", ErrInvalidInput)
		}
		if s, ok := input.AsString(); ok && s == "boom" {
			return message.Value{}, errors.New("boom")
		}
		return input, nil
	})))
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func text(s string) message.Value {
	return message.Object(message.F("text", message.String(s)))
}

func TestServer_Invoke(t *testing.T) {
	srv := newTestServer(t)
	testCases := []struct {
		name    string
		path    string
		input   message.Value
		opts    []rpc.CallOption
		want    message.Value
		wantErr error
		reason  string
	}{
		{
			name:  "pipeline",
			path:  "/summarize",
			input: text("hello world"),
			want:  message.String("HELLO WORLD"),
		},
		{
			name:  "compiled chain",
			path:  "/chain/c/N4XyA",
			input: message.Null(),
			want:  message.String("N4XyA"),
		},
		{
			name:  "no chain",
			path:  "/chain",
			input: message.Null(),
			want:  message.String(""),
		},
		{
			name:    "schema validation",
			path:    "/summarize",
			input:   message.Object(message.F("txt", message.String("x"))),
			wantErr: rpc.ErrRemoteValidation,
		},
		{
			name:    "runnable invalid input",
			path:    "/fail",
			input:   message.Int(-1),
			wantErr: rpc.ErrRemoteValidation,
			reason:  "server: invalid input: negative",
		},
		{
			name:    "runnable failure",
			path:    "/fail",
			input:   message.String("boom"),
			wantErr: rpc.ErrRemoteExecution,
			reason:  "boom",
		},
		{
			name:    "unknown route",
			path:    "/missing",
			input:   message.Null(),
			wantErr: rpc.ErrRemoteExecution,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := rpc.NewClient(srv.URL + tc.path)
			require.NoError(t, err)
			res, err := c.Invoke(context.Background(), tc.input, tc.opts...)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				if tc.reason != "" {
					var re *rpc.RemoteError
					require.True(t, errors.As(err, &re))
					assert.Equal(t, tc.reason, re.Reason)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, res)
		})
	}
}

func TestServer_Batch(t *testing.T) {
	srv := newTestServer(t)
	c, err := rpc.NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	inputs := []message.Value{text("b"), text("a"), text("c"), text("a")}
	res, err := c.Batch(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, []message.Value{
		message.String("B"), message.String("A"), message.String("C"), message.String("A"),
	}, res)

	_, err = c.Batch(context.Background(), []message.Value{text("a"), message.Object()})
	assert.ErrorIs(t, err, rpc.ErrRemoteValidation)
	var re *rpc.RemoteError
	require.True(t, errors.As(err, &re))
	assert.True(t, strings.HasPrefix(re.Reason, "inputs.1: "), re.Reason)

	failing, err := rpc.NewClient(srv.URL + "/fail")
	require.NoError(t, err)
	_, err = failing.Batch(context.Background(), []message.Value{message.String("ok"), message.String("boom")})
	assert.ErrorIs(t, err, rpc.ErrRemoteExecution)
}

func TestServer_Stream(t *testing.T) {
	srv := newTestServer(t)
	c, err := rpc.NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	s, err := c.Stream(context.Background(), text("a short text"))
	require.NoError(t, err)
	var fragments []message.Value
	for s.Next() {
		fragments = append(fragments, s.Fragment())
	}
	require.NoError(t, s.Err())
	assert.NotEmpty(t, s.RunID())
	assert.Equal(t, []message.Value{
		message.String("A "), message.String("SHORT "), message.String("TEXT"),
	}, fragments)

	want, err := c.Invoke(context.Background(), text("a short text"))
	require.NoError(t, err)
	s, err = c.Stream(context.Background(), text("a short text"))
	require.NoError(t, err)
	got, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	broken, err := rpc.NewClient(srv.URL + "/broken")
	require.NoError(t, err)
	s, err = broken.Stream(context.Background(), text("a short text"))
	require.NoError(t, err)
	var partial []message.Value
	for s.Next() {
		partial = append(partial, s.Fragment())
	}
	assert.Equal(t, []message.Value{message.String("A ")}, partial)
	assert.ErrorIs(t, s.Err(), rpc.ErrRemoteExecution)

	_, err = c.Stream(context.Background(), message.Object())
	assert.ErrorIs(t, err, rpc.ErrRemoteValidation)
}

func TestServer_Schemas(t *testing.T) {
	srv := newTestServer(t)
	c, err := rpc.NewClient(srv.URL+"/summarize/c/N4XyA", rpc.ClientWithInputValidation())
	require.NoError(t, err)

	in, err := c.InputSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PromptInput", in.Title)
	assert.Equal(t, []string{"text"}, in.Required)

	out, err := c.OutputSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SummarizeOutput", out.Title)

	cfg, err := c.ConfigSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SummarizeConfig", cfg.Title)
	assert.Contains(t, cfg.Properties, "configurable")

	// rejected before leaving the client
	_, err = c.Invoke(context.Background(), message.Object())
	assert.ErrorIs(t, err, rpc.ErrRemoteValidation)
}

func TestServer_Codecs(t *testing.T) {
	srv := newTestServer(t)
	testCases := []struct {
		name string
		opts []option.Option[rpc.Client]
	}{
		{name: "gzip", opts: []option.Option[rpc.Client]{rpc.ClientWithCompressor(gzip.Compressor{})}},
		{name: "zstd", opts: []option.Option[rpc.Client]{rpc.ClientWithCompressor(zstd.Compressor{})}},
		{name: "proto", opts: []option.Option[rpc.Client]{rpc.ClientWithSerializer(proto.Serializer{})}},
		{name: "proto gzip", opts: []option.Option[rpc.Client]{
			rpc.ClientWithSerializer(proto.Serializer{}), rpc.ClientWithCompressor(gzip.Compressor{}),
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := rpc.NewClient(srv.URL+"/summarize", tc.opts...)
			require.NoError(t, err)
			res, err := c.Invoke(context.Background(), text("hi there"))
			require.NoError(t, err)
			assert.Equal(t, message.String("HI THERE"), res)

			results, err := c.Batch(context.Background(), []message.Value{text("a"), text("b")})
			require.NoError(t, err)
			assert.Equal(t, []message.Value{message.String("A"), message.String("B")}, results)

			s, err := c.Stream(context.Background(), text("hi there"))
			require.NoError(t, err)
			got, err := s.Collect()
			require.NoError(t, err)
			assert.Equal(t, message.String("HI THERE"), got)
		})
	}
}

func TestServer_HTTP(t *testing.T) {
	srv := newTestServer(t)
	testCases := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantHeader map[string]string
		wantBody   string
	}{
		{
			name: "cors preflight",
			req: func() *http.Request {
				req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/summarize/invoke", nil)
				req.Header.Set("Origin", "http://example.com")
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				return req
			},
			wantStatus: http.StatusNoContent,
			wantHeader: map[string]string{"Access-Control-Allow-Origin": "*"},
		},
		{
			name: "unsupported media type",
			req: func() *http.Request {
				req, _ := http.NewRequest(http.MethodPost, srv.URL+"/summarize/invoke", strings.NewReader("<x/>"))
				req.Header.Set("Content-Type", "application/xml")
				return req
			},
			wantStatus: http.StatusUnsupportedMediaType,
		},
		{
			name: "malformed body",
			req: func() *http.Request {
				req, _ := http.NewRequest(http.MethodPost, srv.URL+"/summarize/invoke", strings.NewReader("{"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "missing input",
			req: func() *http.Request {
				req, _ := http.NewRequest(http.MethodPost, srv.URL+"/summarize/invoke", strings.NewReader(`{"config":{}}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"detail":"missing input"}`,
		},
		{
			name: "stream wire format",
			req: func() *http.Request {
				req, _ := http.NewRequest(http.MethodPost, srv.URL+"/fail/stream", strings.NewReader(`{"input":"x"}`))
				return req
			},
			wantStatus: http.StatusOK,
			wantHeader: map[string]string{"Content-Type": "text/event-stream"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.DefaultClient.Do(tc.req())
			require.NoError(t, err)
			defer func() {
				_ = resp.Body.Close()
			}()
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			for k, v := range tc.wantHeader {
				assert.Equal(t, v, resp.Header.Get(k))
			}
			if tc.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.JSONEq(t, tc.wantBody, string(body))
			}
		})
	}
}

type memRegistry struct {
	mutex     sync.Mutex
	instances []registry.ServiceInstance
}

func (m *memRegistry) Register(ctx context.Context, inst registry.ServiceInstance) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.instances = append(m.instances, inst)
	return nil
}

func (m *memRegistry) UnRegister(ctx context.Context, inst registry.ServiceInstance) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.instances = nil
	return nil
}

func (m *memRegistry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]registry.ServiceInstance(nil), m.instances...), nil
}

func (m *memRegistry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	return make(chan registry.Event), nil
}

func (m *memRegistry) Close() error {
	return nil
}

// h2cClient speaks HTTP/2 with prior knowledge over plain TCP.
func h2cClient() *http.Client {
	return &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}}
}

func TestServer_H2C(t *testing.T) {
	s := NewServer("summarizer", ServerWithH2C())
	require.NoError(t, s.AddRoutes("/summarize", Pipe(NewPromptTemplate("{text}"), upperModel{}, StrOutputParser{})))
	srv := httptest.NewServer(s)
	defer srv.Close()
	hc := h2cClient()

	resp, err := hc.Get(srv.URL + "/summarize/input_schema")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, resp.ProtoMajor)

	c, err := rpc.NewClient(srv.URL+"/summarize", rpc.ClientWithHTTPClient(hc))
	require.NoError(t, err)
	out, err := c.Invoke(context.Background(), text("go fast"))
	require.NoError(t, err)
	assert.Equal(t, message.String("GO FAST"), out)

	st, err := c.Stream(context.Background(), text("go fast"))
	require.NoError(t, err)
	res, err := st.Collect()
	require.NoError(t, err)
	assert.Equal(t, message.String("GO FAST"), res)
}

func TestServer_StartRegisters(t *testing.T) {
	r := &memRegistry{}
	s := NewServer("summarizer", ServerWithRegistry(r), ServerWithWeight(10), ServerWithGroup("A"))
	require.NoError(t, s.AddRoutes("summarize", StrOutputParser{}))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(listener)
	}()

	require.Eventually(t, func() bool {
		insts, _ := r.ListServices(context.Background(), "summarizer")
		return len(insts) == 1
	}, time.Second, 10*time.Millisecond)
	insts, _ := r.ListServices(context.Background(), "summarizer")
	assert.Equal(t, registry.ServiceInstance{
		Name: "summarizer", Address: listener.Addr().String(), Weight: 10, Group: "A",
	}, insts[0])

	c, err := rpc.NewClient("http://" + listener.Addr().String() + "/summarize")
	require.NoError(t, err)
	res, err := c.Invoke(context.Background(), message.Object(message.F("content", message.String("hi"))))
	require.NoError(t, err)
	assert.Equal(t, message.String("hi"), res)

	require.NoError(t, s.Close())
	assert.NoError(t, <-done)
	insts, _ = r.ListServices(context.Background(), "summarizer")
	assert.Empty(t, insts)
}
