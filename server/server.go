package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/op/go-logging"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"langrpc/registry"
	"langrpc/rpc/compress"
	"langrpc/rpc/compress/gzip"
	"langrpc/rpc/compress/lz4"
	"langrpc/rpc/compress/snappy"
	"langrpc/rpc/compress/zlib"
	"langrpc/rpc/compress/zstd"
	"langrpc/rpc/serialize"
	"langrpc/rpc/serialize/json"
	"langrpc/rpc/serialize/proto"
)

var log = logging.MustGetLogger("server")

// Middleware wraps the route handler, e.g. tracing, metrics or rate limiting.
type Middleware func(next http.Handler) http.Handler

// Server hosts runnables in the LangServe route layout.
type Server struct {
	name   string
	weight uint32
	group  string

	registry registry.Registry
	// bounds each call to the registry
	registerTimeout time.Duration
	si              registry.ServiceInstance

	mux         *http.ServeMux
	handler     http.Handler
	mdls        []Middleware
	cors        bool
	h2c         bool
	concurrency int
	maxBody     int64

	serializers map[string]serialize.Serializer
	compressors map[string]compress.Compressor

	mutex      sync.Mutex
	httpServer *http.Server
}

// ServerWithRegistry -> option, the server registers itself once listening
func ServerWithRegistry(r registry.Registry) option.Option[Server] {
	return func(server *Server) {
		server.registry = r
	}
}

func ServerWithWeight(weight uint32) option.Option[Server] {
	return func(server *Server) {
		server.weight = weight
	}
}

func ServerWithGroup(group string) option.Option[Server] {
	return func(server *Server) {
		server.group = group
	}
}

// ServerWithCORS -> option, allow every origin, method and header
func ServerWithCORS() option.Option[Server] {
	return func(server *Server) {
		server.cors = true
	}
}

// ServerWithH2C -> option, serve HTTP/2 without TLS
func ServerWithH2C() option.Option[Server] {
	return func(server *Server) {
		server.h2c = true
	}
}

// ServerWithMiddlewares -> option, the first middleware is the outermost
func ServerWithMiddlewares(mdls ...Middleware) option.Option[Server] {
	return func(server *Server) {
		server.mdls = append(server.mdls, mdls...)
	}
}

// ServerWithMaxConcurrency -> option, bounds the items of one batch run at
// the same time; zero means unbounded
func ServerWithMaxConcurrency(n int) option.Option[Server] {
	return func(server *Server) {
		server.concurrency = n
	}
}

// ServerWithMaxBodySize -> option, in bytes
func ServerWithMaxBodySize(n int64) option.Option[Server] {
	return func(server *Server) {
		server.maxBody = n
	}
}

func ServerWithSerializers(ss ...serialize.Serializer) option.Option[Server] {
	return func(server *Server) {
		for _, s := range ss {
			server.serializers[s.ContentType()] = s
		}
	}
}

func ServerWithCompressors(cs ...compress.Compressor) option.Option[Server] {
	return func(server *Server) {
		for _, c := range cs {
			server.compressors[c.Name()] = c
		}
	}
}

func NewServer(name string, opts ...option.Option[Server]) *Server {
	res := &Server{
		name:            name,
		registerTimeout: 10 * time.Second,
		mux:             http.NewServeMux(),
		maxBody:         10 << 20,
		serializers: map[string]serialize.Serializer{
			json.ContentType:  json.Serializer{},
			proto.ContentType: proto.Serializer{},
		},
		compressors: map[string]compress.Compressor{
			"":         compress.DoNothingCompressor{},
			"identity": compress.DoNothingCompressor{},
			"gzip":     gzip.Compressor{},
			"deflate":  zlib.Compressor{},
			"snappy":   snappy.Compressor{},
			"lz4":      lz4.Compressor{},
			"zstd":     zstd.Compressor{},
		},
	}
	for _, opt := range opts {
		opt(res)
	}
	var handler http.Handler = res.mux
	for i := len(res.mdls) - 1; i >= 0; i-- {
		handler = res.mdls[i](handler)
	}
	if res.cors {
		handler = cors.AllowAll().Handler(handler)
	}
	if res.h2c {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	res.handler = handler
	return res
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on addr, registers the server and serves until Close.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	si := registry.ServiceInstance{
		Name:    s.name,
		Group:   s.group,
		Weight:  s.weight,
		Address: listener.Addr().String(),
	}
	s.mutex.Lock()
	s.httpServer = httpServer
	s.si = si
	s.mutex.Unlock()
	// register only once the port is open
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.registerTimeout)
		err := s.registry.Register(ctx, si)
		cancel()
		if err != nil {
			_ = listener.Close()
			return err
		}
	}
	log.Infof("%s serving on %s", s.name, listener.Addr())
	err := httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close unregisters the server, then waits for in-flight calls.
func (s *Server) Close() error {
	s.mutex.Lock()
	httpServer, si := s.httpServer, s.si
	s.mutex.Unlock()
	if s.registry != nil && si.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.registerTimeout)
		err := s.registry.UnRegister(ctx, si)
		cancel()
		if err != nil {
			log.Warningf("unregister %s: %v", s.name, err)
		}
	}
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
