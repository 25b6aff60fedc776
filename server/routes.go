package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"langrpc/internal/errs"
	"langrpc/rpc/compress"
	"langrpc/rpc/message"
	"langrpc/rpc/serialize"
	jsonser "langrpc/rpc/serialize/json"
)

type RouteOption func(rt *route)

// WithInputSchema overrides the input schema, which is otherwise taken
// from the runnable when it implements InputSchemaer.
func WithInputSchema(schema *jsonschema.Schema) RouteOption {
	return func(rt *route) {
		rt.input = schema
	}
}

func WithOutputSchema(schema *jsonschema.Schema) RouteOption {
	return func(rt *route) {
		rt.output = schema
	}
}

func WithConfigSchema(schema *jsonschema.Schema) RouteOption {
	return func(rt *route) {
		rt.config = schema
	}
}

type route struct {
	path     string
	runnable Runnable
	input    *jsonschema.Schema
	output   *jsonschema.Schema
	config   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

type ctxKey int

const (
	chainKey ctxKey = iota
	configKey
	runIDKey
)

// ChainID is the compiled chain segment of the called URL, or empty.
func ChainID(ctx context.Context) string {
	id, _ := ctx.Value(chainKey).(string)
	return id
}

// Config is the runnable config sent with the call, null when absent.
func Config(ctx context.Context) message.Value {
	cfg, _ := ctx.Value(configKey).(message.Value)
	return cfg
}

// RunID identifies the current run.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// AddRoutes serves r under path:
//
//	POST {path}/invoke, {path}/batch, {path}/stream
//	GET  {path}/input_schema, {path}/output_schema, {path}/config_schema
//
// and the same under {path}/c/{chain} for compiled chains.
func (s *Server) AddRoutes(path string, r Runnable, opts ...RouteOption) error {
	path = strings.Trim(path, "/")
	rt := &route{path: path, runnable: r}
	if is, ok := r.(InputSchemaer); ok {
		rt.input = is.InputSchema()
	}
	for _, opt := range opts {
		opt(rt)
	}
	title := schemaTitle(path)
	if rt.input == nil {
		rt.input = &jsonschema.Schema{Title: title + "Input"}
	}
	if rt.output == nil {
		rt.output = &jsonschema.Schema{Title: title + "Output"}
	}
	if rt.config == nil {
		rt.config = defaultConfigSchema(title)
	}
	resolved, err := rt.input.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("server: input schema of %s: %w", path, err)
	}
	rt.resolved = resolved

	prefix := ""
	if path != "" {
		prefix = "/" + path
	}
	for _, p := range []string{prefix, prefix + "/c/{chain}"} {
		s.mux.HandleFunc("POST "+p+"/invoke", s.handleInvoke(rt))
		s.mux.HandleFunc("POST "+p+"/batch", s.handleBatch(rt))
		s.mux.HandleFunc("POST "+p+"/stream", s.handleStream(rt))
		s.mux.HandleFunc("GET "+p+"/input_schema", s.handleSchema(rt.input))
		s.mux.HandleFunc("GET "+p+"/output_schema", s.handleSchema(rt.output))
		s.mux.HandleFunc("GET "+p+"/config_schema", s.handleSchema(rt.config))
	}
	log.Infof("routes added at /%s", path)
	return nil
}

func schemaTitle(path string) string {
	var sb strings.Builder
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '_' || r == '-'
	}) {
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	if sb.Len() == 0 {
		return "Runnable"
	}
	return sb.String()
}

func defaultConfigSchema(title string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Title: title + "Config",
		Type:  "object",
		Properties: map[string]*jsonschema.Schema{
			"configurable": {Type: "object"},
			"tags":         {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"metadata":     {Type: "object"},
			"run_name":     {Type: "string"},
		},
	}
}

// httpError is a failure answered with status and {"detail": detail}.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d: %s", e.status, e.detail)
}

func invalid(format string, args ...any) *httpError {
	return &httpError{status: http.StatusUnprocessableEntity, detail: fmt.Sprintf(format, args...)}
}

// runError maps a runnable failure to its status.
func runError(err error) *httpError {
	if errors.Is(err, ErrInvalidInput) {
		return &httpError{status: http.StatusUnprocessableEntity, detail: err.Error()}
	}
	return &httpError{status: http.StatusInternalServerError, detail: err.Error()}
}

// codec is the body format of one call. Responses answer in the format of
// the request.
type codec struct {
	serializer serialize.Serializer
	compressor compress.Compressor
}

func (s *Server) readEnvelope(w http.ResponseWriter, r *http.Request) (message.Value, codec, error) {
	c := codec{serializer: jsonser.Serializer{}, compressor: compress.DoNothingCompressor{}}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return message.Value{}, c, &httpError{status: http.StatusUnsupportedMediaType, detail: err.Error()}
		}
		ser, ok := s.serializers[mt]
		if !ok {
			return message.Value{}, c, &httpError{status: http.StatusUnsupportedMediaType,
				detail: fmt.Sprintf("%v: %s", errs.ErrUnsupportedMediaType, mt)}
		}
		c.serializer = ser
	}
	encoding := strings.TrimSpace(r.Header.Get("Content-Encoding"))
	comp, ok := s.compressors[encoding]
	if !ok {
		return message.Value{}, c, &httpError{status: http.StatusUnsupportedMediaType,
			detail: fmt.Sprintf("%v: encoding %s", errs.ErrUnsupportedMediaType, encoding)}
	}
	c.compressor = comp

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return message.Value{}, c, &httpError{status: http.StatusRequestEntityTooLarge, detail: err.Error()}
		}
		return message.Value{}, c, &httpError{status: http.StatusBadRequest, detail: err.Error()}
	}
	if data, err = comp.Uncompress(data); err != nil {
		return message.Value{}, c, &httpError{status: http.StatusBadRequest, detail: "undecodable body encoding"}
	}
	var env message.Value
	if err = c.serializer.Decode(data, &env); err != nil {
		return message.Value{}, c, invalid("invalid request body: %v", err)
	}
	if env.Kind() != message.KindObject {
		return message.Value{}, c, invalid("request body must be an object")
	}
	return env, c, nil
}

func (rt *route) validate(input message.Value) error {
	data, err := input.MarshalJSON()
	if err != nil {
		return invalid("%v", err)
	}
	var instance any
	if err = json.Unmarshal(data, &instance); err != nil {
		return invalid("%v", err)
	}
	if err = rt.resolved.Validate(instance); err != nil {
		return invalid("Invalid input: %v", err)
	}
	return nil
}

func (s *Server) runContext(r *http.Request, config message.Value) (context.Context, string) {
	runID := uuid.NewString()
	ctx := context.WithValue(r.Context(), chainKey, r.PathValue("chain"))
	ctx = context.WithValue(ctx, configKey, config)
	ctx = context.WithValue(ctx, runIDKey, runID)
	return ctx, runID
}

func (s *Server) handleInvoke(rt *route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env, c, err := s.readEnvelope(w, r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		input, ok := env.Get("input")
		if !ok {
			s.writeError(w, invalid("missing input"))
			return
		}
		if err = rt.validate(input); err != nil {
			s.writeError(w, err)
			return
		}
		config, _ := env.Get("config")
		ctx, runID := s.runContext(r, config)
		out, err := rt.runnable.Invoke(ctx, input)
		if err != nil {
			log.Warningf("invoke /%s: %v", rt.path, err)
			s.writeError(w, runError(err))
			return
		}
		s.write(w, c, message.Object(
			message.F("output", out),
			message.F("metadata", message.Object(message.F("run_id", message.String(runID)))),
		))
	}
}

func (s *Server) handleBatch(rt *route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env, c, err := s.readEnvelope(w, r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		inputs, ok := env.Get("inputs")
		if !ok || inputs.Kind() != message.KindList {
			s.writeError(w, invalid("inputs must be a list"))
			return
		}
		items := inputs.Items()
		for i, item := range items {
			if err = rt.validate(item); err != nil {
				var he *httpError
				if errors.As(err, &he) {
					he.detail = fmt.Sprintf("inputs.%d: %s", i, he.detail)
				}
				s.writeError(w, err)
				return
			}
		}
		// config is either shared or one per input
		config, _ := env.Get("config")
		configs := make([]message.Value, len(items))
		for i := range configs {
			configs[i] = config
			if config.Kind() == message.KindList && config.Len() == len(items) {
				configs[i], _ = config.Index(i)
			}
		}

		results := make([]message.Value, len(items))
		runIDs := make([]message.Value, len(items))
		g, gctx := errgroup.WithContext(r.Context())
		if s.concurrency > 0 {
			g.SetLimit(s.concurrency)
		}
		for i, item := range items {
			g.Go(func() error {
				runID := uuid.NewString()
				ctx := context.WithValue(gctx, chainKey, r.PathValue("chain"))
				ctx = context.WithValue(ctx, configKey, configs[i])
				ctx = context.WithValue(ctx, runIDKey, runID)
				out, err := rt.runnable.Invoke(ctx, item)
				if err != nil {
					return err
				}
				results[i] = out
				runIDs[i] = message.String(runID)
				return nil
			})
		}
		if err = g.Wait(); err != nil {
			log.Warningf("batch /%s: %v", rt.path, err)
			s.writeError(w, runError(err))
			return
		}
		s.write(w, c, message.Object(
			message.F("output", message.List(results...)),
			message.F("metadata", message.Object(message.F("run_ids", message.List(runIDs...)))),
		))
	}
}

func (s *Server) handleStream(rt *route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env, _, err := s.readEnvelope(w, r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		input, ok := env.Get("input")
		if !ok {
			s.writeError(w, invalid("missing input"))
			return
		}
		if err = rt.validate(input); err != nil {
			s.writeError(w, err)
			return
		}
		ew, ok := newEventWriter(w)
		if !ok {
			s.writeError(w, &httpError{status: http.StatusInternalServerError, detail: "streaming unsupported"})
			return
		}
		config, _ := env.Get("config")
		ctx, runID := s.runContext(r, config)

		ew.start()
		if err = ew.event("metadata", message.Object(message.F("run_id", message.String(runID)))); err != nil {
			return
		}
		emit := func(fragment message.Value) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ew.event("data", fragment)
		}
		if streamer, ok := rt.runnable.(Streamer); ok {
			err = streamer.Stream(ctx, input, emit)
		} else {
			var out message.Value
			if out, err = rt.runnable.Invoke(ctx, input); err == nil {
				err = emit(out)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Debugf("stream /%s: caller went away", rt.path)
				return
			}
			log.Warningf("stream /%s: %v", rt.path, err)
			he := runError(err)
			_ = ew.event("error", message.Object(
				message.F("status_code", message.Int(int64(he.status))),
				message.F("message", message.String(he.detail)),
			))
			return
		}
		_ = ew.end()
	}
}

func (s *Server) handleSchema(schema *jsonschema.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := json.Marshal(schema)
		if err != nil {
			s.writeError(w, &httpError{status: http.StatusInternalServerError, detail: err.Error()})
			return
		}
		w.Header().Set("Content-Type", jsonser.ContentType)
		_, _ = w.Write(data)
	}
}

func (s *Server) write(w http.ResponseWriter, c codec, body message.Value) {
	data, err := c.serializer.Encode(body)
	if err != nil {
		s.writeError(w, &httpError{status: http.StatusInternalServerError, detail: err.Error()})
		return
	}
	if data, err = c.compressor.Compress(data); err != nil {
		s.writeError(w, &httpError{status: http.StatusInternalServerError, detail: err.Error()})
		return
	}
	w.Header().Set("Content-Type", c.serializer.ContentType())
	if name := c.compressor.Name(); name != "" && name != "identity" {
		w.Header().Set("Content-Encoding", name)
	}
	_, _ = w.Write(data)
}

// writeError answers in JSON whatever the request format was.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var he *httpError
	if !errors.As(err, &he) {
		he = runError(err)
	}
	data, _ := json.Marshal(map[string]string{"detail": he.detail})
	w.Header().Set("Content-Type", jsonser.ContentType)
	w.WriteHeader(he.status)
	_, _ = w.Write(data)
}
