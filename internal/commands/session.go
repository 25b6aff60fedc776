package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/spf13/cobra"

	"langrpc/internal/config"
	"langrpc/internal/logging"
	"langrpc/ratelimit"
	"langrpc/rpc"
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

var serializers = map[string]serialize.Serializer{
	"":      json.Serializer{},
	"json":  json.Serializer{},
	"proto": proto.Serializer{},
}

var compressors = map[string]compress.Compressor{
	"":        compress.DoNothingCompressor{},
	"gzip":    gzip.Compressor{},
	"deflate": zlib.Compressor{},
	"snappy":  snappy.Compressor{},
	"lz4":     lz4.Compressor{},
	"zstd":    zstd.Compressor{},
}

// Session is what every pipeline command works with.
type Session struct {
	Config  *config.Config
	Client  *rpc.Client
	limiter *ratelimit.TokenBucketLimiter
}

type sessionKey struct{}

// RequireFromCommand extracts the Session loaded by the root command.
func RequireFromCommand(cmd *cobra.Command) (*Session, error) {
	s, ok := cmd.Context().Value(sessionKey{}).(*Session)
	if !ok {
		return nil, errors.New("session not loaded")
	}
	return s, nil
}

type globalOptions struct {
	configPath string
	endpoint   string
	timeout    string
	logLevel   string
}

// loadSession resolves the configuration: file, then environment, then
// flags. It stores the Session in the command's context.
func (o *globalOptions) loadSession(cmd *cobra.Command, getenv func(string) string) error {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return err
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.timeout != "" {
		d, err := config.ParseTimeout(o.timeout)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel, false); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, sessionKey{}, s))
	return nil
}

func newSession(cfg *config.Config) (*Session, error) {
	ser, ok := serializers[cfg.Serializer]
	if !ok {
		return nil, fmt.Errorf("unknown serializer %q", cfg.Serializer)
	}
	comp, ok := compressors[cfg.Compressor]
	if !ok {
		return nil, fmt.Errorf("unknown compressor %q", cfg.Compressor)
	}
	opts := []option.Option[rpc.Client]{
		rpc.ClientWithTimeout(cfg.Timeout),
		rpc.ClientWithSerializer(ser),
		rpc.ClientWithCompressor(comp),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, rpc.ClientWithHeader(k, v))
	}
	if cfg.ValidateInput {
		opts = append(opts, rpc.ClientWithInputValidation())
	}
	s := &Session{Config: cfg}
	if cfg.RateLimit != nil {
		s.limiter = ratelimit.NewTokenBucketLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Interval)
		opts = append(opts, rpc.ClientWithMiddlewares(s.limiter.LimitProxy()))
	}
	c, err := rpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Client = c
	return s, nil
}

func (s *Session) Close() {
	if s.limiter != nil {
		_ = s.limiter.Close()
	}
}
