package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"langrpc/internal/config"
	ilogging "langrpc/internal/logging"
	"langrpc/observability/metrics/prometheus"
	"langrpc/observability/opentelemetry"
	"langrpc/ratelimit"
	"langrpc/server"
)

var log = logging.MustGetLogger("summarize")

const summarizePrompt = "Summarize the following text in one sentence.\n{text}"

func newServer(cfg *config.Config) (*server.Server, error) {
	metrics := &prometheus.ServerMiddlewareBuilder{
		Namespace: "langrpc",
		Subsystem: "example",
		Name:      "summarize",
		Help:      "summarize route host",
	}
	opts := []option.Option[server.Server]{
		server.ServerWithMiddlewares(
			opentelemetry.NewServerMiddlewareBuilder(0, nil, nil).Build(),
			metrics.Build(),
			(&ratelimit.RouteLimiter{
				Limiter: ratelimit.NewFixWindowLimiter(time.Second, 50),
				Route:   "batch",
			}).LimitHandler(),
		),
		server.ServerWithMaxConcurrency(cfg.Server.MaxConcurrency),
	}
	if cfg.Server.CORS {
		opts = append(opts, server.ServerWithCORS())
	}
	if cfg.Server.H2C {
		opts = append(opts, server.ServerWithH2C())
	}
	svr := server.NewServer("summarize", opts...)
	err := svr.AddRoutes("/summarize", server.Pipe(
		server.NewPromptTemplate(summarizePrompt),
		leadModel{sentences: 1},
		server.StrOutputParser{},
	))
	return svr, err
}

func main() {
	cfgPath := flag.String("config", "", "langrpc.yaml")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal(err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatal(err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.Server{Address: "localhost:8000", CORS: true}
	}
	if _, err := ilogging.Setup(os.Stderr, cfg.LogLevel, true); err != nil {
		log.Fatal(err)
	}

	svr, err := newServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		log.Info("metrics on localhost:8001/metrics")
		if err := http.ListenAndServe("localhost:8001", promhttp.Handler()); err != nil {
			log.Error(err)
		}
	}()
	if err := svr.Start(cfg.Server.Address); err != nil {
		log.Fatal(err)
	}
}
