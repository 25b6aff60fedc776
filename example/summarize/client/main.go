package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/op/go-logging"

	ilogging "langrpc/internal/logging"
	"langrpc/observability/opentelemetry"
	"langrpc/rpc"
	"langrpc/rpc/compress/gzip"
)

var log = logging.MustGetLogger("summarize")

type SummarizeInput struct {
	Text string `json:"text"`
}

// SummarizeService is bound to the compiled chain by InitClientProxy.
type SummarizeService struct {
	Invoke func(ctx context.Context, in SummarizeInput) (string, error)
	Batch  func(ctx context.Context, in []SummarizeInput) ([]string, error)
	Stream func(ctx context.Context, in SummarizeInput) (*rpc.Stream, error)
}

func (s *SummarizeService) Name() string {
	return "summarize/c/N4XyA"
}

const text = `The Go gopher was designed by Renee French. It first appeared in 2009. ` +
	`It has since become the mascot of the language.`

func main() {
	if _, err := ilogging.Setup(os.Stderr, os.Getenv("LANGRPC_LOG_LEVEL"), true); err != nil {
		log.Fatal(err)
	}
	svc := &SummarizeService{}
	_, err := rpc.InitClientProxy("http://localhost:8000", svc,
		rpc.ClientWithTimeout(10*time.Second),
		rpc.ClientWithCompressor(gzip.Compressor{}),
		rpc.ClientWithInputValidation(),
		rpc.ClientWithMiddlewares(opentelemetry.NewClientMiddlewareBuilder(0, nil, nil).Build()),
	)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	summary, err := svc.Invoke(ctx, SummarizeInput{Text: text})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("invoke:", summary)

	summaries, err := svc.Batch(ctx, []SummarizeInput{{Text: "First. Second."}, {Text: text}})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("batch:", summaries)

	s, err := svc.Stream(ctx, SummarizeInput{Text: text})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = s.Close()
	}()
	fmt.Print("stream: ")
	for s.Next() {
		frag, _ := s.Fragment().AsString()
		fmt.Print(frag)
	}
	fmt.Println()
	if err = s.Err(); err != nil {
		log.Fatal(err)
	}
}
