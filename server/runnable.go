package server

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

// ErrInvalidInput marks a rejected input. Routes answer it with 422.
var ErrInvalidInput = errs.ErrInvalidInput

// Runnable is one served pipeline.
type Runnable interface {
	Invoke(ctx context.Context, input message.Value) (message.Value, error)
}

// Streamer is implemented by runnables producing their output in
// fragments. Concatenating the fragments gives the Invoke result.
type Streamer interface {
	Stream(ctx context.Context, input message.Value, emit func(message.Value) error) error
}

// InputSchemaer is implemented by runnables that know their input shape.
type InputSchemaer interface {
	InputSchema() *jsonschema.Schema
}

type RunnableFunc func(ctx context.Context, input message.Value) (message.Value, error)

func (f RunnableFunc) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	return f(ctx, input)
}

// Pipe chains stages, each one fed with the output of the previous one.
//
// Streaming goes through the last stage implementing Streamer; the stages
// after it transform each fragment.
func Pipe(stages ...Runnable) Runnable {
	return &sequence{stages: stages}
}

type sequence struct {
	stages []Runnable
}

func (s *sequence) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	cur := input
	for _, stage := range s.stages {
		out, err := stage.Invoke(ctx, cur)
		if err != nil {
			return message.Value{}, err
		}
		cur = out
	}
	return cur, nil
}

func (s *sequence) Stream(ctx context.Context, input message.Value, emit func(message.Value) error) error {
	idx := -1
	for i := len(s.stages) - 1; i >= 0; i-- {
		if _, ok := s.stages[i].(Streamer); ok {
			idx = i
			break
		}
	}
	if idx < 0 {
		out, err := s.Invoke(ctx, input)
		if err != nil {
			return err
		}
		return emit(out)
	}
	cur := input
	for _, stage := range s.stages[:idx] {
		out, err := stage.Invoke(ctx, cur)
		if err != nil {
			return err
		}
		cur = out
	}
	rest := s.stages[idx+1:]
	return s.stages[idx].(Streamer).Stream(ctx, cur, func(fragment message.Value) error {
		for _, stage := range rest {
			out, err := stage.Invoke(ctx, fragment)
			if err != nil {
				return err
			}
			fragment = out
		}
		return emit(fragment)
	})
}

func (s *sequence) InputSchema() *jsonschema.Schema {
	if len(s.stages) == 0 {
		return nil
	}
	if is, ok := s.stages[0].(InputSchemaer); ok {
		return is.InputSchema()
	}
	return nil
}
