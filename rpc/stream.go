package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

// Stream is a lazy, finite, non-restartable sequence of output fragments.
// It is meant for a single consumer:
//
//	s, err := client.Stream(ctx, input)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		use(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
//
// The connection is released when the stream ends, fails or is closed.
// Fragments delivered before a failure remain valid.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	events *eventReader

	cur   message.Value
	runID string
	err   error
	done  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(ctx context.Context, cancel context.CancelFunc, resp *message.Response) *Stream {
	body := resp.Body
	if body == nil {
		body = io.NopCloser(bytes.NewReader(resp.Data))
	}
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		body:   body,
		events: newEventReader(body),
	}
}

// Next blocks until the next fragment arrives. It returns false when the
// stream ended normally or failed; Err tells the two apart.
func (s *Stream) Next() bool {
	if s.done.Load() {
		return false
	}
	for {
		ev, err := s.events.next()
		if err != nil {
			s.finish(s.readError(err))
			return false
		}
		switch ev.name {
		case "data", "message", "":
			var v message.Value
			if err = json.Unmarshal(ev.data, &v); err != nil {
				s.finish(&RemoteError{
					Kind:   KindExecution,
					Route:  message.RouteStream,
					Reason: errs.ErrMalformedFrame.Error(),
					cause:  err,
				})
				return false
			}
			s.cur = v
			return true
		case "metadata":
			var meta message.Value
			if json.Unmarshal(ev.data, &meta) == nil {
				if id, ok := meta.Get("run_id"); ok {
					s.runID, _ = id.AsString()
				}
			}
		case "error":
			s.finish(streamError(ev.data))
			return false
		case "end":
			s.finish(nil)
			return false
		default:
			log.Debugf("stream: skip event %q", ev.name)
		}
	}
}

// Fragment is the fragment read by the last successful Next.
func (s *Stream) Fragment() message.Value {
	return s.cur
}

// Err is the failure that ended the stream, nil after a normal end.
func (s *Stream) Err() error {
	return s.err
}

// RunID is the remote run id, once the metadata event has been read.
func (s *Stream) RunID() string {
	return s.runID
}

// Close abandons the stream and releases the connection. It is safe to
// call more than once, after the stream ended, and from another goroutine
// to unblock a pending Next.
func (s *Stream) Close() error {
	s.done.Store(true)
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
		s.cancel()
	})
	return s.closeErr
}

// Collect consumes the rest of the stream and concatenates the fragments.
// For a normal end this equals the result of Invoke on the same input.
func (s *Stream) Collect() (message.Value, error) {
	defer func() {
		_ = s.Close()
	}()
	res := message.Null()
	for s.Next() {
		merged, err := message.Concat(res, s.Fragment())
		if err != nil {
			return res, err
		}
		res = merged
	}
	return res, s.Err()
}

func (s *Stream) finish(err error) {
	s.err = err
	_ = s.Close()
}

// readError maps a read failure; a closed connection is a normal end,
// and so is any failure after the consumer abandoned the stream.
func (s *Stream) readError(err error) error {
	if s.done.Load() {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if ctxErr := s.ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return transportError(s.ctx, message.RouteStream, ctxErr)
		}
		return nil
	}
	if s.ctx.Err() != nil {
		return transportError(s.ctx, message.RouteStream, s.ctx.Err())
	}
	return transportError(s.ctx, message.RouteStream, err)
}
