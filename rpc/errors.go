package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"langrpc/rpc/message"
)

// Kind classifies a failed call.
type Kind uint8

const (
	// KindUnreachable means no response was obtained
	KindUnreachable Kind = iota + 1
	// KindValidation means the request shape was rejected before execution
	KindValidation
	// KindExecution means the remote pipeline failed, possibly mid-stream
	KindExecution
	// KindTimeout means the caller's deadline passed
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "remote unreachable"
	case KindValidation:
		return "remote validation error"
	case KindExecution:
		return "remote execution error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A sentinel matches any *RemoteError of its kind.
var (
	ErrRemoteUnreachable = &RemoteError{Kind: KindUnreachable}
	ErrRemoteValidation  = &RemoteError{Kind: KindValidation}
	ErrRemoteExecution   = &RemoteError{Kind: KindExecution}
	ErrTimeout           = &RemoteError{Kind: KindTimeout}
)

// RemoteError is a failed call. Reason is what the remote service
// reported, unmodified.
type RemoteError struct {
	Kind       Kind
	Route      message.Route
	StatusCode int
	Reason     string
	cause      error
}

func (e *RemoteError) Error() string {
	var sb strings.Builder
	sb.WriteString("rpc: ")
	sb.WriteString(e.Kind.String())
	if e.Route != "" {
		sb.WriteString(" on ")
		sb.WriteString(string(e.Route))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

// Is matches a *RemoteError target of the same kind, or of any kind when
// the target kind is zero.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return t.Kind == 0 || t.Kind == e.Kind
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

// transportError classifies a failure to obtain any response.
func transportError(ctx context.Context, route message.Route, err error) error {
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// the caller gave up, nothing remote to report
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &RemoteError{Kind: KindTimeout, Route: route, Reason: err.Error(), cause: err}
	}
	return &RemoteError{Kind: KindUnreachable, Route: route, Reason: err.Error(), cause: err}
}

// callError classifies what a proxy chain returned. Middlewares that give
// up on the deadline return the bare context error.
func callError(ctx context.Context, route message.Route, err error) error {
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return transportError(ctx, route, err)
	}
	return err
}

// statusError classifies a non-2xx response.
func statusError(route message.Route, status int, body []byte) *RemoteError {
	kind := KindExecution
	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		kind = KindValidation
	}
	return &RemoteError{
		Kind:       kind,
		Route:      route,
		StatusCode: status,
		Reason:     remoteReason(status, body),
	}
}

// streamError classifies an error event received mid-stream.
func streamError(data []byte) *RemoteError {
	var payload message.Value
	if err := json.Unmarshal(data, &payload); err != nil {
		return &RemoteError{Kind: KindExecution, Route: message.RouteStream, Reason: string(data)}
	}
	status := 0
	if code, ok := payload.Get("status_code"); ok {
		if n, err := code.Int64(); err == nil {
			status = int(n)
		}
	}
	res := statusError(message.RouteStream, status, data)
	if status == 0 {
		res.Kind = KindExecution
	}
	return res
}

// remoteReason extracts detail or message from a JSON error body, falling
// back to the raw body.
func remoteReason(status int, body []byte) string {
	var payload message.Value
	if err := json.Unmarshal(body, &payload); err == nil && payload.Kind() == message.KindObject {
		for _, key := range []string{"detail", "message"} {
			v, ok := payload.Get(key)
			if !ok {
				continue
			}
			if s, ok := v.AsString(); ok {
				return s
			}
			return v.String()
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
