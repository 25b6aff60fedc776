package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/rpc/message"
)

func sse(w http.ResponseWriter, name, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func streamHandler(events ...[2]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			sse(w, ev[0], ev[1])
		}
	}
}

func collect(s *Stream) []message.Value {
	var res []message.Value
	for s.Next() {
		res = append(res, s.Fragment())
	}
	return res
}

func TestClient_Stream(t *testing.T) {
	testCases := []struct {
		name      string
		handler   http.HandlerFunc
		want      []message.Value
		wantRunID string
		wantErr   error
		reason    string
	}{
		{
			name: "fragments in order",
			handler: streamHandler(
				[2]string{"metadata", `{"run_id": "r-1"}`},
				[2]string{"data", `"HEL"`},
				[2]string{"data", `"LO"`},
				[2]string{"end", ""},
			),
			want:      []message.Value{message.String("HEL"), message.String("LO")},
			wantRunID: "r-1",
		},
		{
			name: "closed without end event",
			handler: streamHandler(
				[2]string{"data", `{"content": "a"}`},
			),
			want: []message.Value{message.Object(message.F("content", message.String("a")))},
		},
		{
			name: "error after partial fragments",
			handler: streamHandler(
				[2]string{"data", `"a"`},
				[2]string{"data", `"b"`},
				[2]string{"error", `{"status_code": 500, "message": "Internal Server Error"}`},
			),
			want:    []message.Value{message.String("a"), message.String("b")},
			wantErr: ErrRemoteExecution,
			reason:  "Internal Server Error",
		},
		{
			name: "validation error event",
			handler: streamHandler(
				[2]string{"error", `{"status_code": 422, "message": "missing text"}`},
			),
			wantErr: ErrRemoteValidation,
			reason:  "missing text",
		},
		{
			name: "malformed frame",
			handler: streamHandler(
				[2]string{"data", `"a"`},
				[2]string{"data", `{not json`},
			),
			want:    []message.Value{message.String("a")},
			wantErr: ErrRemoteExecution,
		},
		{
			name: "unknown events skipped",
			handler: streamHandler(
				[2]string{"ping", `{}`},
				[2]string{"data", `1`},
				[2]string{"end", ""},
			),
			want: []message.Value{message.Int(1)},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := remote(t, map[string]http.HandlerFunc{"POST /summarize/stream": tc.handler})
			c, err := NewClient(srv.URL + "/summarize")
			require.NoError(t, err)

			s, err := c.Stream(context.Background(), message.String("hello"))
			require.NoError(t, err)
			defer func() {
				_ = s.Close()
			}()
			assert.Equal(t, tc.want, collect(s))
			assert.Equal(t, tc.wantRunID, s.RunID())
			if tc.wantErr == nil {
				assert.NoError(t, s.Err())
				return
			}
			assert.ErrorIs(t, s.Err(), tc.wantErr)
			if tc.reason != "" {
				var re *RemoteError
				require.True(t, errors.As(s.Err(), &re))
				assert.Equal(t, tc.reason, re.Reason)
			}
			// the stream stays ended
			assert.False(t, s.Next())
		})
	}
}

func TestClient_StreamRejected(t *testing.T) {
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/stream": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, `{"detail": "Invalid input"}`)
		},
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)
	s, err := c.Stream(context.Background(), message.Int(1))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrRemoteValidation)
}

func TestStream_CollectEqualsInvoke(t *testing.T) {
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/invoke": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"output": {"summary": "a short text", "tokens": 3}}`)
		},
		"POST /summarize/stream": streamHandler(
			[2]string{"data", `{"summary": "a "}`},
			[2]string{"data", `{"summary": "short "}`},
			[2]string{"data", `{"summary": "text", "tokens": 3}`},
			[2]string{"end", ""},
		),
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	want, err := c.Invoke(context.Background(), message.String("x"))
	require.NoError(t, err)
	s, err := c.Stream(context.Background(), message.String("x"))
	require.NoError(t, err)
	got, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
}

func TestStream_CloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/stream": func(w http.ResponseWriter, r *http.Request) {
			defer close(released)
			w.Header().Set("Content-Type", "text/event-stream")
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for i := 0; ; i++ {
				select {
				case <-r.Context().Done():
					return
				case <-ticker.C:
					sse(w, "data", fmt.Sprintf(`"%d"`, i))
				}
			}
		},
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	s, err := c.Stream(context.Background(), message.String("x"))
	require.NoError(t, err)
	require.True(t, s.Next())
	assert.Equal(t, message.String("0"), s.Fragment())

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.Next())

	select {
	case <-released:
	case <-time.After(3 * time.Second):
		t.Fatal("remote still streaming after Close")
	}
}

func TestStream_CloseFromAnotherGoroutine(t *testing.T) {
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/stream": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			sse(w, "data", `"first"`)
			<-r.Context().Done()
		},
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	s, err := c.Stream(context.Background(), message.String("x"))
	require.NoError(t, err)
	require.True(t, s.Next())

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.Close()
	}()
	next := make(chan bool)
	go func() {
		next <- s.Next()
	}()
	select {
	case ok := <-next:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("Next still blocked after Close")
	}
	assert.NoError(t, s.Err())
	assert.False(t, s.Next())
}

func TestStream_TimeoutMidStream(t *testing.T) {
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/stream": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			sse(w, "data", `"first"`)
			<-r.Context().Done()
		},
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	s, err := c.Stream(context.Background(), message.String("x"), WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	assert.Equal(t, []message.Value{message.String("first")}, collect(s))
	assert.ErrorIs(t, s.Err(), ErrTimeout)
}

func TestStream_CallerCancel(t *testing.T) {
	srv := remote(t, map[string]http.HandlerFunc{
		"POST /summarize/stream": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			sse(w, "data", `"first"`)
			<-r.Context().Done()
		},
	})
	c, err := NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Stream(ctx, message.String("x"))
	require.NoError(t, err)
	require.True(t, s.Next())
	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.NotErrorIs(t, s.Err(), ErrTimeout)
}
