//go:build e2e

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/ratelimit"
	"langrpc/rpc"
	"langrpc/rpc/message"
	"langrpc/server"
)

func TestRedisSlideWindowLimiter_LimitHandler(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	require.NoError(t, rdb.Del(context.Background(), "summarize-e2e").Err())

	limiter := ratelimit.NewRedisSlideWindowLimiter(rdb, "summarize-e2e", 1, time.Second*3)
	svr := server.NewServer("summarize", server.ServerWithMiddlewares(limiter.LimitHandler()))
	require.NoError(t, svr.AddRoutes("/summarize", server.StrOutputParser{}))
	srv := httptest.NewServer(svr)
	defer srv.Close()

	c, err := rpc.NewClient(srv.URL + "/summarize")
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), message.String("hello"))
	require.NoError(t, err)
	assert.Equal(t, message.String("hello"), out)

	_, err = c.Invoke(context.Background(), message.String("hello"))
	var re *rpc.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.StatusCode)

	// a fresh window
	time.Sleep(time.Second * 3)
	_, err = c.Invoke(context.Background(), message.String("hello"))
	require.NoError(t, err)
}
