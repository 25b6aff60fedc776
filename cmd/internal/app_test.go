package internal

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/rpc"
	"langrpc/server"
)

func TestRun(t *testing.T) {
	svr := server.NewServer("summarize")
	require.NoError(t, svr.AddRoutes("/summarize", server.StrOutputParser{}))
	srv := httptest.NewServer(svr)
	defer srv.Close()

	getenv := func(k string) string {
		if k == "LANGRPC_ENDPOINT" {
			return srv.URL + "/summarize"
		}
		return ""
	}
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), []string{"invoke", `"hello"`}, getenv, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "\"hello\"\n", stdout.String())

	stdout.Reset()
	err = Run(context.Background(), []string{"invoke", "--endpoint", "ftp://nowhere", "x"}, getenv, &stdout, &stderr)
	assert.EqualError(t, err, `config: invalid endpoint "ftp://nowhere"`)
	assert.Empty(t, stdout.String())
}

func TestDescribe(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() {
		color.NoColor = noColor
	}()
	assert.Equal(t, "error: boom", Describe(errors.New("boom")))
	assert.Equal(t, "remote validation error: rpc: remote validation error",
		Describe(rpc.ErrRemoteValidation))
}
