package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"langrpc/internal/config"
	"langrpc/rpc"
	"langrpc/rpc/message"
)

func TestLeadSentences(t *testing.T) {
	testCases := []struct {
		name string
		text string
		n    int
		want string
	}{
		{name: "one", text: "Cats sleep. Dogs bark.", n: 1, want: "Cats sleep."},
		{name: "two", text: "Cats sleep! Dogs bark? Birds sing.", n: 2, want: "Cats sleep! Dogs bark?"},
		{name: "no stop", text: "no punctuation here", n: 1, want: "no punctuation here"},
		{name: "fewer", text: "Only one.", n: 3, want: "Only one."},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, leadSentences(tc.text, tc.n))
		})
	}
}

func TestSummarize(t *testing.T) {
	// the builders register on the default registry
	reg := prom.NewRegistry()
	prom.DefaultRegisterer = reg
	cfg := config.Default()
	cfg.Server = &config.Server{}
	svr, err := newServer(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(svr)
	defer srv.Close()

	input := message.Object(message.F("text", message.String("Go is a language. It compiles fast.")))
	for _, endpoint := range []string{"/summarize", "/summarize/c/N4XyA"} {
		c, err := rpc.NewClient(srv.URL + endpoint)
		require.NoError(t, err)
		out, err := c.Invoke(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, message.String("Go is a language."), out)

		s, err := c.Stream(context.Background(), input)
		require.NoError(t, err)
		var frags []message.Value
		for s.Next() {
			frags = append(frags, s.Fragment())
		}
		require.NoError(t, s.Err())
		assert.Equal(t, []message.Value{
			message.String("Go "), message.String("is "), message.String("a "), message.String("language."),
		}, frags)
	}
}

func TestNewServer_ServerConfig(t *testing.T) {
	testCases := []struct {
		name     string
		server   *config.Server
		wantCORS string
		wantH2C  bool
	}{
		{name: "plain", server: &config.Server{}},
		{name: "cors", server: &config.Server{CORS: true}, wantCORS: "*"},
		{name: "h2c", server: &config.Server{H2C: true}, wantH2C: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prom.DefaultRegisterer = prom.NewRegistry()
			cfg := config.Default()
			cfg.Server = tc.server
			svr, err := newServer(cfg)
			require.NoError(t, err)
			srv := httptest.NewServer(svr)
			defer srv.Close()

			req, err := http.NewRequest(http.MethodOptions, srv.URL+"/summarize/invoke", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tc.wantCORS, resp.Header.Get("Access-Control-Allow-Origin"))

			h2 := &http.Client{Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, network, addr)
				},
			}, Timeout: 2 * time.Second}
			resp, err = h2.Get(srv.URL + "/summarize/input_schema")
			if !tc.wantH2C {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, 2, resp.ProtoMajor)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}
