package rpc

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

// Endpoint names one served pipeline: scheme, host, port and path prefix.
// It is immutable once parsed.
type Endpoint struct {
	base    string
	host    string
	chainID string
}

// ParseEndpoint validates raw. The path is kept verbatim, including an
// optional compiled chain segment such as /summarize/c/N4XyA.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrapf(errs.ErrInvalidEndpoint, "%s: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, errors.Wrapf(errs.ErrInvalidEndpoint, "%s: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return Endpoint{}, errors.Wrapf(errs.ErrInvalidEndpoint, "%s: missing host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Endpoint{}, errors.Wrapf(errs.ErrInvalidEndpoint, "%s: query and fragment are not allowed", raw)
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	ep := Endpoint{
		base: u.Scheme + "://" + u.Host + path,
		host: u.Host,
	}
	segs := strings.Split(path, "/")
	if n := len(segs); n >= 2 && segs[n-2] == "c" && segs[n-1] != "" {
		ep.chainID = segs[n-1]
	}
	return ep, nil
}

func (e Endpoint) String() string {
	return e.base
}

func (e Endpoint) Host() string {
	return e.host
}

// ChainID is the compiled chain segment, or empty. It is opaque.
func (e Endpoint) ChainID() string {
	return e.chainID
}

// Route is the URL of one sub-route.
func (e Endpoint) Route(r message.Route) string {
	return e.base + "/" + string(r)
}
