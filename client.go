package langrpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/op/go-logging"

	"langrpc/internal/errs"
	"langrpc/loadbalance"
	"langrpc/loadbalance/roundrobin"
	"langrpc/registry"
	"langrpc/rpc"
)

var log = logging.MustGetLogger("langrpc")

var errInstanceStatus = errors.New("langrpc: instance answered with a server error")

// Client dials pipeline services found in a registry. The rpc.Client it
// returns has a fixed endpoint http://<service>/<path>; the instance is
// chosen per request by the picker.
type Client struct {
	registry registry.Registry
	timeout  time.Duration
	builder  loadbalance.PickerBuilder
	rpcOpts  []option.Option[rpc.Client]

	transport *registryTransport
}

func NewClient(opts ...option.Option[Client]) *Client {
	client := &Client{
		timeout: 3 * time.Second,
		builder: &roundrobin.PickerBuilder{},
		transport: &registryTransport{
			next:      http.DefaultTransport,
			resolvers: make(map[string]*resolver),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ClientWithRegistry -> option, timeout bounds each registry lookup
func ClientWithRegistry(r registry.Registry, timeout time.Duration) option.Option[Client] {
	return func(client *Client) {
		client.registry = r
		client.timeout = timeout
	}
}

// ClientWithPickerBuilder -> option, round robin by default
func ClientWithPickerBuilder(b loadbalance.PickerBuilder) option.Option[Client] {
	return func(client *Client) {
		client.builder = b
	}
}

// ClientWithTransport -> option, the transport the picked requests go through
func ClientWithTransport(rt http.RoundTripper) option.Option[Client] {
	return func(client *Client) {
		client.transport.next = rt
	}
}

// ClientWithRPCOptions -> option, applied to every dialed rpc.Client
func ClientWithRPCOptions(opts ...option.Option[rpc.Client]) option.Option[Client] {
	return func(client *Client) {
		client.rpcOpts = append(client.rpcOpts, opts...)
	}
}

// Dial returns a client for the pipeline served at path by service. The
// first Dial of a service lists its instances and starts watching them.
func (c *Client) Dial(ctx context.Context, service, path string, opts ...option.Option[rpc.Client]) (*rpc.Client, error) {
	if c.registry == nil {
		return nil, errs.ErrRegistryRequired
	}
	if err := c.ensureResolver(ctx, service); err != nil {
		return nil, err
	}
	rpcOpts := make([]option.Option[rpc.Client], 0, len(c.rpcOpts)+len(opts)+1)
	rpcOpts = append(rpcOpts, rpc.ClientWithHTTPClient(&http.Client{Transport: c.transport}))
	rpcOpts = append(rpcOpts, c.rpcOpts...)
	rpcOpts = append(rpcOpts, opts...)
	return rpc.NewClient("http://"+service+"/"+strings.Trim(path, "/"), rpcOpts...)
}

func (c *Client) ensureResolver(ctx context.Context, service string) error {
	if _, ok := c.transport.resolver(service); ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r := newResolver(service, c.registry, c.builder, c.timeout)
	if err := r.resolve(); err != nil {
		return err
	}
	if c.transport.add(r) != r {
		return nil
	}
	events, err := c.registry.Subscribe(service)
	if err != nil {
		log.Warningf("subscribe %s: %v", service, err)
		return nil
	}
	go r.watch(events)
	return nil
}

// Close stops watching the registry. The registry itself is owned by the
// caller.
func (c *Client) Close() error {
	c.transport.Close()
	return nil
}
