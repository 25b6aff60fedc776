// Package broadcast sends one invoke to every instance of a service.
package broadcast

import (
	"context"
	"net/url"
	"sync"

	"langrpc/internal/errs"
	"langrpc/registry"
	"langrpc/rpc"
	"langrpc/rpc/message"
)

type ClusterBuilder struct {
	service  string
	registry registry.Registry
}

func NewClusterBuilder(r registry.Registry, service string) *ClusterBuilder {
	return &ClusterBuilder{
		registry: r,
		service:  service,
	}
}

// Build returns a client middleware. Invoke calls made with a context from
// UsingBroadCast go to every registered instance; the call itself answers
// with the first successful response. Other calls pass through.
func (b *ClusterBuilder) Build() rpc.Middleware {
	return func(next rpc.Proxy) rpc.Proxy {
		return rpc.ProxyFunc(func(ctx context.Context, req *message.Request) (*message.Response, error) {
			results, ok := isBroadCast(ctx)
			if !ok || req.Route != message.RouteInvoke {
				return next.Call(ctx, req)
			}
			instances, err := b.registry.ListServices(ctx, b.service)
			if err != nil {
				return nil, err
			}
			if len(instances) == 0 {
				return nil, errs.ErrNoInstance
			}
			resps := make([]Resp, len(instances))
			var wg sync.WaitGroup
			wg.Add(len(instances))
			for i, ins := range instances {
				go func() {
					defer wg.Done()
					resps[i] = Resp{Instance: ins}
					target, er := retarget(req, ins.Address)
					if er != nil {
						resps[i].Err = er
						return
					}
					resps[i].Response, resps[i].Err = next.Call(ctx, target)
				}()
			}
			wg.Wait()
			results.add(resps)
			for _, resp := range resps {
				if resp.Err == nil && resp.Response.OK() {
					return resp.Response, nil
				}
			}
			return resps[0].Response, resps[0].Err
		})
	}
}

// retarget copies req for the instance at address. Meta is copied too since
// the instances are called concurrently.
func retarget(req *message.Request, address string) (*message.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	u.Host = address
	res := *req
	res.URL = u.String()
	res.Meta = make(map[string]string, len(req.Meta))
	for k, v := range req.Meta {
		res.Meta[k] = v
	}
	return &res, nil
}

// Resp is the answer of one instance. Decode it with rpc.Client.Output.
type Resp struct {
	Instance registry.ServiceInstance
	Response *message.Response
	Err      error
}

// Results collects the answers of broadcast calls, in registry order.
type Results struct {
	mutex sync.Mutex
	resps []Resp
}

func (r *Results) add(resps []Resp) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resps = append(r.resps, resps...)
}

func (r *Results) All() []Resp {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	res := make([]Resp, len(r.resps))
	copy(res, r.resps)
	return res
}

type key struct{}

func UsingBroadCast(ctx context.Context) (context.Context, *Results) {
	res := &Results{}
	return context.WithValue(ctx, key{}, res), res
}

func isBroadCast(ctx context.Context) (*Results, bool) {
	res, ok := ctx.Value(key{}).(*Results)
	return res, ok
}
