package langrpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"langrpc/loadbalance"
	"langrpc/registry"
)

// resolver keeps the picker of one service in sync with the registry.
type resolver struct {
	service  string
	registry registry.Registry
	builder  loadbalance.PickerBuilder
	timeout  time.Duration

	mutex  sync.RWMutex
	picker loadbalance.Picker

	close     chan struct{}
	closeOnce sync.Once
}

func newResolver(service string, r registry.Registry, b loadbalance.PickerBuilder, timeout time.Duration) *resolver {
	return &resolver{
		service:  service,
		registry: r,
		builder:  b,
		timeout:  timeout,
		close:    make(chan struct{}),
	}
}

// resolve re-lists the whole service instead of applying single events.
func (r *resolver) resolve() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	instances, err := r.registry.ListServices(ctx, r.service)
	cancel()
	if err != nil {
		return err
	}
	picker := r.builder.Build(instances)
	r.mutex.Lock()
	r.picker = picker
	r.mutex.Unlock()
	log.Debugf("resolved %s: %d instances", r.service, len(instances))
	return nil
}

func (r *resolver) watch(events <-chan registry.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			log.Debugf("%s: %s %s", r.service, event.Type, event.Instance.Address)
			if err := r.resolve(); err != nil {
				log.Warningf("resolve %s: %v", r.service, err)
			}
		case <-r.close:
			return
		}
	}
}

func (r *resolver) pick(ctx context.Context) (loadbalance.PickResult, error) {
	r.mutex.RLock()
	picker := r.picker
	r.mutex.RUnlock()
	if picker == nil {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstance
	}
	return picker.Pick(loadbalance.PickInfo{Ctx: ctx, Service: r.service})
}

func (r *resolver) Close() {
	r.closeOnce.Do(func() {
		close(r.close)
	})
}

// registryTransport sends each request to an instance of the service named
// by the URL host. Hosts with no resolver pass through unchanged.
type registryTransport struct {
	next http.RoundTripper

	mutex     sync.RWMutex
	resolvers map[string]*resolver
}

func (t *registryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mutex.RLock()
	r, ok := t.resolvers[req.URL.Host]
	t.mutex.RUnlock()
	if !ok {
		return t.next.RoundTrip(req)
	}
	res, err := r.pick(req.Context())
	if err != nil {
		return nil, err
	}
	// a RoundTripper must not modify the caller's request
	target := req.Clone(req.Context())
	target.URL.Host = res.Instance.Address
	target.Host = res.Instance.Address
	resp, err := t.next.RoundTrip(target)
	if res.Done != nil {
		doneErr := err
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			doneErr = errInstanceStatus
		}
		res.Done(loadbalance.DoneInfo{Err: doneErr})
	}
	return resp, err
}

func (t *registryTransport) resolver(service string) (*resolver, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	r, ok := t.resolvers[service]
	return r, ok
}

// add keeps the existing resolver when one was added concurrently.
func (t *registryTransport) add(r *resolver) *resolver {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if old, ok := t.resolvers[r.service]; ok {
		return old
	}
	t.resolvers[r.service] = r
	return r
}

func (t *registryTransport) Close() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, r := range t.resolvers {
		r.Close()
	}
	t.resolvers = make(map[string]*resolver)
}
