package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gotomicro/ekit/bean/option"
	"github.com/op/go-logging"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"langrpc/registry"
)

var log = logging.MustGetLogger("registry")

var _ registry.Registry = (*Registry)(nil)

var typesMap = map[mvccpb.Event_EventType]registry.EventType{
	mvccpb.PUT:    registry.EventTypeAdd,
	mvccpb.DELETE: registry.EventTypeDelete,
}

type Registry struct {
	client *clientv3.Client
	sess   *concurrency.Session
	prefix string
	ttl    int

	mutex       sync.Mutex
	watchCancel []func()
	closed      bool
}

// RegistryWithPrefix -> option, the key prefix, "/langrpc" by default
func RegistryWithPrefix(prefix string) option.Option[Registry] {
	return func(r *Registry) {
		r.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// RegistryWithTTL -> option, lease ttl in seconds
func RegistryWithTTL(ttl int) option.Option[Registry] {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// NewRegistry keeps instances alive with one lease session. The client is
// owned by the caller and is not closed by Close.
func NewRegistry(c *clientv3.Client, opts ...option.Option[Registry]) (*Registry, error) {
	r := &Registry{
		client: c,
		prefix: "/langrpc",
		ttl:    60,
	}
	for _, opt := range opts {
		opt(r)
	}
	sess, err := concurrency.NewSession(c, concurrency.WithTTL(r.ttl))
	if err != nil {
		return nil, err
	}
	r.sess = sess
	return r, nil
}

func (r *Registry) Register(ctx context.Context, inst registry.ServiceInstance) error {
	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, r.instanceKey(inst), string(val), clientv3.WithLease(r.sess.Lease()))
	if err == nil {
		log.Infof("registered %s at %s", inst.Name, inst.Address)
	}
	return err
}

func (r *Registry) UnRegister(ctx context.Context, inst registry.ServiceInstance) error {
	_, err := r.client.Delete(ctx, r.instanceKey(inst))
	return err
}

func (r *Registry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	res := make([]registry.ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var si registry.ServiceInstance
		if err = json.Unmarshal(kv.Value, &si); err != nil {
			return nil, err
		}
		res = append(res, si)
	}
	return res, nil
}

func (r *Registry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		cancel()
		return nil, fmt.Errorf("registry: closed")
	}
	r.watchCancel = append(r.watchCancel, cancel)
	r.mutex.Unlock()

	ctx = clientv3.WithRequireLeader(ctx)
	watchCh := r.client.Watch(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	res := make(chan registry.Event)
	go func() {
		defer close(res)
		for {
			select {
			case resp, ok := <-watchCh:
				if !ok || resp.Canceled {
					return
				}
				if err := resp.Err(); err != nil {
					log.Warningf("watch %s: %v", serviceName, err)
					continue
				}
				for _, ev := range resp.Events {
					event, ok := r.toEvent(ev)
					if !ok {
						continue
					}
					select {
					case res <- event:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return res, nil
}

// toEvent decodes a watch event. A delete carries no value, so the
// instance is rebuilt from the key.
func (r *Registry) toEvent(ev *clientv3.Event) (registry.Event, bool) {
	typ := typesMap[ev.Type]
	var inst registry.ServiceInstance
	if ev.Type == mvccpb.DELETE || len(ev.Kv.Value) == 0 {
		name, addr, ok := r.parseKey(string(ev.Kv.Key))
		if !ok {
			return registry.Event{}, false
		}
		inst = registry.ServiceInstance{Name: name, Address: addr}
		return registry.Event{Type: typ, Instance: inst}, true
	}
	if err := json.Unmarshal(ev.Kv.Value, &inst); err != nil {
		log.Warningf("skip undecodable instance %s: %v", ev.Kv.Key, err)
		return registry.Event{}, false
	}
	return registry.Event{Type: typ, Instance: inst}, true
}

func (r *Registry) Close() error {
	r.mutex.Lock()
	r.closed = true
	for _, cancel := range r.watchCancel {
		cancel()
	}
	r.watchCancel = nil
	r.mutex.Unlock()
	if r.sess == nil {
		return nil
	}
	return r.sess.Close()
}

func (r *Registry) instanceKey(inst registry.ServiceInstance) string {
	return fmt.Sprintf("%s/%s/%s", r.prefix, inst.Name, inst.Address)
}

func (r *Registry) serviceKey(serviceName string) string {
	return fmt.Sprintf("%s/%s/", r.prefix, serviceName)
}

func (r *Registry) parseKey(key string) (name, addr string, ok bool) {
	rest, found := strings.CutPrefix(key, r.prefix+"/")
	if !found {
		return "", "", false
	}
	return strings.Cut(rest, "/")
}
