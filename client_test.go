package langrpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/internal/errs"
	"langrpc/loadbalance"
	"langrpc/registry"
	"langrpc/rpc"
	"langrpc/rpc/message"
)

// memRegistry is an in-memory registry.
type memRegistry struct {
	mutex     sync.Mutex
	instances map[string][]registry.ServiceInstance
	subs      map[string]chan registry.Event
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		instances: make(map[string][]registry.ServiceInstance),
		subs:      make(map[string]chan registry.Event),
	}
}

func (m *memRegistry) Register(ctx context.Context, inst registry.ServiceInstance) error {
	m.mutex.Lock()
	m.instances[inst.Name] = append(m.instances[inst.Name], inst)
	ch := m.subs[inst.Name]
	m.mutex.Unlock()
	if ch != nil {
		ch <- registry.Event{Type: registry.EventTypeAdd, Instance: inst}
	}
	return nil
}

func (m *memRegistry) UnRegister(ctx context.Context, inst registry.ServiceInstance) error {
	m.mutex.Lock()
	insts := m.instances[inst.Name]
	kept := make([]registry.ServiceInstance, 0, len(insts))
	for _, old := range insts {
		if old.Address != inst.Address {
			kept = append(kept, old)
		}
	}
	m.instances[inst.Name] = kept
	ch := m.subs[inst.Name]
	m.mutex.Unlock()
	if ch != nil {
		ch <- registry.Event{Type: registry.EventTypeDelete, Instance: inst}
	}
	return nil
}

func (m *memRegistry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]registry.ServiceInstance(nil), m.instances[serviceName]...), nil
}

func (m *memRegistry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ch := make(chan registry.Event, 8)
	m.subs[serviceName] = ch
	return ch, nil
}

func (m *memRegistry) Close() error {
	return nil
}

func pipelineHost(t *testing.T, hits *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/summarize/invoke", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"input":"x","config":{},"kwargs":{}}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":"X"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Dial(t *testing.T) {
	var hitsA, hitsB int32
	a := pipelineHost(t, &hitsA)
	b := pipelineHost(t, &hitsB)
	instA := registry.ServiceInstance{Name: "summarizer", Address: a.Listener.Addr().String()}
	instB := registry.ServiceInstance{Name: "summarizer", Address: b.Listener.Addr().String()}

	r := newMemRegistry()
	require.NoError(t, r.Register(context.Background(), instA))
	require.NoError(t, r.Register(context.Background(), instB))

	client := NewClient(ClientWithRegistry(r, time.Second))
	defer func() {
		_ = client.Close()
	}()
	c, err := client.Dial(context.Background(), "summarizer", "/summarize/")
	require.NoError(t, err)
	assert.Equal(t, "http://summarizer/summarize", c.Endpoint().String())

	for i := 0; i < 4; i++ {
		res, err := c.Invoke(context.Background(), message.String("x"))
		require.NoError(t, err)
		assert.Equal(t, message.String("X"), res)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hitsA))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hitsB))

	require.NoError(t, r.UnRegister(context.Background(), instA))
	assert.Eventually(t, func() bool {
		before := atomic.LoadInt32(&hitsA)
		for i := 0; i < 2; i++ {
			if _, err := c.Invoke(context.Background(), message.String("x")); err != nil {
				return false
			}
		}
		return atomic.LoadInt32(&hitsA) == before
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.UnRegister(context.Background(), instB))
	assert.Eventually(t, func() bool {
		_, err := c.Invoke(context.Background(), message.String("x"))
		return errors.Is(err, rpc.ErrRemoteUnreachable) && errors.Is(err, loadbalance.ErrNoInstance)
	}, time.Second, 10*time.Millisecond)
}

func TestClient_DialWithoutRegistry(t *testing.T) {
	_, err := NewClient().Dial(context.Background(), "summarizer", "summarize")
	assert.ErrorIs(t, err, errs.ErrRegistryRequired)
}
