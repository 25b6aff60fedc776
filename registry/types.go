package registry

import (
	"context"
	"io"
)

// Registry tracks the route hosts serving a pipeline service.
type Registry interface {
	Register(ctx context.Context, inst ServiceInstance) error
	UnRegister(ctx context.Context, inst ServiceInstance) error
	ListServices(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Subscribe emits the changes of serviceName until the registry is
	// closed, then closes the channel.
	Subscribe(serviceName string) (<-chan Event, error)
	io.Closer
}

type ServiceInstance struct {
	Name string `json:"name"`
	// Address is host:port of the route host
	Address string `json:"address"`
	Weight  uint32 `json:"weight"`
	Group   string `json:"group"`
}

type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypeAdd
	EventTypeDelete
)

func (t EventType) String() string {
	switch t {
	case EventTypeAdd:
		return "add"
	case EventTypeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type Event struct {
	Type     EventType
	Instance ServiceInstance
}
