package roundrobin

import (
	"sync"

	"langrpc/loadbalance"
	"langrpc/registry"
)

const RoundRobin = "ROUND_ROBIN"

type Picker struct {
	cnt       uint64
	instances []registry.ServiceInstance
	mutex     sync.Mutex
	filter    loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	// a lock rather than an atomic counter keeps the polling strict
	p.mutex.Lock()
	defer p.mutex.Unlock()
	candidates := make([]registry.ServiceInstance, 0, len(p.instances))
	for _, inst := range p.instances {
		if !p.filter(info, inst) {
			continue
		}
		candidates = append(candidates, inst)
	}
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstance
	}
	index := p.cnt % uint64(len(candidates))
	p.cnt++
	return loadbalance.PickResult{Instance: candidates[index]}, nil
}

type PickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *PickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	filter := b.Filter
	if filter == nil {
		filter = loadbalance.All
	}
	return &Picker{
		instances: append([]registry.ServiceInstance(nil), instances...),
		filter:    filter,
	}
}

func (b *PickerBuilder) Name() string {
	return RoundRobin
}
