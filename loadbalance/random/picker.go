package random

import (
	"math/rand"

	"langrpc/loadbalance"
	"langrpc/registry"
)

const Random = "RANDOM"

type Picker struct {
	instances []registry.ServiceInstance
	filter    loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
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
	return loadbalance.PickResult{Instance: candidates[rand.Intn(len(candidates))]}, nil
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
	return Random
}
