package leastactive

import (
	"math"
	"sync/atomic"

	"langrpc/loadbalance"
	"langrpc/registry"
)

const LeastActive = "LEAST_ACTIVE"

// Picker chooses the instance with the fewest calls in flight. Counts are
// read without a lock, so concurrent picks may tie.
type Picker struct {
	instances []*instance
	filter    loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var (
		leastActive int64 = math.MaxInt64
		res         *instance
	)
	for _, inst := range p.instances {
		if !p.filter(info, inst.ServiceInstance) {
			continue
		}
		active := atomic.LoadInt64(&inst.active)
		if active < leastActive {
			leastActive = active
			res = inst
		}
	}
	if res == nil {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstance
	}
	atomic.AddInt64(&res.active, 1)
	return loadbalance.PickResult{
		Instance: res.ServiceInstance,
		Done: func(info loadbalance.DoneInfo) {
			atomic.AddInt64(&res.active, -1)
		},
	}, nil
}

type PickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *PickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	res := make([]*instance, 0, len(instances))
	for _, inst := range instances {
		res = append(res, &instance{ServiceInstance: inst})
	}
	filter := b.Filter
	if filter == nil {
		filter = loadbalance.All
	}
	return &Picker{
		instances: res,
		filter:    filter,
	}
}

func (b *PickerBuilder) Name() string {
	return LeastActive
}

type instance struct {
	registry.ServiceInstance
	active int64
}
