package roundrobin

import (
	"math"
	"sync"
	"sync/atomic"

	"langrpc/loadbalance"
	"langrpc/registry"
)

const WeightRoundRobin = "WEIGHT_ROUND_ROBIN"

// WeightPicker is the smooth weighted round robin.
type WeightPicker struct {
	instances []*weightInstance
	mutex     sync.Mutex
	filter    loadbalance.Filter
}

func (p *WeightPicker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var (
		totalWeight int64
		chosen      *weightInstance
	)
	p.mutex.Lock()
	for _, node := range p.instances {
		if !p.filter(info, node.ServiceInstance) {
			continue
		}
		efficient := int64(atomic.LoadUint32(&node.efficientWeight))
		totalWeight += efficient
		node.currentWeight += efficient
		if chosen == nil || chosen.currentWeight < node.currentWeight {
			chosen = node
		}
	}
	if chosen == nil {
		p.mutex.Unlock()
		return loadbalance.PickResult{}, loadbalance.ErrNoInstance
	}
	chosen.currentWeight -= totalWeight
	p.mutex.Unlock()
	return loadbalance.PickResult{
		Instance: chosen.ServiceInstance,
		Done: func(info loadbalance.DoneInfo) {
			// success raises the efficient weight, failure lowers it, both
			// bounded so a failing node never wraps to the largest weight
			for {
				weight := atomic.LoadUint32(&chosen.efficientWeight)
				if info.Err != nil && weight <= 1 {
					return
				}
				if info.Err == nil && (weight >= chosen.maxWeight || weight == math.MaxUint32) {
					return
				}
				newWeight := weight + 1
				if info.Err != nil {
					newWeight = weight - 1
				}
				if atomic.CompareAndSwapUint32(&chosen.efficientWeight, weight, newWeight) {
					return
				}
			}
		},
	}, nil
}

type WeightPickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *WeightPickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	nodes := make([]*weightInstance, 0, len(instances))
	for _, inst := range instances {
		weight := inst.Weight
		if weight == 0 {
			weight = 1
		}
		nodes = append(nodes, &weightInstance{
			ServiceInstance: inst,
			maxWeight:       weight,
			efficientWeight: weight,
		})
	}
	filter := b.Filter
	if filter == nil {
		filter = loadbalance.All
	}
	return &WeightPicker{
		instances: nodes,
		filter:    filter,
	}
}

func (b *WeightPickerBuilder) Name() string {
	return WeightRoundRobin
}

type weightInstance struct {
	registry.ServiceInstance
	// the configured weight
	maxWeight       uint32
	efficientWeight uint32
	currentWeight   int64
}
