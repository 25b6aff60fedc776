package random

import (
	"math/rand"

	"langrpc/loadbalance"
	"langrpc/registry"
)

const WeightRandom = "WEIGHT_RANDOM"

type WeightPicker struct {
	instances []registry.ServiceInstance
	filter    loadbalance.Filter
}

func (p *WeightPicker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var totalWeight int
	for _, inst := range p.instances {
		if !p.filter(info, inst) {
			continue
		}
		totalWeight += weightOf(inst)
	}
	if totalWeight == 0 {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstance
	}
	val := rand.Intn(totalWeight)
	for _, inst := range p.instances {
		if !p.filter(info, inst) {
			continue
		}
		val -= weightOf(inst)
		if val < 0 {
			return loadbalance.PickResult{Instance: inst}, nil
		}
	}
	// unreachable, val < totalWeight
	return loadbalance.PickResult{}, loadbalance.ErrNoInstance
}

// weightOf treats an unset weight as 1.
func weightOf(inst registry.ServiceInstance) int {
	if inst.Weight == 0 {
		return 1
	}
	return int(inst.Weight)
}

type WeightPickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *WeightPickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	filter := b.Filter
	if filter == nil {
		filter = loadbalance.All
	}
	return &WeightPicker{
		instances: append([]registry.ServiceInstance(nil), instances...),
		filter:    filter,
	}
}

func (b *WeightPickerBuilder) Name() string {
	return WeightRandom
}
