package loadbalance

import (
	"context"

	"langrpc/internal/errs"
	"langrpc/registry"
)

var ErrNoInstance = errs.ErrNoInstance

// PickInfo describes the call an instance is picked for.
type PickInfo struct {
	Ctx context.Context
	// Service is the registry name of the pipeline service
	Service string
}

type DoneInfo struct {
	Err error
}

type PickResult struct {
	Instance registry.ServiceInstance
	// Done reports the outcome of the call, may be nil
	Done func(info DoneInfo)
}

type Picker interface {
	Pick(info PickInfo) (PickResult, error)
}

// PickerBuilder builds a Picker each time the instance list changes.
type PickerBuilder interface {
	Build(instances []registry.ServiceInstance) Picker
	Name() string
}

type Filter func(info PickInfo, inst registry.ServiceInstance) bool

func All(info PickInfo, inst registry.ServiceInstance) bool {
	return true
}

type groupKey struct{}

// WithGroup restricts the call to instances of group.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey{}, group)
}

// GroupFilter keeps the instances of the group set by WithGroup, or all
// instances when no group is set.
func GroupFilter(info PickInfo, inst registry.ServiceInstance) bool {
	if info.Ctx == nil {
		return true
	}
	group, ok := info.Ctx.Value(groupKey{}).(string)
	if !ok {
		return true
	}
	return group == inst.Group
}

type GroupFilterBuilder struct{}

func (g GroupFilterBuilder) Build() Filter {
	return GroupFilter
}
