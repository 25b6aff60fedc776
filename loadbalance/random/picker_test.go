package random

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/loadbalance"
	"langrpc/registry"
)

func TestPicker_Pick(t *testing.T) {
	testCases := []struct {
		name      string
		builder   loadbalance.PickerBuilder
		instances []registry.ServiceInstance
		ctx       context.Context
		wantAddrs []string
		wantErr   error
	}{
		{
			name:    "random",
			builder: &PickerBuilder{},
			instances: []registry.ServiceInstance{
				{Address: "a:8000"}, {Address: "b:8000"},
			},
			ctx:       context.Background(),
			wantAddrs: []string{"a:8000", "b:8000"},
		},
		{
			name:    "random group",
			builder: &PickerBuilder{Filter: loadbalance.GroupFilter},
			instances: []registry.ServiceInstance{
				{Address: "a:8000", Group: "A"}, {Address: "b:8000", Group: "B"},
			},
			ctx:       loadbalance.WithGroup(context.Background(), "B"),
			wantAddrs: []string{"b:8000"},
		},
		{
			name:    "weight random skips zero",
			builder: &WeightPickerBuilder{Filter: loadbalance.GroupFilter},
			instances: []registry.ServiceInstance{
				{Address: "a:8000", Weight: 10, Group: "A"}, {Address: "b:8000", Weight: 1, Group: "B"},
			},
			ctx:       loadbalance.WithGroup(context.Background(), "A"),
			wantAddrs: []string{"a:8000"},
		},
		{
			name:    "empty",
			builder: &PickerBuilder{},
			ctx:     context.Background(),
			wantErr: loadbalance.ErrNoInstance,
		},
		{
			name:    "weight empty",
			builder: &WeightPickerBuilder{},
			ctx:     context.Background(),
			wantErr: loadbalance.ErrNoInstance,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.builder.Build(tc.instances)
			for i := 0; i < 20; i++ {
				res, err := p.Pick(loadbalance.PickInfo{Ctx: tc.ctx})
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Contains(t, tc.wantAddrs, res.Instance.Address)
			}
		})
	}
}
