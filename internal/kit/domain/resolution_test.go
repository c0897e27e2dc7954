package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestIndexResolve(t *testing.T) {
	const areaA, areaB = snowflake.ID(10), snowflake.ID(20)
	idx := NewIndex([]Kit{
		{ID: 3, Name: "A newer", AreaID: areaA, Active: true},
		{ID: 2, Name: "A older", AreaID: areaA, Active: true},
		{ID: 5, Name: "B retired", AreaID: areaB, Active: false},
	})
	ptr := func(id snowflake.ID) *snowflake.ID { return &id }

	tests := []struct {
		name       string
		ref        MembershipRef
		wantStatus ResolutionStatus
		wantSource ResolutionSource
		wantKit    snowflake.ID
	}{
		{name: "explicit wins over area", ref: MembershipRef{KitID: ptr(5), AreaID: areaA}, wantStatus: Resolved, wantSource: SourceExplicit, wantKit: 5},
		{name: "explicit unknown", ref: MembershipRef{KitID: ptr(99), AreaID: areaA}, wantStatus: Unresolved},
		{name: "zero explicit falls back to area", ref: MembershipRef{KitID: ptr(0), AreaID: areaA}, wantStatus: Resolved, wantSource: SourceArea, wantKit: 2},
		{name: "area lowest active id", ref: MembershipRef{AreaID: areaA}, wantStatus: Resolved, wantSource: SourceArea, wantKit: 2},
		{name: "area without active kit", ref: MembershipRef{AreaID: areaB}, wantStatus: Unresolved},
		{name: "unknown area", ref: MembershipRef{AreaID: 30}, wantStatus: Unresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.Resolve(tt.ref)
			assert.Equal(t, tt.wantStatus, got.Status)
			if tt.wantStatus == Unresolved {
				assert.False(t, got.IsResolved())
				assert.Nil(t, got.Kit)
				return
			}
			assert.True(t, got.IsResolved())
			assert.Equal(t, tt.wantSource, got.Source)
			assert.Equal(t, tt.wantKit, got.Kit.ID)
		})
	}
}

func TestEffectiveQuantity(t *testing.T) {
	assert.EqualValues(t, 1, KitLineView{Quantity: 0}.EffectiveQuantity())
	assert.EqualValues(t, 1, KitLineView{Quantity: -2}.EffectiveQuantity())
	assert.EqualValues(t, 4, KitLineView{Quantity: 4}.EffectiveQuantity())
}
