package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_AuditString(t *testing.T) {
	trail := NewTrail()
	trail.AddReason("X", "classloading")
	trail.AddPlugin("X", "mixin", "B")
	trail.AddTransformer("X", "svcA", "default")
	trail.AddPluginCustom("X", "mixin", "applied", "2")

	assert.Equal(t, "re:classloading,pl:mixin:B,xf:svcA:default,pl:mixin:applied:2", trail.AuditString("X"))
	assert.Empty(t, trail.AuditString("Y"))
}

func TestTrail_ActivitiesForIsACopy(t *testing.T) {
	trail := NewTrail()
	trail.AddReason("X", "test")

	acts := trail.ActivitiesFor("X")
	require.Len(t, acts, 1)
	acts[0] = Activity{Type: Plugin}

	assert.Equal(t, Reason, trail.ActivitiesFor("X")[0].Type)
	assert.Nil(t, trail.ActivitiesFor("missing"))
}

func TestTrail_ConcurrentUnits(t *testing.T) {
	trail := NewTrail()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := fmt.Sprintf("unit%d", i%4)
			for j := 0; j < 50; j++ {
				trail.AddReason(unit, "r")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"unit0", "unit1", "unit2", "unit3"}, trail.Units())
	for _, u := range trail.Units() {
		assert.Len(t, trail.ActivitiesFor(u), 200)
	}

	trail.Clear()
	assert.Empty(t, trail.Units())
}

func TestParseActivityType(t *testing.T) {
	for _, typ := range []ActivityType{Plugin, Transformer, Reason} {
		got, ok := ParseActivityType(typ.Label())
		require.True(t, ok)
		assert.Equal(t, typ, got)
	}
	_, ok := ParseActivityType("zz")
	assert.False(t, ok)
}
