package ir

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	shape := map[string]any{"type": "Customer", "joins": []any{"contacts"}}

	first := MustHash(DomainPlan, shape)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, MustHash(DomainPlan, shape))
	}
	assert.Len(t, first, 64)
}

func TestHash_ConcurrentCallsAgree(t *testing.T) {
	shape := map[string]any{"type": "Order", "where": "{status} = ?"}
	want := MustHash(DomainPlan, shape)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MustHash(DomainPlan, shape)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestHash_DomainSeparation(t *testing.T) {
	a, err := Hash(DomainPlan, "x")
	require.NoError(t, err)
	b, err := Hash("other/v1", "x")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHash_DifferentShapes(t *testing.T) {
	a := MustHash(DomainPlan, map[string]any{"where": "{a} = ?"})
	b := MustHash(DomainPlan, map[string]any{"where": "{b} = ?"})
	assert.NotEqual(t, a, b)
}

func TestHash_ErrorOnFloat(t *testing.T) {
	_, err := Hash(DomainPlan, map[string]any{"x": 0.5})
	assert.Error(t, err)
	assert.Panics(t, func() { MustHash(DomainPlan, 0.5) })
}
