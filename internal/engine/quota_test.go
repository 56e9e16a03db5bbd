package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementQuota(t *testing.T) {
	q := NewStatementQuota(2)
	require.NoError(t, q.Check("exec-1"))
	require.NoError(t, q.Check("exec-1"))

	err := q.Check("exec-1")
	require.Error(t, err)
	assert.True(t, IsStatementLimit(err))
	assert.Contains(t, err.Error(), "3 statements > 2 limit")
	assert.Equal(t, 3, q.Used())
}

func TestStatementQuota_Unlimited(t *testing.T) {
	q := NewStatementQuota(0)
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Check("exec-1"))
	}
	assert.Equal(t, 0, q.Limit())
}

func TestSequence(t *testing.T) {
	var s Sequence
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "v7 ids sort by creation time")
}
