package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/testutil"
)

func entity(name string, refs ...meta.Association) *meta.Descriptor {
	return &meta.Descriptor{
		Name:   name,
		Table:  name,
		Props:  []meta.Property{{Name: "id", Column: "id", ID: true}},
		Assocs: refs,
	}
}

func ref(name, target string, optional bool) meta.Association {
	return meta.Association{
		Name: name, Kind: meta.AssocOne, Target: target,
		LocalColumns: []string{name + "_id"}, ForeignColumns: []string{"id"}, Optional: optional,
	}
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(nil)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestAnalyzeCycles_FixtureModelIsAcyclic(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(testutil.Model().Descriptors()))
}

func TestAnalyzeCycles_SelfReference(t *testing.T) {
	warnings := AnalyzeCycles([]*meta.Descriptor{entity("Node", ref("parent", "Node", false))})
	require.Len(t, warnings, 1)

	w := warnings[0]
	assert.Equal(t, []string{"Node", "Node"}, w.Path)
	assert.Equal(t, []string{"Node.parent"}, w.Edges)
	assert.Equal(t, "warning", w.Level)
	assert.Contains(t, w.Message, "Node.parent")
}

func TestAnalyzeCycles_OptionalReferenceBreaksCycle(t *testing.T) {
	descs := []*meta.Descriptor{
		entity("Node", ref("parent", "Node", true)),
		entity("Order", ref("customer", "Customer", false)),
		entity("Customer", ref("lastOrder", "Order", true)),
	}
	assert.Empty(t, AnalyzeCycles(descs))
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	descs := []*meta.Descriptor{
		entity("Order", ref("customer", "Customer", false)),
		entity("Customer", ref("lastOrder", "Order", false)),
	}
	warnings := AnalyzeCycles(descs)
	require.Len(t, warnings, 1)

	w := warnings[0]
	assert.Equal(t, []string{"Customer", "Order", "Customer"}, w.Path)
	assert.Equal(t, []string{"Customer.lastOrder", "Order.customer"}, w.Edges)
	assert.Equal(t, "Mandatory reference cycle: Customer.lastOrder → Order.customer", w.Message)
}

func TestAnalyzeCycles_ThreeNodeCycleAndTail(t *testing.T) {
	descs := []*meta.Descriptor{
		entity("A", ref("b", "B", false)),
		entity("B", ref("c", "C", false)),
		entity("C", ref("a", "A", false), ref("d", "D", false)),
		entity("D"),
	}
	warnings := AnalyzeCycles(descs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, warnings[0].Path)
	assert.Equal(t, []string{"A.b", "B.c", "C.a"}, warnings[0].Edges)
}

func TestAnalyzeCycles_Deterministic(t *testing.T) {
	descs := []*meta.Descriptor{
		entity("Y", ref("x", "X", false)),
		entity("X", ref("y", "Y", false)),
		entity("N", ref("m", "M", false)),
		entity("M", ref("n", "N", false)),
	}
	first := AnalyzeCycles(descs)
	require.Len(t, first, 2)
	assert.Equal(t, "M", first[0].Path[0])
	assert.Equal(t, "X", first[1].Path[0])

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AnalyzeCycles(descs))
	}
}

func TestAnalyzeCycles_CollectionsIgnored(t *testing.T) {
	parent := entity("Parent")
	parent.Assocs = []meta.Association{{
		Name: "children", Kind: meta.AssocMany, Target: "Child",
		LocalColumns: []string{"id"}, ForeignColumns: []string{"parent_id"},
	}}
	child := entity("Child", ref("parent", "Parent", false))
	assert.Empty(t, AnalyzeCycles([]*meta.Descriptor{parent, child}))
}
