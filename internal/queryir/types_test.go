package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMode(t *testing.T) {
	for _, m := range []FetchMode{FetchEager, FetchQuery, FetchLazy} {
		parsed, err := ParseFetchMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	m, err := ParseFetchMode("")
	require.NoError(t, err)
	assert.Equal(t, FetchEager, m)

	m, err = ParseFetchMode(" LAZY ")
	require.NoError(t, err)
	assert.Equal(t, FetchLazy, m)

	_, err = ParseFetchMode("sometimes")
	assert.EqualError(t, err, `unknown fetch mode "sometimes"`)

	assert.False(t, FetchEager.Deferred())
	assert.True(t, FetchQuery.Deferred())
	assert.True(t, FetchLazy.Deferred())
	assert.Equal(t, "FetchMode(9)", FetchMode(9).String())
}

func TestPropertySelection(t *testing.T) {
	assert.True(t, PropertySelection{}.IsDefault())
	assert.False(t, AllProps().IsDefault())
	assert.False(t, Props("id").IsDefault())

	sel := Props("id", "name")
	assert.True(t, sel.Contains("name"))
	assert.False(t, sel.Contains("status"))

	c := sel.Clone()
	c.Properties[0] = "other"
	assert.Equal(t, "id", sel.Properties[0])
}

func TestQueryBuilder(t *testing.T) {
	q := New("Customer").
		SelectProps("id").
		Fetch("contacts", "firstName").
		FetchQuery("orders", 25).
		FetchLazy("orders.lines", 5).
		Filter("{status} = ?", "ACTIVE").
		Order("{id}").
		Page(0, 10)

	assert.Equal(t, "Customer", q.Type)
	assert.Equal(t, []any{"ACTIVE"}, q.Params)
	assert.True(t, q.Paged())
	require.Len(t, q.Joins, 3)

	j, ok := q.Join("orders.lines")
	require.True(t, ok)
	assert.Equal(t, FetchLazy, j.Mode)
	assert.Equal(t, 5, j.BatchSize)

	_, ok = q.Join("invoices")
	assert.False(t, ok)
	assert.False(t, New("Customer").Paged())
}

func TestQueryClone(t *testing.T) {
	q := New("Contact").Fetch("customer", "name").Filter("{id} = ?", 1)
	q.Link = &Link{Owner: "Customer", Property: "contacts", Count: 5}

	c := q.Clone()
	c.Joins[0].Select.Properties[0] = "status"
	c.Joins = append(c.Joins, JoinSpec{Path: "extra"})
	c.Params[0] = 2
	c.Link.Count = 10

	assert.Equal(t, "name", q.Joins[0].Select.Properties[0])
	assert.Len(t, q.Joins, 1)
	assert.Equal(t, 1, q.Params[0])
	assert.Equal(t, 5, q.Link.Count)
}

func TestPathHelpers(t *testing.T) {
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"orders", "lines"}, SplitPath("orders.lines"))
	assert.Equal(t, "orders", ParentPath("orders.lines"))
	assert.Equal(t, "", ParentPath("orders"))
	assert.Equal(t, "lines", LastSegment("orders.lines"))
	assert.Equal(t, "orders", LastSegment("orders"))
}
