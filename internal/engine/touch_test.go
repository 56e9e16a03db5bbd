package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/queryir"
)

func TestTouch_LazyCollection(t *testing.T) {
	ctx := context.Background()
	e, rec := setupEngine(t, setupTestStore(t))

	res, err := e.FindList(ctx, queryir.New("Customer").FetchLazy("contacts", 10).Order("{id}"))
	require.NoError(t, err)
	require.Equal(t, 1, len(rec.Statements()))

	require.NoError(t, Touch(ctx, res.Beans, "contacts"))
	assert.Equal(t, 1, rec.Count("FROM contact"))
	assert.Equal(t, []int64{10, 11}, loadedMany(t, res.Beans[0], "contacts"))
	assert.Equal(t, []int64{12}, loadedMany(t, res.Beans[1], "contacts"))
	assert.Empty(t, loadedMany(t, res.Beans[2], "contacts"))

	require.NoError(t, Touch(ctx, res.Beans, "contacts"))
	assert.Len(t, rec.Statements(), 2, "second touch reads loaded state")
}

func TestTouch_NestedReference(t *testing.T) {
	ctx := context.Background()
	e, rec := setupEngine(t, setupTestStore(t))

	res, err := e.FindList(ctx, queryir.New("Order").FetchLazy("customer", 10).Order("{id}"))
	require.NoError(t, err)

	require.NoError(t, Touch(ctx, res.Beans, "customer"))
	assert.Len(t, rec.Statements(), 2)
	for _, o := range res.Beans {
		c, ok := o.PeekOne("customer")
		require.True(t, ok)
		assert.Equal(t, bean.StateLoaded, c.State())
	}
}

func TestTouch_Errors(t *testing.T) {
	ctx := context.Background()
	e, _ := setupEngine(t, setupTestStore(t))

	res, err := e.FindList(ctx, queryir.New("Customer").Order("{id}"))
	require.NoError(t, err)

	err = Touch(ctx, res.Beans, "orders")
	require.Error(t, err)
	var nle *bean.NotLoadedError
	assert.ErrorAs(t, err, &nle)

	assert.Error(t, Touch(ctx, res.Beans, ""))
	assert.NoError(t, Touch(ctx, nil, "orders"))
}
