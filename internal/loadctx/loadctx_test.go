package loadctx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/materialize"
	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/testutil"
)

type fetchCall struct {
	query  *queryir.Query
	keys   [][]any
	prefix string
}

// fakeFetcher answers linked queries from an in-memory function.
type fakeFetcher struct {
	calls []fetchCall

	// children returns the beans linked to one key.
	children func(key []any) []*bean.Bean

	// failOn makes the n-th call (1-based) fail.
	failOn int

	// after runs once per successful call, before the result is returned.
	after func(prefix string, res *materialize.Result)
}

func (f *fakeFetcher) FetchLinked(ctx context.Context, q *queryir.Query, keys [][]any, prefix string) (*materialize.Result, error) {
	f.calls = append(f.calls, fetchCall{query: q, keys: keys, prefix: prefix})
	if f.failOn == len(f.calls) {
		return nil, errors.New("connection reset")
	}

	res := &materialize.Result{}
	seen := make(map[string]bool)
	for _, key := range keys {
		k := bean.IDKey(key)
		if seen[k] {
			continue
		}
		seen[k] = true
		for _, b := range f.children(key) {
			res.Beans = append(res.Beans, b)
			res.Links = append(res.Links, materialize.Link{Parent: k, Bean: b})
		}
	}
	if f.after != nil {
		f.after(prefix, res)
	}
	return res, nil
}

func deferredFor(t *testing.T, q *queryir.Query, path string) *jointree.Deferred {
	t.Helper()
	tree, err := jointree.Build(testutil.Model(), q)
	require.NoError(t, err)
	d, ok := tree.DeferredAt(path)
	require.True(t, ok, "no deferred registration at %s", path)
	return d
}

func loadedBean(typeName string, id any, props map[string]any) *bean.Bean {
	b := bean.New(typeName, []any{id})
	for k, v := range props {
		b.Set(k, v)
	}
	return b
}

// addresses returns one loaded Address per key, or nothing for ids listed
// in missing.
func addresses(missing ...int64) func([]any) []*bean.Bean {
	return func(key []any) []*bean.Bean {
		id := bean.Normalize(key[0]).(int64)
		for _, m := range missing {
			if id == m {
				return nil
			}
		}
		return []*bean.Bean{loadedBean("Address", id, map[string]any{"city": fmt.Sprintf("City %d", id)})}
	}
}

// orders returns two orders per customer key.
func orders(key []any) []*bean.Bean {
	id := bean.Normalize(key[0]).(int64)
	return []*bean.Bean{
		loadedBean("Order", id*10, map[string]any{"status": "NEW"}),
		loadedBean("Order", id*10+1, map[string]any{"status": "PAID"}),
	}
}

func registerRefs(t *testing.T, lc *LoadContext, path string, n int) []*bean.Bean {
	t.Helper()
	refs := make([]*bean.Bean, n)
	for i := range refs {
		refs[i] = bean.NewReference("Address", []any{int64(i + 1)})
		refs[i].MarkReference([]any{int64(i + 1)}, path)
		require.NoError(t, lc.RegisterBean(path, refs[i]))
	}
	return refs
}

func registerCollections(t *testing.T, lc *LoadContext, path string, n int) []*bean.Collection {
	t.Helper()
	colls := make([]*bean.Collection, n)
	for i := range colls {
		owner := bean.New("Customer", []any{int64(i + 1)})
		colls[i] = bean.NewReferenceCollection()
		colls[i].MarkReference(owner.ID(), path)
		owner.SetMany("orders", colls[i])
		require.NoError(t, lc.RegisterMany(path, owner, colls[i]))
	}
	return colls
}

func TestLazyPath_OneFetchSatisfiesEveryMember(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: addresses()}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 50), "billingAddress"))

	refs := registerRefs(t, lc, "billingAddress", 50)
	assert.Equal(t, 0, lc.FetchCount())

	city, err := refs[17].Get(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, "City 18", city)

	require.Len(t, f.calls, 1)
	assert.Equal(t, 1, lc.FetchCount())
	for _, ref := range refs {
		assert.True(t, ref.IsLoaded())
	}

	// touching further members issues no statement
	_, err = refs[49].Get(ctx, "city")
	require.NoError(t, err)
	assert.Len(t, f.calls, 1)

	call := f.calls[0]
	assert.Equal(t, "Address", call.query.Type)
	assert.Equal(t, &queryir.Link{Owner: "Customer", Property: "billingAddress", Count: 50}, call.query.Link)
	assert.Len(t, call.keys, 50)
	assert.Equal(t, "billingAddress", call.prefix)

	c, ok := lc.Bean("billingAddress")
	require.True(t, ok)
	assert.Equal(t, StateSatisfied, c.State())
	assert.Equal(t, 0, c.Pending())
}

func TestQueryPath_IssuesOneStatementPerBatch(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: orders}
	lc := New(f, Options{})
	lc.Declare("orders", deferredFor(t, queryir.New("Customer").Fetch("contacts").FetchQuery("orders", 50), "orders"))

	colls := registerCollections(t, lc, "orders", 120)
	m, ok := lc.Many("orders")
	require.True(t, ok)
	assert.Equal(t, 120, m.Pending())
	assert.Len(t, m.Owners(), 120)

	require.NoError(t, lc.FlushQueryJoins(ctx))

	require.Len(t, f.calls, 3)
	assert.Len(t, f.calls[0].keys, 50)
	assert.Len(t, f.calls[1].keys, 50)
	assert.Len(t, f.calls[2].keys, 20)
	assert.Equal(t, 20, f.calls[2].query.Link.Count)
	assert.Equal(t, "Order", f.calls[0].query.Type)

	for i, coll := range colls {
		require.True(t, coll.IsLoaded())
		items := coll.Peek()
		require.Len(t, items, 2)
		assert.Equal(t, []any{int64((i + 1) * 10)}, items[0].ID())
	}
	assert.Equal(t, StateSatisfied, m.State())

	// nothing pending: a second flush is free
	require.NoError(t, lc.FlushQueryJoins(ctx))
	assert.Len(t, f.calls, 3)
}

func TestQueryPath_PadsToBucket(t *testing.T) {
	f := &fakeFetcher{children: orders}
	lc := New(f, Options{})
	lc.Declare("orders", deferredFor(t, queryir.New("Customer").FetchQuery("orders", 100), "orders"))
	registerCollections(t, lc, "orders", 7)

	require.NoError(t, lc.Flush(context.Background(), "orders"))
	require.Len(t, f.calls, 1)

	keys := f.calls[0].keys
	require.Len(t, keys, 10)
	for _, k := range keys[7:] {
		assert.Equal(t, []any{int64(7)}, k)
	}
	assert.Equal(t, 10, f.calls[0].query.Link.Count)
}

func TestPaddedSize(t *testing.T) {
	tests := []struct {
		n, batch, want int
	}{
		{1, 100, 1},
		{2, 100, 5},
		{5, 100, 5},
		{7, 100, 10},
		{11, 100, 20},
		{21, 100, 50},
		{51, 100, 100},
		{101, 1000, 200},
		{250, 1000, 300},
		{30, 40, 40},
		{3, 3, 3},
		{0, 100, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.n, tt.batch), func(t *testing.T) {
			assert.Equal(t, tt.want, PaddedSize(tt.n, tt.batch))
		})
	}
}

func TestFailedBatch_LeavesNoMemberLoaded(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: orders, failOn: 2}
	lc := New(f, Options{})
	lc.Declare("orders", deferredFor(t, queryir.New("Customer").FetchQuery("orders", 2), "orders"))
	colls := registerCollections(t, lc, "orders", 3)

	err := lc.FlushQueryJoins(ctx)
	require.Error(t, err)
	assert.True(t, IsBatchFetch(err))
	assert.Contains(t, err.Error(), "connection reset")

	var bfe *BatchFetchError
	require.ErrorAs(t, err, &bfe)
	assert.Equal(t, "orders", bfe.Path)

	// the first batch succeeded but nothing was distributed
	for _, coll := range colls {
		assert.Equal(t, bean.StateFailed, coll.State())
		assert.Empty(t, coll.Peek())
		_, err := coll.Items(ctx)
		assert.True(t, IsBatchFetch(err))
	}

	m, _ := lc.Many("orders")
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 2, m.FetchCount())

	// terminal: new members fail immediately and no statement is issued
	late := registerCollections(t, lc, "orders", 1)
	assert.Equal(t, bean.StateFailed, late[0].State())
	require.Error(t, lc.Flush(ctx, "orders"))
	assert.Len(t, f.calls, 2)
}

func TestLazyFailure_PropagatesToAccessor(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: addresses(), failOn: 1}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 10), "billingAddress"))
	refs := registerRefs(t, lc, "billingAddress", 3)

	_, err := refs[0].Get(ctx, "city")
	require.Error(t, err)
	assert.True(t, IsBatchFetch(err))

	_, err = refs[2].Get(ctx, "city")
	require.Error(t, err)
	assert.True(t, IsBatchFetch(err))
	assert.Len(t, f.calls, 1, "failed paths are not retried")
}

func TestMissingTarget(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: addresses(2)}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 10), "billingAddress"))
	refs := registerRefs(t, lc, "billingAddress", 3)

	require.NoError(t, lc.Flush(ctx, "billingAddress"))
	assert.True(t, refs[0].IsLoaded())
	assert.True(t, refs[2].IsLoaded())

	_, err := refs[1].Get(ctx, "city")
	assert.True(t, IsNotFound(err))
}

func TestRegistrationAfterFetchStartsNewCycle(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{children: addresses()}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 10), "billingAddress"))

	registerRefs(t, lc, "billingAddress", 2)
	require.NoError(t, lc.Flush(ctx, "billingAddress"))

	late := bean.NewReference("Address", []any{int64(9)})
	require.NoError(t, lc.RegisterBean("billingAddress", late))

	c, _ := lc.Bean("billingAddress")
	assert.Equal(t, StateCollecting, c.State())
	assert.Equal(t, 1, c.Pending())

	_, err := late.Get(ctx, "city")
	require.NoError(t, err)
	assert.Len(t, f.calls, 2)
	assert.Equal(t, [][]any{{int64(9)}}, f.calls[1].keys)
}

func TestDuplicateRegistrationFetchesOnce(t *testing.T) {
	f := &fakeFetcher{children: addresses()}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 10), "billingAddress"))

	ref := bean.NewReference("Address", []any{int64(4)})
	require.NoError(t, lc.RegisterBean("billingAddress", ref))
	require.NoError(t, lc.RegisterBean("billingAddress", ref))

	c, _ := lc.Bean("billingAddress")
	assert.Equal(t, 1, c.Pending())
	require.NoError(t, lc.Flush(context.Background(), "billingAddress"))
	assert.Equal(t, [][]any{{int64(4)}}, f.calls[0].keys)
}

func TestReferencePopulatedInPlaceLeavesBatch(t *testing.T) {
	f := &fakeFetcher{children: addresses()}
	lc := New(f, Options{})
	lc.Declare("billingAddress", deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 10), "billingAddress"))

	refs := registerRefs(t, lc, "billingAddress", 3)
	refs[1].Set("city", "Wellington")
	refs[1].MarkLoaded()

	c, _ := lc.Bean("billingAddress")
	assert.Equal(t, 2, c.Pending())
	require.NoError(t, lc.Flush(context.Background(), "billingAddress"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, [][]any{{int64(1)}, {int64(3)}}, f.calls[0].keys[:2])
	assert.NotContains(t, f.calls[0].keys, []any{int64(2)})

	v, ok := refs[1].Peek("city")
	require.True(t, ok)
	assert.Equal(t, "Wellington", v)
	for _, ref := range refs {
		assert.True(t, ref.IsLoaded())
	}
}

func TestNestedQueryPathsFlushParentFirst(t *testing.T) {
	ctx := context.Background()
	q := queryir.New("Customer").FetchQuery("orders", 10).FetchQuery("orders.lines", 10)
	tree, err := jointree.Build(testutil.Model(), q)
	require.NoError(t, err)
	require.Len(t, tree.Deferred, 1, "orders.lines is absorbed into orders")

	d := tree.Deferred[0]
	require.Len(t, d.Joins, 1)
	assert.Equal(t, "lines", d.Joins[0].Path)

	var lc *LoadContext
	f := &fakeFetcher{children: orders}
	f.after = func(prefix string, res *materialize.Result) {
		if prefix != "orders" {
			return
		}
		// the secondary statement declares and registers its own deferred path
		lines := &jointree.Deferred{
			Path:      "lines",
			Mode:      queryir.FetchQuery,
			BatchSize: 10,
			Assoc:     mustAssoc(t, "Order", "lines"),
			Owner:     mustDesc(t, "Order"),
			Target:    mustDesc(t, "OrderLine"),
		}
		lc.Declare("orders.lines", lines)
		for _, o := range res.Beans {
			coll := bean.NewReferenceCollection()
			o.SetMany("lines", coll)
			require.NoError(t, lc.RegisterMany("orders.lines", o, coll))
		}
	}
	lc = New(f, Options{})
	lc.Declare("orders", d)
	colls := registerCollections(t, lc, "orders", 2)

	require.NoError(t, lc.FlushQueryJoins(ctx))
	require.Len(t, f.calls, 2)
	assert.Equal(t, "orders", f.calls[0].prefix)
	assert.Equal(t, "orders.lines", f.calls[1].prefix)
	assert.Equal(t, "lines", f.calls[0].query.Joins[0].Path)
	assert.Equal(t, []string{"orders", "orders.lines"}, lc.Paths())

	for _, coll := range colls {
		for _, o := range coll.Peek() {
			lines, ok := o.PeekMany("lines")
			require.True(t, ok)
			assert.True(t, lines.IsLoaded())
		}
	}
}

func TestUnknownPath(t *testing.T) {
	lc := New(&fakeFetcher{children: orders}, Options{})
	err := lc.RegisterBean("nope", bean.NewReference("Address", []any{int64(1)}))
	var upe *UnknownPathError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "nope", upe.Path)
	require.Error(t, lc.Flush(context.Background(), "nope"))
}

func TestDefaultBatchSizes(t *testing.T) {
	lc := New(&fakeFetcher{children: orders}, Options{LazyBatchSize: 25})
	lazy := deferredFor(t, queryir.New("Customer").FetchLazy("billingAddress", 0), "billingAddress")
	query := deferredFor(t, queryir.New("Customer").FetchQuery("orders", 0), "orders")
	lc.Declare("billingAddress", lazy)
	lc.Declare("orders", query)

	c, _ := lc.Context("billingAddress")
	assert.Equal(t, 25, c.BatchSize())
	c, _ = lc.Context("orders")
	assert.Equal(t, DefaultQueryBatchSize, c.BatchSize())
}

func mustDesc(t *testing.T, name string) *meta.Descriptor {
	t.Helper()
	d, err := testutil.Model().Descriptor(name)
	require.NoError(t, err)
	return d
}

func mustAssoc(t *testing.T, owner, name string) meta.Association {
	t.Helper()
	a, ok := mustDesc(t, owner).Association(name)
	require.True(t, ok)
	return a
}
