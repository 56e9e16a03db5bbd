package materialize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/plan"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/rowsource"
	"github.com/roach88/beanplan/internal/testutil"
)

type registration struct {
	path  string
	owner *bean.Bean
	ref   *bean.Bean
	coll  *bean.Collection
}

type fakeRegistrar struct {
	declared []string
	regs     []registration
}

func (f *fakeRegistrar) Declare(path string, d *jointree.Deferred) {
	f.declared = append(f.declared, path)
}

func (f *fakeRegistrar) RegisterBean(path string, ref *bean.Bean) error {
	f.regs = append(f.regs, registration{path: path, ref: ref})
	return nil
}

func (f *fakeRegistrar) RegisterMany(path string, owner *bean.Bean, coll *bean.Collection) error {
	f.regs = append(f.regs, registration{path: path, owner: owner, coll: coll})
	return nil
}

func planFor(t *testing.T, q *queryir.Query) *plan.QueryPlan {
	t.Helper()
	p, err := plan.NewPlanner(testutil.Model()).Plan(q)
	require.NoError(t, err)
	return p
}

func run(t *testing.T, m *Materializer, q *queryir.Query, rows [][]any) *Result {
	t.Helper()
	res, err := m.Materialize(planFor(t, q), rowsource.NewSliceCursor(rows))
	require.NoError(t, err)
	return res
}

func peek(t *testing.T, b *bean.Bean, name string) any {
	t.Helper()
	v, ok := b.Peek(name)
	require.True(t, ok, "property %s not loaded", name)
	return v
}

func TestMaterialize_CollectionRoundTrip(t *testing.T) {
	q := queryir.New("Customer").Fetch("contacts")
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE", int64(10), "Ann", "Smith"},
		{int64(1), "Acme", "ACTIVE", int64(11), "Bob", "Jones"},
		{int64(2), "Globex", "ACTIVE", int64(12), "Cat", "Brown"},
		{int64(3), "Initech", "INACTIVE", nil, nil, nil},
	}

	res := run(t, New(nil, nil), q, rows)
	require.Len(t, res.Beans, 3)
	assert.Equal(t, 4, res.Rows)

	want := map[int64][]int64{1: {10, 11}, 2: {12}, 3: nil}
	for _, c := range res.Beans {
		coll, ok := c.PeekMany("contacts")
		require.True(t, ok)
		assert.True(t, coll.IsLoaded())

		var ids []int64
		for _, contact := range coll.Peek() {
			ids = append(ids, contact.ID()[0].(int64))
		}
		assert.Equal(t, want[c.ID()[0].(int64)], ids)
	}
	first, _ := res.Beans[0].PeekMany("contacts")
	assert.Equal(t, "Ann", peek(t, first.Peek()[0], "firstName"))
}

func TestMaterialize_NonContiguousRowsFail(t *testing.T) {
	q := queryir.New("Customer").Fetch("contacts")
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE", int64(10), "Ann", "Smith"},
		{int64(2), "Globex", "ACTIVE", int64(12), "Cat", "Brown"},
		{int64(1), "Acme", "ACTIVE", int64(11), "Bob", "Jones"},
	}

	_, err := New(nil, nil).Materialize(planFor(t, q), rowsource.NewSliceCursor(rows))
	require.True(t, IsInconsistentRowOrdering(err))

	var e *InconsistentRowOrderingError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "contacts", e.Path)
	assert.Equal(t, "Customer#1", e.Parent)
}

func TestMaterialize_RepeatedRootWithoutCollectionIsReused(t *testing.T) {
	q := queryir.New("Customer")
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE"},
		{int64(2), "Globex", "ACTIVE"},
		{int64(1), "Acme", "ACTIVE"},
	}
	res := run(t, New(nil, nil), q, rows)
	assert.Len(t, res.Beans, 2)
}

func TestMaterialize_IdentityIsShared(t *testing.T) {
	q := queryir.New("Customer").Fetch("billingAddress").Fetch("shippingAddress")
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE", int64(5), "1 Queen St", "Auckland", int64(5), "1 Queen St", "Auckland"},
		{int64(2), "Globex", "ACTIVE", int64(5), "1 Queen St", "Auckland", nil, nil, nil},
	}

	pc := bean.NewPersistenceContext()
	res := run(t, New(pc, nil), q, rows)
	require.Len(t, res.Beans, 2)

	billing, _ := res.Beans[0].PeekOne("billingAddress")
	shipping, _ := res.Beans[0].PeekOne("shippingAddress")
	other, _ := res.Beans[1].PeekOne("billingAddress")
	assert.Same(t, billing, shipping)
	assert.Same(t, billing, other)

	none, ok := res.Beans[1].PeekOne("shippingAddress")
	assert.True(t, ok)
	assert.Nil(t, none)
	assert.Same(t, billing, pc.Get("Address", []any{5}))
}

func TestMaterialize_DeferredPlaceholders(t *testing.T) {
	q := queryir.New("Customer").FetchQuery("orders", 10).FetchLazy("billingAddress", 0)
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE", int64(5)},
		{int64(2), "Globex", "ACTIVE", int64(5)},
		{int64(3), "Initech", "INACTIVE", nil},
	}

	reg := &fakeRegistrar{}
	res := run(t, New(nil, reg), q, rows)
	require.Len(t, res.Beans, 3)
	assert.ElementsMatch(t, []string{"billingAddress", "orders"}, reg.declared)

	var beanRegs, manyRegs int
	for _, r := range reg.regs {
		switch r.path {
		case "billingAddress":
			beanRegs++
			assert.False(t, r.ref.IsLoaded())
			parent, path := r.ref.ReferencedBy()
			assert.Equal(t, []any{int64(1)}, parent)
			assert.Equal(t, "billingAddress", path)
		case "orders":
			manyRegs++
			assert.Equal(t, bean.StateReference, r.coll.State())
		}
	}
	assert.Equal(t, 1, beanRegs, "one reference per distinct address")
	assert.Equal(t, 3, manyRegs)

	a, _ := res.Beans[0].PeekOne("billingAddress")
	b, _ := res.Beans[1].PeekOne("billingAddress")
	assert.Same(t, a, b)
	c, ok := res.Beans[2].PeekOne("billingAddress")
	assert.True(t, ok)
	assert.Nil(t, c)
}

func TestMaterialize_PrefixedPaths(t *testing.T) {
	q := queryir.New("Order").FetchQuery("lines", 0)
	q.Link = &queryir.Link{Owner: "Customer", Property: "orders", Count: 1}
	rows := [][]any{{int64(1), int64(20), "NEW"}}

	reg := &fakeRegistrar{}
	m := New(nil, reg)
	m.Prefix = "orders"
	run(t, m, q, rows)
	assert.Equal(t, []string{"orders.lines"}, reg.declared)
	require.Len(t, reg.regs, 1)
	assert.Equal(t, "orders.lines", reg.regs[0].path)
}

func TestMaterialize_ReferenceWithoutLoader(t *testing.T) {
	q := queryir.New("Contact").FetchLazy("customer", 0)
	rows := [][]any{{int64(10), "Ann", "Smith", int64(1)}}

	res := run(t, New(nil, nil), q, rows)
	customer, err := res.Beans[0].One(context.Background(), "customer")
	require.NoError(t, err)
	_, err = customer.Get(context.Background(), "name")
	require.True(t, errors.Is(err, bean.ErrNoLoader))
}

func TestMaterialize_ReferencesArePopulatedInPlace(t *testing.T) {
	pc := bean.NewPersistenceContext()
	ref := bean.NewReference("Customer", []any{int64(1)})
	pc.Put("Customer", ref)
	q := queryir.New("Customer")
	res := run(t, New(pc, nil), q, [][]any{{int64(1), "Acme", "ACTIVE"}})
	require.Len(t, res.Beans, 1)
	assert.Same(t, ref, res.Beans[0])
	assert.True(t, ref.IsLoaded())
	assert.Same(t, ref, pc.Get("Customer", []any{1}))
	assert.Equal(t, "Acme", peek(t, ref, "name"))
}

func TestMaterialize_FetchedBeanCompletesDeferredReference(t *testing.T) {
	q := queryir.New("Customer").Fetch("billingAddress").FetchLazy("shippingAddress", 0)
	p := planFor(t, q)
	require.Equal(t, []string{
		"t0.id", "t0.name", "t0.status", "t0.shipping_address_id",
		"t1.id", "t1.line1", "t1.city",
	}, p.Columns)
	rows := [][]any{{int64(1), "Acme", "ACTIVE", int64(5), int64(5), "1 Queen St", "Auckland"}}

	pc := bean.NewPersistenceContext()
	reg := &fakeRegistrar{}
	res, err := New(pc, reg).Materialize(p, rowsource.NewSliceCursor(rows))
	require.NoError(t, err)
	require.Len(t, res.Beans, 1)

	billing, _ := res.Beans[0].PeekOne("billingAddress")
	shipping, _ := res.Beans[0].PeekOne("shippingAddress")
	require.NotNil(t, billing)
	assert.Same(t, billing, shipping)
	assert.True(t, shipping.IsLoaded())
	assert.Equal(t, "Auckland", peek(t, shipping, "city"))
	assert.Same(t, billing, pc.Get("Address", []any{5}))

	require.Len(t, reg.regs, 1)
	assert.Same(t, shipping, reg.regs[0].ref)
	assert.True(t, reg.regs[0].ref.IsLoaded())
}

func TestMaterialize_LoadedBeansAreReused(t *testing.T) {
	pc := bean.NewPersistenceContext()
	loaded := bean.New("Customer", []any{int64(1)})
	loaded.Set("name", "Cached")
	pc.Put("Customer", loaded)

	res := run(t, New(pc, nil), queryir.New("Customer"), [][]any{{int64(1), "Acme", "ACTIVE"}})
	assert.Same(t, loaded, res.Beans[0])
	assert.Equal(t, "Cached", peek(t, loaded, "name"))
}

func TestMaterialize_EmbeddedAndSecondary(t *testing.T) {
	q := queryir.New("Customer").SelectProps("name", "notes", "audit")
	rows := [][]any{
		{int64(1), "Acme", "priority", "admin", int64(1)},
		{int64(3), "Initech", nil, nil, nil},
	}

	res := run(t, New(nil, nil), q, rows)
	require.Len(t, res.Beans, 2)

	acme := res.Beans[0]
	assert.Equal(t, "priority", peek(t, acme, "notes"))
	audit, ok := acme.PeekOne("audit")
	require.True(t, ok)
	require.NotNil(t, audit)
	assert.Equal(t, "admin", peek(t, audit, "createdBy"))
	assert.Equal(t, int64(1), peek(t, audit, "version"))

	initech := res.Beans[1]
	assert.Nil(t, peek(t, initech, "notes"))
	none, ok := initech.PeekOne("audit")
	assert.True(t, ok)
	assert.Nil(t, none)
}

func TestMaterialize_Discriminator(t *testing.T) {
	q := queryir.New("Vehicle")
	res := run(t, New(nil, nil), q, [][]any{
		{int64(1), "CAR", "ABC123"},
		{int64(2), []byte("TRUCK"), "TRK999"},
	})
	require.Len(t, res.Beans, 2)
	assert.Equal(t, "Car", res.Beans[0].Type())
	assert.Equal(t, "Truck", res.Beans[1].Type())

	_, err := New(nil, nil).Materialize(planFor(t, q), rowsource.NewSliceCursor([][]any{{int64(3), "BUS", "X"}}))
	require.Error(t, err)
}

func TestMaterialize_Links(t *testing.T) {
	q := queryir.New("Contact")
	q.Link = &queryir.Link{Owner: "Customer", Property: "contacts", Count: 2}
	rows := [][]any{
		{int64(1), int64(10), "Ann", "Smith"},
		{int64(1), int64(11), "Bob", "Jones"},
		{int64(2), int64(12), "Cat", "Brown"},
	}

	res := run(t, New(nil, nil), q, rows)
	require.Len(t, res.Links, 3)
	assert.Equal(t, "1", res.Links[0].Parent)
	assert.Equal(t, "1", res.Links[1].Parent)
	assert.Equal(t, "2", res.Links[2].Parent)
	assert.Same(t, res.Beans[2], res.Links[2].Bean)
}

func TestMaterialize_MaxRoots(t *testing.T) {
	q := queryir.New("Customer").Page(0, 2)
	rows := [][]any{
		{int64(1), "Acme", "ACTIVE"},
		{int64(2), "Globex", "ACTIVE"},
		{int64(3), "Initech", "INACTIVE"},
	}
	m := New(nil, nil)
	m.MaxRoots = 2
	res := run(t, m, q, rows)
	assert.Len(t, res.Beans, 2)
	assert.True(t, res.HasMore)

	m = New(nil, nil)
	m.MaxRoots = 3
	res = run(t, m, q, rows)
	assert.False(t, res.HasMore)
}

func TestMaterialize_ColumnCountMismatch(t *testing.T) {
	_, err := New(nil, nil).Materialize(planFor(t, queryir.New("Customer")), rowsource.NewSliceCursor([][]any{{int64(1)}}))
	var cce *ColumnCountError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, 3, cce.Want)
}
