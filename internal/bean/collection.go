package bean

import (
	"context"
	"fmt"
)

// Collection is the to-many side of an association.
type Collection struct {
	owner *Bean
	name  string
	state State
	items []*Bean
	seen  map[string]bool

	hook      AccessHook
	err       error
	refParent []any
	refPath   string
}

var _ Interceptable = (*Collection)(nil)

// NewCollection creates an empty loaded collection.
func NewCollection() *Collection {
	return &Collection{state: StateLoaded, seen: make(map[string]bool)}
}

// NewReferenceCollection creates an unloaded collection.
func NewReferenceCollection() *Collection {
	c := NewCollection()
	c.state = StateReference
	return c
}

// Owner returns the bean holding the collection.
func (c *Collection) Owner() *Bean { return c.owner }

// Name returns the association name.
func (c *Collection) Name() string { return c.name }

// State returns the current load state.
func (c *Collection) State() State { return c.state }

// IsLoaded implements Interceptable.
func (c *Collection) IsLoaded() bool { return c.state == StateLoaded }

// Err returns the load failure, if any.
func (c *Collection) Err() error { return c.err }

// MarkReference implements Interceptable.
func (c *Collection) MarkReference(parentID []any, path string) {
	c.refParent = normalizeAll(parentID)
	c.refPath = path
	if len(c.items) == 0 && c.state == StateLoaded {
		c.state = StateReference
	}
}

// ReferencedBy returns the parent id and path recorded by MarkReference.
func (c *Collection) ReferencedBy() ([]any, string) { return c.refParent, c.refPath }

// OnFirstAccess implements Interceptable.
func (c *Collection) OnFirstAccess(hook AccessHook) { c.hook = hook }

// Add appends an element unless an element with the same identity is
// already present. It reports whether the element was added.
func (c *Collection) Add(b *Bean) bool {
	key := Key(b.Type(), b.ID())
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	c.items = append(c.items, b)
	return true
}

// Items returns the elements, loading the collection first if needed.
func (c *Collection) Items(ctx context.Context) ([]*Bean, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return c.items, nil
}

// Len returns the element count, loading the collection first if needed.
func (c *Collection) Len(ctx context.Context) (int, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Peek returns the elements without triggering a load.
func (c *Collection) Peek() []*Bean { return c.items }

// Load replaces the elements and marks the collection loaded.
func (c *Collection) Load(items []*Bean) {
	c.items = nil
	c.seen = make(map[string]bool, len(items))
	for _, b := range items {
		c.Add(b)
	}
	c.state = StateLoaded
	c.hook = nil
	c.err = nil
}

// Fail moves the collection to the terminal failed state.
func (c *Collection) Fail(err error) {
	c.state = StateFailed
	c.err = err
	c.hook = nil
}

func (c *Collection) ensureLoaded(ctx context.Context) error {
	switch c.state {
	case StateLoaded:
		return nil
	case StateFailed:
		return c.err
	case StateLoading:
		return ErrReentrantLoad
	}

	if c.hook == nil {
		return fmt.Errorf("collection %s: %w", c.name, ErrNoLoader)
	}

	hook := c.hook
	c.state = StateLoading
	err := hook(ctx)

	switch c.state {
	case StateLoaded:
		return nil
	case StateFailed:
		return c.err
	}

	if err == nil {
		err = fmt.Errorf("collection %s: batch load did not satisfy the collection", c.name)
	}
	c.Fail(err)
	return err
}
