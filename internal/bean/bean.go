package bean

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// State is the load state of a bean or collection.
type State int

const (
	// StateReference means only the identity is known.
	StateReference State = iota + 1
	// StateLoading means a load is in progress.
	StateLoading
	// StateLoaded means the selected properties are populated.
	StateLoaded
	// StateFailed means the load failed. Failed is terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReference:
		return "reference"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNoLoader is returned when a reference is accessed but nothing was
// registered to load it.
var ErrNoLoader = errors.New("reference has no loader")

// ErrReentrantLoad is returned when a bean is accessed while its own load is
// still running.
var ErrReentrantLoad = errors.New("bean accessed while loading")

// AccessHook is called on first access of a reference.
type AccessHook func(ctx context.Context) error

// Interceptable is implemented by Bean and Collection.
type Interceptable interface {
	IsLoaded() bool
	MarkReference(parentID []any, path string)
	OnFirstAccess(hook AccessHook)
}

// Bean is one entity instance.
type Bean struct {
	typeName string
	id       []any
	state    State

	values map[string]any
	ones   map[string]*Bean
	many   map[string]*Collection

	hook      AccessHook
	err       error
	refParent []any
	refPath   string
}

var _ Interceptable = (*Bean)(nil)

// New creates a loaded bean with no properties set.
func New(typeName string, id []any) *Bean {
	return &Bean{
		typeName: typeName,
		id:       normalizeAll(id),
		state:    StateLoaded,
		values:   make(map[string]any),
		ones:     make(map[string]*Bean),
		many:     make(map[string]*Collection),
	}
}

// NewReference creates an unloaded reference bean.
func NewReference(typeName string, id []any) *Bean {
	b := New(typeName, id)
	b.state = StateReference
	return b
}

// Type returns the concrete type name.
func (b *Bean) Type() string { return b.typeName }

// SetType sets the concrete type name (used for inheritance).
func (b *Bean) SetType(name string) { b.typeName = name }

// ID returns the id values. Never triggers a load.
func (b *Bean) ID() []any { return b.id }

// IDKey returns the id values encoded as a string.
func (b *Bean) IDKey() string { return IDKey(b.id) }

// State returns the current load state.
func (b *Bean) State() State { return b.state }

// IsLoaded implements Interceptable.
func (b *Bean) IsLoaded() bool { return b.state == StateLoaded }

// Err returns the load failure, if any.
func (b *Bean) Err() error { return b.err }

// MarkReference implements Interceptable. It records which parent and path
// the reference was created for.
func (b *Bean) MarkReference(parentID []any, path string) {
	b.refParent = normalizeAll(parentID)
	b.refPath = path
	if b.state == StateLoaded && len(b.values) == 0 && len(b.ones) == 0 && len(b.many) == 0 {
		b.state = StateReference
	}
}

// ReferencedBy returns the parent id and path recorded by MarkReference.
func (b *Bean) ReferencedBy() ([]any, string) { return b.refParent, b.refPath }

// OnFirstAccess implements Interceptable.
func (b *Bean) OnFirstAccess(hook AccessHook) { b.hook = hook }

// Set stores a scalar value and marks the property loaded.
func (b *Bean) Set(name string, value any) { b.values[name] = value }

// SetOne stores a to-one association. A nil bean means "no associated row".
func (b *Bean) SetOne(name string, ref *Bean) { b.ones[name] = ref }

// SetMany stores a collection.
func (b *Bean) SetMany(name string, c *Collection) {
	c.owner = b
	c.name = name
	b.many[name] = c
}

// Get returns a scalar property, loading the bean first if it is a reference.
func (b *Bean) Get(ctx context.Context, name string) (any, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	v, ok := b.values[name]
	if !ok {
		return nil, &NotLoadedError{Type: b.typeName, Property: name}
	}
	return v, nil
}

// One returns a to-one association, loading the bean first if needed.
// The returned bean may itself be a reference.
func (b *Bean) One(ctx context.Context, name string) (*Bean, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	ref, ok := b.ones[name]
	if !ok {
		return nil, &NotLoadedError{Type: b.typeName, Property: name}
	}
	return ref, nil
}

// Many returns a collection, loading the bean first if needed. The
// collection may be a reference; its Items method loads it.
func (b *Bean) Many(ctx context.Context, name string) (*Collection, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c, ok := b.many[name]
	if !ok {
		return nil, &NotLoadedError{Type: b.typeName, Property: name}
	}
	return c, nil
}

// Peek returns a scalar without triggering a load.
func (b *Bean) Peek(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// PeekOne returns a to-one association without triggering a load.
func (b *Bean) PeekOne(name string) (*Bean, bool) {
	ref, ok := b.ones[name]
	return ref, ok
}

// PeekMany returns a collection without triggering a load.
func (b *Bean) PeekMany(name string) (*Collection, bool) {
	c, ok := b.many[name]
	return c, ok
}

// PropertyNames returns the loaded scalar property names, sorted.
func (b *Bean) PropertyNames() []string { return sortedKeys(b.values) }

// OneNames returns the populated to-one association names, sorted.
func (b *Bean) OneNames() []string { return sortedKeys(b.ones) }

// ManyNames returns the populated collection names, sorted.
func (b *Bean) ManyNames() []string { return sortedKeys(b.many) }

// LoadFrom copies the state of a freshly fetched bean into this reference,
// keeping the reference's identity so existing pointers see the data.
func (b *Bean) LoadFrom(src *Bean) {
	b.typeName = src.typeName
	for k, v := range src.values {
		b.values[k] = v
	}
	for k, v := range src.ones {
		b.ones[k] = v
	}
	for k, c := range src.many {
		c.owner = b
		b.many[k] = c
	}
	b.state = StateLoaded
	b.hook = nil
	b.err = nil
}

// MarkLoaded completes a reference whose properties were set in place.
func (b *Bean) MarkLoaded() {
	b.state = StateLoaded
	b.hook = nil
	b.err = nil
}

// Load loads a reference. It does nothing on a loaded bean.
func (b *Bean) Load(ctx context.Context) error {
	return b.ensureLoaded(ctx)
}

// Fail moves the bean to the terminal failed state.
func (b *Bean) Fail(err error) {
	b.state = StateFailed
	b.err = err
	b.hook = nil
}

func (b *Bean) ensureLoaded(ctx context.Context) error {
	switch b.state {
	case StateLoaded:
		return nil
	case StateFailed:
		return b.err
	case StateLoading:
		return ErrReentrantLoad
	}

	if b.hook == nil {
		return fmt.Errorf("%s %s: %w", b.typeName, b.IDKey(), ErrNoLoader)
	}

	hook := b.hook
	b.state = StateLoading
	err := hook(ctx)

	switch b.state {
	case StateLoaded:
		return nil
	case StateFailed:
		return b.err
	}

	// The hook returned without satisfying this bean.
	if err == nil {
		err = fmt.Errorf("%s %s: batch load did not return the bean", b.typeName, b.IDKey())
	}
	b.Fail(err)
	return err
}

// NotLoadedError is returned when a property was not part of the selection
// the bean was loaded with.
type NotLoadedError struct {
	Type     string
	Property string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("property %s.%s was not loaded", e.Type, e.Property)
}

// IDKey encodes id values as a stable string.
func IDKey(id []any) string {
	parts := make([]string, len(id))
	for i, v := range id {
		parts[i] = fmt.Sprint(Normalize(v))
	}
	return strings.Join(parts, "|")
}

// Key identifies a bean within a persistence context.
func Key(typeName string, id []any) string {
	return typeName + "#" + IDKey(id)
}

// Normalize converts driver values to a canonical Go type so that ids read
// from different columns compare equal.
func Normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	default:
		return v
	}
}

// AllNil reports whether every value is nil.
func AllNil(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

func normalizeAll(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
