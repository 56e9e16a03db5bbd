package bean

// PersistenceContext is the identity map of one top-level execution.
// Beans are keyed by the type they were queried as (the base type for
// inheritance hierarchies) and their id.
type PersistenceContext struct {
	beans map[string]*Bean
}

// NewPersistenceContext creates an empty context.
func NewPersistenceContext() *PersistenceContext {
	return &PersistenceContext{beans: make(map[string]*Bean)}
}

// Get returns the bean for the given identity, or nil.
func (pc *PersistenceContext) Get(typeName string, id []any) *Bean {
	return pc.beans[Key(typeName, id)]
}

// Put stores a bean under the given identity type.
func (pc *PersistenceContext) Put(typeName string, b *Bean) {
	pc.beans[Key(typeName, b.ID())] = b
}

// Len returns the number of beans in the context.
func (pc *PersistenceContext) Len() int { return len(pc.beans) }
