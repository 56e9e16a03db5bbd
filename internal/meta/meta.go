package meta

import (
	"fmt"
	"slices"
	"strings"
)

// AliasPlaceholder is substituted with the table alias of the owning node when
// formula columns and formula joins are rendered.
const AliasPlaceholder = "${ta}"

// AssocKind categorizes associations.
type AssocKind int

const (
	// AssocOne is a many-to-one or one-to-one association.
	AssocOne AssocKind = iota + 1
	// AssocMany is a one-to-many or many-to-many association.
	AssocMany
	// AssocEmbedded is a value type stored on the owner's table.
	AssocEmbedded
)

// String returns the kind as used in entity definitions.
func (k AssocKind) String() string {
	switch k {
	case AssocOne:
		return "one"
	case AssocMany:
		return "many"
	case AssocEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("AssocKind(%d)", int(k))
	}
}

// ParseAssocKind parses the textual form produced by AssocKind.String.
func ParseAssocKind(s string) (AssocKind, error) {
	switch strings.ToLower(s) {
	case "one":
		return AssocOne, nil
	case "many":
		return AssocMany, nil
	case "embedded":
		return AssocEmbedded, nil
	default:
		return 0, fmt.Errorf("unknown association kind %q", s)
	}
}

// Property is a persistent scalar property.
type Property struct {
	Name   string
	Column string
	ID     bool

	// Formula replaces Column with a SQL expression. The expression may
	// reference the owning table through AliasPlaceholder.
	Formula string

	// FormulaJoin is an optional join fragment the formula depends on.
	FormulaJoin string

	// Table names a SecondaryTable this property is stored on ("" = main table).
	Table string
}

// IsFormula reports whether the property is computed.
func (p Property) IsFormula() bool {
	return p.Formula != ""
}

// Intersection describes the link table of a many-to-many association.
type Intersection struct {
	Table          string
	LocalColumns   []string // reference the owner's id columns
	ForeignColumns []string // reference the target's id columns
}

// Association links an owner type to a target type.
type Association struct {
	Name           string
	Kind           AssocKind
	Target         string
	LocalColumns   []string
	ForeignColumns []string
	Optional       bool
	Intersection   *Intersection
}

// IsManyToMany reports whether the association goes through a link table.
func (a Association) IsManyToMany() bool {
	return a.Kind == AssocMany && a.Intersection != nil
}

// Discriminator maps a column value to a concrete type name for single table
// inheritance.
type Discriminator struct {
	Column string
	Values map[string]string
}

// TypeFor returns the concrete type name for a discriminator value.
func (d *Discriminator) TypeFor(value string) (string, bool) {
	name, ok := d.Values[value]
	return name, ok
}

// SecondaryTable holds extra columns of an entity on a different table.
type SecondaryTable struct {
	Name           string
	Table          string
	LocalColumns   []string // owner id columns
	ForeignColumns []string // columns on the secondary table
}

// Descriptor is the deployed metadata of one entity type.
type Descriptor struct {
	Name          string
	Table         string
	Props         []Property
	Assocs        []Association
	Default       []string
	Discriminator *Discriminator
	Secondaries   []SecondaryTable

	// Embeddable marks value types that only exist inside an owner.
	Embeddable bool
}

// Properties returns all persistent scalar properties in declaration order.
func (d *Descriptor) Properties() []Property {
	return d.Props
}

// Property looks up a scalar property by name.
func (d *Descriptor) Property(name string) (Property, bool) {
	for _, p := range d.Props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertyByColumn looks up a main-table scalar property by column name.
func (d *Descriptor) PropertyByColumn(column string) (Property, bool) {
	for _, p := range d.Props {
		if p.Column == column && p.Table == "" && !p.IsFormula() {
			return p, true
		}
	}
	return Property{}, false
}

// Association looks up an association by name.
func (d *Descriptor) Association(name string) (Association, bool) {
	for _, a := range d.Assocs {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// DefaultSelect returns the default select clause. When the descriptor
// declares none, every scalar property name is returned.
func (d *Descriptor) DefaultSelect() []string {
	if len(d.Default) > 0 {
		return slices.Clone(d.Default)
	}
	names := make([]string, 0, len(d.Props))
	for _, p := range d.Props {
		names = append(names, p.Name)
	}
	return names
}

// IDProperties returns the id properties in declaration order.
func (d *Descriptor) IDProperties() []Property {
	var ids []Property
	for _, p := range d.Props {
		if p.ID {
			ids = append(ids, p)
		}
	}
	return ids
}

// IDColumns returns the id column names in declaration order.
func (d *Descriptor) IDColumns() []string {
	ids := d.IDProperties()
	cols := make([]string, len(ids))
	for i, p := range ids {
		cols[i] = p.Column
	}
	return cols
}

// Secondary looks up a secondary table by name.
func (d *Descriptor) Secondary(name string) (SecondaryTable, bool) {
	for _, s := range d.Secondaries {
		if s.Name == name {
			return s, true
		}
	}
	return SecondaryTable{}, false
}

// Provider supplies descriptors by type name.
//
// Implementations must be safe for concurrent use: plans for different
// queries are built concurrently.
type Provider interface {
	Descriptor(typeName string) (*Descriptor, error)
}
