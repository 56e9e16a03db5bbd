package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/beanplan/internal/meta"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateEntity     = "E100" // entity declared twice
	ErrTableRequired       = "E101" // non-embeddable entity without table
	ErrIDRequired          = "E102" // non-embeddable entity without id property
	ErrDuplicateName       = "E103" // property/association name reused
	ErrInvalidProperty     = "E104" // column and formula both set, or neither
	ErrUnknownSecondary    = "E105" // property on an undeclared secondary table
	ErrUnknownDefault      = "E106" // default select names an unknown property
	ErrUnknownTarget       = "E107" // association target not declared
	ErrColumnMismatch      = "E108" // local/foreign column counts differ
	ErrLinkColumns         = "E109" // link columns are not the id columns
	ErrEmbeddedTarget      = "E110" // embedded/entity target kind mismatch
	ErrInvalidDiscriminant = "E111" // discriminator without column or values
	ErrInvalidName         = "E112" // name is not an identifier
)

// ValidationError represents a metadata validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identPattern matches property and association names. Dots are reserved
// as path separators.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks descriptors against each other.
// Returns all errors found (does not fail-fast).
func Validate(descs []*meta.Descriptor) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]*meta.Descriptor, len(descs))
	for i, d := range descs {
		if _, dup := byName[d.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity[%d]", i),
				Message: fmt.Sprintf("duplicate entity %q", d.Name),
				Code:    ErrDuplicateEntity,
			})
			continue
		}
		byName[d.Name] = d
	}

	for _, d := range descs {
		errs = append(errs, validateDescriptor(d, byName)...)
	}
	return errs
}

func validateDescriptor(d *meta.Descriptor, byName map[string]*meta.Descriptor) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   d.Name + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !d.Embeddable {
		if strings.TrimSpace(d.Table) == "" {
			add(".table", ErrTableRequired, "table is required")
		}
		if len(d.IDProperties()) == 0 {
			add(".properties", ErrIDRequired, "at least one id property is required")
		}
	}

	names := make(map[string]bool)
	for _, p := range d.Props {
		field := ".properties." + p.Name
		if !identPattern.MatchString(p.Name) {
			add(field, ErrInvalidName, "invalid property name %q", p.Name)
		}
		if names[p.Name] {
			add(field, ErrDuplicateName, "duplicate name %q", p.Name)
		}
		names[p.Name] = true

		switch {
		case p.Column != "" && p.IsFormula():
			add(field, ErrInvalidProperty, "column and formula are mutually exclusive")
		case p.Column == "" && !p.IsFormula():
			add(field, ErrInvalidProperty, "column or formula is required")
		case p.ID && p.IsFormula():
			add(field, ErrInvalidProperty, "id property cannot be a formula")
		}
		if p.Table != "" {
			if _, ok := d.Secondary(p.Table); !ok {
				add(field, ErrUnknownSecondary, "unknown secondary table %q", p.Table)
			}
		}
	}

	for _, a := range d.Assocs {
		field := ".associations." + a.Name
		if !identPattern.MatchString(a.Name) {
			add(field, ErrInvalidName, "invalid association name %q", a.Name)
		}
		if names[a.Name] {
			add(field, ErrDuplicateName, "duplicate name %q", a.Name)
		}
		names[a.Name] = true

		target, ok := byName[a.Target]
		if !ok {
			add(field, ErrUnknownTarget, "unknown target entity %q", a.Target)
			continue
		}
		for _, e := range validateAssociation(d, a, target) {
			add(field, e.Code, "%s", e.Message)
		}
	}

	for _, name := range d.Default {
		if _, ok := d.Property(name); ok {
			continue
		}
		if _, ok := d.Association(name); ok {
			continue
		}
		add(".default", ErrUnknownDefault, "unknown property %q", name)
	}

	for _, s := range d.Secondaries {
		if s.Table == "" || len(s.LocalColumns) == 0 || len(s.LocalColumns) != len(s.ForeignColumns) {
			add(".secondaries."+s.Name, ErrColumnMismatch, "secondary table needs a table and matching column lists")
		}
	}

	if disc := d.Discriminator; disc != nil {
		if disc.Column == "" || len(disc.Values) == 0 {
			add(".discriminator", ErrInvalidDiscriminant, "discriminator needs a column and at least one value")
		}
	}
	return errs
}

// validateAssociation checks the columns an association joins and links on.
// Only Code and Message of the returned errors are set.
func validateAssociation(owner *meta.Descriptor, a meta.Association, target *meta.Descriptor) []ValidationError {
	var errs []ValidationError
	fail := func(code, format string, args ...any) {
		errs = append(errs, ValidationError{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if a.Kind == meta.AssocEmbedded {
		if !target.Embeddable {
			fail(ErrEmbeddedTarget, "embedded target %s is not embeddable", target.Name)
		}
		return errs
	}
	if target.Embeddable {
		fail(ErrEmbeddedTarget, "%s target %s is embeddable", a.Kind, target.Name)
		return errs
	}

	if len(a.LocalColumns) == 0 || len(a.LocalColumns) != len(a.ForeignColumns) {
		fail(ErrColumnMismatch, "local and foreign columns must be non-empty and of equal length")
		return errs
	}

	switch {
	case a.Kind == meta.AssocOne:
		// Deferred references are keyed by the target's id.
		if !slices.Equal(a.ForeignColumns, target.IDColumns()) {
			fail(ErrLinkColumns, "foreign columns %v must be the id columns of %s", a.ForeignColumns, target.Name)
		}
	case a.IsManyToMany():
		inter := a.Intersection
		if inter.Table == "" {
			fail(ErrColumnMismatch, "intersection table is required")
		}
		if len(inter.LocalColumns) != len(owner.IDColumns()) {
			fail(ErrColumnMismatch, "intersection local columns must match the id of %s", owner.Name)
		}
		if len(inter.ForeignColumns) != len(a.ForeignColumns) {
			fail(ErrColumnMismatch, "intersection foreign columns must match the foreign columns")
		}
		if !slices.Equal(a.LocalColumns, owner.IDColumns()) {
			fail(ErrLinkColumns, "local columns %v must be the id columns of %s", a.LocalColumns, owner.Name)
		}
	default:
		// Collections are grouped by their owner's id.
		if !slices.Equal(a.LocalColumns, owner.IDColumns()) {
			fail(ErrLinkColumns, "local columns %v must be the id columns of %s", a.LocalColumns, owner.Name)
		}
	}
	return errs
}

// NewRegistry validates descs and returns a registry holding them.
func NewRegistry(descs []*meta.Descriptor) (*meta.Registry, []ValidationError) {
	if errs := Validate(descs); len(errs) > 0 {
		return nil, errs
	}
	return meta.NewRegistry(descs...), nil
}
