package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/beanplan/internal/meta"
)

// CompileEntities compiles every field of the top-level "entity" struct of v
// into descriptors, in declaration order.
//
//	entity: Customer: {
//		table: "customer"
//		properties: {
//			id:   {column: "id", id: true}
//			name: "name"
//		}
//	}
func CompileEntities(v cue.Value) ([]*meta.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, nil
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var descs []*meta.Descriptor
	for iter.Next() {
		d, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// CompileEntity parses a CUE value into a Descriptor. The entity name is the
// value's last path selector.
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess):
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Tag: { ... }`)
//	d, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Tag")))
func CompileEntity(v cue.Value) (*meta.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &meta.Descriptor{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		d.Name = unquote(labels[len(labels)-1].String())
	}

	var err error
	if d.Embeddable, err = optionalBool(v, "embeddable"); err != nil {
		return nil, err
	}
	if d.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if d.Table == "" && !d.Embeddable {
		return nil, &CompileError{
			Field:   d.Name + ".table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}

	if d.Props, err = parseProperties(d.Name, v); err != nil {
		return nil, err
	}
	if len(d.Props) == 0 {
		return nil, &CompileError{
			Field:   d.Name + ".properties",
			Message: "at least one property is required",
			Pos:     v.Pos(),
		}
	}
	if d.Default, err = optionalStrings(v, "default"); err != nil {
		return nil, err
	}
	if d.Assocs, err = parseAssociations(d.Name, v); err != nil {
		return nil, err
	}
	if d.Secondaries, err = parseSecondaries(v); err != nil {
		return nil, err
	}
	if d.Discriminator, err = parseDiscriminator(v); err != nil {
		return nil, err
	}
	return d, nil
}

// parseProperties accepts either the column name as a string or a struct:
//
//	name: "name"
//	id: {column: "id", id: true}
//	total: {formula: "${ta}.qty * ${ta}.price"}
func parseProperties(entity string, v cue.Value) ([]meta.Property, error) {
	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, nil
	}
	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []meta.Property
	for iter.Next() {
		name := unquote(iter.Selector().String())
		pv := iter.Value()
		p := meta.Property{Name: name}

		if column, err := pv.String(); err == nil {
			p.Column = column
			props = append(props, p)
			continue
		}
		if pv.IncompleteKind() != cue.StructKind {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.properties.%s", entity, name),
				Message: "must be a column name or a struct",
				Pos:     pv.Pos(),
			}
		}

		if p.Column, err = optionalString(pv, "column"); err != nil {
			return nil, err
		}
		if p.ID, err = optionalBool(pv, "id"); err != nil {
			return nil, err
		}
		if p.Formula, err = optionalString(pv, "formula"); err != nil {
			return nil, err
		}
		if p.FormulaJoin, err = optionalString(pv, "formula_join"); err != nil {
			return nil, err
		}
		if p.Table, err = optionalString(pv, "table"); err != nil {
			return nil, err
		}
		if p.Column == "" && p.Formula == "" {
			p.Column = name
		}
		props = append(props, p)
	}
	return props, nil
}

func parseAssociations(entity string, v cue.Value) ([]meta.Association, error) {
	assocsVal := v.LookupPath(cue.ParsePath("associations"))
	if !assocsVal.Exists() {
		return nil, nil
	}
	iter, err := assocsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var assocs []meta.Association
	for iter.Next() {
		name := unquote(iter.Selector().String())
		av := iter.Value()
		field := fmt.Sprintf("%s.associations.%s", entity, name)
		a := meta.Association{Name: name}

		kind, err := optionalString(av, "kind")
		if err != nil {
			return nil, err
		}
		if a.Kind, err = meta.ParseAssocKind(kind); err != nil {
			return nil, &CompileError{Field: field + ".kind", Message: err.Error(), Pos: av.Pos()}
		}
		if a.Target, err = optionalString(av, "target"); err != nil {
			return nil, err
		}
		if a.Target == "" {
			return nil, &CompileError{Field: field + ".target", Message: "target is required", Pos: av.Pos()}
		}
		if a.LocalColumns, err = optionalStrings(av, "local"); err != nil {
			return nil, err
		}
		if a.ForeignColumns, err = optionalStrings(av, "foreign"); err != nil {
			return nil, err
		}
		if a.Optional, err = optionalBool(av, "optional"); err != nil {
			return nil, err
		}

		if iv := av.LookupPath(cue.ParsePath("intersection")); iv.Exists() {
			inter := &meta.Intersection{}
			if inter.Table, err = optionalString(iv, "table"); err != nil {
				return nil, err
			}
			if inter.LocalColumns, err = optionalStrings(iv, "local"); err != nil {
				return nil, err
			}
			if inter.ForeignColumns, err = optionalStrings(iv, "foreign"); err != nil {
				return nil, err
			}
			a.Intersection = inter
		}
		assocs = append(assocs, a)
	}
	return assocs, nil
}

func parseSecondaries(v cue.Value) ([]meta.SecondaryTable, error) {
	secVal := v.LookupPath(cue.ParsePath("secondaries"))
	if !secVal.Exists() {
		return nil, nil
	}
	iter, err := secVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var secs []meta.SecondaryTable
	for iter.Next() {
		sv := iter.Value()
		s := meta.SecondaryTable{Name: unquote(iter.Selector().String())}
		if s.Table, err = optionalString(sv, "table"); err != nil {
			return nil, err
		}
		if s.LocalColumns, err = optionalStrings(sv, "local"); err != nil {
			return nil, err
		}
		if s.ForeignColumns, err = optionalStrings(sv, "foreign"); err != nil {
			return nil, err
		}
		secs = append(secs, s)
	}
	return secs, nil
}

func parseDiscriminator(v cue.Value) (*meta.Discriminator, error) {
	dv := v.LookupPath(cue.ParsePath("discriminator"))
	if !dv.Exists() {
		return nil, nil
	}
	disc := &meta.Discriminator{Values: make(map[string]string)}
	var err error
	if disc.Column, err = optionalString(dv, "column"); err != nil {
		return nil, err
	}

	valuesVal := dv.LookupPath(cue.ParsePath("values"))
	if valuesVal.Exists() {
		iter, err := valuesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			typeName, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			disc.Values[unquote(iter.Selector().String())] = typeName
		}
	}
	return disc, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// unquote strips the quotes CUE keeps on string labels such as "CAR".
func unquote(label string) string {
	if len(label) >= 2 && label[0] == '"' && label[len(label)-1] == '"' {
		return label[1 : len(label)-1]
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	ce := &CompileError{Field: "cue", Message: firstErr.Error()}
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
