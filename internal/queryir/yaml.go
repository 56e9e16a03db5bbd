package queryir

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// queryFile is the on-disk form of a Query.
type queryFile struct {
	Type     string      `yaml:"type"`
	Select   yaml.Node   `yaml:"select,omitempty"`
	Joins    []joinEntry `yaml:"joins,omitempty"`
	Where    string      `yaml:"where,omitempty"`
	OrderBy  string      `yaml:"order_by,omitempty"`
	Params   []any       `yaml:"params,omitempty"`
	FirstRow int         `yaml:"first_row,omitempty"`
	MaxRows  int         `yaml:"max_rows,omitempty"`
}

type joinEntry struct {
	Path   string    `yaml:"path"`
	Mode   string    `yaml:"mode,omitempty"`
	Batch  int       `yaml:"batch,omitempty"`
	Select yaml.Node `yaml:"select,omitempty"`
}

// ParseYAML decodes a query file.
//
// Example:
//
//	type: Customer
//	select: [id, name]
//	joins:
//	  - path: contacts
//	  - path: orders
//	    mode: query
//	    batch: 50
//	where: "{status} = ?"
//	params: [ACTIVE]
//
// A selection may be a list of names, the scalar "*" (all properties) or
// omitted (default select clause).
func ParseYAML(data []byte) (*Query, error) {
	var f queryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	sel, err := decodeSelection(&f.Select)
	if err != nil {
		return nil, fmt.Errorf("parse query select: %w", err)
	}

	q := &Query{
		Type:     f.Type,
		Select:   sel,
		Where:    f.Where,
		OrderBy:  f.OrderBy,
		Params:   f.Params,
		FirstRow: f.FirstRow,
		MaxRows:  f.MaxRows,
	}

	for _, je := range f.Joins {
		mode, err := ParseFetchMode(je.Mode)
		if err != nil {
			return nil, fmt.Errorf("parse join %q: %w", je.Path, err)
		}
		jsel, err := decodeSelection(&je.Select)
		if err != nil {
			return nil, fmt.Errorf("parse join %q select: %w", je.Path, err)
		}
		q.Joins = append(q.Joins, JoinSpec{Path: je.Path, Mode: mode, BatchSize: je.Batch, Select: jsel})
	}

	return q, nil
}

// LoadFile reads and decodes a query file.
func LoadFile(path string) (*Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	return ParseYAML(data)
}

func decodeSelection(n *yaml.Node) (PropertySelection, error) {
	switch n.Kind {
	case 0:
		return PropertySelection{}, nil
	case yaml.ScalarNode:
		if n.Value == "*" {
			return AllProps(), nil
		}
		if n.Value == "" {
			return PropertySelection{}, nil
		}
		return Props(n.Value), nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return PropertySelection{}, err
		}
		return Props(names...), nil
	default:
		return PropertySelection{}, fmt.Errorf("line %d: selection must be a list or \"*\"", n.Line)
	}
}
