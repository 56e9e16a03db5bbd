package querysql

import (
	"fmt"
	"strconv"
	"strings"
)

// PageArg identifies one paging argument appended after the bind values.
type PageArg int

const (
	// ArgLimit binds the number of rows to fetch.
	ArgLimit PageArg = iota
	// ArgOffset binds the number of rows to skip.
	ArgOffset
	// ArgLastRow binds the last row number to fetch (offset + limit).
	ArgLastRow
)

func (a PageArg) String() string {
	switch a {
	case ArgLimit:
		return "limit"
	case ArgOffset:
		return "offset"
	case ArgLastRow:
		return "last_row"
	default:
		return fmt.Sprintf("PageArg(%d)", int(a))
	}
}

// LimitOrder lists the paging arguments a dialect appended, in bind order.
// Paging values are always bound so the SQL text does not depend on them.
type LimitOrder []PageArg

// SelectParts is a rendered statement before paging.
type SelectParts struct {
	Distinct      bool
	Columns       []string
	ColumnAliases bool
	From          string
	Joins         []string
	Where         string
	OrderBy       string
}

// SQL assembles the plain statement.
func (p SelectParts) SQL() string {
	return p.sql(p.ColumnAliases, "")
}

func (p SelectParts) selectList(aliases bool) string {
	cols := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		if aliases {
			c = c + " c" + strconv.Itoa(i)
		}
		cols[i] = c
	}
	return strings.Join(cols, ", ")
}

func (p SelectParts) sql(aliases bool, prefix string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if p.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(prefix)
	sb.WriteString(p.selectList(aliases))
	sb.WriteString(" FROM ")
	sb.WriteString(p.From)
	for _, j := range p.Joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if p.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(p.Where)
	}
	if p.OrderBy != "" && prefix == "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(p.OrderBy)
	}
	return sb.String()
}

// Dialect renders database specific parts of a statement.
type Dialect interface {
	Name() string

	// Paginate assembles the statement, applying a row window when
	// hasFirst or hasMax is set.
	Paginate(parts SelectParts, hasFirst, hasMax bool) (string, LimitOrder, error)

	// Rebind converts ? placeholders to the dialect's bind syntax.
	Rebind(sql string) string
}

// DialectFor returns the dialect with the given name. "" means sqlite.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "ansi":
		return ANSI{}, nil
	case "rownumber":
		return RowNumber{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// SQLite pages with LIMIT/OFFSET.
type SQLite struct{}

// Name implements Dialect.
func (SQLite) Name() string { return "sqlite" }

// Paginate implements Dialect.
func (SQLite) Paginate(parts SelectParts, hasFirst, hasMax bool) (string, LimitOrder, error) {
	sql := parts.SQL()
	switch {
	case hasFirst && hasMax:
		return sql + " LIMIT ? OFFSET ?", LimitOrder{ArgLimit, ArgOffset}, nil
	case hasMax:
		return sql + " LIMIT ?", LimitOrder{ArgLimit}, nil
	case hasFirst:
		// SQLite has no OFFSET without LIMIT.
		return sql + " LIMIT -1 OFFSET ?", LimitOrder{ArgOffset}, nil
	}
	return sql, nil, nil
}

// Rebind implements Dialect.
func (SQLite) Rebind(sql string) string { return sql }

// Postgres pages with LIMIT/OFFSET and binds with $n.
type Postgres struct{}

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }

// Paginate implements Dialect.
func (Postgres) Paginate(parts SelectParts, hasFirst, hasMax bool) (string, LimitOrder, error) {
	sql := parts.SQL()
	switch {
	case hasFirst && hasMax:
		return sql + " LIMIT ? OFFSET ?", LimitOrder{ArgLimit, ArgOffset}, nil
	case hasMax:
		return sql + " LIMIT ?", LimitOrder{ArgLimit}, nil
	case hasFirst:
		return sql + " OFFSET ?", LimitOrder{ArgOffset}, nil
	}
	return sql, nil, nil
}

// Rebind implements Dialect. Placeholders inside single-quoted literals are
// left alone.
func (Postgres) Rebind(sql string) string {
	var sb strings.Builder
	n := 0
	quoted := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			quoted = !quoted
			sb.WriteByte(c)
		case c == '?' && !quoted:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// ANSI pages with OFFSET ... ROWS FETCH NEXT ... ROWS ONLY.
type ANSI struct{}

// Name implements Dialect.
func (ANSI) Name() string { return "ansi" }

// Paginate implements Dialect.
func (ANSI) Paginate(parts SelectParts, hasFirst, hasMax bool) (string, LimitOrder, error) {
	sql := parts.SQL()
	switch {
	case hasFirst && hasMax:
		return sql + " OFFSET ? ROWS FETCH NEXT ? ROWS ONLY", LimitOrder{ArgOffset, ArgLimit}, nil
	case hasMax:
		return sql + " FETCH FIRST ? ROWS ONLY", LimitOrder{ArgLimit}, nil
	case hasFirst:
		return sql + " OFFSET ? ROWS", LimitOrder{ArgOffset}, nil
	}
	return sql, nil, nil
}

// Rebind implements Dialect.
func (ANSI) Rebind(sql string) string { return sql }

// RowNumber pages by wrapping the statement in a ROW_NUMBER() window, for
// databases without LIMIT or OFFSET support.
type RowNumber struct{}

// Name implements Dialect.
func (RowNumber) Name() string { return "rownumber" }

// Paginate implements Dialect.
func (RowNumber) Paginate(parts SelectParts, hasFirst, hasMax bool) (string, LimitOrder, error) {
	if !hasFirst && !hasMax {
		return parts.SQL(), nil, nil
	}
	if parts.Distinct {
		return "", nil, fmt.Errorf("rownumber paging does not support distinct queries")
	}
	if parts.OrderBy == "" {
		return "", nil, fmt.Errorf("rownumber paging requires an order by")
	}

	inner := parts.sql(true, "ROW_NUMBER() OVER (ORDER BY "+parts.OrderBy+") rn_, ")
	outer := make([]string, len(parts.Columns))
	for i := range outer {
		outer[i] = "c" + strconv.Itoa(i)
	}

	var cond string
	var order LimitOrder
	switch {
	case hasFirst && hasMax:
		cond, order = "rn_ > ? AND rn_ <= ?", LimitOrder{ArgOffset, ArgLastRow}
	case hasMax:
		cond, order = "rn_ <= ?", LimitOrder{ArgLastRow}
	default:
		cond, order = "rn_ > ?", LimitOrder{ArgOffset}
	}
	sql := fmt.Sprintf("SELECT %s FROM (%s) p_ WHERE %s ORDER BY rn_", strings.Join(outer, ", "), inner, cond)
	return sql, order, nil
}

// Rebind implements Dialect.
func (RowNumber) Rebind(sql string) string { return sql }
