package iss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnType is a cell type declared in a section's metadata block.
type ColumnType string

const (
	TypeInt32    ColumnType = "int32"
	TypeInt64    ColumnType = "int64"
	TypeDouble   ColumnType = "double"
	TypeDate     ColumnType = "date"
	TypeDateTime ColumnType = "datetime"
	TypeTime     ColumnType = "time"
	TypeString   ColumnType = "string"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"

	// The service uses this literal for "no date".
	nullDate = "0000-00-00"
)

// Column is one declared column of a tabular section.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a decoded tabular section: an ordered set of typed columns and an
// ordered set of rows. Every row holds exactly one value per column; column
// order follows the response. Cell values are int64, decimal.Decimal,
// time.Time or string depending on the declared type; a nil cell is a null.
type Table struct {
	section string
	columns []Column
	index   map[string]int
	rows    [][]interface{}
}

// sectionBlock is the wire shape of one tabular section.
type sectionBlock struct {
	Metadata map[string]struct {
		Type string `json:"type"`
	} `json:"metadata"`
	Columns []string            `json:"columns"`
	Data    [][]json.RawMessage `json:"data"`
}

func decodeTable(section string, raw json.RawMessage) (*Table, error) {
	var block sectionBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, malformedf(section, "decode block: %v", err)
	}
	if block.Columns == nil {
		return nil, malformedf(section, "columns missing")
	}

	t := &Table{
		section: section,
		columns: make([]Column, len(block.Columns)),
		index:   make(map[string]int, len(block.Columns)),
		rows:    make([][]interface{}, 0, len(block.Data)),
	}
	for i, name := range block.Columns {
		typ := TypeString
		if meta, ok := block.Metadata[name]; ok && meta.Type != "" {
			typ = ColumnType(meta.Type)
		}
		t.columns[i] = Column{Name: name, Type: typ}
		t.index[strings.ToLower(name)] = i
	}

	for rowNo, raw := range block.Data {
		if len(raw) != len(t.columns) {
			return nil, malformedf(section, "row %d has %d values, want %d", rowNo, len(raw), len(t.columns))
		}
		row := make([]interface{}, len(raw))
		for i, cell := range raw {
			value, err := parseCell(t.columns[i].Type, cell)
			if err != nil {
				return nil, malformedf(section, "row %d column %q: %v", rowNo, t.columns[i].Name, err)
			}
			row[i] = value
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func parseCell(typ ColumnType, raw json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	literal := string(trimmed)
	quoted := literal[0] == '"'
	if quoted {
		var err error
		if literal, err = unquote(trimmed); err != nil {
			return nil, err
		}
	}

	switch typ {
	case TypeInt32, TypeInt64:
		n, err := decimal.NewFromString(literal)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %v", typ, literal, err)
		}
		if !n.IsInteger() {
			return nil, fmt.Errorf("parse %s %q: not an integer", typ, literal)
		}
		return n.IntPart(), nil
	case TypeDouble:
		d, err := decimal.NewFromString(literal)
		if err != nil {
			return nil, fmt.Errorf("parse double %q: %v", literal, err)
		}
		return d, nil
	case TypeDate:
		s := strings.TrimSpace(literal)
		if s == nullDate || s == "" {
			return nil, nil
		}
		ts, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %v", s, err)
		}
		return ts, nil
	case TypeDateTime:
		s := strings.TrimSpace(literal)
		ts, err := time.Parse(dateTimeLayout, s)
		if err != nil {
			if ts, err = time.Parse(time.RFC3339, s); err != nil {
				return nil, fmt.Errorf("parse datetime %q: %v", s, err)
			}
		}
		return ts, nil
	case TypeTime:
		s := strings.TrimSpace(literal)
		ts, err := time.Parse(timeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %v", s, err)
		}
		return ts, nil
	default:
		if quoted {
			return literal, nil
		}
		// Numbers and booleans in an untyped column keep their literal form.
		return literal, nil
	}
}

func unquote(raw []byte) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("parse string %s: %v", raw, err)
	}
	return s, nil
}

// Section returns the response section this table was decoded from.
func (t *Table) Section() string { return t.section }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns the declared columns in response order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnIndex returns the position of the named column, or -1 when absent.
// Lookup is case-insensitive.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the named column was declared.
func (t *Table) HasColumn(name string) bool { return t.ColumnIndex(name) >= 0 }

// Value returns the raw cell value, or nil for nulls and unknown columns.
func (t *Table) Value(row int, column string) interface{} {
	i := t.ColumnIndex(column)
	if i < 0 || row < 0 || row >= len(t.rows) {
		return nil
	}
	return t.rows[row][i]
}

// IsNull reports whether the cell holds a null.
func (t *Table) IsNull(row int, column string) bool {
	return t.Value(row, column) == nil
}

// String returns the cell as a string; non-string cells are formatted,
// nulls yield "".
func (t *Table) String(row int, column string) string {
	switch v := t.Value(row, column).(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.Format(dateTimeLayout)
	default:
		return ""
	}
}

// Int returns the cell as int64; nulls and non-numeric cells yield 0.
func (t *Table) Int(row int, column string) int64 {
	switch v := t.Value(row, column).(type) {
	case int64:
		return v
	case decimal.Decimal:
		return v.IntPart()
	default:
		return 0
	}
}

// Decimal returns the cell as an exact decimal; nulls yield zero.
func (t *Table) Decimal(row int, column string) decimal.Decimal {
	switch v := t.Value(row, column).(type) {
	case decimal.Decimal:
		return v
	case int64:
		return decimal.NewFromInt(v)
	default:
		return decimal.Decimal{}
	}
}

// Float returns the cell as float64; exact decimals are rounded to the
// nearest representable value.
func (t *Table) Float(row int, column string) float64 {
	switch v := t.Value(row, column).(type) {
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Time returns the cell as a timestamp; nulls and non-temporal cells yield
// the zero time.
func (t *Table) Time(row int, column string) time.Time {
	if v, ok := t.Value(row, column).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Record is one row keyed by lower-cased column name.
type Record map[string]interface{}

// Records converts the table into a slice of maps keyed by lower-cased
// column names, preserving row order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.rows))
	for r, row := range t.rows {
		rec := make(Record, len(t.columns))
		for i, col := range t.columns {
			rec[strings.ToLower(col.Name)] = row[i]
		}
		out[r] = rec
	}
	return out
}

// appendRows extends the table with another page of the same section.
func (t *Table) appendRows(page *Table) error {
	if len(page.columns) != len(t.columns) {
		return malformedf(t.section, "page has %d columns, want %d", len(page.columns), len(t.columns))
	}
	for i := range t.columns {
		if page.columns[i].Name != t.columns[i].Name {
			return malformedf(t.section, "page column %d is %q, want %q", i, page.columns[i].Name, t.columns[i].Name)
		}
	}
	t.rows = append(t.rows, page.rows...)
	return nil
}
