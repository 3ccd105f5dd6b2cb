// Package columnar converts SQL Server result sets into a typed columnar
// table representation suitable for handing to analytics tooling. Wire types
// map to columnar field types with exact fixed-point decimals and
// microsecond-precision timestamps, unlike the row materializer's scalar
// float64 mapping.
package columnar

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"
)

// FieldType enumerates the columnar value types.
type FieldType int

const (
	// Int64 holds every SQL integer width.
	Int64 FieldType = iota
	// Float64 holds real and float columns.
	Float64
	// Bool holds bit columns.
	Bool
	// String holds character, xml and uniqueidentifier columns.
	String
	// Binary holds binary, varbinary and image columns.
	Binary
	// Decimal holds money and decimal/numeric columns as fixed-point
	// values at the field's precision and scale.
	Decimal
	// Timestamp holds the datetime family as microseconds since the Unix
	// epoch.
	Timestamp
	// Date holds date columns as calendar dates.
	Date
	// Time holds time columns as microseconds since midnight.
	Time
)

func (t FieldType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Binary:
		return "binary"
	case Decimal:
		return "decimal"
	case Timestamp:
		return "timestamp[us]"
	case Date:
		return "date"
	case Time:
		return "time[us]"
	}
	return "unknown"
}

// Field describes one column of the table.
type Field struct {
	Name string
	Type FieldType
	// Precision and Scale are set for Decimal fields only.
	Precision int32
	Scale     int32
}

// Column is one typed value vector. Data holds one entry per row; Valid is
// false where the cell is SQL NULL, in which case the Data entry is nil.
type Column struct {
	Field Field
	Data  []interface{}
	Valid []bool
}

// Table is a fully materialized columnar result set. A zero-row result
// still carries its complete typed schema.
type Table struct {
	Fields  []Field
	Columns []Column
	NumRows int
}

// fieldOf maps a wire type tag to its columnar field. Money carries
// decimal(38,4), general decimal/numeric decimal(38,10), mirroring the
// fixed scales SQL Server guarantees for the money family.
func fieldOf(name, wireType string) Field {
	switch wireType {
	case "TINYINT", "SMALLINT", "INT", "BIGINT":
		return Field{Name: name, Type: Int64}
	case "REAL", "FLOAT":
		return Field{Name: name, Type: Float64}
	case "BIT":
		return Field{Name: name, Type: Bool}
	case "MONEY", "SMALLMONEY":
		return Field{Name: name, Type: Decimal, Precision: 38, Scale: 4}
	case "DECIMAL", "NUMERIC":
		return Field{Name: name, Type: Decimal, Precision: 38, Scale: 10}
	case "BINARY", "VARBINARY", "IMAGE":
		return Field{Name: name, Type: Binary}
	case "DATE":
		return Field{Name: name, Type: Date}
	case "TIME":
		return Field{Name: name, Type: Time}
	case "DATETIME", "SMALLDATETIME", "DATETIME2", "DATETIMEOFFSET":
		return Field{Name: name, Type: Timestamp}
	default:
		// char/text/xml/guid and anything unrecognized degrade to text.
		return Field{Name: name, Type: String}
	}
}

// Build converts raw driver rows into a typed table. names and wireTypes
// describe the result-set schema in column order; every row must have
// len(names) cells.
func Build(names, wireTypes []string, rows [][]driver.Value) (*Table, error) {
	if len(names) != len(wireTypes) {
		return nil, fmt.Errorf("columnar: %d names for %d wire types", len(names), len(wireTypes))
	}
	t := &Table{
		Fields:  make([]Field, len(names)),
		Columns: make([]Column, len(names)),
		NumRows: len(rows),
	}
	for i, name := range names {
		t.Fields[i] = fieldOf(name, wireTypes[i])
		t.Columns[i] = Column{
			Field: t.Fields[i],
			Data:  make([]interface{}, len(rows)),
			Valid: make([]bool, len(rows)),
		}
	}

	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("columnar: row %d has %d cells, schema has %d columns", r, len(row), len(names))
		}
		for c := range names {
			v, ok := convertCell(t.Fields[c], row[c])
			if !ok {
				continue // NULL or undecodable cell stays invalid
			}
			t.Columns[c].Data[r] = v
			t.Columns[c].Valid[r] = true
		}
	}
	return t, nil
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Field.Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// convertCell coerces one raw driver value into the field's columnar
// representation. NULL and conversion failures report ok=false.
func convertCell(f Field, v driver.Value) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Type {
	case Int64:
		n, ok := v.(int64)
		return n, ok
	case Float64:
		switch n := v.(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		}
	case Bool:
		b, ok := v.(bool)
		return b, ok
	case Decimal:
		d, ok := parseDecimal(v)
		if !ok {
			return nil, false
		}
		return d.Round(f.Scale), true
	case Binary:
		b, ok := v.([]byte)
		if !ok {
			return nil, false
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, true
	case Date:
		tv, ok := v.(time.Time)
		if !ok {
			return nil, false
		}
		return civil.DateOf(tv), true
	case Time:
		tv, ok := v.(time.Time)
		if !ok {
			return nil, false
		}
		micros := int64(tv.Hour())*3600e6 + int64(tv.Minute())*60e6 +
			int64(tv.Second())*1e6 + int64(tv.Nanosecond())/1e3
		return micros, true
	case Timestamp:
		tv, ok := v.(time.Time)
		if !ok {
			return nil, false
		}
		return tv.UTC().UnixMicro(), true
	case String:
		switch s := v.(type) {
		case string:
			return s, true
		case []byte:
			// The driver delivers uniqueidentifier cells as raw bytes
			// with SQL Server's mixed byte order.
			if len(s) == 16 {
				var u mssql.UniqueIdentifier
				if err := u.Scan(s); err == nil {
					return u.String(), true
				}
			}
			return string(s), true
		}
	}
	return nil, false
}

func parseDecimal(v driver.Value) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case []byte:
		d, err := decimal.NewFromString(string(n))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}
