package fastmssql

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"
)

// ColumnInfo is the per-result-set schema: ordered column names, a
// name-to-index map and the wire type tag of every column. It is built once
// per result set and shared by reference across all of its rows.
type ColumnInfo struct {
	names []string
	types []string
	index map[string]int
}

func newColumnInfo(names, types []string) *ColumnInfo {
	info := &ColumnInfo{
		names: names,
		types: types,
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		// First occurrence wins for duplicate column names, matching
		// positional access semantics.
		if _, ok := info.index[name]; !ok {
			info.index[name] = i
		}
	}
	return info
}

// Names returns the column names in result-set order.
func (ci *ColumnInfo) Names() []string {
	out := make([]string, len(ci.names))
	copy(out, ci.names)
	return out
}

// Len returns the number of columns.
func (ci *ColumnInfo) Len() int { return len(ci.names) }

// Index returns the position of a named column.
func (ci *ColumnInfo) Index(name string) (int, bool) {
	i, ok := ci.index[name]
	return i, ok
}

// WireType returns the protocol-level type tag of the column at i, such as
// "INT", "NVARCHAR" or "DATETIMEOFFSET".
func (ci *ColumnInfo) WireType(i int) string { return ci.types[i] }

// Row is one materialized result row. Values are converted eagerly at fetch
// time; SQL NULL is represented as nil.
type Row struct {
	info   *ColumnInfo
	values []interface{}
}

// Get returns the value of the named column. A missing column is an error
// (ErrColumnNotFound); a SQL NULL in an existing column is nil with no
// error.
func (r Row) Get(name string) (interface{}, error) {
	i, ok := r.info.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return r.values[i], nil
}

// Index returns the value at the given column position.
func (r Row) Index(i int) (interface{}, error) {
	if i < 0 || i >= len(r.values) {
		return nil, fmt.Errorf("fastmssql: column index %d out of range [0, %d)", i, len(r.values))
	}
	return r.values[i], nil
}

// Columns returns the column names of the result set this row belongs to.
func (r Row) Columns() []string { return r.info.Names() }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// Values returns a copy of the row values in column order.
func (r Row) Values() []interface{} {
	out := make([]interface{}, len(r.values))
	copy(out, r.values)
	return out
}

// Map returns the row as a name-to-value map. Duplicate column names keep
// the first occurrence.
func (r Row) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for name, i := range r.info.index {
		out[name] = r.values[i]
	}
	return out
}

// Rows is a fully materialized result set.
type Rows struct {
	info *ColumnInfo
	rows []Row
}

// Columns returns the column names.
func (r *Rows) Columns() []string { return r.info.Names() }

// ColumnInfo returns the shared schema of this result set.
func (r *Rows) ColumnInfo() *ColumnInfo { return r.info }

// Len returns the number of rows.
func (r *Rows) Len() int { return len(r.rows) }

// Row returns the row at index i.
func (r *Rows) Row(i int) Row { return r.rows[i] }

// All returns every row.
func (r *Rows) All() []Row { return r.rows }

// materializeRow eagerly converts one raw row into host values, sharing the
// result set's ColumnInfo.
func materializeRow(info *ColumnInfo, raw []driver.Value) Row {
	values := make([]interface{}, len(raw))
	for i, v := range raw {
		values[i] = decodeCell(info.types[i], v)
	}
	return Row{info: info, values: values}
}

// decodeFunc converts one raw cell. A false return means the raw value did
// not match the expected shape and the fallback chain takes over.
type decodeFunc func(driver.Value) (interface{}, bool)

// decodeTable dispatches on the wire type tag. Every tag the driver can
// report maps either to an entry here or to the best-effort fallback.
var decodeTable = map[string]decodeFunc{
	"TINYINT":  decodeInt,
	"SMALLINT": decodeInt,
	"INT":      decodeInt,
	"BIGINT":   decodeInt,

	"REAL":  decodeFloat,
	"FLOAT": decodeFloat,

	"SMALLMONEY": decodeDecimalFloat,
	"MONEY":      decodeDecimalFloat,
	"DECIMAL":    decodeDecimalFloat,
	"NUMERIC":    decodeDecimalFloat,

	"BIT": decodeBool,

	"VARCHAR":  decodeString,
	"NVARCHAR": decodeString,
	"CHAR":     decodeString,
	"NCHAR":    decodeString,
	"TEXT":     decodeString,
	"NTEXT":    decodeString,
	"XML":      decodeString,

	"UNIQUEIDENTIFIER": decodeGUID,

	"BINARY":    decodeBytes,
	"VARBINARY": decodeBytes,
	"IMAGE":     decodeBytes,

	"DATE": decodeDate,
	"TIME": decodeTime,

	"DATETIME":      decodeDateTime,
	"SMALLDATETIME": decodeDateTime,
	"DATETIME2":     decodeDateTime,

	"DATETIMEOFFSET": decodeDateTimeOffset,
}

// decodeCell never fails: an unrecognized tag or a value that defeats its
// decoder degrades through a string fallback and finally to nil.
func decodeCell(wireType string, v driver.Value) interface{} {
	if v == nil {
		return nil
	}
	if decode, ok := decodeTable[wireType]; ok {
		if out, ok := decode(v); ok {
			return out
		}
	}
	if out, ok := decodeString(v); ok {
		return out
	}
	return nil
}

func decodeInt(v driver.Value) (interface{}, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return nil, false
}

func decodeFloat(v driver.Value) (interface{}, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return nil, false
}

// decodeDecimalFloat maps fixed-scale decimal and money cells to float64.
// The driver delivers them as decimal digit strings; precision beyond what a
// float64 holds is lost here. The columnar boundary keeps them exact.
func decodeDecimalFloat(v driver.Value) (interface{}, bool) {
	d, ok := decodeDecimalExact(v)
	if !ok {
		return nil, false
	}
	f, _ := d.Float64()
	return f, true
}

// decodeDecimalExact parses a decimal cell without losing precision.
func decodeDecimalExact(v driver.Value) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case []byte:
		d, err := decimal.NewFromString(string(n))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

// decodeBool is NULL-safe by construction: nil never reaches decoders, so a
// NULL bit stays nil rather than reading as false.
func decodeBool(v driver.Value) (interface{}, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case []byte:
		if len(b) == 1 {
			return b[0] != 0, true
		}
	}
	return nil, false
}

func decodeString(v driver.Value) (interface{}, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return nil, false
}

// decodeGUID renders uniqueidentifier cells in their canonical text form.
// The driver hands over the raw 16 bytes with SQL Server's mixed byte order;
// mssql.UniqueIdentifier owns that swizzle.
func decodeGUID(v driver.Value) (interface{}, bool) {
	switch g := v.(type) {
	case []byte:
		var u mssql.UniqueIdentifier
		if err := u.Scan(g); err != nil {
			return nil, false
		}
		return u.String(), true
	case string:
		return g, true
	}
	return nil, false
}

func decodeBytes(v driver.Value) (interface{}, bool) {
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

func decodeDate(v driver.Value) (interface{}, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, false
	}
	return civil.DateOf(t), true
}

func decodeTime(v driver.Value) (interface{}, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, false
	}
	return civil.TimeOf(t), true
}

// decodeDateTime keeps the server-naive timestamp as delivered by the
// driver, without reinterpreting its zone.
func decodeDateTime(v driver.Value) (interface{}, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, false
	}
	return t, true
}

// decodeDateTimeOffset normalizes zoned timestamps to UTC.
func decodeDateTimeOffset(v driver.Value) (interface{}, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, false
	}
	return t.UTC(), true
}
