package fastmssql

import (
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/golang-sql/civil"
)

func TestDecodeCellTable(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 15, 10, 30, 45, 123456000, time.UTC)
	offset := time.Date(2024, 3, 15, 10, 0, 0, 0, time.FixedZone("", 2*3600))

	tests := []struct {
		name     string
		wireType string
		raw      driver.Value
		want     interface{}
	}{
		{"null", "INT", nil, nil},
		{"tinyint", "TINYINT", int64(255), int64(255)},
		{"int", "INT", int64(42), int64(42)},
		{"bigint", "BIGINT", int64(1 << 40), int64(1 << 40)},
		{"real", "REAL", float64(1.5), 1.5},
		{"float", "FLOAT", 3.14, 3.14},
		{"money", "MONEY", []byte("123.4567"), 123.4567},
		{"decimal", "DECIMAL", []byte("9.75"), 9.75},
		{"bit true", "BIT", true, true},
		{"bit false", "BIT", false, false},
		{"bit null stays null", "BIT", nil, nil},
		{"nvarchar", "NVARCHAR", "hello", "hello"},
		{"varchar bytes", "VARCHAR", []byte("bytes"), "bytes"},
		{"xml", "XML", "<a/>", "<a/>"},
		{"varbinary", "VARBINARY", []byte{0xde, 0xad}, []byte{0xde, 0xad}},
		{"date", "DATE", ts, civil.Date{Year: 2024, Month: time.March, Day: 15}},
		{"time", "TIME", ts, civil.TimeOf(ts)},
		{"datetime", "DATETIME", ts, ts},
		{"datetime2", "DATETIME2", ts, ts},
		{"unknown type string fallback", "GEOGRAPHY", []byte("POINT(0 0)"), "POINT(0 0)"},
		{"unknown type undecodable", "GEOGRAPHY", struct{}{}, nil},
		{"decode failure falls back to string", "DATETIME", "not a time", "not a time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := decodeCell(tt.wireType, tt.raw)
			switch want := tt.want.(type) {
			case []byte:
				gb, ok := got.([]byte)
				if !ok || string(gb) != string(want) {
					t.Errorf("decodeCell(%s) = %#v, want %#v", tt.wireType, got, want)
				}
			default:
				if got != tt.want {
					t.Errorf("decodeCell(%s) = %#v, want %#v", tt.wireType, got, tt.want)
				}
			}
		})
	}

	t.Run("datetimeoffset normalized to UTC", func(t *testing.T) {
		t.Parallel()
		got := decodeCell("DATETIMEOFFSET", offset)
		tv, ok := got.(time.Time)
		if !ok {
			t.Fatalf("got %#v, want time.Time", got)
		}
		if tv.Location() != time.UTC {
			t.Errorf("location = %v, want UTC", tv.Location())
		}
		if !tv.Equal(offset) {
			t.Errorf("instant changed: %v vs %v", tv, offset)
		}
	})

	t.Run("guid canonical text", func(t *testing.T) {
		t.Parallel()
		raw := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF}
		got := decodeCell("UNIQUEIDENTIFIER", raw)
		s, ok := got.(string)
		if !ok || len(s) != 36 {
			t.Fatalf("got %#v, want 36-char guid string", got)
		}
	})
}

func TestDecodeBytesCopies(t *testing.T) {
	t.Parallel()

	src := []byte{1, 2, 3}
	got := decodeCell("VARBINARY", src).([]byte)
	src[0] = 99
	if got[0] != 1 {
		t.Error("decoded bytes alias the driver buffer")
	}
}

func TestRowAccess(t *testing.T) {
	t.Parallel()

	info := newColumnInfo([]string{"a", "b"}, []string{"INT", "NVARCHAR"})
	row := materializeRow(info, []driver.Value{int64(1), "hi"})

	v, err := row.Get("a")
	if err != nil || v != int64(1) {
		t.Errorf("Get(a) = %v, %v", v, err)
	}
	v, err = row.Index(1)
	if err != nil || v != "hi" {
		t.Errorf("Index(1) = %v, %v", v, err)
	}

	if _, err := row.Get("missing"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrColumnNotFound", err)
	}
	if _, err := row.Index(2); err == nil {
		t.Error("Index(2) should be out of range")
	}
	if _, err := row.Index(-1); err == nil {
		t.Error("Index(-1) should be out of range")
	}

	// NULL in an existing column is nil with no error, unlike a missing
	// column.
	nullRow := materializeRow(info, []driver.Value{nil, nil})
	v, err = nullRow.Get("a")
	if err != nil || v != nil {
		t.Errorf("Get on NULL = %v, %v; want nil, nil", v, err)
	}
}

func TestSharedColumnInfoIdentity(t *testing.T) {
	t.Parallel()

	info := newColumnInfo([]string{"x"}, []string{"INT"})
	rows := make([]Row, 5)
	for i := range rows {
		rows[i] = materializeRow(info, []driver.Value{int64(i)})
	}
	for i := range rows {
		if rows[i].info != info {
			t.Fatalf("row %d does not share the result set schema", i)
		}
	}

	// Mutating one row's materialized values must not leak into another.
	rows[0].values[0] = int64(100)
	if v, _ := rows[1].Index(0); v != int64(1) {
		t.Errorf("row 1 value changed to %v after mutating row 0", v)
	}
}

func TestColumnInfoDuplicateNames(t *testing.T) {
	t.Parallel()

	info := newColumnInfo([]string{"a", "a"}, []string{"INT", "NVARCHAR"})
	i, ok := info.Index("a")
	if !ok || i != 0 {
		t.Errorf("Index(a) = %d, %v; want first occurrence", i, ok)
	}
}
