package fastmssql

import (
	"database/sql/driver"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestEncodeParamsVariants(t *testing.T) {
	t.Parallel()

	got, err := encodeParams([]interface{}{nil, true, 42, 3.14, "x", []byte{0x01, 0x02}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []driver.Value{nil, true, int64(42), 3.14, "x", []byte{0x01, 0x02}}
	if len(got) != len(want) {
		t.Fatalf("got %d params, want %d", len(got), len(want))
	}
	for i, nv := range got {
		if nv.Ordinal != i+1 {
			t.Errorf("param %d: ordinal = %d, want %d", i, nv.Ordinal, i+1)
		}
		if !reflect.DeepEqual(nv.Value, want[i]) {
			t.Errorf("param %d: value = %#v, want %#v", i, nv.Value, want[i])
		}
	}
}

func TestEncodeParamsIntegerWidths(t *testing.T) {
	t.Parallel()

	got, err := encodeParams([]interface{}{
		int8(-8), int16(-16), int32(-32), int64(-64),
		uint8(8), uint16(16), uint32(32), uint64(64), uint(1), int(-1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{-8, -16, -32, -64, 8, 16, 32, 64, 1, -1}
	for i, w := range want {
		if got[i].Value.(int64) != w {
			t.Errorf("param %d = %v, want %d", i, got[i].Value, w)
		}
	}
}

func TestEncodeParamsUint64Overflow(t *testing.T) {
	t.Parallel()

	_, err := encodeParams([]interface{}{uint64(math.MaxInt64) + 1})
	var terr *TypeConversionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TypeConversionError, got %v", err)
	}
	if terr.GoType != "uint64" {
		t.Errorf("GoType = %q, want uint64", terr.GoType)
	}
}

func TestEncodeParamsExpansion(t *testing.T) {
	t.Parallel()

	got, err := encodeParams([]interface{}{"before", []int{1, 2, 3}, "after"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []driver.Value{"before", int64(1), int64(2), int64(3), "after"}
	if len(got) != len(want) {
		t.Fatalf("got %d params, want %d", len(got), len(want))
	}
	for i, w := range want {
		if !reflect.DeepEqual(got[i].Value, w) {
			t.Errorf("param %d = %#v, want %#v", i, got[i].Value, w)
		}
		if got[i].Ordinal != i+1 {
			t.Errorf("param %d ordinal = %d, want %d", i, got[i].Ordinal, i+1)
		}
	}
}

func TestEncodeParamsStringAndBytesNotExpanded(t *testing.T) {
	t.Parallel()

	got, err := encodeParams([]interface{}{"ab", []byte("cd")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d params, want 2: strings and byte slices must not expand", len(got))
	}
}

func TestEncodeParamsNestedSliceRejected(t *testing.T) {
	t.Parallel()

	_, err := encodeParams([]interface{}{[][]int{{1}, {2}}})
	var terr *TypeConversionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TypeConversionError for nested slice, got %v", err)
	}
}

func TestEncodeParamsUnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := encodeParams([]interface{}{struct{ X int }{1}})
	var terr *TypeConversionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TypeConversionError, got %v", err)
	}
	if terr.Index != 0 {
		t.Errorf("Index = %d, want 0", terr.Index)
	}
}
