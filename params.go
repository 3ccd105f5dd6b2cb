package fastmssql

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
)

// encodeParams converts host values into ordered positional wire parameters.
// The variant set is closed: nil, bool, 64-bit-representable integers,
// floats, string and []byte. Slices and arrays of any other element type are
// expanded in place, one level deep, so a []int of three elements becomes
// three consecutive positional parameters.
func encodeParams(args []interface{}) ([]driver.NamedValue, error) {
	params := make([]driver.NamedValue, 0, len(args))
	for i, arg := range args {
		var err error
		params, err = appendParam(params, i, arg, true)
		if err != nil {
			return nil, err
		}
	}
	return params, nil
}

// appendParam encodes one host value, expanding iterables when expand is
// set. Elements of an expanded iterable are encoded with expand unset, so
// nesting beyond one level is rejected rather than deep-flattened.
func appendParam(params []driver.NamedValue, argIdx int, arg interface{}, expand bool) ([]driver.NamedValue, error) {
	push := func(v driver.Value) []driver.NamedValue {
		return append(params, driver.NamedValue{Ordinal: len(params) + 1, Value: v})
	}

	switch v := arg.(type) {
	case nil:
		return push(nil), nil
	case string:
		return push(v), nil
	case int:
		return push(int64(v)), nil
	case int8:
		return push(int64(v)), nil
	case int16:
		return push(int64(v)), nil
	case int32:
		return push(int64(v)), nil
	case int64:
		return push(v), nil
	case uint8:
		return push(int64(v)), nil
	case uint16:
		return push(int64(v)), nil
	case uint32:
		return push(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, &TypeConversionError{Index: argIdx, GoType: "uint64", Reason: fmt.Sprintf("value %d overflows a 64-bit signed integer", v)}
		}
		return push(int64(v)), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, &TypeConversionError{Index: argIdx, GoType: "uint", Reason: fmt.Sprintf("value %d overflows a 64-bit signed integer", v)}
		}
		return push(int64(v)), nil
	case float32:
		return push(float64(v)), nil
	case float64:
		return push(v), nil
	case bool:
		return push(v), nil
	case []byte:
		return push(v), nil
	}

	rv := reflect.ValueOf(arg)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if !expand {
			return nil, &TypeConversionError{Index: argIdx, GoType: reflect.TypeOf(arg).String(), Reason: "nested iterables are not expanded"}
		}
		var err error
		for i := 0; i < rv.Len(); i++ {
			params, err = appendParam(params, argIdx, rv.Index(i).Interface(), false)
			if err != nil {
				return nil, err
			}
		}
		return params, nil
	}

	return nil, &TypeConversionError{Index: argIdx, GoType: reflect.TypeOf(arg).String(), Reason: "unsupported parameter type"}
}
