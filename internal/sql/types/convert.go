package types

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dshills/cardest/internal/util/timeutil"
)

// ToDouble maps a non-null value onto the double axis used by range
// arithmetic. The mapping preserves order within one type.
func ToDouble(v Value) (float64, error) {
	if v.Null {
		return 0, fmt.Errorf("cannot convert NULL to double")
	}
	switch d := v.Data.(type) {
	case int:
		return float64(d), nil
	case int16:
		return float64(d), nil
	case int32:
		return float64(d), nil
	case int64:
		return float64(d), nil
	case uint64:
		return float64(d), nil
	case float32:
		return float64(d), nil
	case float64:
		return d, nil
	case bool:
		if d {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return timeutil.ToMicros(d), nil
	case string:
		return StringToDouble(d), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to double", v.Data)
	}
}

// LiteralToDouble converts v interpreted as type t. Strings holding numbers
// or dates are parsed according to t rather than hashed as text.
func LiteralToDouble(t DataType, v Value) (float64, error) {
	s, isString := v.Data.(string)
	if v.Null || !isString || t == nil {
		return ToDouble(v)
	}
	switch t.ID() {
	case SmallIntID, IntegerID, BigIntID, FloatID, DoubleID, DecimalID:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric literal %q: %w", s, err)
		}
		return f, nil
	case BooleanID:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return 0, fmt.Errorf("invalid boolean literal %q: %w", s, err)
		}
		return ToDouble(NewValue(b))
	case DateID, TimestampID:
		ts, err := parseTime(s)
		if err != nil {
			return 0, err
		}
		return timeutil.ToMicros(ts), nil
	}
	return StringToDouble(s), nil
}

// StringToDouble packs the first eight bytes of s into a big-endian number,
// which keeps lexicographic order for prefixes.
func StringToDouble(s string) float64 {
	var out float64
	for i := 0; i < 8; i++ {
		var c byte
		if i < len(s) {
			c = s[i]
		}
		out += float64(c) * math.Pow(256, float64(7-i))
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	return timeutil.Parse(s)
}

// Coerce converts v to the Go representation used for type t. Strings are
// parsed; numbers are widened or narrowed to the type's integer size.
func Coerce(t DataType, v Value) (Value, error) {
	if v.Null || t == nil {
		return v, nil
	}
	switch t.ID() {
	case SmallIntID, IntegerID, BigIntID:
		f, err := LiteralToDouble(t, v)
		if err != nil {
			return v, err
		}
		switch t.ID() {
		case SmallIntID:
			return NewValue(int16(f)), nil
		case IntegerID:
			return NewValue(int32(f)), nil
		}
		return NewValue(int64(f)), nil
	case FloatID, DoubleID, DecimalID:
		f, err := LiteralToDouble(t, v)
		if err != nil {
			return v, err
		}
		return NewValue(f), nil
	case BooleanID:
		f, err := LiteralToDouble(t, v)
		if err != nil {
			return v, err
		}
		return NewValue(f != 0), nil
	case DateID, TimestampID:
		switch d := v.Data.(type) {
		case time.Time:
			return NewValue(d.UTC()), nil
		case string:
			ts, err := parseTime(d)
			if err != nil {
				return v, err
			}
			return NewValue(ts), nil
		}
		return v, fmt.Errorf("cannot convert %T to %s", v.Data, t.Name())
	case VarcharID, TextID:
		if _, ok := v.Data.(string); ok {
			return v, nil
		}
		return NewValue(fmt.Sprintf("%v", v.Data)), nil
	}
	return v, nil
}
