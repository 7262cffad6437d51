package types

import (
	"fmt"
	"time"
)

// TypeID identifies the family of a SQL data type.
type TypeID int

const (
	UnknownID TypeID = iota
	BooleanID
	SmallIntID
	IntegerID
	BigIntID
	FloatID
	DoubleID
	DecimalID
	VarcharID
	TextID
	DateID
	TimestampID
	ArrayID
)

// DataType represents a SQL data type as seen by the optimizer.
type DataType interface {
	// Name returns the SQL name of the type (e.g., "INTEGER", "VARCHAR(16)")
	Name() string

	// ID returns the type family.
	ID() TypeID

	// Size returns the storage size in bytes (-1 for variable size)
	Size() int

	// Width returns the average width in bytes used for size estimates.
	Width() float64
}

// Value represents a SQL value that can be NULL
type Value struct {
	Data interface{}
	Null bool
}

// NewValue creates a non-null value
func NewValue(data interface{}) Value {
	return Value{Data: data, Null: false}
}

// NewNullValue creates a null value
func NewNullValue() Value {
	return Value{Data: nil, Null: true}
}

// IsNull returns true if the value is NULL
func (v Value) IsNull() bool {
	return v.Null
}

// String returns a string representation of the value
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	if t, ok := v.Data.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v.Data)
}

// Type returns the DataType of the value based on its underlying type
func (v Value) Type() DataType {
	if v.Null {
		return Unknown
	}
	switch v.Data.(type) {
	case int16:
		return SmallInt
	case int32:
		return Integer
	case int64, int:
		return BigInt
	case float32:
		return Float
	case float64:
		return Double
	case string:
		return Text
	case bool:
		return Boolean
	case time.Time:
		return Timestamp
	default:
		return Unknown
	}
}

// Equal returns true if two values are equal
func (v Value) Equal(other Value) bool {
	return CompareValues(v, other) == 0
}

// CompareValues compares two values, handling NULLs.
// NULL is considered less than any non-NULL value. Values of different
// numeric Go types are compared through their double representation.
func CompareValues(a, b Value) int {
	if a.Null && b.Null {
		return 0
	}
	if a.Null {
		return -1
	}
	if b.Null {
		return 1
	}
	if as, ok := a.Data.(string); ok {
		if bs, ok := b.Data.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			}
			return 0
		}
	}
	af, aerr := ToDouble(a)
	bf, berr := ToDouble(b)
	if aerr != nil || berr != nil {
		return compareStrings(a.String(), b.String())
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
