package types

import "fmt"

var (
	Boolean  DataType = &fixedType{name: "BOOLEAN", id: BooleanID, size: 1}
	SmallInt DataType = &fixedType{name: "SMALLINT", id: SmallIntID, size: 2}
	Integer  DataType = &fixedType{name: "INTEGER", id: IntegerID, size: 4}
	BigInt   DataType = &fixedType{name: "BIGINT", id: BigIntID, size: 8}
	Float    DataType = &fixedType{name: "FLOAT", id: FloatID, size: 4}
	Double   DataType = &fixedType{name: "DOUBLE", id: DoubleID, size: 8}
	Date     DataType = &fixedType{name: "DATE", id: DateID, size: 4}
	// Timestamp is stored as microseconds since epoch.
	Timestamp DataType = &fixedType{name: "TIMESTAMP", id: TimestampID, size: 8}
	// Unknown is used for NULL literals without context.
	Unknown DataType = &fixedType{name: "UNKNOWN", id: UnknownID, size: 0}
)

// fixedType is any type with a fixed storage size.
type fixedType struct {
	name string
	id   TypeID
	size int
}

func (t *fixedType) Name() string   { return t.name }
func (t *fixedType) ID() TypeID     { return t.id }
func (t *fixedType) Size() int      { return t.size }
func (t *fixedType) Width() float64 { return float64(t.size) }

// decimalType implements DECIMAL(p, s).
type decimalType struct {
	precision int
	scale     int
}

// Decimal returns a DECIMAL type with the given precision and scale.
func Decimal(precision, scale int) DataType {
	return &decimalType{precision: precision, scale: scale}
}

func (t *decimalType) Name() string {
	return fmt.Sprintf("DECIMAL(%d,%d)", t.precision, t.scale)
}

func (t *decimalType) ID() TypeID { return DecimalID }

func (t *decimalType) Size() int {
	if t.precision <= 18 {
		return 8
	}
	return 16
}

func (t *decimalType) Width() float64 { return float64(t.Size()) }

// IsNumeric reports whether values of t map onto doubles without loss of order.
func IsNumeric(t DataType) bool {
	if t == nil {
		return false
	}
	switch t.ID() {
	case BooleanID, SmallIntID, IntegerID, BigIntID, FloatID, DoubleID, DecimalID, DateID, TimestampID:
		return true
	}
	return false
}

// IsStringLike reports whether t holds character data.
func IsStringLike(t DataType) bool {
	if t == nil {
		return false
	}
	return t.ID() == VarcharID || t.ID() == TextID
}

// IsIntegral reports whether t only holds whole numbers.
func IsIntegral(t DataType) bool {
	if t == nil {
		return false
	}
	switch t.ID() {
	case BooleanID, SmallIntID, IntegerID, BigIntID, DateID:
		return true
	}
	return false
}

// WiderOf returns the type with the larger numeric domain, used when
// combining operands of an arithmetic expression.
func WiderOf(a, b DataType) DataType {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	rank := func(t DataType) int {
		switch t.ID() {
		case BooleanID:
			return 1
		case SmallIntID:
			return 2
		case IntegerID:
			return 3
		case BigIntID:
			return 4
		case DecimalID:
			return 5
		case FloatID:
			return 6
		case DoubleID:
			return 7
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
