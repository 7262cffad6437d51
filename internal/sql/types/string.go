package types

import "fmt"

// defaultStringWidth is the width assumed for unbounded character data.
const defaultStringWidth = 16

// Text is unbounded text
var Text DataType = &textType{}

type textType struct{}

func (t *textType) Name() string   { return "TEXT" }
func (t *textType) ID() TypeID     { return TextID }
func (t *textType) Size() int      { return -1 }
func (t *textType) Width() float64 { return defaultStringWidth }

// varcharType implements the VARCHAR(n) data type
type varcharType struct {
	maxLen int
}

// Varchar returns a VARCHAR type with the specified max length.
func Varchar(maxLen int) DataType {
	return &varcharType{maxLen: maxLen}
}

func (t *varcharType) Name() string { return fmt.Sprintf("VARCHAR(%d)", t.maxLen) }
func (t *varcharType) ID() TypeID   { return VarcharID }
func (t *varcharType) Size() int    { return -1 }

func (t *varcharType) Width() float64 {
	if t.maxLen > 0 && t.maxLen < defaultStringWidth {
		return float64(t.maxLen)
	}
	return defaultStringWidth
}

// arrayType implements ARRAY<elem>.
type arrayType struct {
	elem DataType
}

// Array returns an array type of elem.
func Array(elem DataType) DataType {
	return &arrayType{elem: elem}
}

func (t *arrayType) Name() string { return fmt.Sprintf("ARRAY<%s>", t.elem.Name()) }
func (t *arrayType) ID() TypeID   { return ArrayID }
func (t *arrayType) Size() int    { return -1 }

func (t *arrayType) Width() float64 {
	return 4 * t.elem.Width()
}

// ElementType returns the element type of an array type, or Unknown.
func ElementType(t DataType) DataType {
	if a, ok := t.(*arrayType); ok {
		return a.elem
	}
	return Unknown
}

// Parse maps a SQL type name onto a DataType. Unrecognized names yield Unknown.
func Parse(name string) DataType {
	var n, s int
	switch {
	case name == "":
		return Unknown
	case matches(name, "VARCHAR(%d)", &n):
		return Varchar(n)
	case matches(name, "DECIMAL(%d,%d)", &n, &s):
		return Decimal(n, s)
	}
	switch upper(name) {
	case "BOOLEAN", "BOOL":
		return Boolean
	case "SMALLINT":
		return SmallInt
	case "INT", "INTEGER":
		return Integer
	case "BIGINT":
		return BigInt
	case "FLOAT", "REAL":
		return Float
	case "DOUBLE", "DOUBLE PRECISION":
		return Double
	case "DECIMAL", "NUMERIC":
		return Decimal(38, 9)
	case "VARCHAR", "STRING", "TEXT":
		return Text
	case "DATE":
		return Date
	case "TIMESTAMP", "DATETIME":
		return Timestamp
	}
	return Unknown
}

func matches(name, format string, args ...interface{}) bool {
	n, err := fmt.Sscanf(upper(name), format, args...)
	return err == nil && n == len(args)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
