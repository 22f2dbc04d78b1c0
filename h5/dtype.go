/*
Copyright © 2022 the hdfnc authors.
This file is part of hdfnc.

hdfnc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hdfnc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hdfnc.  If not, see <http://www.gnu.org/licenses/>.
*/

package h5

import (
	"fmt"
	"strings"
)

// Class is the storage class of an element type.
type Class int

// These are the element classes a store must be able to represent.
const (
	Invalid Class = iota
	Int
	Uint
	Float
	String
	Bool
	Complex
	Enum
	Reference
	VarLen // variable-length sequence of a non-string type
	Compound
)

var classNames = map[Class]string{
	Invalid:   "invalid",
	Int:       "int",
	Uint:      "uint",
	Float:     "float",
	String:    "string",
	Bool:      "bool",
	Complex:   "complex",
	Enum:      "enum",
	Reference: "reference",
	VarLen:    "vlen",
	Compound:  "compound",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("<class %d>", int(c))
}

// Encoding is the character set of a string element type.
type Encoding int

// String encodings.
const (
	ASCII Encoding = iota
	UTF8
)

func (e Encoding) String() string {
	if e == UTF8 {
		return "utf-8"
	}
	return "ascii"
}

// DType describes the element type of a dataset or attribute.
// For numeric classes Size is the width in bytes. For strings,
// Size is the fixed length in bytes, or 0 for variable-length strings.
type DType struct {
	Class    Class
	Size     int
	Encoding Encoding
}

// Predefined element types.
var (
	Int8       = DType{Class: Int, Size: 1}
	Int16      = DType{Class: Int, Size: 2}
	Int32      = DType{Class: Int, Size: 4}
	Int64      = DType{Class: Int, Size: 8}
	Uint8      = DType{Class: Uint, Size: 1}
	Uint16     = DType{Class: Uint, Size: 2}
	Uint32     = DType{Class: Uint, Size: 4}
	Uint64     = DType{Class: Uint, Size: 8}
	Float32    = DType{Class: Float, Size: 4}
	Float64    = DType{Class: Float, Size: 8}
	BoolType   = DType{Class: Bool, Size: 1}
	Complex128 = DType{Class: Complex, Size: 16}
	RefType    = DType{Class: Reference, Size: 8}
)

// FixedStringType returns a fixed-length string type of n bytes.
func FixedStringType(n int, enc Encoding) DType {
	return DType{Class: String, Size: n, Encoding: enc}
}

// VarStringType returns a variable-length string type.
func VarStringType(enc Encoding) DType {
	return DType{Class: String, Encoding: enc}
}

// IsString reports whether d holds strings.
func (d DType) IsString() bool { return d.Class == String }

// IsFixedString reports whether d is a fixed-length string type.
func (d DType) IsFixedString() bool { return d.Class == String && d.Size > 0 }

// IsVarString reports whether d is a variable-length string type.
func (d DType) IsVarString() bool { return d.Class == String && d.Size == 0 }

// IsNumeric reports whether d is an integer or floating point type.
func (d DType) IsNumeric() bool {
	return d.Class == Int || d.Class == Uint || d.Class == Float
}

// String renders d in a compact, numpy-like notation.
func (d DType) String() string {
	switch d.Class {
	case Int, Uint, Float:
		return fmt.Sprintf("%s%d", d.Class, d.Size*8)
	case String:
		if d.Size == 0 {
			return fmt.Sprintf("str(%s)", d.Encoding)
		}
		return fmt.Sprintf("|S%d(%s)", d.Size, d.Encoding)
	case Complex:
		return fmt.Sprintf("complex%d", d.Size*8)
	default:
		return d.Class.String()
	}
}

// ParseDType parses a type name such as "int32", "float64" or "string".
// "string" is a variable-length UTF-8 string and "char" is a
// one-byte ASCII string.
func ParseDType(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int8", "byte":
		return Int8, nil
	case "int16", "short":
		return Int16, nil
	case "int32", "int":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "uint8", "ubyte":
		return Uint8, nil
	case "uint16":
		return Uint16, nil
	case "uint32":
		return Uint32, nil
	case "uint64":
		return Uint64, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	case "bool":
		return BoolType, nil
	case "complex128":
		return Complex128, nil
	case "string", "str":
		return VarStringType(UTF8), nil
	case "char":
		return FixedStringType(1, ASCII), nil
	}
	return DType{}, fmt.Errorf("h5: unknown type name %q", name)
}

// TypeOf returns the element type of the Go value x, which may be
// a scalar or a slice of a supported element type.
func TypeOf(x interface{}) (DType, error) {
	switch x.(type) {
	case int8, []int8:
		return Int8, nil
	case int16, []int16:
		return Int16, nil
	case int32, []int32:
		return Int32, nil
	case int64, []int64, int, []int:
		return Int64, nil
	case uint8, []uint8:
		return Uint8, nil
	case uint16, []uint16:
		return Uint16, nil
	case uint32, []uint32:
		return Uint32, nil
	case uint64, []uint64, uint, []uint:
		return Uint64, nil
	case float32, []float32:
		return Float32, nil
	case float64, []float64:
		return Float64, nil
	case bool, []bool:
		return BoolType, nil
	case complex64, complex128, []complex128:
		return Complex128, nil
	case string, []string:
		return VarStringType(UTF8), nil
	case Ref, []Ref:
		return RefType, nil
	}
	return DType{}, fmt.Errorf("h5: unsupported value type %T", x)
}
