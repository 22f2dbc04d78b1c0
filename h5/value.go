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
	"reflect"
)

// Value is a typed attribute payload.
type Value struct {
	// Type is the element type.
	Type DType

	// Shape is the dataspace of the value. A nil Shape is a scalar.
	Shape []int

	// Empty marks a null dataspace, which has a type but no elements.
	Empty bool

	// Data holds the elements in row-major order. It is one of
	// []int8, []int16, []int32, []int64, []uint8, []uint16, []uint32,
	// []uint64, []float32, []float64, []bool, []complex128, [][]byte
	// (strings), []Ref, []ScaleRef or [][]Ref.
	Data interface{}
}

// Len returns the number of elements in v.
func (v Value) Len() int {
	if v.Empty || v.Data == nil {
		return 0
	}
	return reflect.ValueOf(v.Data).Len()
}

// IsScalar reports whether v has a scalar or single-element
// one-dimensional dataspace.
func (v Value) IsScalar() bool {
	if v.Empty {
		return false
	}
	return len(v.Shape) == 0 || (len(v.Shape) == 1 && v.Shape[0] == 1)
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	o := Value{Type: v.Type, Empty: v.Empty}
	if v.Shape != nil {
		o.Shape = append([]int{}, v.Shape...)
	}
	o.Data = CopySlice(v.Data)
	return o
}

// Check reports whether Data is a slice of the element type of Type
// holding as many elements as Shape describes.
func (v Value) Check() error {
	if v.Empty {
		if v.Data != nil && reflect.ValueOf(v.Data).Len() > 0 {
			return fmt.Errorf("h5: empty value of type %s holds data", v.Type)
		}
		return nil
	}
	proto, err := MakeSlice(v.Type, 0)
	if err != nil {
		return err
	}
	if v.Data == nil || reflect.TypeOf(v.Data) != reflect.TypeOf(proto) {
		return fmt.Errorf("h5: %T is not valid data for type %s", v.Data, v.Type)
	}
	if n := NumElements(v.Shape); v.Len() != n {
		return fmt.Errorf("h5: value of shape %v has %d elements, want %d", v.Shape, v.Len(), n)
	}
	return nil
}

// FixedString returns a scalar fixed-length string value holding s.
// The empty string is stored as a null dataspace of length-one string type,
// which is how netCDF-4 writes empty text attributes.
func FixedString(s string, enc Encoding) Value {
	if s == "" {
		return Value{Type: FixedStringType(1, enc), Empty: true}
	}
	return Value{
		Type: FixedStringType(len(s), enc),
		Data: [][]byte{[]byte(s)},
	}
}

// NewValue converts the Go value x into a Value, inferring its element type.
// If x is already a Value it is returned unchanged.
func NewValue(x interface{}) (Value, error) {
	if v, ok := x.(Value); ok {
		return v, nil
	}
	t, err := TypeOf(x)
	if err != nil {
		return Value{}, err
	}
	switch xx := x.(type) {
	case int:
		return Value{Type: t, Data: []int64{int64(xx)}}, nil
	case uint:
		return Value{Type: t, Data: []uint64{uint64(xx)}}, nil
	case complex64:
		return Value{Type: t, Data: []complex128{complex128(xx)}}, nil
	case string:
		return Value{Type: t, Data: [][]byte{[]byte(xx)}}, nil
	case []int:
		d := make([]int64, len(xx))
		for i, e := range xx {
			d[i] = int64(e)
		}
		return Value{Type: t, Shape: []int{len(d)}, Data: d}, nil
	case []uint:
		d := make([]uint64, len(xx))
		for i, e := range xx {
			d[i] = uint64(e)
		}
		return Value{Type: t, Shape: []int{len(d)}, Data: d}, nil
	case []string:
		d := make([][]byte, len(xx))
		for i, e := range xx {
			d[i] = []byte(e)
		}
		return Value{Type: t, Shape: []int{len(d)}, Data: d}, nil
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice {
		return Value{Type: t, Shape: []int{rv.Len()}, Data: CopySlice(x)}, nil
	}
	// Remaining cases are scalars of a supported type.
	s := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
	s.Index(0).Set(rv)
	return Value{Type: t, Data: s.Interface()}, nil
}

// MakeSlice returns a zeroed flat slice of n elements of type d.
func MakeSlice(d DType, n int) (interface{}, error) {
	switch d {
	case Int8:
		return make([]int8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Int64:
		return make([]int64, n), nil
	case Uint8:
		return make([]uint8, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Uint64:
		return make([]uint64, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	case BoolType:
		return make([]bool, n), nil
	case Complex128:
		return make([]complex128, n), nil
	case RefType:
		return make([]Ref, n), nil
	}
	if d.IsString() {
		return make([][]byte, n), nil
	}
	return nil, fmt.Errorf("h5: no array representation for type %s", d)
}

// CopySlice returns a shallow copy of the slice s, or s itself if it is
// not a slice. Byte strings inside [][]byte are copied too.
func CopySlice(s interface{}) interface{} {
	if s == nil {
		return nil
	}
	if bb, ok := s.([][]byte); ok {
		o := make([][]byte, len(bb))
		for i, b := range bb {
			o[i] = append([]byte{}, b...)
		}
		return o
	}
	rv := reflect.ValueOf(s)
	if rv.Kind() != reflect.Slice {
		return s
	}
	o := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(o, rv)
	return o.Interface()
}

// NumElements returns the product of the entries of shape.
func NumElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// ForEachIndex calls fn with every multi-index inside shape, in row-major
// order. A rank-0 shape has exactly one index. fn must not keep idx.
func ForEachIndex(shape []int, fn func(idx []int)) {
	for _, s := range shape {
		if s == 0 {
			return
		}
	}
	idx := make([]int, len(shape))
	for {
		fn(idx)
		i := len(shape) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// FlatIndex returns the row-major offset of idx in an array of the given
// shape.
func FlatIndex(idx, shape []int) int {
	f := 0
	for i := range idx {
		f = f*shape[i] + idx[i]
	}
	return f
}
