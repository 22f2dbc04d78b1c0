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

package hdfnc

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spatialmodel/hdfnc/h5"
)

func TestVariableWrite(t *testing.T) {
	f := newTestFile(t)
	mustDim(t, f.Group, "time", 0)
	mustDim(t, f.Group, "x", 2)
	v := mustVar(t, f.Group, "v", []string{"time", "x"}, h5.Float64, WithFillValue(-9))

	if err := v.Write([]int{1, 0}, []float64{1, 2}, []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	shape, err := v.Shape()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(shape, []int{2, 2}) {
		t.Errorf("shape %v", shape)
	}
	data, err := v.Read()
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{-9, -9, 1, 2}; !reflect.DeepEqual(data, want) {
		t.Errorf("have %v, want %v", data, want)
	}

	t.Run("convert", func(t *testing.T) {
		if err := v.Write([]int{0, 0}, []int{3, 4}, []int{1, 2}); err != nil {
			t.Fatal(err)
		}
		data, _ := v.Read()
		if want := []float64{3, 4, 1, 2}; !reflect.DeepEqual(data, want) {
			t.Errorf("have %v, want %v", data, want)
		}
	})
	t.Run("fixed out of range", func(t *testing.T) {
		if err := v.Write([]int{0, 1}, []float64{1, 2}, []int{1, 2}); !Is(err, ErrInvalidState) {
			t.Errorf("want InvalidState, got %v", err)
		}
	})
	t.Run("count required", func(t *testing.T) {
		if err := v.Write(nil, []float64{1, 2}, nil); !Is(err, ErrInvalidState) {
			t.Errorf("want InvalidState, got %v", err)
		}
	})
	t.Run("count mismatch", func(t *testing.T) {
		if err := v.Write([]int{0, 0}, []float64{1, 2, 3}, []int{1, 2}); !Is(err, ErrInvalidState) {
			t.Errorf("want InvalidState, got %v", err)
		}
	})
	t.Run("rank mismatch", func(t *testing.T) {
		if err := v.Write([]int{0}, []float64{1}, []int{1}); !Is(err, ErrInvalidState) {
			t.Errorf("want InvalidState, got %v", err)
		}
	})
	t.Run("type", func(t *testing.T) {
		if err := v.Write([]int{0, 0}, []string{"a", "b"}, []int{1, 2}); !Is(err, ErrTypeRejected) {
			t.Errorf("want TypeRejected, got %v", err)
		}
	})
}

func TestVariableReadPadded(t *testing.T) {
	f := newTestFile(t)
	mustDim(t, f.Group, "time", 0)
	a := mustVar(t, f.Group, "a", []string{"time"}, h5.Int32)
	b := mustVar(t, f.Group, "b", []string{"time"}, h5.Int32, WithFillValue(int32(5)))
	c := mustVar(t, f.Group, "c", []string{"time"}, h5.Int32)
	if err := a.Write(nil, []int32{1, 2, 3}, nil); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		v    *Variable
		want []int32
	}{
		{v: a, want: []int32{1, 2, 3}},
		{v: b, want: []int32{5, 5, 5}},
		{v: c, want: []int32{0, 0, 0}},
	}
	for _, test := range tests {
		have, err := test.v.Read()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("%s: have %v, want %v", test.v.Name(), have, test.want)
		}
	}
	ds, _ := b.dataset()
	if s := ds.Shape(); s[0] != 0 {
		t.Errorf("reading resized the stored data: %v", s)
	}
}

func TestCreateVariable(t *testing.T) {
	f := newTestFile(t)
	mustDim(t, f.Group, "x", 3)

	t.Run("infer type", func(t *testing.T) {
		v := mustVar(t, f.Group, "ints", []string{"x"}, h5.DType{}, WithData([]int16{1, 2, 3}))
		if v.DType() != h5.Int16 {
			t.Errorf("dtype %s", v.DType())
		}
	})
	t.Run("create dimension from data", func(t *testing.T) {
		v := mustVar(t, f.Group, "lat", []string{"lat"}, h5.DType{}, WithData([]float32{1, 2, 3, 4}))
		d, err := f.Dimensions().Get("lat")
		if err != nil {
			t.Fatal(err)
		}
		if size, _ := d.Size(); size != 4 {
			t.Errorf("size %d", size)
		}
		ds := mustDataset(t, v)
		if !f.Store().IsScale(ds) || isDimensionOnly(ds) {
			t.Error("lat is not a coordinate variable")
		}
	})
	t.Run("strings", func(t *testing.T) {
		v := mustVar(t, f.Group, "names", []string{"x"}, h5.DType{}, WithData([]string{"a", "b", "c"}))
		if !v.DType().IsVarString() {
			t.Errorf("dtype %s", v.DType())
		}
		data, err := v.Read()
		if err != nil {
			t.Fatal(err)
		}
		if want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}; !reflect.DeepEqual(data, want) {
			t.Errorf("data %q", data)
		}
	})
	t.Run("scalar", func(t *testing.T) {
		v := mustVar(t, f.Group, "s", nil, h5.Float32)
		if err := v.Write(nil, []float32{2.5}, nil); err != nil {
			t.Fatal(err)
		}
		dims, err := v.Dimensions()
		if err != nil || len(dims) != 0 {
			t.Errorf("dimensions %v, %v", dims, err)
		}
		data, _ := v.Read()
		if !reflect.DeepEqual(data, []float32{2.5}) {
			t.Errorf("data %v", data)
		}
	})
	t.Run("dimension id", func(t *testing.T) {
		v := mustVar(t, f.Group, "y", []string{"x"}, h5.Int8)
		x, _ := f.Dimensions().Get("x")
		if id := intAttr(mustDataset(t, v).Attrs(), attrDimid, -1); id != x.DimID() {
			t.Errorf("id %d", id)
		}
	})
	t.Run("coordinates attribute", func(t *testing.T) {
		v := mustVar(t, f.Group, "grid", []string{"x", "lat"}, h5.Float64)
		val, ok := mustDataset(t, v).Attrs().Get(attrCoordinates)
		if !ok {
			t.Fatalf("%s not written", attrCoordinates)
		}
		x, _ := f.Dimensions().Get("x")
		lat, _ := f.Dimensions().Get("lat")
		if want := []int32{int32(x.DimID()), int32(lat.DimID())}; !reflect.DeepEqual(val.Data, want) {
			t.Errorf("have %v, want %v", val.Data, want)
		}
	})
	t.Run("unlimited data", func(t *testing.T) {
		mustDim(t, f.Group, "rec", 0)
		v := mustVar(t, f.Group, "series", []string{"rec", "x"}, h5.Int32, WithData([]int32{1, 2, 3, 4, 5, 6}))
		shape, err := v.Shape()
		if err != nil || !reflect.DeepEqual(shape, []int{2, 3}) {
			t.Errorf("shape %v, %v", shape, err)
		}
	})
	t.Run("non-coordinate name", func(t *testing.T) {
		mustDim(t, f.Group, "z", 2)
		v := mustVar(t, f.Group, "z", []string{"x", "z"}, h5.Float64)
		if v.h5name != nonCoordPrefix+"z" || v.Name() != "z" {
			t.Errorf("dataset %q, name %q", v.h5name, v.Name())
		}
		dims, _ := v.Dimensions()
		if !reflect.DeepEqual(dims, []string{"x", "z"}) {
			t.Errorf("dimensions %v", dims)
		}
	})

	errorTests := []struct {
		name  string
		vname string
		dims  []string
		dtype h5.DType
		opts  []VariableOption
		code  Code
	}{
		{name: "exists", vname: "ints", dims: []string{"x"}, dtype: h5.Int8, code: ErrInvalidState},
		{name: "missing dimension", vname: "m", dims: []string{"nope"}, dtype: h5.Int8, code: ErrNotFound},
		{name: "bool", vname: "b", dims: []string{"x"}, dtype: h5.BoolType, code: ErrTypeRejected},
		{name: "complex", vname: "c", dims: []string{"x"}, dtype: h5.Complex128, code: ErrTypeRejected},
		{name: "no type", vname: "n", dims: []string{"x"}, code: ErrTypeRejected},
		{
			name: "short data", vname: "d", dims: []string{"x"}, dtype: h5.Int8,
			opts: []VariableOption{WithData([]int8{1})}, code: ErrInvalidState,
		},
		{
			name: "bad fill", vname: "e", dims: []string{"x"}, dtype: h5.Int8,
			opts: []VariableOption{WithFillValue("x")}, code: ErrTypeRejected,
		},
	}
	for _, test := range errorTests {
		t.Run(test.name, func(t *testing.T) {
			_, err := f.CreateVariable(test.vname, test.dims, test.dtype, test.opts...)
			if !Is(err, test.code) {
				t.Errorf("want %s, got %v", test.code, err)
			}
		})
	}
}

func TestBoolVariableInvalidNetCDF(t *testing.T) {
	f := newTestFile(t, WithInvalidNetCDF())
	v := mustVar(t, f.Group, "flags", []string{"n"}, h5.DType{}, WithData([]bool{true, false}))
	data, err := v.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, []bool{true, false}) {
		t.Errorf("data %v", data)
	}
}

func TestVariableString(t *testing.T) {
	f := newTestFile(t)
	mustDim(t, f.Group, "x", 2)
	v := mustVar(t, f.Group, "v", []string{"x"}, h5.Uint8)
	want := `<hdfnc.Variable "v": dimensions (x), shape [2], dtype uint8>`
	if s := v.String(); !strings.HasPrefix(s, want) {
		t.Errorf("have %q, want prefix %q", s, want)
	}
}

func TestConvertSlice(t *testing.T) {
	tests := []struct {
		in    interface{}
		dtype h5.DType
		want  interface{}
		err   bool
	}{
		{in: []int{1, 2}, dtype: h5.Float32, want: []float32{1, 2}},
		{in: []float64{1.5}, dtype: h5.Int64, want: []int64{1}},
		{in: []string{"a"}, dtype: h5.VarStringType(h5.UTF8), want: [][]byte{[]byte("a")}},
		{in: []uint8{7}, dtype: h5.Uint8, want: []uint8{7}},
		{in: []string{"a"}, dtype: h5.Int8, err: true},
		{in: 3, dtype: h5.Int8, err: true},
		{in: []bool{true}, dtype: h5.Int8, err: true},
	}
	for _, test := range tests {
		have, err := convertSlice(test.in, test.dtype)
		if (err != nil) != test.err {
			t.Errorf("%v to %s: error %v", test.in, test.dtype, err)
			continue
		}
		if !test.err && !reflect.DeepEqual(have, test.want) {
			t.Errorf("%v to %s: have %#v, want %#v", test.in, test.dtype, have, test.want)
		}
	}
	if have, err := convertScalar(-1, h5.Float64); err != nil || have != float64(-1) {
		t.Errorf("scalar: %#v, %v", have, err)
	}
	if have, err := convertScalar("fill", h5.FixedStringType(4, h5.ASCII)); err != nil || !reflect.DeepEqual(have, []byte("fill")) {
		t.Errorf("string scalar: %#v, %v", have, err)
	}
}
