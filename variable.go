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
	"fmt"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
)

// Variable is a dataset together with the names of the dimensions of
// its axes.
type Variable struct {
	g      *Group
	h5name string
	path   string

	// dims is nil until the dimensions have been looked up.
	dims []string
}

func newVariable(g *Group, h5name string, dims []string) *Variable {
	return &Variable{g: g, h5name: h5name, path: h5.Join(g.path, h5name), dims: dims}
}

func (v *Variable) dataset() (h5.Dataset, error) {
	if err := v.g.f.checkOpen(); err != nil {
		return nil, err
	}
	n, err := v.g.f.store.Lookup(v.path)
	if err != nil {
		return nil, storeError(err, "variable %q", v.Name())
	}
	ds, ok := n.(h5.Dataset)
	if !ok {
		return nil, newError(ErrInvalidState, "variable %q: %s is not a dataset", v.Name(), v.path)
	}
	return ds, nil
}

// Name returns the variable name.
func (v *Variable) Name() string { return strings.TrimPrefix(v.h5name, nonCoordPrefix) }

// Path returns the absolute path of the variable.
func (v *Variable) Path() string { return h5.Join(v.g.path, v.Name()) }

// Group returns the group holding the variable.
func (v *Variable) Group() *Group { return v.g }

// DType returns the element type, or the zero DType if the variable can
// no longer be read.
func (v *Variable) DType() h5.DType {
	ds, err := v.dataset()
	if err != nil {
		return h5.DType{}
	}
	return ds.Type()
}

// Attrs returns the attributes of the variable.
func (v *Variable) Attrs() (*Attributes, error) {
	ds, err := v.dataset()
	if err != nil {
		return nil, err
	}
	return newAttributes(v.g.f, ds), nil
}

// Dimensions returns the names of the dimensions of the variable's axes.
func (v *Variable) Dimensions() ([]string, error) {
	if v.dims == nil {
		dims, err := v.lookupDimensions()
		if err != nil {
			return nil, err
		}
		v.dims = dims
	}
	return append([]string{}, v.dims...), nil
}

// lookupDimensions derives dimension names from the store, trying in
// order the coordinate ids of a multi-dimensional coordinate variable,
// the attached scales, the variable's own name, and phony dimensions.
func (v *Variable) lookupDimensions() ([]string, error) {
	ds, err := v.dataset()
	if err != nil {
		return nil, err
	}
	s := v.g.f.store
	a := ds.Attrs()
	rank := len(ds.Shape())

	if a.Has(attrCoordinates) && s.IsScale(ds) {
		cv, _ := a.Get(attrCoordinates)
		ids := v.g.dimensionIDs()
		dims := make([]string, 0, cv.Len())
		rv := reflect.ValueOf(cv.Data)
		for i := 0; i < cv.Len(); i++ {
			id := int(rv.Index(i).Int())
			name, ok := ids[id]
			if !ok {
				return nil, newError(ErrInvalidState, "variable %q refers to unknown dimension id %d", v.Name(), id)
			}
			dims = append(dims, name)
		}
		return dims, nil
	}

	if a.Has(h5.AttrDimensionList) {
		dims := make([]string, rank)
		for axis := range dims {
			name, err := v.scaleName(ds, axis)
			if err != nil {
				return nil, err
			}
			if name == "" {
				return nil, newError(ErrInvalidState, "malformed variable %q has mixing of labeled and unlabeled dimensions", v.Name())
			}
			dims[axis] = name
		}
		return dims, nil
	}

	if v.g.dims.Has(v.h5name) {
		return []string{v.h5name}, nil
	}

	shape := ds.Shape()
	dims := make([]string, rank)
	used := make(map[int]int)
	for axis := range dims {
		name, err := v.scaleName(ds, axis)
		if err != nil {
			return nil, err
		}
		if name != "" {
			dims[axis] = name
			continue
		}
		if v.g.f.phonyMode == PhonyDimsNone {
			return nil, newError(ErrInvalidState,
				"variable %q has no dimension scale associated with axis %d; use phony dimensions %q or %q",
				v.Name(), axis, PhonyDimsSort, PhonyDimsAccess)
		}
		size := shape[axis]
		var candidates []string
		for _, dn := range v.g.dims.names {
			sz, err := v.g.dims.m[dn].Size()
			if err != nil {
				return nil, err
			}
			if sz == size {
				candidates = append(candidates, dn)
			}
		}
		if used[size] >= len(candidates) {
			return nil, newError(ErrInvalidState, "variable %q: no dimension of size %d left for axis %d", v.Name(), size, axis)
		}
		dims[axis] = candidates[used[size]]
		used[size]++
	}
	return dims, nil
}

// scaleName returns the name of the first scale attached to axis of ds,
// or "" if there is none.
func (v *Variable) scaleName(ds h5.Dataset, axis int) (string, error) {
	s := v.g.f.store
	scales, err := s.AxisScales(ds, axis)
	if err != nil {
		return "", storeError(err, "reading scales of %s", ds.Path())
	}
	if len(scales) == 0 {
		return "", nil
	}
	n, err := s.Deref(scales[0])
	if err != nil {
		return "", storeError(err, "dereferencing scale of axis %d of %s", axis, ds.Path())
	}
	return h5.Base(n.Path()), nil
}

// Shape returns the current sizes of the variable's dimensions. For
// unlimited dimensions this can exceed the extent of the stored data.
func (v *Variable) Shape() ([]int, error) {
	dims, err := v.Dimensions()
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(dims))
	for i, dn := range dims {
		d, err := v.g.findDimension(dn)
		if err != nil {
			return nil, err
		}
		if shape[i], err = d.Size(); err != nil {
			return nil, err
		}
	}
	return shape, nil
}

// Read returns the contents as a flat, row-major slice with the shape
// returned by Shape. Numeric data that has not grown with its unlimited
// dimensions is padded with the fill value.
func (v *Variable) Read() (interface{}, error) {
	ds, err := v.dataset()
	if err != nil {
		return nil, err
	}
	data, err := ds.Read()
	if err != nil {
		return nil, storeError(err, "reading %s", v.Path())
	}
	dtype := ds.Type()
	if !dtype.IsNumeric() {
		return data, nil
	}
	shape, err := v.Shape()
	if err != nil {
		return nil, err
	}
	stored := ds.Shape()
	if equalInts(shape, stored) {
		return data, nil
	}
	out, err := h5.MakeSlice(dtype, h5.NumElements(shape))
	if err != nil {
		return nil, err
	}
	dst, src := reflect.ValueOf(out), reflect.ValueOf(data)
	if fill := ds.Fill(); fill != nil {
		fv := reflect.ValueOf(fill)
		for i := 0; i < dst.Len(); i++ {
			dst.Index(i).Set(fv)
		}
	}
	overlap := make([]int, len(shape))
	for i := range shape {
		overlap[i] = min(shape[i], stored[i])
	}
	h5.ForEachIndex(overlap, func(idx []int) {
		dst.Index(h5.FlatIndex(idx, shape)).Set(src.Index(h5.FlatIndex(idx, stored)))
	})
	return out, nil
}

// Write writes data, a flat row-major slice, into the hyperslab starting
// at start with extent count. A nil start is the origin, and a nil count is
// the length of data for one-dimensional variables. Unlimited dimensions
// grow to fit the write; writing past the end of a fixed dimension fails.
func (v *Variable) Write(start []int, data interface{}, count []int) error {
	f := v.g.f
	if err := f.checkWritable("writing variable " + v.Name()); err != nil {
		return err
	}
	ds, err := v.dataset()
	if err != nil {
		return err
	}
	data, err = convertSlice(data, ds.Type())
	if err != nil {
		return wrapError(err, ErrTypeRejected, "writing variable %q", v.Name())
	}
	n := reflect.ValueOf(data).Len()
	rank := len(ds.Shape())
	if start == nil {
		start = make([]int, rank)
	}
	if count == nil {
		switch rank {
		case 0:
			count = []int{}
		case 1:
			count = []int{n}
		default:
			return newError(ErrInvalidState, "writing variable %q: count is required for %d dimensions", v.Name(), rank)
		}
	}
	if len(start) != rank || len(count) != rank {
		return newError(ErrInvalidState, "writing variable %q: selection does not have %d dimensions", v.Name(), rank)
	}
	if h5.NumElements(count) != n {
		return newError(ErrInvalidState, "writing variable %q: %d elements for count %v", v.Name(), n, count)
	}
	if err := v.maybeResizeDimensions(ds, start, count); err != nil {
		return err
	}
	if err := ds.WriteSlab(start, count, data); err != nil {
		return storeError(err, "writing variable %q", v.Name())
	}
	return nil
}

// maybeResizeDimensions grows unlimited dimensions and the dataset so
// that the selection fits.
func (v *Variable) maybeResizeDimensions(ds h5.Dataset, start, count []int) error {
	dims, err := v.Dimensions()
	if err != nil {
		return err
	}
	shape := ds.Shape()
	if len(dims) != len(shape) {
		return newError(ErrInvalidState, "variable %q has %d dimensions but rank %d", v.Name(), len(dims), len(shape))
	}
	newShape := make([]int, len(dims))
	for i, dn := range dims {
		d, err := v.g.findDimension(dn)
		if err != nil {
			return err
		}
		stop := start[i] + count[i]
		unlimited, err := d.IsUnlimited()
		if err != nil {
			return err
		}
		size, err := d.Size()
		if err != nil {
			return err
		}
		if !unlimited {
			if stop > size {
				return newError(ErrInvalidState, "writing variable %q: index %d out of range for dimension %q of size %d",
					v.Name(), stop-1, dn, size)
			}
			newShape[i] = shape[i]
			continue
		}
		newMax := max(stop, shape[i])
		if size < newMax {
			if err := d.g.ResizeDimension(dn, newMax, false); err != nil {
				return err
			}
		}
		newShape[i] = newMax
	}
	if equalInts(ds.Shape(), newShape) {
		return nil
	}
	if err := ds.Resize(newShape); err != nil {
		return storeError(err, "resizing variable %q", v.Name())
	}
	v.g.f.Log.WithFields(logrus.Fields{
		"variable": v.Path(),
		"shape":    newShape,
	}).Debug("hdfnc: grew variable")
	return nil
}

// attachDimScales attaches the variable's axes to the scales of its
// named dimensions.
func (v *Variable) attachDimScales(ds h5.Dataset) error {
	for axis, dn := range v.dims {
		d, err := v.g.findDimension(dn)
		if err != nil {
			return err
		}
		if d.phony {
			continue
		}
		if err := d.AttachScale(ds, axis); err != nil {
			return err
		}
	}
	return nil
}

// attachCoords records the dimension ids of multi-dimensional variables.
func (v *Variable) attachCoords(ds h5.Dataset) error {
	if len(v.dims) > 1 {
		return v.writeCoordinates(ds)
	}
	return nil
}

func (v *Variable) writeCoordinates(ds h5.Dataset) error {
	ids := make([]int32, len(v.dims))
	for i, dn := range v.dims {
		d, err := v.g.findDimension(dn)
		if err != nil {
			return err
		}
		ids[i] = int32(d.id)
	}
	val := h5.Value{Type: h5.Int32, Shape: []int{len(ids)}, Data: ids}
	if err := ds.Attrs().Set(attrCoordinates, val); err != nil {
		return storeError(err, "writing coordinates of %q", v.Name())
	}
	return nil
}

// ensureDimID copies the id of the first dimension to the variable, as
// netCDF-4 does when a variable is first written.
func (v *Variable) ensureDimID(ds h5.Dataset) error {
	if len(v.dims) == 0 || ds.Attrs().Has(attrDimid) {
		return nil
	}
	d, err := v.g.findDimension(v.dims[0])
	if err != nil || d.phony {
		return err
	}
	backing, err := d.dataset()
	if err != nil {
		return err
	}
	id, ok := backing.Attrs().Get(attrDimid)
	if !ok {
		return nil
	}
	if err := ds.Attrs().Set(attrDimid, id); err != nil {
		return storeError(err, "writing dimension id of %q", v.Name())
	}
	return nil
}

func (v *Variable) String() string {
	if v.g.f.closed {
		return "<Closed hdfnc.Variable>"
	}
	dims, err := v.Dimensions()
	if err != nil {
		return fmt.Sprintf("<hdfnc.Variable %q: %v>", v.Name(), err)
	}
	shape, err := v.Shape()
	if err != nil {
		return fmt.Sprintf("<hdfnc.Variable %q: %v>", v.Name(), err)
	}
	header := fmt.Sprintf("<hdfnc.Variable %q: dimensions (%s), shape %v, dtype %s>",
		v.Name(), strings.Join(dims, ", "), shape, v.DType())
	lines := []string{header, "Attributes:"}
	if a, err := v.Attrs(); err == nil {
		lines = append(lines, a.lines("    ")...)
	}
	return strings.Join(lines, "\n")
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertSlice returns a copy of the slice data with elements of type
// dtype. Numbers are converted between numeric types and []string is
// accepted for string types.
func convertSlice(data interface{}, dtype h5.DType) (interface{}, error) {
	if ss, ok := data.([]string); ok {
		bb := make([][]byte, len(ss))
		for i, s := range ss {
			bb[i] = []byte(s)
		}
		data = bb
	}
	want, err := h5.MakeSlice(dtype, 0)
	if err != nil {
		return nil, err
	}
	wt := reflect.TypeOf(want)
	if reflect.TypeOf(data) == wt {
		return h5.CopySlice(data), nil
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("data must be a slice, not %T", data)
	}
	et := wt.Elem()
	if !isNumberKind(rv.Type().Elem().Kind()) || !isNumberKind(et.Kind()) {
		return nil, fmt.Errorf("cannot convert %T to %s", data, dtype)
	}
	out := reflect.MakeSlice(wt, rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out.Index(i).Set(rv.Index(i).Convert(et))
	}
	return out.Interface(), nil
}

// sliceOf wraps the scalar x in a one-element slice. Strings and byte
// slices are treated as single string elements.
func sliceOf(x interface{}) interface{} {
	switch y := x.(type) {
	case string:
		return [][]byte{[]byte(y)}
	case []byte:
		return [][]byte{append([]byte{}, y...)}
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice {
		return x
	}
	s := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
	s.Index(0).Set(rv)
	return s.Interface()
}

// convertScalar converts x to the element type of dtype.
func convertScalar(x interface{}, dtype h5.DType) (interface{}, error) {
	s, err := convertSlice(sliceOf(x), dtype)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(s)
	if rv.Len() != 1 {
		return nil, fmt.Errorf("%v is not a scalar", x)
	}
	return rv.Index(0).Interface(), nil
}
