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

// Package cdfio copies groups between hdfnc files and netCDF classic
// files.
package cdfio

import (
	"fmt"
	"io"
	"math"
	"os"
	"reflect"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc"
	"github.com/spatialmodel/hdfnc/h5"
)

// unsignedAttr marks a classic BYTE variable as holding unsigned values.
const unsignedAttr = "_Unsigned"

// dimInfo is a dimension as it is written to the classic header.
type dimInfo struct {
	name      string
	size      int
	unlimited bool
}

// Export writes the dimensions, variables and attributes of g to w as a
// netCDF classic file. Dimensions inherited from ancestor groups are
// included when a variable of g uses them. The unlimited dimension, of
// which there may be at most one, becomes the record dimension.
// Subgroups are not exported.
func Export(g *hdfnc.Group, w *os.File) error {
	log := g.File().Log
	varNames := g.VariableNames()
	dims, err := exportDimensions(g, varNames)
	if err != nil {
		return err
	}
	names := make([]string, len(dims))
	lengths := make([]int, len(dims))
	record := ""
	for i, d := range dims {
		names[i] = d.name
		lengths[i] = d.size
		if d.unlimited {
			if record != "" {
				return fmt.Errorf("cdfio: dimensions %q and %q are both unlimited; netCDF classic allows only one", record, d.name)
			}
			record = d.name
			lengths[i] = 0
		} else if d.size == 0 {
			return fmt.Errorf("cdfio: fixed dimension %q has length 0", d.name)
		}
	}
	h := cdf.NewHeader(names, lengths)

	ga, err := g.Attrs()
	if err != nil {
		return err
	}
	for _, k := range ga.Keys() {
		val, err := ga.Get(k)
		if err != nil {
			return err
		}
		cv, ok := classicAttr(val)
		if !ok {
			log.WithFields(logrus.Fields{"attribute": k, "type": fmt.Sprintf("%T", val)}).
				Warn("cdfio: skipping global attribute with no classic type")
			continue
		}
		h.AddAttribute("", k, cv)
	}

	type exported struct {
		v     *hdfnc.Variable
		shape []int
	}
	var vars []exported
	for _, name := range varNames {
		v, err := g.Variable(name)
		if err != nil {
			return err
		}
		vdims, err := v.Dimensions()
		if err != nil {
			return err
		}
		for i, dn := range vdims {
			if dn == record && i != 0 {
				return fmt.Errorf("cdfio: variable %q uses the unlimited dimension %q on axis %d; it must be the first axis", name, dn, i)
			}
		}
		zero, err := classicZero(v.DType())
		if err != nil {
			return errors.Wrapf(err, "cdfio: variable %q", name)
		}
		h.AddVariable(name, vdims, zero)
		attrs, err := v.Attrs()
		if err != nil {
			return err
		}
		for _, k := range attrs.Keys() {
			val, err := attrs.Get(k)
			if err != nil {
				return err
			}
			cv, ok := classicAttr(val)
			if !ok {
				log.WithFields(logrus.Fields{"variable": name, "attribute": k, "type": fmt.Sprintf("%T", val)}).
					Warn("cdfio: skipping variable attribute with no classic type")
				continue
			}
			h.AddAttribute(name, k, cv)
		}
		if v.DType() == h5.Uint8 && !attrs.Has(unsignedAttr) {
			h.AddAttribute(name, unsignedAttr, "true")
		}
		shape, err := v.Shape()
		if err != nil {
			return err
		}
		vars = append(vars, exported{v: v, shape: shape})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return errors.Wrap(errs[0], "cdfio: invalid classic header")
	}

	f, err := cdf.Create(w, h)
	if err != nil {
		return errors.Wrap(err, "cdfio: writing header")
	}
	for _, e := range vars {
		if h5.NumElements(e.shape) == 0 {
			continue
		}
		data, err := e.v.Read()
		if err != nil {
			return err
		}
		if data, err = toClassic(data); err != nil {
			return errors.Wrapf(err, "cdfio: variable %q", e.v.Name())
		}
		if err := writeVariable(f, e.v.Name(), data, h5.NumElements(e.shape)); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"variable": e.v.Name(), "shape": e.shape}).Debug("cdfio: exported variable")
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return errors.Wrap(err, "cdfio: updating record count")
	}
	return nil
}

// writeVariable writes all n elements of the variable name. A writer
// reports io.EOF once it reaches the end of a fixed-size variable, so EOF
// after a complete write is success.
func writeVariable(f *cdf.File, name string, data interface{}, n int) error {
	written, err := f.Writer(name, nil, nil).Write(data)
	if err == io.EOF && written == n {
		err = nil
	}
	if err == nil && written != n {
		err = fmt.Errorf("wrote %d of %d elements", written, n)
	}
	if err != nil {
		return errors.Wrapf(err, "cdfio: writing variable %q", name)
	}
	return nil
}

// exportDimensions returns the dimensions of g followed by the inherited
// dimensions its variables use, in order of first use.
func exportDimensions(g *hdfnc.Group, varNames []string) ([]dimInfo, error) {
	var out []dimInfo
	seen := make(map[string]bool)
	add := func(d *hdfnc.Dimension) error {
		size, err := d.Size()
		if err != nil {
			return err
		}
		unlimited, err := d.IsUnlimited()
		if err != nil {
			return err
		}
		seen[d.Name()] = true
		out = append(out, dimInfo{name: d.Name(), size: size, unlimited: unlimited})
		return nil
	}
	for _, name := range g.Dimensions().Names() {
		d, err := g.Dimensions().Get(name)
		if err != nil {
			return nil, err
		}
		if err := add(d); err != nil {
			return nil, err
		}
	}
	for _, name := range varNames {
		v, err := g.Variable(name)
		if err != nil {
			return nil, err
		}
		vdims, err := v.Dimensions()
		if err != nil {
			return nil, err
		}
		for _, dn := range vdims {
			if seen[dn] {
				continue
			}
			d, err := inherited(g.Parent(), dn)
			if err != nil {
				return nil, err
			}
			if err := add(d); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// inherited finds dimension name in g or its ancestors.
func inherited(g *hdfnc.Group, name string) (*hdfnc.Dimension, error) {
	for ; g != nil; g = g.Parent() {
		if g.Dimensions().Has(name) {
			return g.Dimensions().Get(name)
		}
	}
	return nil, fmt.Errorf("cdfio: dimension %q not found", name)
}

// classicZero returns an empty slice of the classic type that stores
// dtype, as required by cdf.Header.AddVariable.
func classicZero(dtype h5.DType) (interface{}, error) {
	switch dtype {
	case h5.Int8, h5.Uint8:
		return []uint8{}, nil
	case h5.Int16:
		return []int16{}, nil
	case h5.Int32:
		return []int32{}, nil
	case h5.Float32:
		return []float32{}, nil
	case h5.Float64:
		return []float64{}, nil
	}
	return nil, fmt.Errorf("type %s cannot be stored in a netCDF classic file", dtype)
}

// toClassic converts variable data to the slice type the cdf writer
// expects. BYTE is signed in netCDF classic; int8 values keep their bits.
func toClassic(data interface{}) (interface{}, error) {
	switch d := data.(type) {
	case []int8:
		out := make([]uint8, len(d))
		for i, x := range d {
			out[i] = uint8(x)
		}
		return out, nil
	case []uint8, []int16, []int32, []float32, []float64:
		return d, nil
	}
	return nil, fmt.Errorf("data of type %T cannot be stored in a netCDF classic file", data)
}

// classicAttr converts an attribute value as returned by
// hdfnc.Attributes.Get to one of the types cdf.Header.AddAttribute
// accepts. Integers wider than 32 bits are narrowed to INT when every
// element fits.
func classicAttr(val interface{}) (interface{}, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case int8:
		return []uint8{uint8(v)}, true
	case []int8:
		c, _ := toClassic(v)
		return c, true
	case uint8:
		return []uint8{v}, true
	case int16:
		return []int16{v}, true
	case int32:
		return []int32{v}, true
	case float32:
		return []float32{v}, true
	case float64:
		return []float64{v}, true
	case []uint8, []int16, []int32, []float32, []float64:
		return v, true
	case nil, []string, []interface{}:
		return nil, false
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		s := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		s.Index(0).Set(rv)
		rv = s
	}
	out := make([]int32, rv.Len())
	for i := range out {
		x, ok := int64Value(rv.Index(i))
		if !ok || x < math.MinInt32 || x > math.MaxInt32 {
			return nil, false
		}
		out[i] = int32(x)
	}
	return out, true
}

func int64Value(e reflect.Value) (int64, bool) {
	switch e.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if e.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(e.Uint()), true
	}
	return 0, false
}

// Import creates the dimensions, variables and attributes of the netCDF
// classic file r in g. The record dimension becomes an unlimited
// dimension. CHAR variables are skipped with a warning.
func Import(r *os.File, g *hdfnc.Group) error {
	log := g.File().Log
	f, err := cdf.Open(r)
	if err != nil {
		return errors.Wrap(err, "cdfio: reading header")
	}
	fi, err := r.Stat()
	if err != nil {
		return errors.Wrap(err, "cdfio")
	}
	numRecs := int(f.Header.NumRecs(fi.Size()))

	dimLengths := f.Header.Lengths("")
	for i, name := range f.Header.Dimensions("") {
		if _, err := g.Dimensions().Create(name, dimLengths[i]); err != nil {
			return err
		}
	}
	ga, err := g.Attrs()
	if err != nil {
		return err
	}
	for _, k := range f.Header.Attributes("") {
		if err := ga.Set(k, fromClassicAttr(f.Header.GetAttribute("", k), false)); err != nil {
			return err
		}
	}

	for _, name := range f.Header.Variables() {
		if err := importVariable(f, g, name, numRecs); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{"group": g.Path(), "records": numRecs}).Debug("cdfio: imported classic file")
	return nil
}

func importVariable(f *cdf.File, g *hdfnc.Group, name string, numRecs int) error {
	log := g.File().Log
	unsigned := false
	if u, ok := f.Header.GetAttribute(name, unsignedAttr).(string); ok && u == "true" {
		unsigned = true
	}
	var dtype h5.DType
	switch f.Header.ZeroValue(name, 0).(type) {
	case []uint8:
		dtype = h5.Int8
		if unsigned {
			dtype = h5.Uint8
		}
	case []int16:
		dtype = h5.Int16
	case []int32:
		dtype = h5.Int32
	case []float32:
		dtype = h5.Float32
	case []float64:
		dtype = h5.Float64
	default:
		log.WithField("variable", name).Warn("cdfio: skipping CHAR variable")
		return nil
	}

	dims := f.Header.Dimensions(name)
	lengths := append([]int{}, f.Header.Lengths(name)...)
	if f.Header.IsRecordVariable(name) {
		lengths[0] = numRecs
	}

	var opts []hdfnc.VariableOption
	if fill := f.Header.GetAttribute(name, "_FillValue"); fill != nil {
		if fv, ok := fromClassicData(fill, unsigned); ok && reflect.ValueOf(fv).Len() == 1 {
			opts = append(opts, hdfnc.WithFillValue(reflect.ValueOf(fv).Index(0).Interface()))
		}
	}
	v, err := g.CreateVariable(name, dims, dtype, opts...)
	if err != nil {
		return err
	}

	attrs, err := v.Attrs()
	if err != nil {
		return err
	}
	for _, k := range f.Header.Attributes(name) {
		if k == "_FillValue" && len(opts) > 0 {
			continue
		}
		if k == unsignedAttr && unsigned {
			continue
		}
		if err := attrs.Set(k, fromClassicAttr(f.Header.GetAttribute(name, k), unsigned)); err != nil {
			return err
		}
	}

	n := h5.NumElements(lengths)
	if n == 0 {
		return nil
	}
	begin := make([]int, len(lengths))
	end := make([]int, len(lengths))
	for i, l := range lengths {
		end[i] = l - 1
	}
	rd := f.Reader(name, begin, end)
	buf := rd.Zero(n)
	if _, err := rd.Read(buf); err != nil && err != io.EOF {
		return errors.Wrapf(err, "cdfio: reading variable %q", name)
	}
	data, _ := fromClassicData(buf, unsigned)
	return v.Write(nil, data, lengths)
}

// fromClassicData converts a slice read from a classic file, which holds
// BYTE values as []uint8, to the element type of the imported variable.
func fromClassicData(val interface{}, unsigned bool) (interface{}, bool) {
	switch v := val.(type) {
	case []uint8:
		if unsigned {
			return v, true
		}
		out := make([]int8, len(v))
		for i, x := range v {
			out[i] = int8(x)
		}
		return out, true
	case []int16, []int32, []float32, []float64:
		return v, true
	}
	return nil, false
}

// fromClassicAttr converts a classic attribute value for Attributes.Set.
func fromClassicAttr(val interface{}, unsigned bool) interface{} {
	if s, ok := val.(string); ok {
		return s
	}
	out, ok := fromClassicData(val, unsigned)
	if !ok {
		return val
	}
	return out
}
