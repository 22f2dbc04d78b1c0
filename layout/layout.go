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

// Package layout describes the structure and contents of a netCDF-4 file
// in TOML, so that files can be built from, and summarized as, text.
//
// A layout looks like this:
//
//	[Attributes]
//	title = "example"
//	scale = {Type = "float32", Value = 0.5}
//
//	[[Dimensions]]
//	Name = "x"
//	Size = 3
//
//	[[Dimensions]]
//	Name = "time" # Size 0 is unlimited
//
//	[[Variables]]
//	Name = "x"
//	Dimensions = ["x"]
//	Type = "float64"
//	Data = [10.0, 20.0, 30.0]
//	  [Variables.Attributes]
//	  units = "m"
//
//	[[Groups]]
//	Name = "sub"
//	  [[Groups.Variables]]
//	  ...
package layout

import (
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spatialmodel/hdfnc"
	"github.com/spatialmodel/hdfnc/h5"
)

// Layout is a group: its attributes, dimensions, variables and
// subgroups. The Name of the outermost layout is ignored.
type Layout struct {
	Name       string                 `toml:",omitempty"`
	Attributes map[string]interface{} `toml:",omitempty"`
	Dimensions []Dimension            `toml:",omitempty"`
	Variables  []Variable             `toml:",omitempty"`
	Groups     []Layout               `toml:",omitempty"`
}

// Dimension is a dimension definition. A Size of zero makes the dimension
// unlimited.
type Dimension struct {
	Name string
	Size int
}

// Variable is a variable definition. Data, if present, is the flat
// row-major contents. Fill is the fill value.
type Variable struct {
	Name       string
	Dimensions []string
	Type       string
	Fill       interface{}            `toml:",omitempty"`
	Data       interface{}            `toml:",omitempty"`
	Attributes map[string]interface{} `toml:",omitempty"`
}

// Decode reads a layout.
func Decode(r io.Reader) (*Layout, error) {
	l := new(Layout)
	if _, err := toml.DecodeReader(r, l); err != nil {
		return nil, errors.Wrap(err, "layout: decoding")
	}
	return l, nil
}

// Encode writes l as TOML.
func (l *Layout) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(l); err != nil {
		return errors.Wrap(err, "layout: encoding")
	}
	return nil
}

// Apply creates the contents of l in g.
func (l *Layout) Apply(g *hdfnc.Group) error {
	for _, d := range l.Dimensions {
		if _, err := g.Dimensions().Create(d.Name, d.Size); err != nil {
			return err
		}
	}
	if err := applyAttributes(g.Attrs, l.Attributes); err != nil {
		return errors.Wrapf(err, "layout: group %s", g.Path())
	}
	for _, v := range l.Variables {
		if err := v.create(g); err != nil {
			return errors.Wrapf(err, "layout: variable %s", v.Name)
		}
	}
	for _, sub := range l.Groups {
		c, err := g.CreateGroup(sub.Name)
		if err != nil {
			return err
		}
		if err := sub.Apply(c); err != nil {
			return err
		}
	}
	return nil
}

func (v *Variable) create(g *hdfnc.Group) error {
	if v.Type == "" {
		return fmt.Errorf("missing type")
	}
	dtype, err := h5.ParseDType(v.Type)
	if err != nil {
		return err
	}
	var opts []hdfnc.VariableOption
	if v.Fill != nil {
		fill, err := castScalar(v.Fill, dtype)
		if err != nil {
			return errors.Wrap(err, "fill value")
		}
		opts = append(opts, hdfnc.WithFillValue(fill))
	}
	if v.Data != nil {
		data, err := castSlice(v.Data, dtype)
		if err != nil {
			return errors.Wrap(err, "data")
		}
		opts = append(opts, hdfnc.WithData(data))
	}
	dims := v.Dimensions
	if dims == nil {
		dims = []string{}
	}
	nv, err := g.CreateVariable(v.Name, dims, dtype, opts...)
	if err != nil {
		return err
	}
	return applyAttributes(nv.Attrs, v.Attributes)
}

// applyAttributes sets attrs in key order. An attribute is a plain value,
// whose type is inferred, or a table with Type and Value keys.
func applyAttributes(get func() (*hdfnc.Attributes, error), attrs map[string]interface{}) error {
	if len(attrs) == 0 {
		return nil
	}
	a, err := get()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, err := attrValue(attrs[k])
		if err != nil {
			return errors.Wrapf(err, "attribute %s", k)
		}
		if err := a.Set(k, val); err != nil {
			return err
		}
	}
	return nil
}

// attrValue converts a decoded TOML value to an attribute value.
func attrValue(x interface{}) (interface{}, error) {
	switch v := x.(type) {
	case map[string]interface{}:
		name, ok := v["Type"].(string)
		if !ok {
			return nil, fmt.Errorf("typed attribute needs a Type")
		}
		dtype, err := h5.ParseDType(name)
		if err != nil {
			return nil, err
		}
		val, ok := v["Value"]
		if !ok {
			return nil, fmt.Errorf("typed attribute needs a Value")
		}
		if _, isSlice := val.([]interface{}); isSlice {
			return castSlice(val, dtype)
		}
		return castScalar(val, dtype)
	case []interface{}:
		dtype, err := inferType(v)
		if err != nil {
			return nil, err
		}
		return castSlice(v, dtype)
	}
	return x, nil
}

// inferType returns the narrowest common type of the elements of a TOML
// array: string, int64, or float64 if any element is a float.
func inferType(v []interface{}) (h5.DType, error) {
	if len(v) == 0 {
		return h5.DType{}, fmt.Errorf("cannot infer the type of an empty array")
	}
	dtype := h5.Int64
	for _, e := range v {
		switch e.(type) {
		case string:
			return h5.VarStringType(h5.UTF8), nil
		case float64:
			dtype = h5.Float64
		case int64:
		default:
			return h5.DType{}, fmt.Errorf("unsupported array element %T", e)
		}
	}
	return dtype, nil
}
