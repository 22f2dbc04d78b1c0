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

package layout

import (
	"github.com/spatialmodel/hdfnc"
	"github.com/spatialmodel/hdfnc/h5"
)

// Describe returns the layout of g and its subgroups, including variable
// contents. Phony dimensions are left out; values that have no layout
// representation, such as undecodable strings, are skipped.
func Describe(g *hdfnc.Group) (*Layout, error) {
	l := new(Layout)
	if g.Parent() != nil {
		l.Name = g.Name()
	}
	for _, name := range g.Dimensions().Names() {
		d, err := g.Dimensions().Get(name)
		if err != nil {
			return nil, err
		}
		if d.IsPhony() {
			continue
		}
		dim := Dimension{Name: name}
		unlimited, err := d.IsUnlimited()
		if err != nil {
			return nil, err
		}
		if !unlimited {
			if dim.Size, err = d.Size(); err != nil {
				return nil, err
			}
		}
		l.Dimensions = append(l.Dimensions, dim)
	}
	a, err := g.Attrs()
	if err != nil {
		return nil, err
	}
	if l.Attributes, err = describeAttributes(a, ""); err != nil {
		return nil, err
	}
	for _, name := range g.VariableNames() {
		v, err := g.Variable(name)
		if err != nil {
			return nil, err
		}
		dv, err := describeVariable(v)
		if err != nil {
			return nil, err
		}
		l.Variables = append(l.Variables, *dv)
	}
	for _, name := range g.GroupNames() {
		c, err := g.Subgroup(name)
		if err != nil {
			return nil, err
		}
		cl, err := Describe(c)
		if err != nil {
			return nil, err
		}
		l.Groups = append(l.Groups, *cl)
	}
	return l, nil
}

func describeVariable(v *hdfnc.Variable) (*Variable, error) {
	dims, err := v.Dimensions()
	if err != nil {
		return nil, err
	}
	dv := &Variable{Name: v.Name(), Dimensions: dims, Type: typeName(v.DType())}
	a, err := v.Attrs()
	if err != nil {
		return nil, err
	}
	if dv.Attributes, err = describeAttributes(a, "_FillValue"); err != nil {
		return nil, err
	}
	if a.Has("_FillValue") {
		if dv.Fill, err = a.Get("_FillValue"); err != nil {
			return nil, err
		}
	}
	shape, err := v.Shape()
	if err != nil {
		return nil, err
	}
	if h5.NumElements(shape) > 0 {
		data, err := v.Read()
		if err != nil {
			return nil, err
		}
		if raw, ok := data.([][]byte); ok {
			ss := make([]string, len(raw))
			for i, b := range raw {
				ss[i] = string(b)
			}
			data = ss
		}
		dv.Data = data
	}
	return dv, nil
}

// typeName returns the layout name of dtype.
func typeName(dtype h5.DType) string {
	if dtype.IsString() {
		if dtype.Size == 1 {
			return "char"
		}
		return "string"
	}
	return dtype.String()
}

// describeAttributes returns the attributes of a except skip. Strings
// and float64 and int64 values are stored plainly; other types are
// tables with a Type and a Value.
func describeAttributes(a *hdfnc.Attributes, skip string) (map[string]interface{}, error) {
	m, err := a.Map()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == skip {
			continue
		}
		switch v.(type) {
		case nil, []interface{}:
			continue
		case string, []string, float64, []float64, int64, []int64:
			out[k] = v
			continue
		}
		dtype, err := h5.TypeOf(v)
		if err != nil {
			continue
		}
		out[k] = map[string]interface{}{"Type": typeName(dtype), "Value": v}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
