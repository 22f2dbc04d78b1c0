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

package memh5

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spatialmodel/hdfnc/h5"
)

// node is a handle on an arena object. Handles hold only the reference,
// so they stay valid across moves and fail cleanly after deletion.
type node struct {
	s   *Store
	ref h5.Ref
}

func (n node) Ref() h5.Ref { return n.ref }

func (n node) Path() string { return n.s.pathOf(n.ref) }

func (n node) Name() string {
	if o, ok := n.s.a.Objects[n.ref]; ok {
		if n.ref == rootRef {
			return "/"
		}
		return o.Name
	}
	return ""
}

func (n node) Attrs() h5.AttributeSet { return attrs{n} }

type group struct{ node }

func (g *group) Children() []string {
	o, err := g.s.obj(g.ref)
	if err != nil || !o.IsGroup {
		return nil
	}
	return append([]string{}, o.Children...)
}

func (g *group) Child(name string) (h5.Node, error) {
	o, err := g.s.obj(g.ref)
	if err != nil {
		return nil, err
	}
	ref, ok := o.Index[name]
	if !ok {
		return nil, fmt.Errorf("memh5: %s: %w", h5.Join(g.Path(), name), h5.ErrNotExist)
	}
	c, err := g.s.obj(ref)
	if err != nil {
		return nil, err
	}
	return g.s.wrap(c), nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("memh5: invalid object name %q", name)
	}
	return nil
}

// link adds a new child object to g.
func (g *group) link(op, name string, c *object) error {
	if err := validName(name); err != nil {
		return err
	}
	o, err := g.s.obj(g.ref)
	if err != nil {
		return err
	}
	path := h5.Join(g.Path(), name)
	if err := g.s.modify(op, path); err != nil {
		return err
	}
	if _, ok := o.Index[name]; ok {
		return fmt.Errorf("memh5: %s: %w", path, h5.ErrExist)
	}
	c.Ref = g.s.a.Next
	g.s.a.Next++
	c.Name = name
	c.Parent = g.ref
	c.AttrVals = make(map[string]h5.Value)
	g.s.a.Objects[c.Ref] = c
	o.Index[name] = c.Ref
	o.Children = append(o.Children, name)
	return nil
}

func (g *group) CreateGroup(name string) (h5.Group, error) {
	c := &object{IsGroup: true, Index: make(map[string]h5.Ref)}
	if err := g.link("create_group", name, c); err != nil {
		return nil, err
	}
	return &group{node{s: g.s, ref: c.Ref}}, nil
}

func (g *group) CreateDataset(name string, spec h5.DatasetSpec) (h5.Dataset, error) {
	path := h5.Join(g.Path(), name)
	maxShape := spec.MaxShape
	if maxShape == nil {
		maxShape = spec.Shape
	}
	if len(maxShape) != len(spec.Shape) {
		return nil, fmt.Errorf("memh5: %s: rank of max shape %v does not match shape %v: %w",
			path, maxShape, spec.Shape, h5.ErrShape)
	}
	for i, s := range spec.Shape {
		if s < 0 || (maxShape[i] != h5.Unlimited && maxShape[i] < s) {
			return nil, fmt.Errorf("memh5: %s: shape %v exceeds max shape %v: %w",
				path, spec.Shape, maxShape, h5.ErrShape)
		}
	}
	data, err := h5.MakeSlice(spec.Type, h5.NumElements(spec.Shape))
	if err != nil {
		return nil, fmt.Errorf("memh5: %s: %v", path, err)
	}
	fill, err := convertFill(spec.Fill, data)
	if err != nil {
		return nil, fmt.Errorf("memh5: %s: %v", path, err)
	}
	fillSlice(data, fill)
	if spec.Data != nil {
		if reflect.TypeOf(spec.Data) != reflect.TypeOf(data) {
			return nil, fmt.Errorf("memh5: %s: data of type %T does not match dataset type %s",
				path, spec.Data, spec.Type)
		}
		if n := reflect.ValueOf(spec.Data).Len(); n != h5.NumElements(spec.Shape) {
			return nil, fmt.Errorf("memh5: %s: %d data elements for shape %v: %w",
				path, n, spec.Shape, h5.ErrShape)
		}
		data = h5.CopySlice(spec.Data)
	}
	c := &object{
		Type:     spec.Type,
		Shape:    append([]int{}, spec.Shape...),
		MaxShape: append([]int{}, maxShape...),
		FillVal:  fill,
		Data:     data,
	}
	if err := g.link("create_dataset", name, c); err != nil {
		return nil, err
	}
	return &dataset{node{s: g.s, ref: c.Ref}}, nil
}

func (g *group) Delete(name string) error {
	o, err := g.s.obj(g.ref)
	if err != nil {
		return err
	}
	path := h5.Join(g.Path(), name)
	if err := g.s.modify("delete", path); err != nil {
		return err
	}
	ref, ok := o.Index[name]
	if !ok {
		return fmt.Errorf("memh5: %s: %w", path, h5.ErrNotExist)
	}
	if c, ok := g.s.a.Objects[ref]; ok {
		g.s.deleteTree(c)
	}
	delete(o.Index, name)
	o.Children = removeString(o.Children, name)
	return nil
}

func (g *group) Move(src, dst string) error {
	if err := validName(dst); err != nil {
		return err
	}
	o, err := g.s.obj(g.ref)
	if err != nil {
		return err
	}
	path := h5.Join(g.Path(), src)
	if err := g.s.modify("move", path); err != nil {
		return err
	}
	ref, ok := o.Index[src]
	if !ok {
		return fmt.Errorf("memh5: %s: %w", path, h5.ErrNotExist)
	}
	if _, ok := o.Index[dst]; ok {
		return fmt.Errorf("memh5: %s: %w", h5.Join(g.Path(), dst), h5.ErrExist)
	}
	delete(o.Index, src)
	o.Index[dst] = ref
	for i, c := range o.Children {
		if c == src {
			o.Children[i] = dst
		}
	}
	g.s.a.Objects[ref].Name = dst
	return nil
}

type dataset struct{ node }

func (d *dataset) object() *object {
	if o, err := d.s.obj(d.ref); err == nil && !o.IsGroup {
		return o
	}
	return nil
}

func (d *dataset) Type() h5.DType {
	if o := d.object(); o != nil {
		return o.Type
	}
	return h5.DType{}
}

func (d *dataset) Shape() []int {
	if o := d.object(); o != nil {
		return append([]int{}, o.Shape...)
	}
	return nil
}

func (d *dataset) MaxShape() []int {
	if o := d.object(); o != nil {
		return append([]int{}, o.MaxShape...)
	}
	return nil
}

func (d *dataset) Fill() interface{} {
	if o := d.object(); o != nil {
		return o.FillVal
	}
	return nil
}

func (d *dataset) Read() (interface{}, error) {
	o, err := d.s.obj(d.ref)
	if err != nil {
		return nil, err
	}
	return h5.CopySlice(o.Data), nil
}

func (d *dataset) Resize(shape []int) error {
	o, err := d.s.obj(d.ref)
	if err != nil {
		return err
	}
	path := d.Path()
	if err := d.s.modify("resize", path); err != nil {
		return err
	}
	if len(shape) != len(o.Shape) {
		return fmt.Errorf("memh5: resize %s to %v: rank is %d: %w", path, shape, len(o.Shape), h5.ErrShape)
	}
	for i, s := range shape {
		if s < 0 || (o.MaxShape[i] != h5.Unlimited && s > o.MaxShape[i]) {
			return fmt.Errorf("memh5: resize %s to %v: max shape is %v: %w", path, shape, o.MaxShape, h5.ErrShape)
		}
	}
	data, err := h5.MakeSlice(o.Type, h5.NumElements(shape))
	if err != nil {
		return err
	}
	fillSlice(data, o.FillVal)
	overlap := make([]int, len(shape))
	for i := range shape {
		overlap[i] = min(shape[i], o.Shape[i])
	}
	src, dst := reflect.ValueOf(o.Data), reflect.ValueOf(data)
	h5.ForEachIndex(overlap, func(idx []int) {
		dst.Index(h5.FlatIndex(idx, shape)).Set(src.Index(h5.FlatIndex(idx, o.Shape)))
	})
	o.Shape = append([]int{}, shape...)
	o.Data = data
	return nil
}

func (d *dataset) WriteSlab(start, count []int, data interface{}) error {
	o, err := d.s.obj(d.ref)
	if err != nil {
		return err
	}
	path := d.Path()
	if err := d.s.modify("write", path); err != nil {
		return err
	}
	if len(start) != len(o.Shape) || len(count) != len(o.Shape) {
		return fmt.Errorf("memh5: write %s: selection rank does not match shape %v: %w", path, o.Shape, h5.ErrShape)
	}
	for i := range start {
		if start[i] < 0 || count[i] < 0 || start[i]+count[i] > o.Shape[i] {
			return fmt.Errorf("memh5: write %s: selection %v+%v outside shape %v: %w",
				path, start, count, o.Shape, h5.ErrShape)
		}
	}
	if reflect.TypeOf(data) != reflect.TypeOf(o.Data) {
		return fmt.Errorf("memh5: write %s: data of type %T does not match dataset type %s", path, data, o.Type)
	}
	src, dst := reflect.ValueOf(data), reflect.ValueOf(o.Data)
	if src.Len() != h5.NumElements(count) {
		return fmt.Errorf("memh5: write %s: %d elements for count %v: %w", path, src.Len(), count, h5.ErrShape)
	}
	pos := make([]int, len(start))
	h5.ForEachIndex(count, func(idx []int) {
		for i := range idx {
			pos[i] = start[i] + idx[i]
		}
		v := src.Index(h5.FlatIndex(idx, count))
		if b, ok := v.Interface().([]byte); ok {
			v = reflect.ValueOf(append([]byte{}, b...))
		}
		dst.Index(h5.FlatIndex(pos, o.Shape)).Set(v)
	})
	return nil
}

type attrs struct{ n node }

func (a attrs) object() *object {
	if o, err := a.n.s.obj(a.n.ref); err == nil {
		return o
	}
	return nil
}

func (a attrs) Get(name string) (h5.Value, bool) {
	o := a.object()
	if o == nil {
		return h5.Value{}, false
	}
	v, ok := o.AttrVals[name]
	if !ok {
		return h5.Value{}, false
	}
	return v.Clone(), true
}

func (a attrs) Has(name string) bool {
	o := a.object()
	if o == nil {
		return false
	}
	_, ok := o.AttrVals[name]
	return ok
}

func (a attrs) Names() []string {
	o := a.object()
	if o == nil {
		return nil
	}
	return append([]string{}, o.AttrNames...)
}

func (a attrs) Set(name string, v h5.Value) error {
	o, err := a.n.s.obj(a.n.ref)
	if err != nil {
		return err
	}
	if err := a.n.s.modify("attr.set", a.n.Path()+"@"+name); err != nil {
		return err
	}
	a.set(o, name, v)
	return nil
}

// set stores an attribute without the modification checks.
func (a attrs) set(o *object, name string, v h5.Value) {
	if _, ok := o.AttrVals[name]; !ok {
		o.AttrNames = append(o.AttrNames, name)
	}
	o.AttrVals[name] = v.Clone()
}

func (a attrs) Delete(name string) error {
	o, err := a.n.s.obj(a.n.ref)
	if err != nil {
		return err
	}
	path := a.n.Path() + "@" + name
	if err := a.n.s.modify("attr.delete", path); err != nil {
		return err
	}
	if _, ok := o.AttrVals[name]; !ok {
		return fmt.Errorf("memh5: attribute %s: %w", path, h5.ErrNotExist)
	}
	a.del(o, name)
	return nil
}

func (a attrs) del(o *object, name string) {
	delete(o.AttrVals, name)
	o.AttrNames = removeString(o.AttrNames, name)
}

func removeString(s []string, x string) []string {
	o := s[:0]
	for _, e := range s {
		if e != x {
			o = append(o, e)
		}
	}
	return o
}

// convertFill converts fill to the element type of the slice data.
func convertFill(fill, data interface{}) (interface{}, error) {
	if fill == nil {
		return nil, nil
	}
	et := reflect.TypeOf(data).Elem()
	fv := reflect.ValueOf(fill)
	if s, ok := fill.(string); ok && et == reflect.TypeOf([]byte{}) {
		return []byte(s), nil
	}
	if fv.Kind() == reflect.Slice && fv.Len() == 1 && fv.Type().Elem() != reflect.TypeOf(byte(0)) {
		fv = fv.Index(0)
	}
	if !fv.Type().ConvertibleTo(et) {
		return nil, fmt.Errorf("fill value of type %T is not convertible to %s", fill, et)
	}
	return fv.Convert(et).Interface(), nil
}

func fillSlice(data, fill interface{}) {
	if fill == nil {
		return
	}
	dv, fv := reflect.ValueOf(data), reflect.ValueOf(fill)
	if dv.Len() == 0 || fv.IsZero() {
		return
	}
	for i := 0; i < dv.Len(); i++ {
		dv.Index(i).Set(fv)
	}
}
