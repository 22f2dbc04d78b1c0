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

// Group is a netCDF-4 group: a set of dimensions, variables, attributes
// and child groups. Child groups and variables are constructed the first
// time they are accessed.
type Group struct {
	f      *File
	parent *Group
	path   string
	dims   *Dimensions

	// Variables by dataset name, which may carry the non-coordinate
	// prefix. A nil entry has not been loaded yet.
	varNames []string
	vars     map[string]*Variable

	groupNames []string
	groups     map[string]*Group
}

// newGroup constructs the group at path and registers the dimensions,
// variables and child groups found in the store.
func newGroup(f *File, parent *Group, path string) (*Group, error) {
	g := &Group{
		f:      f,
		parent: parent,
		path:   path,
		vars:   make(map[string]*Variable),
		groups: make(map[string]*Group),
	}
	g.dims = newDimensions(g)
	hg, err := g.h5group()
	if err != nil {
		return nil, err
	}

	phony := newSizeCounter()
	for _, name := range hg.Children() {
		n, err := hg.Child(name)
		if err != nil {
			return nil, storeError(err, "reading %s", h5.Join(path, name))
		}
		switch c := n.(type) {
		case h5.Group:
			g.groupNames = append(g.groupNames, name)
			g.groups[name] = nil
		case h5.Dataset:
			if f.store.IsScale(c) {
				g.dims.discover(name, c)
			} else if f.phonyMode != PhonyDimsNone {
				labelled, err := g.labelledAxes(c)
				if err != nil {
					return nil, err
				}
				if labelled == 0 {
					phony.union(c.Shape())
				}
			}
			if !isDimensionOnly(c) {
				g.varNames = append(g.varNames, name)
				g.vars[name] = nil
			}
		}
	}

	if f.phonyMode != PhonyDimsNone {
		if err := g.createPhonyDimensions(phony); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// isDimensionOnly reports whether ds is a dimension scale that does not
// hold a variable.
func isDimensionOnly(ds h5.Dataset) bool {
	v, ok := ds.Attrs().Get(h5.AttrName)
	if !ok || v.Empty {
		return false
	}
	bb, _ := v.Data.([][]byte)
	return len(bb) == 1 && strings.Contains(string(bb[0]), notAVariable)
}

// labelledAxes returns the number of scales attached to ds. A dataset
// with scales on some but not all axes is malformed.
func (g *Group) labelledAxes(ds h5.Dataset) (int, error) {
	rank := len(ds.Shape())
	n := 0
	for axis := 0; axis < rank; axis++ {
		scales, err := g.f.store.AxisScales(ds, axis)
		if err != nil {
			return 0, storeError(err, "reading scales of %s", ds.Path())
		}
		n += len(scales)
	}
	if n != 0 && n != rank {
		return 0, newError(ErrInvalidState, "malformed variable %s has mixing of labeled and unlabeled dimensions", h5.Base(ds.Path()))
	}
	return n, nil
}

// sizeCounter counts axis lengths, remembering the order sizes were
// first seen.
type sizeCounter struct {
	order  []int
	counts map[int]int
}

func newSizeCounter() *sizeCounter { return &sizeCounter{counts: make(map[int]int)} }

func (c *sizeCounter) add(size, n int) {
	if _, ok := c.counts[size]; !ok {
		c.order = append(c.order, size)
	}
	if n > c.counts[size] {
		c.counts[size] = n
	}
}

// union keeps, for every size, the larger of the current count and the
// number of axes of shape with that size.
func (c *sizeCounter) union(shape []int) {
	local := newSizeCounter()
	for _, s := range shape {
		local.add(s, local.counts[s]+1)
	}
	for _, s := range local.order {
		c.add(s, local.counts[s])
	}
}

// createPhonyDimensions adds the phony dimensions needed to name the
// unlabelled axes counted in phony. Named dimensions of a matching fixed
// size are used first.
func (g *Group) createPhonyDimensions(phony *sizeCounter) error {
	labelled := make(map[int]int)
	for _, name := range g.dims.names {
		d := g.dims.m[name]
		if d.phony {
			continue
		}
		ms, err := d.MaxSize()
		if err != nil {
			return err
		}
		labelled[ms]++
	}
	for _, size := range phony.order {
		for i := labelled[size]; i < phony.counts[size]; i++ {
			n := g.f.phonyCount
			if g.f.phonyMode == PhonyDimsSort {
				n += g.f.maxDimID + 1
			}
			if _, err := g.dims.Add(fmt.Sprintf("%s%d", PhonyPrefix, n), size); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Group) h5group() (h5.Group, error) {
	if err := g.f.checkOpen(); err != nil {
		return nil, err
	}
	n, err := g.f.store.Lookup(g.path)
	if err != nil {
		return nil, storeError(err, "group %s", g.path)
	}
	hg, ok := n.(h5.Group)
	if !ok {
		return nil, newError(ErrInvalidState, "%s is not a group", g.path)
	}
	return hg, nil
}

// Name returns the last element of the group path, or "/" for the root.
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return h5.Base(g.path)
}

// Path returns the absolute path of the group.
func (g *Group) Path() string { return g.path }

// Parent returns the parent group, or nil for the root.
func (g *Group) Parent() *Group { return g.parent }

// File returns the file the group belongs to.
func (g *Group) File() *File { return g.f }

// Dimensions returns the dimensions defined in this group.
func (g *Group) Dimensions() *Dimensions { return g.dims }

// Attrs returns the attributes of the group.
func (g *Group) Attrs() (*Attributes, error) {
	hg, err := g.h5group()
	if err != nil {
		return nil, err
	}
	return newAttributes(g.f, hg), nil
}

// findDimension looks the named dimension up in g and its ancestors.
func (g *Group) findDimension(name string) (*Dimension, error) {
	for c := g; c != nil; c = c.parent {
		if d, ok := c.dims.m[name]; ok {
			return d, nil
		}
	}
	return nil, newError(ErrNotFound, "no dimension %q visible from group %s", name, g.path)
}

// dimensionIDs maps the ids of the named dimensions visible from g to
// their names. Dimensions of inner groups shadow those of outer groups.
func (g *Group) dimensionIDs() map[int]string {
	ids := make(map[int]string)
	seen := make(map[string]bool)
	for c := g; c != nil; c = c.parent {
		for _, name := range c.dims.names {
			d := c.dims.m[name]
			if seen[name] || d.phony {
				continue
			}
			seen[name] = true
			if _, ok := ids[d.id]; !ok {
				ids[d.id] = name
			}
		}
	}
	return ids
}

// GroupNames returns the names of the child groups in creation order.
func (g *Group) GroupNames() []string { return append([]string{}, g.groupNames...) }

// Subgroup returns the named child group.
func (g *Group) Subgroup(name string) (*Group, error) {
	c, ok := g.groups[name]
	if !ok {
		return nil, newError(ErrNotFound, "no group %q in %s", name, g.path)
	}
	if c != nil {
		return c, nil
	}
	c, err := newGroup(g.f, g, h5.Join(g.path, name))
	if err != nil {
		return nil, err
	}
	g.groups[name] = c
	return c, nil
}

// VariableNames returns the names of the variables in creation order.
func (g *Group) VariableNames() []string {
	names := make([]string, len(g.varNames))
	for i, n := range g.varNames {
		names[i] = strings.TrimPrefix(n, nonCoordPrefix)
	}
	return names
}

// resolveVariable returns the dataset name of the variable name.
func (g *Group) resolveVariable(name string) (string, bool) {
	if _, ok := g.vars[name]; ok {
		return name, true
	}
	if _, ok := g.vars[nonCoordPrefix+name]; ok {
		return nonCoordPrefix + name, true
	}
	return "", false
}

// Variable returns the named variable.
func (g *Group) Variable(name string) (*Variable, error) {
	key, ok := g.resolveVariable(name)
	if !ok {
		return nil, newError(ErrNotFound, "no variable %q in %s", name, g.path)
	}
	if v := g.vars[key]; v != nil {
		return v, nil
	}
	v := newVariable(g, key, nil)
	g.vars[key] = v
	return v, nil
}

func (g *Group) renameVariable(from, to string) {
	v, ok := g.vars[from]
	if !ok {
		return
	}
	delete(g.vars, from)
	g.vars[to] = v
	for i, n := range g.varNames {
		if n == from {
			g.varNames[i] = to
		}
	}
	if v != nil {
		v.h5name = to
		v.path = h5.Join(g.path, to)
	}
}

// has reports whether name is a variable or child group of g.
func (g *Group) has(name string) bool {
	if _, ok := g.resolveVariable(name); ok {
		return true
	}
	_, ok := g.groups[name]
	return ok
}

// Len returns the number of variables and child groups.
func (g *Group) Len() int { return len(g.varNames) + len(g.groupNames) }

func (g *Group) getChild(name string) (interface{}, error) {
	if v, err := g.Variable(name); err == nil {
		return v, nil
	}
	if c, err := g.Subgroup(name); err == nil {
		return c, nil
	}
	return nil, newError(ErrNotFound, "no variable or group %q in %s", name, g.path)
}

// Get returns the *Variable or *Group at path, which is relative to g
// unless it starts with a slash.
func (g *Group) Get(path string) (interface{}, error) {
	if strings.HasPrefix(path, "/") {
		return g.f.Group.Get(strings.TrimLeft(path, "/"))
	}
	if path == "" {
		return g, nil
	}
	var item interface{} = g
	for _, k := range strings.Split(path, "/") {
		grp, ok := item.(*Group)
		if !ok {
			return nil, newError(ErrNotFound, "%s: %s is a variable", path, k)
		}
		var err error
		if item, err = grp.getChild(k); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// CreateGroup creates a group. Intermediate groups in a slash-separated
// path are created as needed, and a leading slash starts at the root.
func (g *Group) CreateGroup(path string) (*Group, error) {
	if strings.HasPrefix(path, "/") {
		return g.f.Group.CreateGroup(strings.TrimLeft(path, "/"))
	}
	keys := strings.Split(path, "/")
	parent, err := g.requireGroups(keys[:len(keys)-1])
	if err != nil {
		return nil, err
	}
	return parent.createChildGroup(keys[len(keys)-1])
}

func (g *Group) requireGroups(keys []string) (*Group, error) {
	c := g
	for _, k := range keys {
		next, err := c.Subgroup(k)
		if Is(err, ErrNotFound) {
			next, err = c.createChildGroup(k)
		}
		if err != nil {
			return nil, err
		}
		c = next
	}
	return c, nil
}

func (g *Group) createChildGroup(name string) (*Group, error) {
	if err := g.f.checkWritable("creating group " + name); err != nil {
		return nil, err
	}
	if g.has(name) {
		return nil, newError(ErrInvalidState, "unable to create group %q (name already exists)", name)
	}
	hg, err := g.h5group()
	if err != nil {
		return nil, err
	}
	if _, err := hg.CreateGroup(name); err != nil {
		return nil, storeError(err, "creating group %q", name)
	}
	c, err := newGroup(g.f, g, h5.Join(g.path, name))
	if err != nil {
		return nil, err
	}
	g.groupNames = append(g.groupNames, name)
	g.groups[name] = c
	g.f.Log.WithFields(logrus.Fields{"group": c.path}).Debug("hdfnc: created group")
	return c, nil
}

// VariableOption configures CreateVariable.
type VariableOption func(*variableConfig)

type variableConfig struct {
	data interface{}
	fill interface{}
}

// WithData sets the initial contents of a variable, as a flat row-major
// slice. A missing one-dimensional dimension is created with the length
// of data.
func WithData(data interface{}) VariableOption {
	return func(c *variableConfig) { c.data = data }
}

// WithFillValue sets the value of elements that have not been written,
// which is also recorded as the _FillValue attribute.
func WithFillValue(v interface{}) VariableOption {
	return func(c *variableConfig) { c.fill = v }
}

// CreateVariable creates a variable with the named dimensions, which must
// be visible from the group the variable is created in. If dtype is the
// zero DType, the type is taken from the WithData option. Intermediate
// groups in a slash-separated name are created as needed.
func (g *Group) CreateVariable(name string, dims []string, dtype h5.DType, opts ...VariableOption) (*Variable, error) {
	if strings.HasPrefix(name, "/") {
		return g.f.Group.CreateVariable(strings.TrimLeft(name, "/"), dims, dtype, opts...)
	}
	keys := strings.Split(name, "/")
	parent, err := g.requireGroups(keys[:len(keys)-1])
	if err != nil {
		return nil, err
	}
	cfg := new(variableConfig)
	for _, o := range opts {
		o(cfg)
	}
	return parent.createChildVariable(keys[len(keys)-1], dims, dtype, cfg)
}

func (g *Group) createChildVariable(name string, dims []string, dtype h5.DType, cfg *variableConfig) (*Variable, error) {
	f := g.f
	if err := f.checkWritable("creating variable " + name); err != nil {
		return nil, err
	}
	if g.has(name) {
		return nil, newError(ErrInvalidState, "unable to create variable %q (name already exists)", name)
	}

	if cfg.data != nil {
		rv := reflect.ValueOf(cfg.data)
		if rv.Kind() != reflect.Slice {
			return nil, newError(ErrInvalidState, "variable %q: data must be a slice, not %T", name, cfg.data)
		}
		if len(dims) == 1 {
			if _, err := g.findDimension(dims[0]); Is(err, ErrNotFound) {
				if _, err := g.dims.Create(dims[0], rv.Len()); err != nil {
					return nil, err
				}
			}
		}
	}

	if dtype.Class == h5.Invalid && cfg.data != nil {
		t, err := h5.TypeOf(cfg.data)
		if err != nil {
			return nil, wrapError(err, ErrTypeRejected, "variable %q", name)
		}
		dtype = t
	}
	if dtype.Class == h5.Bool && !f.invalidNetCDF {
		return nil, newError(ErrTypeRejected, "boolean dtypes are not a supported NetCDF feature, and are not allowed unless invalid netCDF is enabled")
	}
	if err := f.CheckDType(dtype); err != nil {
		return nil, err
	}

	shape := make([]int, len(dims))
	maxShape := make([]int, len(dims))
	for i, dn := range dims {
		d, err := g.findDimension(dn)
		if err != nil {
			return nil, err
		}
		if shape[i], err = d.Size(); err != nil {
			return nil, err
		}
		if maxShape[i], err = d.MaxSize(); err != nil {
			return nil, err
		}
	}
	var (
		data interface{}
		err  error
	)
	if cfg.data != nil {
		if data, err = convertSlice(cfg.data, dtype); err != nil {
			return nil, wrapError(err, ErrTypeRejected, "data of variable %q", name)
		}
		if err := fitData(shape, maxShape, reflect.ValueOf(data).Len()); err != nil {
			return nil, wrapError(err, ErrInvalidState, "variable %q", name)
		}
	}

	var fill interface{}
	if cfg.fill != nil {
		if fill, err = convertScalar(cfg.fill, dtype); err != nil {
			return nil, wrapError(err, ErrTypeRejected, "fill value of variable %q", name)
		}
	}

	// A variable sharing its name with a dimension it is not the
	// coordinate variable of is stored under another name.
	h5name := name
	if g.dims.Has(name) && (!contains(dims, name) || (len(dims) > 1 && dims[0] != name)) {
		h5name = nonCoordPrefix + name
	}

	hg, err := g.h5group()
	if err != nil {
		return nil, err
	}

	// Replace the placeholder dataset of a dimension by its coordinate
	// variable, keeping the attachments to re-create them afterwards.
	var refs []h5.ScaleRef
	if d, ok := g.dims.m[h5name]; ok && !d.phony {
		if _, err := hg.Child(h5name); err == nil {
			if refs, err = d.ScaleRefs(); err != nil {
				return nil, err
			}
			if err := d.DetachScale(); err != nil {
				return nil, err
			}
			if err := hg.Delete(h5name); err != nil {
				return nil, storeError(err, "replacing dimension dataset %q", h5name)
			}
		}
	}

	spec := h5.DatasetSpec{Shape: shape, MaxShape: maxShape, Type: dtype, Fill: fill, Data: data}
	ds, err := hg.CreateDataset(h5name, spec)
	if err != nil {
		return nil, storeError(err, "creating variable %q", name)
	}
	v := newVariable(g, h5name, append([]string{}, dims...))
	g.varNames = append(g.varNames, h5name)
	g.vars[h5name] = v

	if d, ok := g.dims.m[name]; ok && h5name == name && !d.phony {
		if err := g.createDimScale(d, ds, v); err != nil {
			return nil, err
		}
		if err := d.attachRefs(refs); err != nil {
			return nil, err
		}
	} else {
		if err := v.attachDimScales(ds); err != nil {
			return nil, err
		}
		if err := v.attachCoords(ds); err != nil {
			return nil, err
		}
	}
	if err := v.ensureDimID(ds); err != nil {
		return nil, err
	}
	if fill != nil {
		fv := h5.Value{Type: dtype, Data: sliceOf(fill)}
		if err := ds.Attrs().Set(attrFillValue, fv); err != nil {
			return nil, storeError(err, "writing fill value of %q", name)
		}
	}
	f.Log.WithFields(logrus.Fields{
		"variable":   v.Path(),
		"dimensions": dims,
		"dtype":      dtype.String(),
	}).Debug("hdfnc: created variable")
	return v, nil
}

// createDimScale turns the coordinate variable dataset ds into the scale
// of dimension d.
func (g *Group) createDimScale(d *Dimension, ds h5.Dataset, v *Variable) error {
	id := h5.Value{Type: h5.Int32, Data: []int32{int32(d.id)}}
	if err := ds.Attrs().Set(attrDimid, id); err != nil {
		return storeError(err, "writing dimension id of %q", d.name)
	}
	if len(ds.Shape()) > 1 {
		if err := v.writeCoordinates(ds); err != nil {
			return err
		}
	}
	if g.f.store.IsScale(ds) {
		return nil
	}
	if err := g.f.store.MakeScale(ds, d.name); err != nil {
		return storeError(err, "making %q a dimension scale", d.name)
	}
	return nil
}

// fitData checks that n elements fill shape. If they do not and exactly
// one axis is unlimited, that axis is extended to fit.
func fitData(shape, maxShape []int, n int) error {
	if h5.NumElements(shape) == n {
		return nil
	}
	axis, rest := -1, 1
	for i := range shape {
		if maxShape[i] == h5.Unlimited {
			if axis >= 0 {
				axis = -2
				break
			}
			axis = i
			continue
		}
		rest *= shape[i]
	}
	if axis >= 0 && rest > 0 && n%rest == 0 && n/rest >= shape[axis] {
		shape[axis] = n / rest
		return nil
	}
	return fmt.Errorf("%d data elements do not fill shape %v", n, shape)
}

func contains(s []string, x string) bool {
	for _, e := range s {
		if e == x {
			return true
		}
	}
	return false
}

// ResizeDimension resizes the named unlimited dimension of this group.
// If resizeVars is true, every variable using the dimension in this group
// and its descendants is resized too, padding with fill values.
func (g *Group) ResizeDimension(name string, size int, resizeVars bool) error {
	d, err := g.dims.Get(name)
	if err != nil {
		return err
	}
	unlimited, err := d.IsUnlimited()
	if err != nil {
		return err
	}
	if !unlimited {
		return newError(ErrInvalidState, "dimension %q is not unlimited and thus cannot be resized", name)
	}
	if err := d.Resize(size); err != nil {
		return err
	}
	if resizeVars {
		return g.resizeVariables(name, size)
	}
	return nil
}

func (g *Group) resizeVariables(dim string, size int) error {
	for _, key := range g.varNames {
		v, err := g.Variable(strings.TrimPrefix(key, nonCoordPrefix))
		if err != nil {
			return err
		}
		dims, err := v.Dimensions()
		if err != nil {
			return err
		}
		ds, err := v.dataset()
		if err != nil {
			return err
		}
		shape := ds.Shape()
		changed := false
		for i, d := range dims {
			if d == dim && i < len(shape) && shape[i] != size {
				shape[i] = size
				changed = true
			}
		}
		if changed {
			if err := ds.Resize(shape); err != nil {
				return storeError(err, "resizing variable %s", v.Path())
			}
		}
	}
	for _, name := range g.groupNames {
		c, err := g.Subgroup(name)
		if err != nil {
			return err
		}
		if err := c.resizeVariables(dim, size); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) body() []string {
	lines := []string{"Dimensions:"}
	for _, name := range g.dims.names {
		d := g.dims.m[name]
		size, err := d.Size()
		switch {
		case err != nil:
			lines = append(lines, fmt.Sprintf("    %s: <%v>", name, err))
		case func() bool { u, _ := d.IsUnlimited(); return u }():
			lines = append(lines, fmt.Sprintf("    %s: Unlimited (current: %d)", name, size))
		default:
			lines = append(lines, fmt.Sprintf("    %s: %d", name, size))
		}
	}
	lines = append(lines, "Groups:")
	for _, name := range g.groupNames {
		lines = append(lines, "    "+name)
	}
	lines = append(lines, "Variables:")
	for _, name := range g.VariableNames() {
		v, err := g.Variable(name)
		if err != nil {
			lines = append(lines, fmt.Sprintf("    %s: <%v>", name, err))
			continue
		}
		dims, err := v.Dimensions()
		if err != nil {
			lines = append(lines, fmt.Sprintf("    %s: <%v>", name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("    %s: (%s) %s", name, strings.Join(dims, ", "), v.DType()))
	}
	lines = append(lines, "Attributes:")
	if a, err := g.Attrs(); err == nil {
		lines = append(lines, a.lines("    ")...)
	}
	return lines
}

func (g *Group) String() string {
	if g.f.closed {
		return "<Closed hdfnc.Group>"
	}
	header := fmt.Sprintf("<hdfnc.Group %q (%d members)>", g.path, g.Len())
	return strings.Join(append([]string{header}, g.body()...), "\n")
}
