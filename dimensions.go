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
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
)

// PhonyPrefix starts the names of phony dimensions.
const PhonyPrefix = "phony_dim_"

// notAVariable is the scale label of a dimension dataset that does not
// hold coordinate values. It is followed by the dimension length.
const notAVariable = "This is a netCDF dimension but not a netCDF variable."

// nonCoordPrefix is prepended to the dataset name of a variable that shares
// its name with a dimension it is not the coordinate variable of.
const nonCoordPrefix = "_nc4_non_coord_"

func notAVariableLabel(size int) string {
	return fmt.Sprintf("%s%10d", notAVariable, size)
}

// Dimensions holds the dimensions defined in one group, in the order they
// were created or discovered.
type Dimensions struct {
	g     *Group
	names []string
	m     map[string]*Dimension
}

func newDimensions(g *Group) *Dimensions {
	return &Dimensions{g: g, m: make(map[string]*Dimension)}
}

func (ds *Dimensions) register(d *Dimension) {
	ds.names = append(ds.names, d.name)
	ds.m[d.name] = d
}

// Create defines a new dimension. A size of zero or less makes the
// dimension unlimited. Names starting with PhonyPrefix create phony
// dimensions, which are never written to the store. Other names require a
// writable file and a name not yet used by a dimension of this group.
func (ds *Dimensions) Create(name string, size int) (*Dimension, error) {
	if strings.HasPrefix(name, PhonyPrefix) {
		return ds.Add(name, size)
	}
	f := ds.g.f
	if err := f.checkWritable("creating dimension " + name); err != nil {
		return nil, err
	}
	if _, ok := ds.m[name]; ok {
		return nil, newError(ErrInvalidState, "dimension %q already exists in group %s", name, ds.g.path)
	}
	if size < 0 {
		size = 0
	}
	hg, err := ds.g.h5group()
	if err != nil {
		return nil, err
	}

	if n, err := hg.Child(name); err == nil {
		if err := ds.moveNonCoordinate(hg, n, name); err != nil {
			return nil, err
		}
	}

	spec := h5.DatasetSpec{Shape: []int{size}, Type: h5.Float32}
	if size == 0 {
		spec.MaxShape = []int{h5.Unlimited}
	}
	backing, err := hg.CreateDataset(name, spec)
	if err != nil {
		return nil, storeError(err, "creating dimension %q", name)
	}
	id := f.maxDimID + 1
	if err := ds.markScale(backing, id, size); err != nil {
		if derr := hg.Delete(name); derr != nil {
			err = errors.Wrapf(err, "removing partial dimension dataset also failed: %v", derr)
		}
		return nil, storeError(err, "creating dimension %q", name)
	}
	f.maxDimID = id

	d := &Dimension{g: ds.g, name: name, id: id, size: size, path: backing.Path()}
	ds.register(d)
	f.Log.WithFields(logrus.Fields{
		"dimension": name,
		"group":     ds.g.path,
		"size":      size,
		"dimid":     id,
	}).Debug("hdfnc: created dimension")
	return d, nil
}

// markScale labels backing as the dimension scale with the given id.
func (ds *Dimensions) markScale(backing h5.Dataset, id, size int) error {
	dimid := h5.Value{Type: h5.Int32, Data: []int32{int32(id)}}
	if err := backing.Attrs().Set(attrDimid, dimid); err != nil {
		return err
	}
	return ds.g.f.store.MakeScale(backing, notAVariableLabel(size))
}

// moveNonCoordinate renames the dataset n, which occupies the name of a new
// dimension, to the non-coordinate name. Its scale attachments are keyed
// by reference and are unaffected.
func (ds *Dimensions) moveNonCoordinate(hg h5.Group, n h5.Node, name string) error {
	if _, ok := n.(h5.Dataset); !ok {
		return newError(ErrInvalidState, "cannot create dimension %q: a group of that name exists", name)
	}
	if err := hg.Move(name, nonCoordPrefix+name); err != nil {
		return storeError(err, "moving variable %q aside for dimension", name)
	}
	ds.g.renameVariable(name, nonCoordPrefix+name)
	ds.g.f.Log.WithFields(logrus.Fields{
		"variable": name,
		"group":    ds.g.path,
	}).Debug("hdfnc: renamed variable sharing its name with a new dimension")
	return nil
}

// Add registers a phony dimension of the given size. Phony dimensions
// have no backing dataset and are numbered by the file's phony counter.
func (ds *Dimensions) Add(name string, size int) (*Dimension, error) {
	if err := ds.g.f.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := ds.m[name]; ok {
		return nil, newError(ErrInvalidState, "dimension %q already exists in group %s", name, ds.g.path)
	}
	f := ds.g.f
	d := &Dimension{g: ds.g, name: name, phony: true, id: f.phonyCount, size: size}
	f.phonyCount++
	ds.register(d)
	f.Log.WithFields(logrus.Fields{
		"dimension": name,
		"group":     ds.g.path,
		"size":      size,
	}).Debug("hdfnc: added phony dimension")
	return d, nil
}

// discover registers the existing dimension scale backing.
func (ds *Dimensions) discover(name string, backing h5.Dataset) {
	d := &Dimension{
		g:    ds.g,
		name: name,
		id:   intAttr(backing.Attrs(), attrDimid, -1),
		path: backing.Path(),
	}
	if s := backing.Shape(); len(s) > 0 {
		d.size = s[0]
	}
	ds.register(d)
}

// Get returns the named dimension of this group.
func (ds *Dimensions) Get(name string) (*Dimension, error) {
	d, ok := ds.m[name]
	if !ok {
		return nil, newError(ErrNotFound, "no dimension %q in group %s", name, ds.g.path)
	}
	return d, nil
}

// Delete always fails: dimensions cannot be deleted.
func (ds *Dimensions) Delete(name string) error {
	return newError(ErrInvalidState, "cannot delete dimension %q: deleting dimensions is not supported", name)
}

// Names returns the dimension names in order.
func (ds *Dimensions) Names() []string { return append([]string{}, ds.names...) }

// Len returns the number of dimensions, including phony ones.
func (ds *Dimensions) Len() int { return len(ds.names) }

// Has reports whether the group defines the named dimension.
func (ds *Dimensions) Has(name string) bool {
	_, ok := ds.m[name]
	return ok
}

// Sizes returns the current size of every dimension.
func (ds *Dimensions) Sizes() (map[string]int, error) {
	sizes := make(map[string]int, len(ds.names))
	for _, name := range ds.names {
		s, err := ds.m[name].Size()
		if err != nil {
			return nil, err
		}
		sizes[name] = s
	}
	return sizes, nil
}

func (ds *Dimensions) String() string {
	if ds.g.f.closed {
		return "<Closed hdfnc.Dimensions>"
	}
	parts := make([]string, len(ds.names))
	for i, name := range ds.names {
		size, err := ds.m[name].Size()
		if err != nil {
			parts[i] = fmt.Sprintf("%s=<%v>", name, err)
			continue
		}
		parts[i] = fmt.Sprintf("%s=%d", name, size)
	}
	return fmt.Sprintf("<hdfnc.Dimensions: %s>", strings.Join(parts, ", "))
}
