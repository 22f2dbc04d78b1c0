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

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
)

// Dimension is a named axis shared by the variables of a group and its
// descendants. A named dimension is backed by a dataset marked as a
// dimension scale; a phony dimension has no backing dataset and only
// reports the size it was given.
type Dimension struct {
	g     *Group
	name  string
	phony bool
	id    int
	size  int

	// path locates the backing dataset. The dataset itself is looked up
	// on every access because it can be replaced by a coordinate variable.
	path string
}

// Name returns the dimension name.
func (d *Dimension) Name() string { return d.name }

// Group returns the group the dimension belongs to.
func (d *Dimension) Group() *Group { return d.g }

// IsPhony reports whether d was inferred from an unlabelled axis.
func (d *Dimension) IsPhony() bool { return d.phony }

// DimID returns the identifier assigned when the dimension was created or
// discovered. Named dimensions share one counter per file, which is
// persisted as _Netcdf4Dimid. Phony dimensions are numbered by a separate
// counter that is not persisted.
func (d *Dimension) DimID() int { return d.id }

func (d *Dimension) dataset() (h5.Dataset, error) {
	if d.phony {
		return nil, newError(ErrInvalidState, "phony dimension %q has no backing dataset", d.name)
	}
	if err := d.g.f.checkOpen(); err != nil {
		return nil, err
	}
	n, err := d.g.f.store.Lookup(d.path)
	if err != nil {
		return nil, storeError(err, "dimension %q", d.name)
	}
	ds, ok := n.(h5.Dataset)
	if !ok {
		return nil, newError(ErrInvalidState, "dimension %q: %s is not a dataset", d.name, d.path)
	}
	return ds, nil
}

// IsUnlimited reports whether the backing dataset can grow without bound.
func (d *Dimension) IsUnlimited() (bool, error) {
	if d.phony {
		return false, nil
	}
	ds, err := d.dataset()
	if err != nil {
		return false, err
	}
	ms := ds.MaxShape()
	return len(ms) > 0 && ms[0] == h5.Unlimited, nil
}

// Size returns the current length of the dimension. For an unlimited
// dimension this is the largest extent, along the attached axis, of the
// backing dataset and every dataset attached to its scale.
func (d *Dimension) Size() (int, error) {
	if d.phony {
		return d.size, nil
	}
	ds, err := d.dataset()
	if err != nil {
		return 0, err
	}
	shape, ms := ds.Shape(), ds.MaxShape()
	size := 0
	if len(shape) > 0 {
		size = shape[0]
	}
	if len(ms) == 0 || ms[0] != h5.Unlimited {
		return size, nil
	}
	refs, err := d.g.f.store.References(ds)
	if err != nil {
		return 0, storeError(err, "reading references of dimension %q", d.name)
	}
	for _, r := range refs {
		c, err := d.consumer(r)
		if err != nil {
			return 0, err
		}
		if s := c.Shape(); r.Axis < len(s) && s[r.Axis] > size {
			size = s[r.Axis]
		}
	}
	return size, nil
}

// MaxSize returns the largest size the dimension can have, or
// h5.Unlimited.
func (d *Dimension) MaxSize() (int, error) {
	if d.phony {
		return d.size, nil
	}
	ds, err := d.dataset()
	if err != nil {
		return 0, err
	}
	ms := ds.MaxShape()
	if len(ms) == 0 {
		return 1, nil
	}
	return ms[0], nil
}

// Resize sets the length of the backing dataset of an unlimited dimension.
// Variables using the dimension are not resized; see Group.ResizeDimension.
func (d *Dimension) Resize(size int) error {
	unlimited, err := d.IsUnlimited()
	if err != nil {
		return err
	}
	if !unlimited {
		return newError(ErrInvalidState, "dimension %q is not unlimited and thus cannot be resized", d.name)
	}
	if err := d.g.f.checkWritable("resizing dimension " + d.name); err != nil {
		return err
	}
	ds, err := d.dataset()
	if err != nil {
		return err
	}
	shape := ds.Shape()
	shape[0] = size
	if err := ds.Resize(shape); err != nil {
		return storeError(err, "resizing dimension %q", d.name)
	}
	d.g.f.Log.WithFields(logrus.Fields{
		"dimension": d.name,
		"group":     d.g.path,
		"size":      size,
	}).Debug("hdfnc: resized dimension")
	return nil
}

func (d *Dimension) consumer(r h5.ScaleRef) (h5.Dataset, error) {
	n, err := d.g.f.store.Deref(r.Dataset)
	if err != nil {
		return nil, storeError(err, "dimension %q: dereferencing attached dataset", d.name)
	}
	ds, ok := n.(h5.Dataset)
	if !ok {
		return nil, newError(ErrInvalidState, "dimension %q: %s is attached but is not a dataset", d.name, n.Path())
	}
	return ds, nil
}

func (d *Dimension) String() string {
	if d.g.f.closed {
		return "<Closed hdfnc.Dimension>"
	}
	var special string
	if d.phony {
		special += " (phony_dim)"
	}
	if u, _ := d.IsUnlimited(); u {
		special += " (unlimited)"
	}
	size, err := d.Size()
	if err != nil {
		return fmt.Sprintf("<hdfnc.Dimension %q: %v>", d.name, err)
	}
	return fmt.Sprintf("<hdfnc.Dimension %q: size %d%s>", d.name, size, special)
}
