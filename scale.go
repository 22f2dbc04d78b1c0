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
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
)

// IsScale reports whether ds is marked as a dimension scale in s.
func IsScale(ds h5.Dataset, s h5.Store) bool {
	return s.IsScale(ds)
}

// AttachScale labels axis axis of ds with the dimension. Any other scale
// attached to that axis is detached first, and attaching the same pair
// twice does nothing.
//
// The store records the link in two writes. If the second fails, the
// first is undone, any scale detached from the axis is attached again and
// the store error is returned wrapped in an ErrInvalidState error.
func (d *Dimension) AttachScale(ds h5.Dataset, axis int) error {
	scale, err := d.dataset()
	if err != nil {
		return err
	}
	f := d.g.f
	if err := f.checkWritable("attaching dimension " + d.name); err != nil {
		return err
	}
	s := f.store
	var detached []h5.Dataset
	current, err := s.AxisScales(ds, axis)
	if err != nil {
		return storeError(err, "reading scales of axis %d of %s", axis, ds.Path())
	}
	for _, ref := range current {
		if ref == scale.Ref() {
			if attached, err := d.attached(scale, ds, axis); err != nil || attached {
				return err
			}
			continue
		}
		n, err := s.Deref(ref)
		if err != nil {
			return storeError(err, "dereferencing scale of axis %d of %s", axis, ds.Path())
		}
		other, ok := n.(h5.Dataset)
		if !ok {
			return newError(ErrInvalidState, "scale %s of axis %d of %s is not a dataset", n.Path(), axis, ds.Path())
		}
		if err := s.DetachScale(ds, other, axis); err != nil {
			return storeError(err, "detaching %s from axis %d of %s", other.Path(), axis, ds.Path())
		}
		detached = append(detached, other)
	}

	if err := s.AttachScale(ds, scale, axis); err != nil {
		if derr := s.DetachScale(ds, scale, axis); derr != nil && !errors.Is(derr, h5.ErrNotExist) {
			err = errors.Wrapf(err, "undoing partial attachment also failed: %v", derr)
		}
		for _, other := range detached {
			if rerr := s.AttachScale(ds, other, axis); rerr != nil {
				err = errors.Wrapf(err, "restoring %s also failed: %v", other.Path(), rerr)
			}
		}
		return wrapError(err, ErrInvalidState, "attaching dimension %q to axis %d of %s", d.name, axis, ds.Path())
	}
	f.Log.WithFields(logrus.Fields{
		"dimension": d.name,
		"dataset":   ds.Path(),
		"axis":      axis,
	}).Debug("hdfnc: attached dimension scale")
	return nil
}

// attached reports whether the back-reference for (ds, axis) exists.
func (d *Dimension) attached(scale, ds h5.Dataset, axis int) (bool, error) {
	refs, err := d.g.f.store.References(scale)
	if err != nil {
		return false, storeError(err, "reading references of dimension %q", d.name)
	}
	for _, r := range refs {
		if r.Dataset == ds.Ref() && r.Axis == axis {
			return true, nil
		}
	}
	return false, nil
}

// DetachScale detaches the dimension from every dataset axis attached to
// it, in back-reference order. It does nothing if nothing is attached.
func (d *Dimension) DetachScale() error {
	refs, err := d.ScaleRefs()
	if err != nil || len(refs) == 0 {
		return err
	}
	f := d.g.f
	if err := f.checkWritable("detaching dimension " + d.name); err != nil {
		return err
	}
	scale, err := d.dataset()
	if err != nil {
		return err
	}
	for _, r := range refs {
		c, err := d.consumer(r)
		if err != nil {
			return err
		}
		if err := f.store.DetachScale(c, scale, r.Axis); err != nil {
			return storeError(err, "detaching dimension %q from axis %d of %s", d.name, r.Axis, c.Path())
		}
		f.Log.WithFields(logrus.Fields{
			"dimension": d.name,
			"dataset":   c.Path(),
			"axis":      r.Axis,
		}).Debug("hdfnc: detached dimension scale")
	}
	return nil
}

// ScaleRefs returns the dataset axes attached to the dimension. It is
// empty for phony dimensions and dimensions nothing is attached to.
func (d *Dimension) ScaleRefs() ([]h5.ScaleRef, error) {
	if d.phony {
		return []h5.ScaleRef{}, nil
	}
	scale, err := d.dataset()
	if err != nil {
		return nil, err
	}
	refs, err := d.g.f.store.References(scale)
	if err != nil {
		return nil, storeError(err, "reading references of dimension %q", d.name)
	}
	if refs == nil {
		refs = []h5.ScaleRef{}
	}
	return refs, nil
}

// attachRefs re-attaches previously saved back-references.
func (d *Dimension) attachRefs(refs []h5.ScaleRef) error {
	for _, r := range refs {
		c, err := d.consumer(r)
		if err != nil {
			return err
		}
		if err := d.AttachScale(c, r.Axis); err != nil {
			return err
		}
	}
	return nil
}
