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

	"github.com/spatialmodel/hdfnc/h5"
)

// datasetObject resolves a dataset handle to its arena entry. The handle
// must belong to s.
func (s *Store) datasetObject(ds h5.Dataset) (*object, error) {
	if ds == nil {
		return nil, fmt.Errorf("memh5: nil dataset: %w", h5.ErrNotExist)
	}
	o, err := s.obj(ds.Ref())
	if err != nil {
		return nil, err
	}
	if o.IsGroup {
		return nil, fmt.Errorf("memh5: %s is a group, not a dataset", s.pathOf(o.Ref))
	}
	return o, nil
}

func stringAttr(o *object, name string) (string, bool) {
	v, ok := o.AttrVals[name]
	if !ok || v.Empty {
		return "", ok
	}
	bb, ok := v.Data.([][]byte)
	if !ok || len(bb) != 1 {
		return "", false
	}
	return string(bb[0]), true
}

// IsScale reports whether ds carries CLASS=DIMENSION_SCALE.
func (s *Store) IsScale(ds h5.Dataset) bool {
	o, err := s.datasetObject(ds)
	if err != nil {
		return false
	}
	c, _ := stringAttr(o, h5.AttrClass)
	return c == h5.ClassDimensionScale
}

// MakeScale marks ds as a dimension scale labelled label.
func (s *Store) MakeScale(ds h5.Dataset, label string) error {
	o, err := s.datasetObject(ds)
	if err != nil {
		return err
	}
	if err := s.modify("make_scale", s.pathOf(o.Ref)); err != nil {
		return err
	}
	if _, ok := o.AttrVals[h5.AttrDimensionList]; ok {
		return fmt.Errorf("memh5: %s has attached scales and cannot become a scale", s.pathOf(o.Ref))
	}
	a := attrs{node{s: s, ref: o.Ref}}
	a.set(o, h5.AttrClass, h5.FixedString(h5.ClassDimensionScale, h5.ASCII))
	a.set(o, h5.AttrName, h5.FixedString(label, h5.ASCII))
	return nil
}

func referenceList(o *object) []h5.ScaleRef {
	if v, ok := o.AttrVals[h5.AttrReferenceList]; ok {
		if r, ok := v.Data.([]h5.ScaleRef); ok {
			return r
		}
	}
	return nil
}

func dimensionList(o *object) [][]h5.Ref {
	if v, ok := o.AttrVals[h5.AttrDimensionList]; ok {
		if d, ok := v.Data.([][]h5.Ref); ok {
			return d
		}
	}
	return nil
}

func setReferenceList(o *object, refs []h5.ScaleRef) {
	a := attrs{}
	if len(refs) == 0 {
		if _, ok := o.AttrVals[h5.AttrReferenceList]; ok {
			a.del(o, h5.AttrReferenceList)
		}
		return
	}
	a.set(o, h5.AttrReferenceList, h5.Value{
		Type:  h5.DType{Class: h5.Compound},
		Shape: []int{len(refs)},
		Data:  refs,
	})
}

func setDimensionList(o *object, dl [][]h5.Ref) {
	a := attrs{}
	empty := true
	for _, axis := range dl {
		if len(axis) > 0 {
			empty = false
		}
	}
	if empty {
		if _, ok := o.AttrVals[h5.AttrDimensionList]; ok {
			a.del(o, h5.AttrDimensionList)
		}
		return
	}
	a.set(o, h5.AttrDimensionList, h5.Value{
		Type:  h5.DType{Class: h5.VarLen},
		Shape: []int{len(dl)},
		Data:  dl,
	})
}

// AttachScale links axis axis of ds to scale. The forward link on ds is
// written before the back-reference on scale; each write passes through
// the fault hook separately. Attaching an already attached pair is a no-op.
func (s *Store) AttachScale(ds, scale h5.Dataset, axis int) error {
	do, err := s.datasetObject(ds)
	if err != nil {
		return err
	}
	so, err := s.datasetObject(scale)
	if err != nil {
		return err
	}
	dpath, spath := s.pathOf(do.Ref), s.pathOf(so.Ref)
	if axis < 0 || axis >= len(do.Shape) {
		return fmt.Errorf("memh5: attach %s to axis %d of %s: axis out of range: %w", spath, axis, dpath, h5.ErrShape)
	}
	if do.Ref == so.Ref {
		return fmt.Errorf("memh5: cannot attach %s to itself", dpath)
	}
	if c, _ := stringAttr(do, h5.AttrClass); c == h5.ClassDimensionScale {
		return fmt.Errorf("memh5: cannot attach a scale to %s, which is itself a scale", dpath)
	}
	if c, _ := stringAttr(so, h5.AttrClass); c != h5.ClassDimensionScale {
		return fmt.Errorf("memh5: %s is not a dimension scale", spath)
	}

	dl := dimensionList(do)
	forward := false
	if dl != nil && axis < len(dl) {
		for _, r := range dl[axis] {
			if r == so.Ref {
				forward = true
			}
		}
	}
	backward := false
	for _, r := range referenceList(so) {
		if r.Dataset == do.Ref && r.Axis == axis {
			backward = true
		}
	}
	if forward && backward {
		return nil
	}

	if !forward {
		if err := s.modify("attach.forward", dpath); err != nil {
			return err
		}
		ndl := make([][]h5.Ref, len(do.Shape))
		for i := range ndl {
			if i < len(dl) {
				ndl[i] = append([]h5.Ref{}, dl[i]...)
			}
		}
		ndl[axis] = append(ndl[axis], so.Ref)
		setDimensionList(do, ndl)
	}
	if !backward {
		if err := s.modify("attach.backward", spath); err != nil {
			return err
		}
		refs := append([]h5.ScaleRef{}, referenceList(so)...)
		setReferenceList(so, append(refs, h5.ScaleRef{Dataset: do.Ref, Axis: axis}))
	}
	return nil
}

// DetachScale removes the link between axis axis of ds and scale from
// whichever sides hold it. It fails with h5.ErrNotExist only if neither does.
func (s *Store) DetachScale(ds, scale h5.Dataset, axis int) error {
	do, err := s.datasetObject(ds)
	if err != nil {
		return err
	}
	so, err := s.datasetObject(scale)
	if err != nil {
		return err
	}
	dpath, spath := s.pathOf(do.Ref), s.pathOf(so.Ref)

	dl := dimensionList(do)
	forward := -1
	if axis >= 0 && axis < len(dl) {
		for i, r := range dl[axis] {
			if r == so.Ref {
				forward = i
			}
		}
	}
	refs := referenceList(so)
	backward := -1
	for i, r := range refs {
		if r.Dataset == do.Ref && r.Axis == axis {
			backward = i
		}
	}
	if forward < 0 && backward < 0 {
		return fmt.Errorf("memh5: %s is not attached to axis %d of %s: %w", spath, axis, dpath, h5.ErrNotExist)
	}

	if forward >= 0 {
		if err := s.modify("detach.forward", dpath); err != nil {
			return err
		}
		ndl := make([][]h5.Ref, len(dl))
		for i := range dl {
			ndl[i] = append([]h5.Ref{}, dl[i]...)
		}
		ndl[axis] = append(ndl[axis][:forward], ndl[axis][forward+1:]...)
		setDimensionList(do, ndl)
	}
	if backward >= 0 {
		if err := s.modify("detach.backward", spath); err != nil {
			return err
		}
		nrefs := append([]h5.ScaleRef{}, refs[:backward]...)
		setReferenceList(so, append(nrefs, refs[backward+1:]...))
	}
	return nil
}

// References returns the back-references held by scale, in attach order.
func (s *Store) References(scale h5.Dataset) ([]h5.ScaleRef, error) {
	o, err := s.datasetObject(scale)
	if err != nil {
		return nil, err
	}
	return append([]h5.ScaleRef{}, referenceList(o)...), nil
}

// AxisScales returns the scales attached to axis axis of ds.
func (s *Store) AxisScales(ds h5.Dataset, axis int) ([]h5.Ref, error) {
	o, err := s.datasetObject(ds)
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis >= len(o.Shape) {
		return nil, fmt.Errorf("memh5: axis %d of %s: %w", axis, s.pathOf(o.Ref), h5.ErrShape)
	}
	dl := dimensionList(o)
	if axis >= len(dl) {
		return nil, nil
	}
	return append([]h5.Ref{}, dl[axis]...), nil
}
