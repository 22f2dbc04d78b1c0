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
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/spatialmodel/hdfnc/h5"
	"github.com/spatialmodel/hdfnc/h5/memh5"
)

func mustDataset(t *testing.T, v *Variable) h5.Dataset {
	t.Helper()
	ds, err := v.dataset()
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func axisScales(t *testing.T, f *File, ds h5.Dataset, axis int) []h5.Ref {
	t.Helper()
	refs, err := f.Store().AxisScales(ds, axis)
	if err != nil {
		t.Fatal(err)
	}
	return refs
}

func TestAttachScaleIdempotent(t *testing.T) {
	f := newTestFile(t)
	x := mustDim(t, f.Group, "x", 3)
	v := mustVar(t, f.Group, "v", []string{"x"}, h5.Float64)
	ds := mustDataset(t, v)

	want := []h5.ScaleRef{{Dataset: ds.Ref(), Axis: 0}}
	for i := 0; i < 3; i++ {
		if i > 0 {
			if err := x.AttachScale(ds, 0); err != nil {
				t.Fatal(err)
			}
		}
		refs, err := x.ScaleRefs()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(refs, want) {
			t.Errorf("attach %d: have %v, want %v", i, refs, want)
		}
		if n := len(axisScales(t, f, ds, 0)); n != 1 {
			t.Errorf("attach %d: %d scales on axis", i, n)
		}
	}
}

func TestAttachScaleReplaces(t *testing.T) {
	f := newTestFile(t)
	x := mustDim(t, f.Group, "x", 3)
	y := mustDim(t, f.Group, "y", 3)
	v := mustVar(t, f.Group, "v", []string{"x"}, h5.Float64)
	ds := mustDataset(t, v)

	if err := y.AttachScale(ds, 0); err != nil {
		t.Fatal(err)
	}
	if refs, _ := x.ScaleRefs(); len(refs) != 0 {
		t.Errorf("x still attached: %v", refs)
	}
	if refs, _ := y.ScaleRefs(); len(refs) != 1 {
		t.Errorf("y refs %v", refs)
	}
	yds, _ := y.dataset()
	if have := axisScales(t, f, ds, 0); !reflect.DeepEqual(have, []h5.Ref{yds.Ref()}) {
		t.Errorf("axis scales %v", have)
	}
}

func TestDetachScale(t *testing.T) {
	f := newTestFile(t)
	x := mustDim(t, f.Group, "x", 3)
	v := mustVar(t, f.Group, "v", []string{"x"}, h5.Float64)
	w := mustVar(t, f.Group, "w", []string{"x", "x"}, h5.Int16)

	refs, err := x.ScaleRefs()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("refs %v", refs)
	}
	if err := x.DetachScale(); err != nil {
		t.Fatal(err)
	}
	refs, err = x.ScaleRefs()
	if err != nil {
		t.Fatal(err)
	}
	if refs == nil || len(refs) != 0 {
		t.Errorf("refs after detach: %#v", refs)
	}
	if n := len(axisScales(t, f, mustDataset(t, v), 0)); n != 0 {
		t.Errorf("%d scales left on v", n)
	}
	if n := len(axisScales(t, f, mustDataset(t, w), 1)); n != 0 {
		t.Errorf("%d scales left on w", n)
	}
	if err := x.DetachScale(); err != nil {
		t.Errorf("detaching twice: %v", err)
	}
}

var errInjected = errors.New("injected failure")

func TestAttachScaleFault(t *testing.T) {
	fail := false
	s := memh5.New(true, memh5.WithFault(func(op, path string) error {
		if fail && op == "attach.backward" && path == "/y" {
			return errInjected
		}
		return nil
	}))
	f, err := New(s)
	if err != nil {
		t.Fatal(err)
	}
	x := mustDim(t, f.Group, "x", 3)
	y := mustDim(t, f.Group, "y", 3)
	ds := mustDataset(t, mustVar(t, f.Group, "v", []string{"x"}, h5.Float64))
	xs, err := x.dataset()
	if err != nil {
		t.Fatal(err)
	}

	fail = true
	err = y.AttachScale(ds, 0)
	if !Is(err, ErrInvalidState) {
		t.Errorf("want InvalidState, got %v", err)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("store error not wrapped: %v", err)
	}
	if have, want := axisScales(t, f, ds, 0), []h5.Ref{xs.Ref()}; !reflect.DeepEqual(have, want) {
		t.Errorf("axis scales after failed attach: have %v, want the previous scale %v", have, want)
	}
	if refs, _ := x.ScaleRefs(); len(refs) != 1 {
		t.Errorf("previous scale lost its back-reference: %v", refs)
	}
	if refs, _ := y.ScaleRefs(); len(refs) != 0 {
		t.Errorf("back-reference written: %v", refs)
	}

	fail = false
	if err := y.AttachScale(ds, 0); err != nil {
		t.Fatal(err)
	}
	if refs, _ := y.ScaleRefs(); len(refs) != 1 {
		t.Errorf("refs after retry %v", refs)
	}
}

func TestAttachScaleReadOnly(t *testing.T) {
	w := newTestFile(t)
	mustDim(t, w.Group, "x", 3)
	mustDim(t, w.Group, "y", 3)
	mustVar(t, w.Group, "v", []string{"x"}, h5.Float64)
	var buf bytes.Buffer
	if err := w.Store().(*memh5.Store).Save(&buf); err != nil {
		t.Fatal(err)
	}
	s, err := memh5.Load(&buf, false)
	if err != nil {
		t.Fatal(err)
	}
	f, err := New(s)
	if err != nil {
		t.Fatal(err)
	}
	y, err := f.Dimensions().Get("y")
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.Variable("v")
	if err != nil {
		t.Fatal(err)
	}
	if err := y.AttachScale(mustDataset(t, v), 0); !Is(err, ErrWriteProtected) {
		t.Errorf("want WriteProtected, got %v", err)
	}
	x, _ := f.Dimensions().Get("x")
	if err := x.DetachScale(); !Is(err, ErrWriteProtected) {
		t.Errorf("want WriteProtected, got %v", err)
	}
}

func TestNonCoordinateRename(t *testing.T) {
	f := newTestFile(t)
	y := mustDim(t, f.Group, "y", 3)
	v := mustVar(t, f.Group, "x", []string{"y"}, h5.Int32, WithData([]int32{1, 2, 3}))
	ref := mustDataset(t, v).Ref()

	mustDim(t, f.Group, "x", 5)

	if v.h5name != nonCoordPrefix+"x" {
		t.Errorf("dataset name %q", v.h5name)
	}
	if have := f.VariableNames(); !reflect.DeepEqual(have, []string{"x"}) {
		t.Errorf("variables %v", have)
	}
	got, err := f.Variable("x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "x" || got.Path() != "/x" {
		t.Errorf("name %q, path %q", got.Name(), got.Path())
	}
	if mustDataset(t, got).Ref() != ref {
		t.Error("variable dataset was replaced")
	}
	refs, err := y.ScaleRefs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(refs, []h5.ScaleRef{{Dataset: ref, Axis: 0}}) {
		t.Errorf("attachment lost: %v", refs)
	}
	n, err := f.Store().Lookup("/x")
	if err != nil {
		t.Fatal(err)
	}
	if !isDimensionOnly(n.(h5.Dataset)) {
		t.Error("dimension dataset lacks the not-a-variable marker")
	}
	data, err := got.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, []int32{1, 2, 3}) {
		t.Errorf("data %v", data)
	}
}

func TestCoordinateVariableReplacesDimension(t *testing.T) {
	f := newTestFile(t)
	x := mustDim(t, f.Group, "x", 3)
	v := mustVar(t, f.Group, "v", []string{"x"}, h5.Float64)
	c := mustVar(t, f.Group, "x", []string{"x"}, h5.Float64, WithData([]float64{10, 20, 30}))

	ds := mustDataset(t, c)
	if !f.Store().IsScale(ds) {
		t.Fatal("coordinate variable is not a scale")
	}
	if isDimensionOnly(ds) {
		t.Error("coordinate variable carries the not-a-variable marker")
	}
	if id := intAttr(ds.Attrs(), attrDimid, -1); id != x.DimID() {
		t.Errorf("dimension id %d", id)
	}
	refs, err := x.ScaleRefs()
	if err != nil {
		t.Fatal(err)
	}
	want := []h5.ScaleRef{{Dataset: mustDataset(t, v).Ref(), Axis: 0}}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("have %v, want %v", refs, want)
	}
	if have := f.VariableNames(); !reflect.DeepEqual(have, []string{"v", "x"}) {
		t.Errorf("variables %v", have)
	}
	dims, err := c.Dimensions()
	if err != nil || !reflect.DeepEqual(dims, []string{"x"}) {
		t.Errorf("dimensions %v, %v", dims, err)
	}
	if size, _ := x.Size(); size != 3 {
		t.Errorf("size %d", size)
	}
}
