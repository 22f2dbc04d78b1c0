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
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/hdfnc/h5"
)

func mustDataset(t *testing.T, g h5.Group, name string, spec h5.DatasetSpec) h5.Dataset {
	t.Helper()
	ds, err := g.CreateDataset(name, spec)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestHierarchy(t *testing.T) {
	s := New(true)
	g, err := s.Root().CreateGroup("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateGroup("b"); err != nil {
		t.Fatal(err)
	}
	mustDataset(t, g, "v", h5.DatasetSpec{Shape: []int{2}, Type: h5.Int32})

	t.Run("lookup", func(t *testing.T) {
		n, err := s.Lookup("/a/v")
		if err != nil {
			t.Fatal(err)
		}
		if n.Path() != "/a/v" || n.Name() != "v" {
			t.Errorf("path %q, name %q", n.Path(), n.Name())
		}
		if _, ok := n.(h5.Dataset); !ok {
			t.Errorf("%T is not a dataset", n)
		}
		if _, err := s.Lookup("a/b"); err != nil {
			t.Error(err)
		}
		if _, err := s.Lookup("/a/missing"); !errors.Is(err, h5.ErrNotExist) {
			t.Errorf("want ErrNotExist, got %v", err)
		}
	})
	t.Run("order", func(t *testing.T) {
		want := []string{"b", "v"}
		if have := g.Children(); !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("duplicate", func(t *testing.T) {
		if _, err := g.CreateGroup("v"); !errors.Is(err, h5.ErrExist) {
			t.Errorf("want ErrExist, got %v", err)
		}
	})
	t.Run("walk", func(t *testing.T) {
		var paths []string
		err := s.Walk(func(path string, n h5.Node) error {
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"/a", "/a/b", "/a/v"}
		if !reflect.DeepEqual(paths, want) {
			t.Errorf("have %v, want %v", paths, want)
		}
	})
	t.Run("move", func(t *testing.T) {
		n, _ := s.Lookup("/a/v")
		if err := g.Move("v", "w"); err != nil {
			t.Fatal(err)
		}
		if n.Path() != "/a/w" {
			t.Errorf("handle path after move: %q", n.Path())
		}
		m, err := s.Deref(n.Ref())
		if err != nil || m.Name() != "w" {
			t.Errorf("deref after move: %v, %v", m, err)
		}
	})
	t.Run("delete", func(t *testing.T) {
		n, _ := s.Lookup("/a/w")
		if err := g.Delete("w"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Deref(n.Ref()); !errors.Is(err, h5.ErrNotExist) {
			t.Errorf("want ErrNotExist, got %v", err)
		}
		if err := g.Delete("w"); !errors.Is(err, h5.ErrNotExist) {
			t.Errorf("want ErrNotExist, got %v", err)
		}
	})
}

func TestDataset(t *testing.T) {
	s := New(true)
	ds := mustDataset(t, s.Root(), "x", h5.DatasetSpec{
		Shape:    []int{2, 3},
		MaxShape: []int{h5.Unlimited, 3},
		Type:     h5.Float64,
		Fill:     -1,
		Data:     []float64{1, 2, 3, 4, 5, 6},
	})

	t.Run("fill conversion", func(t *testing.T) {
		if f := ds.Fill(); f != float64(-1) {
			t.Errorf("fill %#v", f)
		}
	})
	t.Run("grow", func(t *testing.T) {
		if err := ds.Resize([]int{3, 3}); err != nil {
			t.Fatal(err)
		}
		have, _ := ds.Read()
		want := []float64{1, 2, 3, 4, 5, 6, -1, -1, -1}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("max shape", func(t *testing.T) {
		if err := ds.Resize([]int{3, 4}); !errors.Is(err, h5.ErrShape) {
			t.Errorf("want ErrShape, got %v", err)
		}
	})
	t.Run("slab", func(t *testing.T) {
		if err := ds.WriteSlab([]int{1, 1}, []int{2, 2}, []float64{10, 11, 12, 13}); err != nil {
			t.Fatal(err)
		}
		have, _ := ds.Read()
		want := []float64{1, 2, 3, 4, 10, 11, -1, 12, 13}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("slab out of range", func(t *testing.T) {
		err := ds.WriteSlab([]int{2, 0}, []int{2, 1}, []float64{0, 0})
		if !errors.Is(err, h5.ErrShape) {
			t.Errorf("want ErrShape, got %v", err)
		}
	})
	t.Run("slab type", func(t *testing.T) {
		if err := ds.WriteSlab([]int{0, 0}, []int{1, 1}, []int32{0}); err == nil {
			t.Error("want error for mismatched type")
		}
	})
	t.Run("shrink", func(t *testing.T) {
		if err := ds.Resize([]int{1, 2}); err != nil {
			t.Fatal(err)
		}
		have, _ := ds.Read()
		if want := []float64{1, 2}; !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("read is a copy", func(t *testing.T) {
		d, _ := ds.Read()
		d.([]float64)[0] = 99
		again, _ := ds.Read()
		if again.([]float64)[0] != 1 {
			t.Error("Read exposed internal storage")
		}
	})
	t.Run("invalid dataset shape", func(t *testing.T) {
		_, err := s.Root().CreateDataset("y", h5.DatasetSpec{Shape: []int{4}, MaxShape: []int{2}, Type: h5.Int8})
		if !errors.Is(err, h5.ErrShape) {
			t.Errorf("want ErrShape, got %v", err)
		}
		_, err = s.Root().CreateDataset("y", h5.DatasetSpec{Shape: []int{2}, Type: h5.Int8, Data: []int8{1}})
		if !errors.Is(err, h5.ErrShape) {
			t.Errorf("want ErrShape, got %v", err)
		}
	})
}

func TestAttributes(t *testing.T) {
	s := New(true)
	a := s.Root().Attrs()
	for _, name := range []string{"b", "a", "c"} {
		if err := a.Set(name, h5.Value{Type: h5.Int32, Data: []int32{1}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Set("a", h5.Value{Type: h5.Int32, Data: []int32{2}}); err != nil {
		t.Fatal(err)
	}
	if have, want := a.Names(), []string{"b", "a", "c"}; !reflect.DeepEqual(have, want) {
		t.Errorf("creation order: have %v, want %v", have, want)
	}
	v, ok := a.Get("a")
	if !ok || !reflect.DeepEqual(v.Data, []int32{2}) {
		t.Errorf("get: %# v", pretty.Formatter(v))
	}
	if err := a.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if a.Has("b") {
		t.Error("b not deleted")
	}
	if err := a.Delete("b"); !errors.Is(err, h5.ErrNotExist) {
		t.Errorf("want ErrNotExist, got %v", err)
	}
}

func TestScales(t *testing.T) {
	s := New(true)
	root := s.Root()
	x := mustDataset(t, root, "x", h5.DatasetSpec{Shape: []int{3}, Type: h5.Float32})
	v := mustDataset(t, root, "v", h5.DatasetSpec{Shape: []int{3, 2}, Type: h5.Float32})

	if s.IsScale(x) {
		t.Fatal("x is not yet a scale")
	}
	if err := s.AttachScale(v, x, 0); err == nil {
		t.Error("attaching a non-scale should fail")
	}
	if err := s.MakeScale(x, "x"); err != nil {
		t.Fatal(err)
	}
	if !s.IsScale(x) {
		t.Fatal("x should be a scale")
	}
	for i := 0; i < 2; i++ {
		if err := s.AttachScale(v, x, 0); err != nil {
			t.Fatal(err)
		}
	}
	refs, err := s.References(x)
	if err != nil {
		t.Fatal(err)
	}
	if want := []h5.ScaleRef{{Dataset: v.Ref(), Axis: 0}}; !reflect.DeepEqual(refs, want) {
		t.Errorf("references: have %v, want %v", refs, want)
	}
	axis, err := s.AxisScales(v, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := []h5.Ref{x.Ref()}; !reflect.DeepEqual(axis, want) {
		t.Errorf("axis scales: have %v, want %v", axis, want)
	}
	if !v.Attrs().Has(h5.AttrDimensionList) || !x.Attrs().Has(h5.AttrReferenceList) {
		t.Error("both sides of the link should be recorded")
	}

	if err := s.DetachScale(v, x, 0); err != nil {
		t.Fatal(err)
	}
	if refs, _ := s.References(x); len(refs) != 0 {
		t.Errorf("references after detach: %v", refs)
	}
	if v.Attrs().Has(h5.AttrDimensionList) || x.Attrs().Has(h5.AttrReferenceList) {
		t.Error("empty link attributes should be removed")
	}
	if err := s.DetachScale(v, x, 0); !errors.Is(err, h5.ErrNotExist) {
		t.Errorf("want ErrNotExist, got %v", err)
	}
	if err := s.AttachScale(x, x, 0); err == nil {
		t.Error("self attachment should fail")
	}
}

func TestFault(t *testing.T) {
	broken := errors.New("disk on fire")
	var failOn string
	s := New(true, WithFault(func(op, path string) error {
		if op == failOn {
			return broken
		}
		return nil
	}))
	x := mustDataset(t, s.Root(), "x", h5.DatasetSpec{Shape: []int{3}, Type: h5.Float32})
	v := mustDataset(t, s.Root(), "v", h5.DatasetSpec{Shape: []int{3}, Type: h5.Float32})
	if err := s.MakeScale(x, "x"); err != nil {
		t.Fatal(err)
	}

	failOn = "attach.backward"
	if err := s.AttachScale(v, x, 0); err != broken {
		t.Fatalf("want injected error, got %v", err)
	}
	// The forward link was written, the back-reference was not.
	if axis, _ := s.AxisScales(v, 0); len(axis) != 1 {
		t.Errorf("forward link: %v", axis)
	}
	if refs, _ := s.References(x); len(refs) != 0 {
		t.Errorf("back-reference: %v", refs)
	}
	failOn = ""
	if err := s.DetachScale(v, x, 0); err != nil {
		t.Fatalf("detaching a half-written link: %v", err)
	}
	if axis, _ := s.AxisScales(v, 0); len(axis) != 0 {
		t.Errorf("forward link after detach: %v", axis)
	}
}

func TestReadOnly(t *testing.T) {
	s := New(false)
	if _, err := s.Root().CreateGroup("g"); !errors.Is(err, h5.ErrReadOnly) {
		t.Errorf("want ErrReadOnly, got %v", err)
	}
	if err := s.Root().Attrs().Set("a", h5.FixedString("x", h5.ASCII)); !errors.Is(err, h5.ErrReadOnly) {
		t.Errorf("want ErrReadOnly, got %v", err)
	}
}

func buildSample(t *testing.T, s *Store) {
	t.Helper()
	g, err := s.Root().CreateGroup("g")
	if err != nil {
		t.Fatal(err)
	}
	x := mustDataset(t, g, "x", h5.DatasetSpec{Shape: []int{1}, MaxShape: []int{h5.Unlimited}, Type: h5.Float32})
	v := mustDataset(t, g, "v", h5.DatasetSpec{
		Shape: []int{2}, MaxShape: []int{h5.Unlimited}, Type: h5.Int16, Fill: int16(7), Data: []int16{1, 2},
	})
	mustDataset(t, g, "s", h5.DatasetSpec{Shape: []int{}, Type: h5.VarStringType(h5.UTF8), Data: [][]byte{[]byte("hi")}})
	if err := s.MakeScale(x, "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.AttachScale(v, x, 0); err != nil {
		t.Fatal(err)
	}
	if err := g.Attrs().Set("title", h5.FixedString("sample", h5.UTF8)); err != nil {
		t.Fatal(err)
	}
}

func TestSaveLoad(t *testing.T) {
	s := New(true)
	buildSample(t, s)
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatal(err)
	}
	s2, err := Load(&buf, false)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Writable() {
		t.Error("loaded store should be read-only")
	}
	if !reflect.DeepEqual(s.a, s2.a) {
		t.Errorf("round trip differs:\n%v", pretty.Diff(s.a, s2.a))
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.h5")

	if _, err := Open(path, "r"); err == nil {
		t.Fatal("opening a missing file read-only should fail")
	}
	s, err := Open(path, "w")
	if err != nil {
		t.Fatal(err)
	}
	buildSample(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := s.Lookup("/g"); !errors.Is(err, h5.ErrClosed) {
		t.Errorf("want ErrClosed, got %v", err)
	}

	r, err := Open(path, "r")
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.Lookup("/g/v")
	if err != nil {
		t.Fatal(err)
	}
	d, _ := n.(h5.Dataset).Read()
	if want := []int16{1, 2}; !reflect.DeepEqual(d, want) {
		t.Errorf("have %v, want %v", d, want)
	}
	if _, err := r.Root().CreateGroup("h"); !errors.Is(err, h5.ErrReadOnly) {
		t.Errorf("want ErrReadOnly, got %v", err)
	}

	a, err := Open(path, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Root().CreateGroup("h"); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	rw, err := Open(path, "r+")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := rw.Root().Children(), []string{"g", "h"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	w, err := Open(path, "w")
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Root().Children()) != 0 {
		t.Error("mode w should truncate")
	}
	if _, err := Open(path, "x"); err == nil {
		t.Error("invalid mode should fail")
	}
}
