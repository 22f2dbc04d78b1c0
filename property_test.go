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
	"testing"

	"github.com/spatialmodel/hdfnc/h5"
	"github.com/spatialmodel/hdfnc/h5/memh5"
	"pgregory.net/rapid"
)

func rapidFile(rt *rapid.T) *File {
	f, err := New(memh5.New(true))
	if err != nil {
		rt.Fatal(err)
	}
	return f
}

func TestFixedDimensionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		n := rapid.IntRange(1, 1000).Draw(rt, "n")
		d, err := f.Dimensions().Create("x", n)
		if err != nil {
			rt.Fatal(err)
		}
		if u, _ := d.IsUnlimited(); u {
			rt.Fatal("fixed dimension is unlimited")
		}
		size, _ := d.Size()
		ms, _ := d.MaxSize()
		if size != n || ms != n {
			rt.Fatalf("size %d, max size %d, want %d", size, ms, n)
		}
		if err := d.Resize(rapid.IntRange(0, 2000).Draw(rt, "resize")); !Is(err, ErrInvalidState) {
			rt.Fatalf("want InvalidState, got %v", err)
		}
	})
}

func TestUnlimitedSizeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		d, err := f.Dimensions().Create("time", 0)
		if err != nil {
			rt.Fatal(err)
		}
		extents := rapid.SliceOfN(rapid.IntRange(0, 50), 0, 6).Draw(rt, "extents")
		want := 0
		for i, n := range extents {
			ds, err := f.Store().Root().CreateDataset(fmt.Sprintf("v%d", i), h5.DatasetSpec{
				Shape:    []int{2, n},
				MaxShape: []int{2, h5.Unlimited},
				Type:     h5.Int8,
			})
			if err != nil {
				rt.Fatal(err)
			}
			if err := d.AttachScale(ds, 1); err != nil {
				rt.Fatal(err)
			}
			want = max(want, n)
		}
		size, err := d.Size()
		if err != nil {
			rt.Fatal(err)
		}
		if size != want {
			rt.Fatalf("size %d, want %d", size, want)
		}
		ms, _ := d.MaxSize()
		if ms != h5.Unlimited {
			rt.Fatalf("max size %d", ms)
		}
	})
}

func TestAttachDetachProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		x, err := f.Dimensions().Create("x", 2)
		if err != nil {
			rt.Fatal(err)
		}
		var datasets []h5.Dataset
		for i := 0; i < 3; i++ {
			ds, err := f.Store().Root().CreateDataset(fmt.Sprintf("v%d", i), h5.DatasetSpec{
				Shape: []int{2, 2},
				Type:  h5.Int8,
			})
			if err != nil {
				rt.Fatal(err)
			}
			datasets = append(datasets, ds)
		}
		attached := make(map[h5.ScaleRef]bool)
		ops := rapid.IntRange(1, 20).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			ds := rapid.SampledFrom(datasets).Draw(rt, "dataset")
			axis := rapid.IntRange(0, 1).Draw(rt, "axis")
			if err := x.AttachScale(ds, axis); err != nil {
				rt.Fatal(err)
			}
			attached[h5.ScaleRef{Dataset: ds.Ref(), Axis: axis}] = true
		}
		refs, err := x.ScaleRefs()
		if err != nil {
			rt.Fatal(err)
		}
		seen := make(map[h5.ScaleRef]int)
		for _, r := range refs {
			seen[r]++
		}
		for r := range attached {
			if seen[r] != 1 {
				rt.Fatalf("%v attached %d times", r, seen[r])
			}
		}
		if len(refs) != len(attached) {
			rt.Fatalf("refs %v, attached %v", refs, attached)
		}
		if err := x.DetachScale(); err != nil {
			rt.Fatal(err)
		}
		if refs, _ := x.ScaleRefs(); len(refs) != 0 {
			rt.Fatalf("refs after detach %v", refs)
		}
		if err := x.DetachScale(); err != nil {
			rt.Fatalf("detaching with nothing attached: %v", err)
		}
	})
}

func TestReservedAttributeProperty(t *testing.T) {
	reserved := reservedAttrNames()
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		a, err := f.Attrs()
		if err != nil {
			rt.Fatal(err)
		}
		key := rapid.SampledFrom(reserved).Draw(rt, "key")
		var value interface{}
		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			value = rapid.Int32().Draw(rt, "int")
		case 1:
			value = rapid.StringMatching(`[a-zA-Z ]{0,16}`).Draw(rt, "string")
		default:
			value = rapid.SliceOfN(rapid.Float64Range(-1e9, 1e9), 1, 8).Draw(rt, "floats")
		}
		if err := a.Set(key, value); !Is(err, ErrWriteProtected) {
			rt.Fatalf("set %q: want WriteProtected, got %v", key, err)
		}
		if _, err := a.Get(key); !Is(err, ErrNotFound) {
			rt.Fatalf("get %q: want NotFound, got %v", key, err)
		}
		if a.Len() != 0 {
			rt.Fatalf("len %d", a.Len())
		}
	})
}

func TestAttributeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		a, err := f.Attrs()
		if err != nil {
			rt.Fatal(err)
		}
		var in, want interface{}
		switch rapid.IntRange(0, 4).Draw(rt, "kind") {
		case 0:
			in = rapid.Int32().Draw(rt, "int32")
			want = in
		case 1:
			in = rapid.Float64Range(-1e300, 1e300).Draw(rt, "float64")
			want = in
		case 2:
			in = rapid.SliceOfN(rapid.Int16(), 2, 20).Draw(rt, "int16s")
			want = in
		case 3:
			s := rapid.StringMatching(`[a-z0-9 ]{1,32}`).Draw(rt, "fixed")
			in = h5.FixedString(s, h5.ASCII)
			want = s
		default:
			in = rapid.SliceOfN(rapid.StringMatching(`[a-zA-Zé]{0,12}`), 2, 10).Draw(rt, "strings")
			want = in
		}
		if err := a.Set("value", in); err != nil {
			rt.Fatal(err)
		}
		have, err := a.Get("value")
		if err != nil {
			rt.Fatal(err)
		}
		if !reflect.DeepEqual(have, want) {
			rt.Fatalf("have %#v, want %#v", have, want)
		}
	})
}

func TestDimensionIDProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapidFile(rt)
		groups := []*Group{f.Group}
		last := -1
		n := rapid.IntRange(1, 15).Draw(rt, "n")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(rt, "new group") {
				g, err := f.CreateGroup(fmt.Sprintf("g%d", i))
				if err != nil {
					rt.Fatal(err)
				}
				groups = append(groups, g)
			}
			g := rapid.SampledFrom(groups).Draw(rt, "group")
			d, err := g.Dimensions().Create(fmt.Sprintf("d%d", i), rapid.IntRange(0, 4).Draw(rt, "size"))
			if err != nil {
				rt.Fatal(err)
			}
			if d.DimID() <= last {
				rt.Fatalf("id %d after %d", d.DimID(), last)
			}
			last = d.DimID()
		}
	})
}
