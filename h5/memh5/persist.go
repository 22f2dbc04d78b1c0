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
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spatialmodel/hdfnc/h5"
)

func init() {
	// Concrete types that may be stored in interface fields.
	for _, v := range []interface{}{
		[]int8{}, []int16{}, []int32{}, []int64{},
		[]uint8{}, []uint16{}, []uint32{}, []uint64{},
		[]float32{}, []float64{}, []bool{}, []complex128{},
		[][]byte{}, []h5.Ref{}, []h5.ScaleRef{}, [][]h5.Ref{},
		int8(0), int16(0), int32(0), int64(0),
		uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), false, complex128(0),
		h5.Ref(0),
	} {
		gob.Register(v)
	}
}

// versionMagic identifies the serialized arena format.
const versionMagic = "memh5/1"

// Save writes the contents of the store to w.
func (s *Store) Save(w io.Writer) error {
	if s.closed {
		return h5.ErrClosed
	}
	enc := gob.NewEncoder(w)
	if err := enc.Encode(versionMagic); err != nil {
		return fmt.Errorf("memh5: saving store: %v", err)
	}
	if err := enc.Encode(s.a); err != nil {
		return fmt.Errorf("memh5: saving store: %v", err)
	}
	return nil
}

// Load reads a store previously written by Save.
func Load(r io.Reader, writable bool, opts ...Option) (*Store, error) {
	dec := gob.NewDecoder(r)
	var magic string
	if err := dec.Decode(&magic); err != nil {
		return nil, fmt.Errorf("memh5: loading store: %v", err)
	}
	if magic != versionMagic {
		return nil, fmt.Errorf("memh5: loading store: unsupported format %q", magic)
	}
	a := new(arena)
	err := dec.Decode(a)
	if err != nil {
		return nil, fmt.Errorf("memh5: loading store: %v", err)
	}
	if root, ok := a.Objects[rootRef]; !ok || !root.IsGroup {
		return nil, fmt.Errorf("memh5: loading store: missing root group")
	}
	// gob drops empty maps and slices.
	for _, o := range a.Objects {
		if o.AttrVals == nil {
			o.AttrVals = make(map[string]h5.Value)
		}
		if o.IsGroup && o.Index == nil {
			o.Index = make(map[string]h5.Ref)
		}
		if !o.IsGroup && o.Shape == nil {
			o.Shape, o.MaxShape = []int{}, []int{}
		}
		if !o.IsGroup && o.Data == nil {
			if o.Data, err = h5.MakeSlice(o.Type, h5.NumElements(o.Shape)); err != nil {
				return nil, fmt.Errorf("memh5: loading store: %v", err)
			}
		}
	}
	s := New(writable, opts...)
	s.a = a
	return s, nil
}

// Open opens a file-backed store. mode is one of
// "r" (read only, the file must exist), "r+" (read/write, the file must
// exist), "a" (read/write, created if missing) or "w" (create, truncating
// any existing file). Writable stores are written back on Flush and Close.
func Open(path, mode string, opts ...Option) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch mode {
	case "r", "r+":
		s, err = loadFile(path, mode == "r+", opts...)
	case "a":
		s, err = loadFile(path, true, opts...)
		if errors.Is(err, os.ErrNotExist) {
			s, err = New(true, opts...), nil
		}
	case "w":
		s = New(true, opts...)
	default:
		return nil, fmt.Errorf("memh5: invalid mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	s.path = path
	if mode == "w" {
		if err := s.saveFile(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func loadFile(path string, writable bool, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memh5: %w", err)
	}
	defer f.Close()
	return Load(f, writable, opts...)
}

// saveFile writes the store to a temporary file next to path and renames
// it into place.
func (s *Store) saveFile(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("memh5: %v", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("memh5: %v", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("memh5: %v", err)
	}
	return nil
}
