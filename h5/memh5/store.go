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

// Package memh5 is an in-memory implementation of the h5.Store interface.
// Objects live in an arena indexed by h5.Ref, so links between objects
// (scale back-references, dimension lists) are plain identifiers that
// survive renames. A store can be persisted to and loaded from a file.
package memh5

import (
	"fmt"
	"strings"

	"github.com/spatialmodel/hdfnc/h5"
)

const rootRef h5.Ref = 1

// object is one arena entry. Exported fields are persisted.
type object struct {
	Ref     h5.Ref
	Name    string
	Parent  h5.Ref
	IsGroup bool

	// Group contents, in creation order.
	Children []string
	Index    map[string]h5.Ref

	// Attributes, in creation order.
	AttrNames []string
	AttrVals  map[string]h5.Value

	// Dataset contents.
	Type     h5.DType
	Shape    []int
	MaxShape []int
	FillVal  interface{}
	Data     interface{}
}

type arena struct {
	Next    h5.Ref
	Objects map[h5.Ref]*object
}

func newArena() *arena {
	a := &arena{
		Next:    rootRef + 1,
		Objects: make(map[h5.Ref]*object),
	}
	a.Objects[rootRef] = &object{
		Ref:      rootRef,
		Name:     "/",
		IsGroup:  true,
		Index:    make(map[string]h5.Ref),
		AttrVals: make(map[string]h5.Value),
	}
	return a
}

// Store is an in-memory hierarchical array store.
type Store struct {
	a        *arena
	writable bool
	closed   bool

	// path is the backing file, empty for purely in-memory stores.
	path string

	fault func(op, path string) error
}

// Option configures a Store.
type Option func(*Store)

// WithFault installs a hook that is called before every modification
// with the operation name and the path of the affected object. A non-nil
// return value aborts the operation with that error. The operation names
// are create_group, create_dataset, resize, write, attr.set, attr.delete,
// delete, move, make_scale, attach.forward, attach.backward,
// detach.forward and detach.backward.
func WithFault(f func(op, path string) error) Option {
	return func(s *Store) { s.fault = f }
}

// New returns an empty store.
func New(writable bool, opts ...Option) *Store {
	s := &Store{a: newArena(), writable: writable}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Writable reports whether the store may be modified.
func (s *Store) Writable() bool { return s.writable }

// Root returns the root group.
func (s *Store) Root() h5.Group { return &group{node{s: s, ref: rootRef}} }

func (s *Store) obj(ref h5.Ref) (*object, error) {
	if s.closed {
		return nil, h5.ErrClosed
	}
	o, ok := s.a.Objects[ref]
	if !ok {
		return nil, fmt.Errorf("memh5: reference %d: %w", ref, h5.ErrNotExist)
	}
	return o, nil
}

// modify checks that op may be performed on the object at path.
func (s *Store) modify(op, path string) error {
	if s.closed {
		return h5.ErrClosed
	}
	if !s.writable {
		return fmt.Errorf("memh5: %s %s: %w", op, path, h5.ErrReadOnly)
	}
	if s.fault != nil {
		if err := s.fault(op, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) pathOf(ref h5.Ref) string {
	var parts []string
	for ref != rootRef {
		o, ok := s.a.Objects[ref]
		if !ok {
			return ""
		}
		parts = append(parts, o.Name)
		ref = o.Parent
	}
	if len(parts) == 0 {
		return "/"
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func (s *Store) wrap(o *object) h5.Node {
	if o.IsGroup {
		return &group{node{s: s, ref: o.Ref}}
	}
	return &dataset{node{s: s, ref: o.Ref}}
}

// Lookup returns the object at the absolute or root-relative path.
func (s *Store) Lookup(path string) (h5.Node, error) {
	o, err := s.obj(rootRef)
	if err != nil {
		return nil, err
	}
	for _, p := range strings.Split(path, "/") {
		if p == "" || p == "." {
			continue
		}
		if !o.IsGroup {
			return nil, fmt.Errorf("memh5: %s: %w", path, h5.ErrNotExist)
		}
		ref, ok := o.Index[p]
		if !ok {
			return nil, fmt.Errorf("memh5: %s: %w", path, h5.ErrNotExist)
		}
		if o, err = s.obj(ref); err != nil {
			return nil, err
		}
	}
	return s.wrap(o), nil
}

// Deref returns the object identified by ref.
func (s *Store) Deref(ref h5.Ref) (h5.Node, error) {
	o, err := s.obj(ref)
	if err != nil {
		return nil, err
	}
	return s.wrap(o), nil
}

// Walk visits every object below the root, depth first.
func (s *Store) Walk(fn func(path string, n h5.Node) error) error {
	if s.closed {
		return h5.ErrClosed
	}
	var walk func(o *object) error
	walk = func(o *object) error {
		for _, name := range o.Children {
			c := s.a.Objects[o.Index[name]]
			if err := fn(s.pathOf(c.Ref), s.wrap(c)); err != nil {
				return err
			}
			if c.IsGroup {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(s.a.Objects[rootRef])
}

// Flush writes the store to its backing file, if it has one and is writable.
func (s *Store) Flush() error {
	if s.closed {
		return h5.ErrClosed
	}
	if s.path == "" || !s.writable {
		return nil
	}
	return s.saveFile(s.path)
}

// Close flushes the store and releases it. Closing twice is not an error.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	err := s.Flush()
	s.closed = true
	return err
}

// deleteTree removes o and everything below it from the arena.
func (s *Store) deleteTree(o *object) {
	if o.IsGroup {
		for _, name := range o.Children {
			if c, ok := s.a.Objects[o.Index[name]]; ok {
				s.deleteTree(c)
			}
		}
	}
	delete(s.a.Objects, o.Ref)
}
