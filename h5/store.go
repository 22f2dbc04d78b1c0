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

// Package h5 describes the hierarchical array store that netCDF-4 objects
// are mapped onto. The store holds groups of named children, typed
// multi-dimensional datasets, per-object attributes, and the dimension
// scale bookkeeping that links datasets to the scales labelling their axes.
//
// The layout conventions follow HDF5: a dimension scale carries the
// attributes CLASS="DIMENSION_SCALE", NAME and REFERENCE_LIST, and each
// dataset attached to a scale carries a DIMENSION_LIST with one entry per axis.
package h5

import (
	"errors"
	"strings"
)

// Errors returned by store implementations.
var (
	ErrNotExist = errors.New("h5: object does not exist")
	ErrExist    = errors.New("h5: object already exists")
	ErrReadOnly = errors.New("h5: store is read-only")
	ErrShape    = errors.New("h5: invalid shape")
	ErrClosed   = errors.New("h5: store is closed")
)

// Unlimited marks a growable axis in a dataset's maximum shape.
const Unlimited = -1

// Attribute names used by the dimension scale convention.
const (
	AttrClass         = "CLASS"
	AttrName          = "NAME"
	AttrReferenceList = "REFERENCE_LIST"
	AttrDimensionList = "DIMENSION_LIST"

	// ClassDimensionScale is the CLASS value marking a dimension scale.
	ClassDimensionScale = "DIMENSION_SCALE"
)

// Ref is a stable identifier of an object within one store. A Ref
// stays valid when the object is moved to another path.
type Ref uint64

// ScaleRef is one back-reference held by a dimension scale: axis Axis of
// the dataset Dataset is labelled by the scale.
type ScaleRef struct {
	Dataset Ref
	Axis    int
}

// AttributeSet is the metadata map of one object.
type AttributeSet interface {
	// Get returns the named attribute and whether it exists.
	Get(name string) (Value, bool)
	Set(name string, v Value) error
	Delete(name string) error
	// Names returns the attribute names in the store's native order.
	Names() []string
	Has(name string) bool
}

// Node is an object in the store.
type Node interface {
	Ref() Ref
	// Path is the absolute, slash-separated path of the object.
	Path() string
	Name() string
	Attrs() AttributeSet
}

// Group is a node holding named children.
type Group interface {
	Node

	// Children returns the child names in creation order.
	Children() []string
	// Child returns the named child, which is either a Group or a Dataset.
	Child(name string) (Node, error)
	CreateGroup(name string) (Group, error)
	CreateDataset(name string, spec DatasetSpec) (Dataset, error)
	// Delete unlinks the named child.
	Delete(name string) error
	// Move renames a child within the group.
	Move(src, dst string) error
}

// DatasetSpec holds dataset creation parameters.
type DatasetSpec struct {
	Shape []int
	// MaxShape defaults to Shape. Use Unlimited for growable axes.
	MaxShape []int
	Type     DType
	// Fill is the fill value for unwritten elements. Nil means zero.
	Fill interface{}
	// Data optionally holds initial contents as a flat slice.
	Data interface{}
}

// Dataset is a typed multi-dimensional array.
type Dataset interface {
	Node

	Type() DType
	Shape() []int
	MaxShape() []int
	// Resize changes the extent, preserving existing elements.
	Resize(shape []int) error
	// Read returns a flat, row-major copy of the contents.
	Read() (interface{}, error)
	// WriteSlab writes data into the hyperslab starting at start
	// with extent count.
	WriteSlab(start, count []int, data interface{}) error
	// Fill returns the fill value.
	Fill() interface{}
}

// Store is a session on a hierarchical array store.
type Store interface {
	Root() Group
	// Writable reports whether the session permits modification.
	Writable() bool
	Lookup(path string) (Node, error)
	Deref(ref Ref) (Node, error)
	// Walk calls fn for every object below the root in depth-first
	// creation order.
	Walk(fn func(path string, n Node) error) error

	// IsScale reports whether ds is marked as a dimension scale.
	IsScale(ds Dataset) bool
	// MakeScale marks ds as a dimension scale with the given label.
	MakeScale(ds Dataset, label string) error
	// AttachScale records scale as the label of axis axis of ds, on both sides.
	AttachScale(ds, scale Dataset, axis int) error
	// DetachScale removes the link written by AttachScale, on both sides.
	DetachScale(ds, scale Dataset, axis int) error
	// References lists the dataset axes attached to scale.
	References(scale Dataset) ([]ScaleRef, error)
	// AxisScales lists the scales attached to axis axis of ds.
	AxisScales(ds Dataset, axis int) ([]Ref, error)

	Flush() error
	Close() error
}

// Join joins a parent path and a child name with a single slash.
func Join(parent, child string) string {
	return strings.TrimRight(parent, "/") + "/" + strings.TrimLeft(child, "/")
}

// Base returns the last element of path.
func Base(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
