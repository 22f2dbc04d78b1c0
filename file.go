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

// Package hdfnc presents the netCDF-4 data model (groups, dimensions,
// variables and attributes) on top of a hierarchical array store that
// follows the HDF5 dimension scale conventions.
//
// Dimensions are backed by datasets marked as dimension scales, and
// variables are linked to them by scale attachments. The size of an
// unlimited dimension is not stored anywhere; it is derived each time from
// the extents of the datasets attached to its scale.
package hdfnc

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
	"github.com/spatialmodel/hdfnc/h5/memh5"
)

// Version is the version of this library, recorded in _NCProperties.
const Version = "0.1.0"

// ncProperties is written to the root of files created by this library.
const ncProperties = "version=2,hdfnc=" + Version

// Mode is a file access mode.
type Mode string

// File access modes.
const (
	ModeRead      Mode = "r"  // read only, the file must exist
	ModeReadWrite Mode = "r+" // read/write, the file must exist
	ModeAppend    Mode = "a"  // read/write, created if missing
	ModeWrite     Mode = "w"  // create, truncating any existing file
)

// PhonyDims selects how axes without a dimension scale are named.
type PhonyDims int

// Phony dimension modes.
const (
	// PhonyDimsNone makes reading the dimensions of a variable with an
	// unlabelled axis an error.
	PhonyDimsNone PhonyDims = iota

	// PhonyDimsSort names phony dimensions in the order netCDF-C does,
	// after all named dimensions, by visiting every group when the file
	// is opened.
	PhonyDimsSort

	// PhonyDimsAccess names phony dimensions in the order groups are
	// first accessed.
	PhonyDimsAccess
)

func (p PhonyDims) String() string {
	switch p {
	case PhonyDimsSort:
		return "sort"
	case PhonyDimsAccess:
		return "access"
	}
	return ""
}

// ParsePhonyDims parses "sort", "access" or "" (none).
func ParsePhonyDims(s string) (PhonyDims, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return PhonyDimsNone, nil
	case "sort":
		return PhonyDimsSort, nil
	case "access":
		return PhonyDimsAccess, nil
	}
	return PhonyDimsNone, fmt.Errorf("hdfnc: unknown value %q for phony dimensions; use \"sort\" or \"access\"", s)
}

// Option configures a File.
type Option func(*File)

// WithInvalidNetCDF allows data types that other netCDF-4 readers cannot
// read, such as booleans and complex numbers.
func WithInvalidNetCDF() Option {
	return func(f *File) { f.invalidNetCDF = true }
}

// WithPhonyDims sets the naming of axes without a dimension scale.
func WithPhonyDims(p PhonyDims) Option {
	return func(f *File) { f.phonyMode = p }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *File) { f.Log = l }
}

// File is an open netCDF-4 session. It is also the root group.
// A File is not safe for concurrent use.
type File struct {
	*Group

	// Log receives debug and informational messages.
	Log logrus.FieldLogger

	store         h5.Store
	mode          Mode
	name          string
	invalidNetCDF bool
	phonyMode     PhonyDims
	preexisting   bool
	closed        bool

	// maxDimID is the largest dimension id assigned in this session or
	// found in the store. phonyCount counts phony dimensions created in
	// this session. Both only increase.
	maxDimID   int
	phonyCount int
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

// Open opens a file-backed store at path.
func Open(path string, mode Mode, opts ...Option) (*File, error) {
	_, statErr := os.Stat(path)
	exists := statErr == nil
	s, err := memh5.Open(path, string(mode))
	if err != nil {
		return nil, storeError(err, "opening %s", path)
	}
	f, err := newFile(s, mode, exists && mode != ModeWrite, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	f.name = path
	return f, nil
}

// New wraps an existing store session. The store is treated as a new
// file, and receives _NCProperties on Flush, if its root group is empty.
func New(s h5.Store, opts ...Option) (*File, error) {
	root := s.Root()
	preexisting := len(root.Children()) > 0 || len(root.Attrs().Names()) > 0
	mode := ModeRead
	if s.Writable() {
		mode = ModeAppend
	}
	return newFile(s, mode, preexisting, opts...)
}

func newFile(s h5.Store, mode Mode, preexisting bool, opts ...Option) (*File, error) {
	f := &File{
		Log:         discardLogger(),
		store:       s,
		mode:        mode,
		preexisting: preexisting,
		maxDimID:    -1,
	}
	for _, o := range opts {
		o(f)
	}
	if s.Writable() {
		id, err := f.maximumDimensionID()
		if err != nil {
			return nil, err
		}
		f.maxDimID = id
	}
	root, err := newGroup(f, nil, "/")
	if err != nil {
		return nil, err
	}
	f.Group = root
	if f.phonyMode == PhonyDimsSort {
		if err := f.determinePhonyDimensions(root); err != nil {
			return nil, err
		}
	}
	f.Log.WithFields(logrus.Fields{
		"mode":       mode,
		"writable":   s.Writable(),
		"max_dim_id": f.maxDimID,
	}).Debug("hdfnc: opened file")
	return f, nil
}

// maximumDimensionID returns the largest _Netcdf4Dimid of any dimension
// scale in the store, or -1.
func (f *File) maximumDimensionID() (int, error) {
	maxID := -1
	err := f.store.Walk(func(path string, n h5.Node) error {
		ds, ok := n.(h5.Dataset)
		if !ok || !f.store.IsScale(ds) {
			return nil
		}
		if id := intAttr(ds.Attrs(), attrDimid, -1); id > maxID {
			maxID = id
		}
		return nil
	})
	if err != nil {
		return -1, storeError(err, "scanning dimension ids")
	}
	return maxID, nil
}

// determinePhonyDimensions visits every group so that phony dimensions
// are numbered in a stable, depth-first order.
func (f *File) determinePhonyDimensions(g *Group) error {
	for _, name := range g.GroupNames() {
		c, err := g.Subgroup(name)
		if err != nil {
			return err
		}
		if err := f.determinePhonyDimensions(c); err != nil {
			return err
		}
	}
	return nil
}

// intAttr returns the first element of an integer attribute, or def.
func intAttr(a h5.AttributeSet, name string, def int) int {
	v, ok := a.Get(name)
	if !ok || v.Len() == 0 {
		return def
	}
	e := reflect.ValueOf(v.Data).Index(0)
	switch e.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(e.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(e.Uint())
	}
	return def
}

// Store returns the underlying store session.
func (f *File) Store() h5.Store { return f.store }

// Mode returns the access mode the file was opened with.
func (f *File) Mode() Mode { return f.mode }

// Writable reports whether the file may be modified.
func (f *File) Writable() bool { return f.store.Writable() }

// InvalidNetCDF reports whether types unreadable by other netCDF-4
// readers are allowed.
func (f *File) InvalidNetCDF() bool { return f.invalidNetCDF }

func (f *File) checkOpen() error {
	if f.closed {
		return newError(ErrInvalidState, "file is closed")
	}
	return nil
}

func (f *File) checkWritable(what string) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if !f.store.Writable() {
		return newError(ErrWriteProtected, "%s: file is not writable", what)
	}
	return nil
}

// CheckDType returns an ErrTypeRejected error if d cannot be stored in a
// netCDF-4 file, unless the file allows invalid netCDF.
func (f *File) CheckDType(d h5.DType) error {
	var description string
	switch d.Class {
	case h5.Bool:
		description = "boolean"
	case h5.Complex:
		description = "complex"
	case h5.Enum:
		description = "enum"
	case h5.Reference:
		description = "reference"
	case h5.VarLen:
		description = "non-string variable length"
	case h5.Invalid:
		return newError(ErrTypeRejected, "invalid data type")
	}
	if description != "" && !f.invalidNetCDF {
		return newError(ErrTypeRejected,
			"%s dtypes are not a supported NetCDF feature, and are not allowed unless invalid netCDF is enabled",
			description)
	}
	return nil
}

// Flush writes _NCProperties to new files and flushes the store.
// Flushing a closed file does nothing.
func (f *File) Flush() error {
	if f.closed {
		return nil
	}
	if !f.store.Writable() {
		return nil
	}
	if !f.preexisting && !f.invalidNetCDF {
		err := f.store.Root().Attrs().Set(attrProperties, h5.FixedString(ncProperties, h5.ASCII))
		if err != nil {
			return storeError(err, "writing %s", attrProperties)
		}
	}
	if err := f.store.Flush(); err != nil {
		return storeError(err, "flushing")
	}
	return nil
}

// Close flushes and closes the file. Closing a closed file does nothing.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	err := f.Flush()
	if cerr := f.store.Close(); err == nil && cerr != nil {
		err = storeError(cerr, "closing")
	}
	f.closed = true
	f.Log.Debug("hdfnc: closed file")
	return err
}

// Closed reports whether Close has been called.
func (f *File) Closed() bool { return f.closed }

func (f *File) String() string {
	if f.closed {
		return "<Closed hdfnc.File>"
	}
	name := f.name
	if name == "" {
		name = "<store>"
	}
	header := fmt.Sprintf("<hdfnc.File %q (mode %s)>", h5.Base(name), f.mode)
	return strings.Join(append([]string{header}, f.Group.body()...), "\n")
}
