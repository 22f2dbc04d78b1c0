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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc/h5"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Attribute names used internally by netCDF-4 and the dimension scale
// convention. They are hidden from Attributes.
const (
	attrDimid       = "_Netcdf4Dimid"
	attrCoordinates = "_Netcdf4Coordinates"
	attrStrict      = "_nc3_strict"
	attrProperties  = "_NCProperties"
	attrFillValue   = "_FillValue"
)

var reservedAttrs = map[string]bool{
	h5.AttrReferenceList: true,
	h5.AttrClass:         true,
	h5.AttrDimensionList: true,
	h5.AttrName:          true,
	attrDimid:            true,
	attrCoordinates:      true,
	attrStrict:           true,
	attrProperties:       true,
}

// IsReservedAttr reports whether name is used for internal bookkeeping and
// therefore hidden from Attributes.
func IsReservedAttr(name string) bool { return reservedAttrs[name] }

// Attributes is the user-visible metadata of a group or variable.
// Reserved names can be neither read nor written through it.
type Attributes struct {
	set  h5.AttributeSet
	f    *File
	path string
}

func newAttributes(f *File, n h5.Node) *Attributes {
	return &Attributes{set: n.Attrs(), f: f, path: n.Path()}
}

// attrKind is the shape of a stored attribute value, which decides how
// it is presented to callers.
type attrKind int

const (
	attrEmpty attrKind = iota
	attrFixedString
	attrVarString
	attrScalar
	attrArray
)

func classifyAttr(v h5.Value) attrKind {
	switch {
	case v.Empty:
		return attrEmpty
	case v.Type.IsFixedString():
		return attrFixedString
	case v.Type.IsVarString():
		return attrVarString
	case v.IsScalar():
		return attrScalar
	default:
		return attrArray
	}
}

// Get returns the value of the attribute key.
//
// Scalar and single-element values are returned as a bare element, such
// as int32(5) or "title". Other values are returned as a flat slice, with
// strings as []string. An empty value of one-character string type is
// returned as an empty []byte. String elements that are not valid in
// their declared encoding are returned as raw []byte, so a multi-element
// string attribute with such elements is returned as []interface{}.
func (a *Attributes) Get(key string) (interface{}, error) {
	if reservedAttrs[key] {
		return nil, newError(ErrNotFound, "attribute %q is reserved", key)
	}
	v, ok := a.set.Get(key)
	if !ok {
		return nil, newError(ErrNotFound, "no attribute %q in %s", key, a.path)
	}
	switch classifyAttr(v) {
	case attrEmpty:
		if v.Type.IsString() && v.Type.Size == 1 {
			return []byte{}, nil
		}
		return nil, nil
	case attrFixedString:
		return a.decodeStrings(key, v, true), nil
	case attrVarString:
		return a.decodeStrings(key, v, false), nil
	case attrScalar:
		return reflect.ValueOf(v.Data).Index(0).Interface(), nil
	default:
		return h5.CopySlice(v.Data), nil
	}
}

func (a *Attributes) decodeStrings(key string, v h5.Value, fixed bool) interface{} {
	raw, _ := v.Data.([][]byte)
	out := make([]interface{}, len(raw))
	failed := false
	for i, b := range raw {
		if fixed {
			b = bytes.TrimRight(b, "\x00")
		}
		s, err := decodeString(b, v.Type.Encoding)
		if err != nil {
			a.f.Log.WithFields(logrus.Fields{
				"attribute": key,
				"path":      a.path,
				"element":   i,
			}).WithError(err).Debug("hdfnc: leaving undecodable string attribute element as bytes")
			out[i] = append([]byte{}, b...)
			failed = true
			continue
		}
		out[i] = s
	}
	if len(out) == 1 {
		return out[0]
	}
	if failed {
		return out
	}
	ss := make([]string, len(out))
	for i, s := range out {
		ss[i] = s.(string)
	}
	return ss
}

// decodeString decodes b according to enc.
func decodeString(b []byte, enc h5.Encoding) (string, error) {
	if enc == h5.UTF8 {
		s, _, err := transform.Bytes(encoding.UTF8Validator, b)
		if err != nil {
			return "", err
		}
		return string(s), nil
	}
	for i, c := range b {
		if c >= 0x80 {
			return "", fmt.Errorf("non-ASCII byte %#x at offset %d", c, i)
		}
	}
	return string(b), nil
}

// Set writes the attribute key. value may be an h5.Value, which is stored
// with its own element type, or a Go scalar or slice whose element type is
// inferred.
func (a *Attributes) Set(key string, value interface{}) error {
	if reservedAttrs[key] {
		return newError(ErrWriteProtected, "cannot write attribute with reserved name %q", key)
	}
	v, err := h5.NewValue(value)
	if err != nil {
		return wrapError(err, ErrTypeRejected, "attribute %q", key)
	}
	if err := v.Check(); err != nil {
		return wrapError(err, ErrTypeRejected, "attribute %q", key)
	}
	if err := a.f.CheckDType(v.Type); err != nil {
		return err
	}
	if err := a.set.Set(key, v); err != nil {
		return storeError(err, "writing attribute %q of %s", key, a.path)
	}
	return nil
}

// Delete removes the attribute key. Errors from the store, including
// for absent keys, are returned unchanged apart from classification.
func (a *Attributes) Delete(key string) error {
	if err := a.set.Delete(key); err != nil {
		return storeError(err, "deleting attribute %q of %s", key, a.path)
	}
	return nil
}

// Keys returns the visible attribute names in store order.
func (a *Attributes) Keys() []string {
	var keys []string
	for _, k := range a.set.Names() {
		if !reservedAttrs[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of visible attributes.
func (a *Attributes) Len() int { return len(a.Keys()) }

// Has reports whether the visible attribute key exists.
func (a *Attributes) Has(key string) bool {
	return !reservedAttrs[key] && a.set.Has(key)
}

// Map returns all visible attributes.
func (a *Attributes) Map() (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for _, k := range a.Keys() {
		v, err := a.Get(k)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (a *Attributes) lines(indent string) []string {
	var lines []string
	for _, k := range a.Keys() {
		v, err := a.Get(k)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s%s: <%v>", indent, k, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s%s: %#v", indent, k, v))
	}
	return lines
}

func (a *Attributes) String() string {
	return strings.Join(append([]string{"<hdfnc.Attributes>"}, a.lines("")...), "\n")
}

// reservedAttrNames returns the reserved names in sorted order.
func reservedAttrNames() []string {
	var names []string
	for k := range reservedAttrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
