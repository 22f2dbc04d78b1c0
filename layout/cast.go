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

package layout

import (
	"fmt"
	"reflect"

	"github.com/spatialmodel/hdfnc/h5"
	"github.com/spf13/cast"
)

// castSlice converts a decoded TOML array, or a single value, to a slice
// with element type dtype.
func castSlice(x interface{}, dtype h5.DType) (interface{}, error) {
	var elems []interface{}
	switch v := x.(type) {
	case []interface{}:
		elems = v
	default:
		rv := reflect.ValueOf(x)
		if rv.Kind() == reflect.Slice {
			elems = make([]interface{}, rv.Len())
			for i := range elems {
				elems[i] = rv.Index(i).Interface()
			}
		} else {
			elems = []interface{}{x}
		}
	}
	out, err := h5.MakeSlice(dtype, len(elems))
	if err != nil {
		return nil, err
	}
	if dtype.IsString() {
		ss := make([]string, len(elems))
		for i, e := range elems {
			if ss[i], err = cast.ToStringE(e); err != nil {
				return nil, err
			}
		}
		return ss, nil
	}
	dst := reflect.ValueOf(out)
	for i, e := range elems {
		v, err := castScalar(e, dtype)
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", i, err)
		}
		dst.Index(i).Set(reflect.ValueOf(v))
	}
	return out, nil
}

// castScalar converts a decoded TOML value to the Go type of dtype.
func castScalar(x interface{}, dtype h5.DType) (interface{}, error) {
	switch dtype {
	case h5.Int8:
		return cast.ToInt8E(x)
	case h5.Int16:
		return cast.ToInt16E(x)
	case h5.Int32:
		return cast.ToInt32E(x)
	case h5.Int64:
		return cast.ToInt64E(x)
	case h5.Uint8:
		return cast.ToUint8E(x)
	case h5.Uint16:
		return cast.ToUint16E(x)
	case h5.Uint32:
		return cast.ToUint32E(x)
	case h5.Uint64:
		return cast.ToUint64E(x)
	case h5.Float32:
		return cast.ToFloat32E(x)
	case h5.Float64:
		return cast.ToFloat64E(x)
	case h5.BoolType:
		return cast.ToBoolE(x)
	}
	if dtype.IsString() {
		return cast.ToStringE(x)
	}
	return nil, fmt.Errorf("type %s cannot be set from a layout", dtype)
}
