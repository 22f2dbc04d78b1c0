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

package ncutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc"
	"github.com/spatialmodel/hdfnc/cdfio"
	"github.com/spatialmodel/hdfnc/cloud"
	"github.com/spatialmodel/hdfnc/h5/memh5"
	"github.com/spatialmodel/hdfnc/layout"
)

// Build creates the store at storePath from the TOML layout at
// layoutPath. If output is not empty, the root group is also exported to
// it as a netCDF classic file. Paths can be blob storage locations.
func Build(ctx context.Context, layoutPath, storePath, output string, opts ...hdfnc.Option) error {
	b, err := cloud.ReadFile(ctx, layoutPath)
	if err != nil {
		return err
	}
	l, err := layout.Decode(bytes.NewReader(b))
	if err != nil {
		return err
	}

	u := new(cloud.Uploader)
	f, err := hdfnc.Open(u.MaybeUpload(storePath), hdfnc.ModeWrite, opts...)
	if err != nil {
		return err
	}
	if err := l.Apply(f.Group); err != nil {
		f.Close()
		return err
	}
	if output != "" {
		if err := exportGroup(f.Group, u.MaybeUpload(output)); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	Log.WithField("store", storePath).Info("hdfnc: built store")
	return u.Upload(ctx)
}

// Dump writes a description of the group at groupPath of the store or
// netCDF classic file at input to w. format is "repr" or "toml".
func Dump(ctx context.Context, w io.Writer, input, groupPath, format string, opts ...hdfnc.Option) error {
	path, err := cloud.MaybeDownload(ctx, input)
	if err != nil {
		return err
	}
	f, err := openAny(path, opts...)
	if err != nil {
		return err
	}
	defer f.Close()
	g, err := findGroup(f, groupPath)
	if err != nil {
		return err
	}
	switch format {
	case "", "repr":
		if g.Parent() == nil {
			_, err = fmt.Fprintln(w, f)
		} else {
			_, err = fmt.Fprintln(w, g)
		}
		return err
	case "toml":
		l, err := layout.Describe(g)
		if err != nil {
			return err
		}
		return l.Encode(w)
	}
	return fmt.Errorf("hdfnc: invalid dump format '%s'; use 'repr' or 'toml'", format)
}

// Export writes the group at groupPath of the store at storePath to
// output as a netCDF classic file.
func Export(ctx context.Context, storePath, groupPath, output string, opts ...hdfnc.Option) error {
	path, err := cloud.MaybeDownload(ctx, storePath)
	if err != nil {
		return err
	}
	f, err := hdfnc.Open(path, hdfnc.ModeRead, opts...)
	if err != nil {
		return err
	}
	defer f.Close()
	g, err := findGroup(f, groupPath)
	if err != nil {
		return err
	}
	u := new(cloud.Uploader)
	if err := exportGroup(g, u.MaybeUpload(output)); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{"group": g.Path(), "output": output}).Info("hdfnc: exported group")
	return u.Upload(ctx)
}

// Import copies the netCDF classic file at input into the group at
// groupPath of the store at storePath. The store and group are created
// if they do not exist.
func Import(ctx context.Context, input, storePath, groupPath string, opts ...hdfnc.Option) error {
	in, err := cloud.MaybeDownload(ctx, input)
	if err != nil {
		return err
	}
	r, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("hdfnc: opening classic file: %v", err)
	}
	defer r.Close()

	u := new(cloud.Uploader)
	local := u.MaybeUpload(storePath)
	if local != storePath {
		// Modify a copy of an existing blob.
		if existing, err := cloud.MaybeDownload(ctx, storePath); err == nil {
			if err := os.Rename(existing, local); err != nil {
				return fmt.Errorf("hdfnc: preparing store: %v", err)
			}
		}
	}
	f, err := hdfnc.Open(local, hdfnc.ModeAppend, opts...)
	if err != nil {
		return err
	}
	g, err := findGroup(f, groupPath)
	if hdfnc.Is(err, hdfnc.ErrNotFound) {
		g, err = f.CreateGroup(groupPath)
	}
	if err != nil {
		f.Close()
		return err
	}
	if err := cdfio.Import(r, g); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return u.Upload(ctx)
}

func exportGroup(g *hdfnc.Group, path string) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hdfnc: creating classic file: %v", err)
	}
	if err := cdfio.Export(g, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// classicMagic starts netCDF classic and 64-bit offset files.
var classicMagic = []byte("CDF")

// isClassic reports whether the file at path is a netCDF classic file.
func isClassic(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	b := make([]byte, len(classicMagic)+1)
	if _, err := io.ReadFull(f, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.HasPrefix(b, classicMagic) && (b[3] == 1 || b[3] == 2), nil
}

// openAny opens a store read-only, or imports a netCDF classic file into
// an in-memory file.
func openAny(path string, opts ...hdfnc.Option) (*hdfnc.File, error) {
	classic, err := isClassic(path)
	if err != nil {
		return nil, fmt.Errorf("hdfnc: %v", err)
	}
	if !classic {
		return hdfnc.Open(path, hdfnc.ModeRead, opts...)
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := hdfnc.New(memh5.New(true), opts...)
	if err != nil {
		return nil, err
	}
	if err := cdfio.Import(r, f.Group); err != nil {
		return nil, err
	}
	return f, nil
}

// findGroup returns the group at path, which is relative to the root.
func findGroup(f *hdfnc.File, path string) (*hdfnc.Group, error) {
	if path == "" || path == "/" {
		return f.Group, nil
	}
	item, err := f.Get(path)
	if err != nil {
		return nil, err
	}
	g, ok := item.(*hdfnc.Group)
	if !ok {
		return nil, fmt.Errorf("hdfnc: %s is not a group", path)
	}
	return g, nil
}
