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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// ReadBlob reads the given blob from the given bucket.
func ReadBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// WriteBlob writes the given data to the given bucket.
func WriteBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// ReadFile reads the file at path, which may be a blob storage
// location or a URL.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	if IsBlob(path) {
		bucketName, key, err := splitBlob(path)
		if err != nil {
			return nil, err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return nil, err
		}
		return ReadBlob(ctx, bucket, key)
	}
	local, err := MaybeDownload(ctx, path)
	if err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading %s: %v", path, err)
	}
	return b, nil
}

// WriteFile writes data to path, which may be a blob storage location.
func WriteFile(ctx context.Context, path string, data []byte) error {
	if IsBlob(path) {
		bucketName, key, err := splitBlob(path)
		if err != nil {
			return err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return err
		}
		return WriteBlob(ctx, bucket, key, data)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cloud: writing %s: %v", path, err)
	}
	return nil
}

// MaybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob.
// If it is, it downloads the file and
// returns the path to the downloaded file.
// Other paths are returned unchanged.
func MaybeDownload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(path)
	}
	if IsBlob(path) {
		return downloadBlob(ctx, path)
	}
	return path, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("cloud: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloud: downloading %s: %s", url, resp.Status)
	}
	return saveTemp(path.Base(url), resp.Body)
}

// downloadBlob download the specified file from blob storage.
func downloadBlob(ctx context.Context, p string) (string, error) {
	bucketName, key, err := splitBlob(p)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("cloud: downloading %s: %v", p, err)
	}
	defer r.Close()
	return saveTemp(path.Base(key), r)
}

// saveTemp copies r to a file named name in a new temporary directory.
func saveTemp(name string, r io.Reader) (string, error) {
	dir, err := ioutil.TempDir("", "hdfnc")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download directory: %v", err)
	}
	fname := filepath.Join(dir, name)
	w, err := os.Create(fname)
	if err != nil {
		return "", fmt.Errorf("cloud: creating file for download: %v", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("cloud: saving %s: %v", fname, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("cloud: saving %s: %v", fname, err)
	}
	return fname, nil
}

// Uploader redirects output files destined for blob storage to
// temporary local files and uploads them afterwards.
type Uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	err   error
	dir   string
}

// MaybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the Upload method is run. Other paths are returned unchanged.
func (u *Uploader) MaybeUpload(path string) string {
	if u.err != nil {
		return ""
	}
	if !IsBlob(path) {
		return path
	}
	if u.dir == "" {
		u.dir, u.err = ioutil.TempDir("", "hdfnc")
		if u.err != nil {
			return ""
		}
	}
	local := filepath.Join(u.dir, filepath.Base(path))
	u.files = append(u.files, [2]string{local, path})
	return local
}

// Upload copies every redirected file to its blob storage location.
func (u *Uploader) Upload(ctx context.Context) error {
	if u.err != nil {
		return fmt.Errorf("cloud: preparing upload: %v", u.err)
	}
	for _, files := range u.files {
		if err := uploadFile(ctx, files[0], files[1]); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, local, dst string) error {
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %s", local, err)
	}
	defer r.Close()
	bucketName, key, err := splitBlob(dst)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("cloud: opening bucket to upload file '%s': %s", dst, err)
	}
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: opening writer to upload file '%s': %s", dst, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %s", local, dst, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %s", local, dst, err)
	}
	return nil
}
