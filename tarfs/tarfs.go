// Package tarfs decodes a CAS bulk-read response (an uncompressed TAR
// stream whose entries are named by hex object key, per the
// /cas/bulk/read wire format) into a random-access fs.FS so callers can
// look up individual objects by key without buffering the whole response
// twice. Object keys never nest, so unlike a filesystem-shaped tarball
// this is a flat name->bytes table: no directory synthesis is needed.
package tarfs

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"time"
)

// entry is one decoded tar member.
type entry struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// FS is a flat, read-only, tar-backed fs.FS keyed by tar entry name (a
// hex object key).
type FS map[string]*entry

var (
	_ fs.FS         = FS(nil)
	_ fs.ReadFileFS = FS(nil)
)

// New decodes every regular-file entry of the tar stream read from r
// into an FS keyed by its tar header name. Directory entries are
// skipped; a CAS bulk-read response never emits them, but a decoder
// that choked on one would be fragile for no reason.
func New(r io.Reader) (FS, error) {
	out := make(FS)

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if header.FileInfo().IsDir() {
			continue
		}

		buf := bytes.Buffer{}
		if _, err := buf.ReadFrom(tr); err != nil {
			return out, err
		}
		out[header.Name] = &entry{
			data:    buf.Bytes(),
			mode:    header.FileInfo().Mode(),
			modTime: header.FileInfo().ModTime(),
		}
	}
}

func (fsys FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	e, ok := fsys[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &openFile{name: name, entry: e}, nil
}

// ReadFile satisfies fs.ReadFileFS directly: GetBulk only ever does a
// single-shot read per key, so there's no reason to route through
// Open/Read/Close for it.
func (fsys FS) ReadFile(name string) ([]byte, error) {
	e, ok := fsys[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return e.data, nil
}

// openFile is the fs.File returned by Open.
type openFile struct {
	name   string
	entry  *entry
	offset int64
}

func (f *openFile) Stat() (fs.FileInfo, error) { return fileInfo{f.name, f.entry}, nil }
func (f *openFile) Close() error               { return nil }

func (f *openFile) Read(b []byte) (int, error) {
	if f.offset >= int64(len(f.entry.data)) {
		return 0, io.EOF
	}
	n := copy(b, f.entry.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

// fileInfo is the fs.FileInfo for one entry.
type fileInfo struct {
	name string
	e    *entry
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return int64(len(i.e.data)) }
func (i fileInfo) Mode() fs.FileMode  { return i.e.mode }
func (i fileInfo) ModTime() time.Time { return i.e.modTime }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() interface{}   { return nil }
