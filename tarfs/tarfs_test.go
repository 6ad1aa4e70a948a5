package tarfs

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"
)

// buildTar writes entries (hex object key -> content) into an
// in-memory uncompressed tar stream, mirroring the server's
// /cas/bulk/read wire format.
func buildTar(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range entries {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header for %s: %v", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("write content for %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	return buf.Bytes()
}

func TestNewEmpty(t *testing.T) {
	fsys, err := New(bytes.NewReader(buildTar(t, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if len(fsys) != 0 {
		t.Fatalf("expected empty FS, got %d entries", len(fsys))
	}
}

func TestNewDecodesEntriesByKey(t *testing.T) {
	const key = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
	content := []byte("object bytes")

	fsys, err := New(bytes.NewReader(buildTar(t, map[string][]byte{key: content})))
	if err != nil {
		t.Fatal(err)
	}

	got, err := fsys.ReadFile(key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("ReadFile(%s) = %q, want %q", key, got, content)
	}
}

func TestReadFileMissingKeyIsNotExist(t *testing.T) {
	fsys, err := New(bytes.NewReader(buildTar(t, nil)))
	if err != nil {
		t.Fatal(err)
	}
	_, err = fsys.ReadFile("deadbeef")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFile on missing key = %v, want fs.ErrNotExist", err)
	}
}

func TestOpenAndReadAllMatchesContent(t *testing.T) {
	const key = "abc123"
	content := []byte("some longer body of bytes for reading in chunks")

	fsys, err := New(bytes.NewReader(buildTar(t, map[string][]byte{key: content})))
	if err != nil {
		t.Fatal(err)
	}

	f, err := fsys.Open(key)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Open/Read = %q, want %q", got, content)
	}
}

func TestMultipleEntriesAreIndependentlyAddressable(t *testing.T) {
	entries := map[string][]byte{
		"key-one": []byte("first"),
		"key-two": []byte("second"),
	}
	fsys, err := New(bytes.NewReader(buildTar(t, entries)))
	if err != nil {
		t.Fatal(err)
	}
	for name, want := range entries {
		got, err := fsys.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("ReadFile(%s) = %q, want %q", name, got, want)
		}
	}
}
