package restore_test

import (
	"archive/tar"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cargofmt"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/fingerprint"
	hpath "github.com/attunehq/hurry/path"
	"github.com/attunehq/hurry/restore"
	"github.com/attunehq/hurry/unitindex"
)

func TestRunRestoresLibraryUnit(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "target")
	registryRoot := filepath.Join(root, "registry", "src")

	rlibKey := hurry.HashObject([]byte("rlib contents"))

	roots := hpath.Roots{ProfileDir: filepath.Join(buildDir, "debug"), RegistryRoot: registryRoot}
	depInfo, err := cargofmt.ParseDepInfo("debug/deps/libserde-0123456789abcdef.rlib: registry/src/serde-1.0.0/lib.rs\n", roots)
	if err != nil {
		t.Fatal(err)
	}
	depInfoJSON, err := json.Marshal(depInfo)
	if err != nil {
		t.Fatal(err)
	}
	depInfoKey := hurry.HashObject(depInfoJSON)

	blobs := map[hurry.ObjectKey][]byte{
		rlibKey:    []byte("rlib contents"),
		depInfoKey: depInfoJSON,
	}

	rlibQP, err := hpath.Classify(filepath.Join(buildDir, "debug", "deps", "libserde-0123456789abcdef.rlib"), roots)
	if err != nil {
		t.Fatal(err)
	}
	depQP, err := hpath.Classify(filepath.Join(buildDir, "debug", "deps", "libserde-0123456789abcdef.d"), roots)
	if err != nil {
		t.Fatal(err)
	}

	saved := hurry.SavedUnit{
		Kind: hurry.KindLibrary,
		Library: &hurry.SavedLibrary{
			Outputs: []hurry.SavedFile{
				{Path: rlibQP, Key: rlibKey},
				{Path: depQP, Key: depInfoKey},
			},
			Fingerprint: fingerprint.Fingerprint{UnitName: "serde", Kind: "library"},
		},
	}

	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[hurry.UnitHash]hurry.SavedUnit{"0123456789abcdef": saved})
	}))
	defer idxSrv.Close()

	casSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Keys []hurry.ObjectKey `json:"keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode bulk read request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-tar")
		tw := tar.NewWriter(w)
		for _, k := range req.Keys {
			content, ok := blobs[k]
			if !ok {
				continue
			}
			tw.WriteHeader(&tar.Header{Name: string(k), Size: int64(len(content)), Mode: 0o644})
			tw.Write(content)
		}
		tw.Close()
	}))
	defer casSrv.Close()

	ws := &cargo.Workspace{
		Root:         root,
		BuildDir:     buildDir,
		Rustc:        cargo.RustcMetadata{HostTriple: "x86_64-unknown-linux-gnu"},
		Profile:      hurry.ProfileDebug,
		RegistryRoot: registryRoot,
	}
	units := []hurry.UnitPlan{
		{
			Hash:               "0123456789abcdef",
			Kind:               hurry.KindLibrary,
			PackageName:        "serde",
			Target:             hurry.Target{Host: true},
			FingerprintDirPath: filepath.Join(buildDir, "debug", ".fingerprint", "serde-0123456789abcdef"),
		},
	}

	engine := restore.New(unitindex.New(idxSrv.URL, nil), cas.New(casSrv.URL, nil))
	restoredSet, err := engine.Run(context.Background(), ws, units, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !restoredSet.HasUnit("0123456789abcdef") {
		t.Fatal("expected unit to be marked restored")
	}

	rlibPath := filepath.Join(buildDir, "debug", "deps", "libserde-0123456789abcdef.rlib")
	content, err := os.ReadFile(rlibPath)
	if err != nil {
		t.Fatalf("read restored rlib: %v", err)
	}
	if string(content) != "rlib contents" {
		t.Fatalf("unexpected rlib content %q", content)
	}

	depPath := filepath.Join(buildDir, "debug", "deps", "libserde-0123456789abcdef.d")
	depContent, err := os.ReadFile(depPath)
	if err != nil {
		t.Fatalf("read restored dep-info: %v", err)
	}
	want, err := depInfo.Reconstruct(roots)
	if err != nil {
		t.Fatal(err)
	}
	if string(depContent) != want {
		t.Fatalf("dep-info not rematerialized correctly: got %q want %q", depContent, want)
	}
}

func TestRunSkipsLocallyFreshUnit(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "target")
	fpDir := filepath.Join(buildDir, "debug", ".fingerprint", "serde-0123456789abcdef")
	if err := os.MkdirAll(fpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "0123456789abcdef.json"), []byte("123"), 0o644); err != nil {
		t.Fatal(err)
	}

	idxCalled := false
	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idxCalled = true
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}))
	defer idxSrv.Close()
	casSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("CAS should not be contacted for a locally-fresh unit")
	}))
	defer casSrv.Close()

	ws := &cargo.Workspace{
		Root:     root,
		BuildDir: buildDir,
		Rustc:    cargo.RustcMetadata{HostTriple: "x86_64-unknown-linux-gnu"},
		Profile:  hurry.ProfileDebug,
	}
	units := []hurry.UnitPlan{
		{
			Hash:               "0123456789abcdef",
			Kind:               hurry.KindLibrary,
			PackageName:        "serde",
			Target:             hurry.Target{Host: true},
			FingerprintDirPath: fpDir,
		},
	}

	engine := restore.New(unitindex.New(idxSrv.URL, nil), cas.New(casSrv.URL, nil))
	_, err := engine.Run(context.Background(), ws, units, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if idxCalled {
		t.Fatal("expected restore_units not to be called when every unit is locally fresh")
	}
}
