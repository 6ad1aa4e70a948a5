package save_test

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/save"
	"github.com/attunehq/hurry/unitindex"
)

func TestRunSavesLibraryUnit(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "target")
	depsDir := filepath.Join(buildDir, "debug", "deps")
	registryRoot := filepath.Join(root, "registry", "src")
	if err := os.MkdirAll(depsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(registryRoot, "serde-1.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}

	rlibPath := filepath.Join(depsDir, "libserde-0123456789abcdef.rlib")
	depInfoPath := filepath.Join(depsDir, "libserde-0123456789abcdef.d")
	if err := os.WriteFile(rlibPath, []byte("rlib contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	depInfoContent := rlibPath + ": " + filepath.Join(registryRoot, "serde-1.0.0", "lib.rs") + "\n"
	if err := os.WriteFile(depInfoPath, []byte(depInfoContent), 0o644); err != nil {
		t.Fatal(err)
	}

	var savedRecords []unitindex.SaveRecord
	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&savedRecords); err != nil {
			t.Errorf("decode save_units body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer idxSrv.Close()

	var uploaded []string
	casSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr := tar.NewReader(r.Body)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read tar entry: %v", err)
			}
			uploaded = append(uploaded, hdr.Name)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(cas.BulkWriteResult{Written: uploaded})
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
			Hash:                "0123456789abcdef",
			Kind:                hurry.KindLibrary,
			PackageName:         "serde",
			Target:              hurry.Target{Host: true},
			ExpectedOutputPaths: []string{rlibPath},
			FingerprintDirPath:  filepath.Join(buildDir, "debug", ".fingerprint", "serde-0123456789abcdef"),
		},
	}

	engine := save.New(unitindex.New(idxSrv.URL, nil), cas.New(casSrv.URL, nil))
	restored := hurry.NewRestored()

	if err := engine.Run(context.Background(), ws, units, restored); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(savedRecords) != 1 {
		t.Fatalf("expected 1 saved record, got %d", len(savedRecords))
	}
	rec := savedRecords[0]
	if rec.UnitHash != "0123456789abcdef" {
		t.Fatalf("unexpected unit hash %v", rec.UnitHash)
	}
	if rec.SavedUnit.Kind != hurry.KindLibrary || rec.SavedUnit.Library == nil {
		t.Fatalf("expected Library saved unit, got %+v", rec.SavedUnit)
	}
	if len(rec.SavedUnit.Library.Outputs) != 1 {
		t.Fatalf("expected 1 output file, got %d", len(rec.SavedUnit.Library.Outputs))
	}
	if len(uploaded) == 0 {
		t.Fatal("expected at least one object uploaded to CAS")
	}
	if !restored.HasFile(rec.SavedUnit.Library.Outputs[0].Key) {
		t.Fatal("expected uploaded output key to be marked in Restored")
	}
}

func TestRunSkipsRestoredAndCrossCompiledUnits(t *testing.T) {
	idxCalls := 0
	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idxCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer idxSrv.Close()
	casSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("CAS should not be contacted when every unit is elided")
	}))
	defer casSrv.Close()

	ws := &cargo.Workspace{
		Rustc: cargo.RustcMetadata{HostTriple: "x86_64-unknown-linux-gnu"},
	}
	units := []hurry.UnitPlan{
		{Hash: "aaaaaaaaaaaaaaaa", Kind: hurry.KindLibrary, Target: hurry.Target{Host: true}},
		{Hash: "bbbbbbbbbbbbbbbb", Kind: hurry.KindLibrary, Target: hurry.Target{Triple: "aarch64-unknown-linux-gnu"}},
	}
	restored := hurry.NewRestored()
	restored.MarkUnit("aaaaaaaaaaaaaaaa")

	engine := save.New(unitindex.New(idxSrv.URL, nil), cas.New(casSrv.URL, nil))
	if err := engine.Run(context.Background(), ws, units, restored); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if idxCalls != 0 {
		t.Fatalf("expected no save_units call when all units are elided, got %d calls", idxCalls)
	}
}
