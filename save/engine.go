// Package save implements the Save Engine: for each unit the Restore
// Engine did not already mark as a cache hit, read its on-disk files,
// parse the path-embedding formats into their portable AST, upload new
// objects via bulk CAS put, and enqueue a SavedUnit record for the unit
// index. Grounded on cargo/cache/save.rs and gcp_cache/gcp_save.rs in the
// original implementation, and on cas.Client's bulk-put batching for the
// upload shape.
package save

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cargofmt"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/fingerprint"
	hpath "github.com/attunehq/hurry/path"
	"github.com/attunehq/hurry/unitindex"
)

// Engine uploads freshly built units to CAS and the unit index.
type Engine struct {
	Index *unitindex.Client
	CAS   *cas.Client

	// Log receives warnings about non-fatal per-unit or per-object
	// failures, matching the teacher's fmt.Fprintf-to-a-writer house
	// style rather than a structured logging framework.
	Log io.Writer
}

// New returns an Engine that logs to stderr.
func New(index *unitindex.Client, store *cas.Client) *Engine {
	return &Engine{Index: index, CAS: store, Log: os.Stderr}
}

// Run walks units in plan order, skipping anything already in restored,
// and uploads each remaining unit's objects and index record. The walk
// is sequential across units so that each unit's dependency edges can be
// resolved against the fingerprint hashes already computed for the units
// before it in topological order; uploads within one unit still batch
// through a single CAS.PutBulk call. A per-unit failure is logged and
// skipped, never fatal to the invocation.
func (e *Engine) Run(ctx context.Context, ws *cargo.Workspace, units []hurry.UnitPlan, restored *hurry.Restored) error {
	selfHashes := make(map[hurry.UnitHash]uint64, len(units))
	var records []unitindex.SaveRecord

	for _, u := range units {
		if restored.HasUnit(u.Hash) {
			continue
		}
		if !u.Target.Host && u.Target.Triple != ws.Rustc.HostTriple {
			// Cross-compilation guard: the portable encoding assumes a
			// uniform runtime environment between save and restore.
			continue
		}

		rec, hash, err := e.saveUnit(ctx, ws, u, selfHashes, restored)
		if err != nil {
			fmt.Fprintf(e.Log, "hurry: save %s: %v\n", u.Hash, err)
			continue
		}
		selfHashes[u.Hash] = hash
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil
	}
	if err := e.Index.SaveUnits(ctx, records); err != nil {
		fmt.Fprintf(e.Log, "hurry: save_units: %v\n", err)
		return err
	}
	return nil
}

func (e *Engine) saveUnit(ctx context.Context, ws *cargo.Workspace, u hurry.UnitPlan, selfHashes map[hurry.UnitHash]uint64, restored *hurry.Restored) (unitindex.SaveRecord, uint64, error) {
	roots := ws.Roots(u.Target)
	objects := make(map[hurry.ObjectKey][]byte)

	selfPath, err := unitSelfPath(u, roots)
	if err != nil {
		return unitindex.SaveRecord{}, 0, err
	}

	edges := make([]fingerprint.DepEdge, 0, len(u.DepUnitHashes))
	for _, dep := range u.DepUnitHashes {
		if h, ok := selfHashes[dep]; ok {
			edges = append(edges, fingerprint.DepEdge{DepUnitName: string(dep), DepHash: h})
		}
	}
	fp := fingerprint.Fingerprint{UnitName: u.PackageName, Kind: string(u.Kind), SrcPath: selfPath, Edges: edges}

	su := hurry.SavedUnit{Kind: u.Kind}
	switch u.Kind {
	case hurry.KindLibrary:
		lib, err := buildLibrary(u, roots, restored, objects)
		if err != nil {
			return unitindex.SaveRecord{}, 0, err
		}
		lib.Fingerprint = fp
		su.Library = lib
	case hurry.KindBuildScriptCompile:
		bsc, err := buildBuildScriptCompile(u, roots, restored, objects)
		if err != nil {
			return unitindex.SaveRecord{}, 0, err
		}
		bsc.Fingerprint = fp
		su.BuildScriptCompile = bsc
	case hurry.KindBuildScriptExecute:
		bse, err := buildBuildScriptExecute(u, roots, restored, objects)
		if err != nil {
			return unitindex.SaveRecord{}, 0, err
		}
		bse.Fingerprint = fp
		su.BuildScriptExecute = bse
	default:
		return unitindex.SaveRecord{}, 0, fmt.Errorf("unrecognized unit kind %q", u.Kind)
	}

	if len(objects) > 0 {
		result, err := e.CAS.PutBulk(ctx, objects)
		if err != nil {
			return unitindex.SaveRecord{}, 0, err
		}
		for _, be := range result.Errors {
			fmt.Fprintf(e.Log, "hurry: object %s: %s\n", be.Key, be.Reason)
		}
	}

	rec := unitindex.SaveRecord{
		UnitHash:       u.Hash,
		SavedUnit:      su,
		ResolvedTarget: u.Target.String(),
		LibcVersion:    ws.Rustc.LibcVersion,
	}
	return rec, fp.Hash(), nil
}

func buildLibrary(u hurry.UnitPlan, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (*hurry.SavedLibrary, error) {
	outputs, err := saveOutputFiles(u.ExpectedOutputPaths, roots, restored, objects)
	if err != nil {
		return nil, err
	}
	depKey, encKey, err := saveDepInfo(depInfoPathFor(u.ExpectedOutputPaths), roots, restored, objects)
	if err != nil {
		return nil, err
	}
	return &hurry.SavedLibrary{Outputs: outputs, DepInfo: depKey, EncodedDepInfo: encKey}, nil
}

func buildBuildScriptCompile(u hurry.UnitPlan, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (*hurry.SavedBuildScriptCompile, error) {
	if len(u.ExpectedOutputPaths) == 0 {
		return nil, fmt.Errorf("build script compile unit %s has no outputs", u.Hash)
	}
	content, err := os.ReadFile(u.ExpectedOutputPaths[0])
	if err != nil {
		return nil, err
	}
	programKey := collectObject(content, restored, objects)

	depKey, encKey, err := saveDepInfo(depInfoPathFor(u.ExpectedOutputPaths), roots, restored, objects)
	if err != nil {
		return nil, err
	}
	return &hurry.SavedBuildScriptCompile{Program: programKey, DepInfo: depKey, EncodedDepInfo: encKey}, nil
}

func buildBuildScriptExecute(u hurry.UnitPlan, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (*hurry.SavedBuildScriptExecute, error) {
	if len(u.ExpectedOutputPaths) == 0 {
		return nil, fmt.Errorf("build script execute unit %s has no OUT_DIR", u.Hash)
	}
	outDir := u.ExpectedOutputPaths[0]
	buildDir := filepath.Dir(outDir)

	files, err := saveOutDirContents(outDir, roots, restored, objects)
	if err != nil {
		return nil, err
	}

	stdoutKey, err := saveBuildScriptOutput(filepath.Join(buildDir, "output"), roots, restored, objects)
	if err != nil {
		return nil, err
	}
	stderrKey, err := saveRawFile(filepath.Join(buildDir, "stderr"), restored, objects)
	if err != nil {
		return nil, err
	}

	return &hurry.SavedBuildScriptExecute{OutDirFiles: files, Stdout: stdoutKey, Stderr: stderrKey}, nil
}

func saveOutputFiles(paths []string, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) ([]hurry.SavedFile, error) {
	files := make([]hurry.SavedFile, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		qp, err := hpath.Classify(p, roots)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		key := collectObject(content, restored, objects)
		files = append(files, hurry.SavedFile{Path: qp, Key: key, Executable: info.Mode()&0o111 != 0})
	}
	return files, nil
}

func saveOutDirContents(outDir string, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) ([]hurry.SavedFile, error) {
	var files []hurry.SavedFile
	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		qp, err := hpath.Classify(p, roots)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key := collectObject(content, restored, objects)
		files = append(files, hurry.SavedFile{Path: qp, Key: key, Executable: info.Mode()&0o111 != 0})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// saveDepInfo uploads both the raw dep-info bytes (for inspection) and
// its JSON-portable parsed form (what restore actually rematerializes).
func saveDepInfo(path string, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (raw, encoded hurry.ObjectKey, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	raw = collectObject(content, restored, objects)

	parsed, err := cargofmt.ParseDepInfo(string(content), roots)
	if err != nil {
		return raw, "", fmt.Errorf("parse dep-info %s: %w", path, err)
	}
	encodedBytes, err := json.Marshal(parsed)
	if err != nil {
		return raw, "", err
	}
	encoded = collectObject(encodedBytes, restored, objects)
	return raw, encoded, nil
}

func saveBuildScriptOutput(path string, roots hpath.Roots, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (hurry.ObjectKey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	parsed, err := cargofmt.ParseBuildScriptOutput(string(content), roots)
	if err != nil {
		return "", fmt.Errorf("parse build script output %s: %w", path, err)
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return "", err
	}
	return collectObject(encoded, restored, objects), nil
}

func saveRawFile(path string, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) (hurry.ObjectKey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return collectObject(content, restored, objects), nil
}

// collectObject hashes content and, unless it is already accounted for
// in restored (from a prior restore, or from an earlier unit in this
// same save pass), adds it to the pending upload batch and marks it.
func collectObject(content []byte, restored *hurry.Restored, objects map[hurry.ObjectKey][]byte) hurry.ObjectKey {
	key := hurry.HashObject(content)
	if restored.HasFile(key) {
		return key
	}
	objects[key] = content
	restored.MarkFile(key)
	return key
}

func unitSelfPath(u hurry.UnitPlan, roots hpath.Roots) (hpath.QualifiedPath, error) {
	if u.SrcPath != nil {
		return *u.SrcPath, nil
	}
	return hpath.Classify(u.FingerprintDirPath, roots)
}

// depInfoPathFor derives a unit's dep-info file path from the convention
// that it shares its first output's basename with a ".d" extension,
// living alongside it in the same directory.
func depInfoPathFor(outputs []string) string {
	if len(outputs) == 0 {
		return ""
	}
	out := outputs[0]
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".d"
}
