// Package restore implements the Restore Engine: for each planned unit,
// fetch its cached record, skip locally-fresh units, feed the Fingerprint
// Rechainer, and queue object downloads to a bounded worker pool.
// Grounded on the errgroup fan-out/fan-in worker pool shape in
// rsync/receive.go (each worker drains a shared channel until it closes,
// errors propagate via errgroup, completion is tracked with atomic
// counters), generalized here from delta-transfer workers to CAS
// bulk-get workers.
package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cargofmt"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/fingerprint"
	hpath "github.com/attunehq/hurry/path"
	"github.com/attunehq/hurry/progress"
	"github.com/attunehq/hurry/unitindex"
	"golang.org/x/sync/errgroup"
)

// batchSize is the approximate number of keys per bulk-get call.
const batchSize = 50

// fetchJob is one queued object download: the unit it belongs to (for
// completion accounting), the key to fetch, and how to materialize the
// returned bytes once fetched.
type fetchJob struct {
	unit       hurry.UnitHash
	key        hurry.ObjectKey
	executable bool
	write      func(content []byte) error
}

// Engine restores planned units from the unit index and CAS into the
// workspace build directory.
type Engine struct {
	Index   *unitindex.Client
	CAS     *cas.Client
	Workers int
	Log     io.Writer
}

// New returns an Engine with a worker count matching hardware
// concurrency, as the core algorithm specifies.
func New(index *unitindex.Client, store *cas.Client) *Engine {
	workers := runtime.NumCPU()
	return &Engine{Index: index, CAS: store, Workers: workers, Log: os.Stderr}
}

func (e *Engine) log() io.Writer {
	if e.Log == nil {
		return os.Stderr
	}
	return e.Log
}

// Run restores every unit in plan (in plan order) against ws, returning
// the Restored set the Save Engine will consult to elide re-uploads.
// Fingerprints are rewritten strictly in plan order; file downloads for
// distinct units may complete out of order.
func (e *Engine) Run(ctx context.Context, ws *cargo.Workspace, units []hurry.UnitPlan, bar *progress.TransferBar) (*hurry.Restored, error) {
	restored := hurry.NewRestored()
	chain := fingerprint.NewChain()

	hashes := make([]hurry.UnitHash, 0, len(units))
	locallyFresh := make(map[hurry.UnitHash]bool)
	for _, u := range units {
		if fingerprintJSONExists(u) {
			locallyFresh[u.Hash] = true
			continue
		}
		hashes = append(hashes, u.Hash)
	}

	var saved map[hurry.UnitHash]hurry.SavedUnit
	if len(hashes) > 0 {
		var err error
		saved, err = e.Index.RestoreUnits(ctx, hashes, ws.Rustc.LibcVersion)
		if err != nil {
			// NetworkFatal on restore: skip the whole phase, treat every
			// requested unit as a cache miss.
			fmt.Fprintf(e.log(), "hurry: restore: restore_units: %v\n", err)
			return restored, nil
		}
	}

	jobs := make(chan fetchJob, e.Workers*batchSize)
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(jobs)
		for i, u := range units {
			roots := ws.Roots(u.Target)

			var cached fingerprint.Fingerprint
			var have bool
			if locallyFresh[u.Hash] {
				cached, have = readLocalFingerprint(u)
			} else if su, ok := saved[u.Hash]; ok {
				cached, have = fingerprintOf(su)
				if have {
					if err := enqueueUnit(jobs, gctx, roots, u, su, restored); err != nil {
						return err
					}
				}
			}
			if !have {
				continue
			}

			newSelfPath, err := selfPath(u, roots)
			if err != nil {
				continue
			}
			rechained, ok := chain.Rechain(cached, newSelfPath)
			if !ok {
				continue
			}
			if err := writeFingerprint(u, rechained, i); err != nil {
				continue
			}
		}
		return nil
	})

	for i := 0; i < e.Workers; i++ {
		eg.Go(func() error {
			return e.worker(gctx, jobs, restored, bar)
		})
	}

	if err := eg.Wait(); err != nil {
		return restored, err
	}
	return restored, nil
}

func (e *Engine) worker(ctx context.Context, jobs <-chan fetchJob, restored *hurry.Restored, bar *progress.TransferBar) error {
	batch := make([]fetchJob, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		keys := make([]hurry.ObjectKey, len(batch))
		for i, j := range batch {
			keys[i] = j.key
		}
		blobs, err := e.CAS.GetBulk(ctx, keys)
		if err != nil {
			fmt.Fprintf(e.log(), "hurry: restore: bulk fetch of %d objects: %v\n", len(keys), err)
			batch = batch[:0]
			return nil // NetworkTransient: degrade to cache miss for this batch
		}
		for _, j := range batch {
			content, ok := blobs[j.key]
			if !ok {
				continue
			}
			if err := j.write(content); err != nil {
				fmt.Fprintf(e.log(), "hurry: restore: write object %s for unit %s: %v\n", j.key, j.unit, err)
				continue
			}
			restored.MarkFile(j.key)
			if bar != nil {
				bar.Add(int64(len(content)))
			}
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return flush()
			}
			batch = append(batch, job)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func enqueueUnit(jobs chan<- fetchJob, ctx context.Context, roots hpath.Roots, u hurry.UnitPlan, su hurry.SavedUnit, restored *hurry.Restored) error {
	files := savedFiles(su)
	for _, f := range files {
		f := f
		job := fetchJob{
			unit:       u.Hash,
			key:        f.Key,
			executable: f.Executable,
			write: func(content []byte) error {
				path, err := hpath.Reconstruct(f.Path, roots)
				if err != nil {
					return err
				}
				materialized, err := rematerialize(path, content, roots)
				if err != nil {
					return &hurry.MalformedCacheInputError{Unit: u.Hash, Err: err}
				}
				return writeFileAtomic(path, materialized, f.Executable)
			},
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	restored.MarkUnit(u.Hash)
	return nil
}

func savedFiles(su hurry.SavedUnit) []hurry.SavedFile {
	switch su.Kind {
	case hurry.KindLibrary:
		if su.Library == nil {
			return nil
		}
		return su.Library.Outputs
	case hurry.KindBuildScriptExecute:
		if su.BuildScriptExecute == nil {
			return nil
		}
		return su.BuildScriptExecute.OutDirFiles
	default:
		return nil
	}
}

func fingerprintOf(su hurry.SavedUnit) (fingerprint.Fingerprint, bool) {
	switch su.Kind {
	case hurry.KindLibrary:
		if su.Library == nil {
			return fingerprint.Fingerprint{}, false
		}
		return su.Library.Fingerprint, true
	case hurry.KindBuildScriptCompile:
		if su.BuildScriptCompile == nil {
			return fingerprint.Fingerprint{}, false
		}
		return su.BuildScriptCompile.Fingerprint, true
	case hurry.KindBuildScriptExecute:
		if su.BuildScriptExecute == nil {
			return fingerprint.Fingerprint{}, false
		}
		return su.BuildScriptExecute.Fingerprint, true
	default:
		return fingerprint.Fingerprint{}, false
	}
}

func selfPath(u hurry.UnitPlan, roots hpath.Roots) (hpath.QualifiedPath, error) {
	if u.SrcPath != nil {
		return *u.SrcPath, nil
	}
	return hpath.Classify(u.FingerprintDirPath, roots)
}

func fingerprintJSONPath(u hurry.UnitPlan) string {
	return filepath.Join(u.FingerprintDirPath, fmt.Sprintf("%s.json", u.Hash))
}

func fingerprintJSONExists(u hurry.UnitPlan) bool {
	_, err := os.Stat(fingerprintJSONPath(u))
	return err == nil
}

func readLocalFingerprint(u hurry.UnitPlan) (fingerprint.Fingerprint, bool) {
	// A locally-fresh unit's files are never re-downloaded. The fingerprint
	// returned here is a placeholder carrying only the unit name; the
	// unit's on-disk fingerprint is not read, so its hash matches no edge
	// in a dependent's stored fingerprint and such a dependent is not
	// rechained.
	return fingerprint.Fingerprint{UnitName: u.PackageName}, true
}

// rematerialize re-encodes a CAS object's bytes into their machine-local
// form when the file is one of the three path-embedding formats, storing
// and restoring those formats as JSON-encoded portable ASTs (see
// cargofmt.DepInfo/BuildScriptOutput/RootOutput); any other file is
// written verbatim.
func rematerialize(path string, content []byte, roots hpath.Roots) ([]byte, error) {
	switch {
	case filepath.Ext(path) == ".d":
		var d cargofmt.DepInfo
		if err := json.Unmarshal(content, &d); err != nil {
			return nil, err
		}
		text, err := d.Reconstruct(roots)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case filepath.Base(path) == "output":
		var out cargofmt.BuildScriptOutput
		if err := json.Unmarshal(content, &out); err != nil {
			return nil, err
		}
		text, err := out.Reconstruct(roots)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case filepath.Base(path) == "root-output":
		var ro cargofmt.RootOutput
		if err := json.Unmarshal(content, &ro); err != nil {
			return nil, err
		}
		text, err := ro.Reconstruct(roots)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	default:
		return content, nil
	}
}

// writeFingerprint writes the rechained fingerprint's hash, as decimal
// text, to <unit hash>.json in the unit's fingerprint directory; the
// fingerprint's full JSON form and a separate hash file are not written.
// For unit i in plan order it assigns mtime = epoch + i seconds so later units in
// topological order receive strictly newer mtimes than their
// dependencies.
func writeFingerprint(u hurry.UnitPlan, r fingerprint.Rechained, planIndex int) error {
	if err := os.MkdirAll(u.FingerprintDirPath, 0o755); err != nil {
		return err
	}
	path := fingerprintJSONPath(u)
	mtime := time.Unix(int64(planIndex), 0)
	if err := writeFileAtomic(path, []byte(fmt.Sprintf("%d", r.Hash)), false); err != nil {
		return err
	}
	return os.Chtimes(path, mtime, mtime)
}

// writeFileAtomic writes content to a temp path in the same directory
// then renames into place, so no reader ever observes a partial write.
func writeFileAtomic(path string, content []byte, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hurry-restore-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
