package hurry

import (
	"sync"

	"github.com/attunehq/hurry/fingerprint"
	hpath "github.com/attunehq/hurry/path"
)

// SavedFile is a single restored/saved output file: its portable path, the
// CAS key of its content, and whether the compiler expects it executable.
type SavedFile struct {
	Path       hpath.QualifiedPath `json:"path"`
	Key        ObjectKey           `json:"key"`
	Executable bool                `json:"executable"`
}

// SavedUnit is the tagged union persisted to (and restored from) the unit
// index, one variant per Kind. Exactly one of Library, BuildScriptCompile,
// or BuildScriptExecute is populated, selected by Kind.
type SavedUnit struct {
	Kind Kind `json:"kind"`

	Library            *SavedLibrary            `json:"library,omitempty"`
	BuildScriptCompile *SavedBuildScriptCompile `json:"build_script_compile,omitempty"`
	BuildScriptExecute *SavedBuildScriptExecute `json:"build_script_execute,omitempty"`
}

// SavedLibrary is the Library unit variant: compiled crate outputs plus
// the dep-info and fingerprint describing how they were produced.
type SavedLibrary struct {
	Outputs          []SavedFile            `json:"outputs"`
	DepInfo          ObjectKey              `json:"dep_info"`
	Fingerprint      fingerprint.Fingerprint `json:"fingerprint"`
	EncodedDepInfo   ObjectKey              `json:"encoded_dep_info"`
}

// SavedBuildScriptCompile is the BuildScriptCompile unit variant: the
// compiled build-script binary plus its dep-info and fingerprint.
type SavedBuildScriptCompile struct {
	Program        ObjectKey              `json:"program"`
	DepInfo        ObjectKey              `json:"dep_info"`
	Fingerprint    fingerprint.Fingerprint `json:"fingerprint"`
	EncodedDepInfo ObjectKey              `json:"encoded_dep_info"`
}

// SavedBuildScriptExecute is the BuildScriptExecute unit variant: the
// captured OUT_DIR contents plus the build script's stdout and stderr.
type SavedBuildScriptExecute struct {
	OutDirFiles []SavedFile            `json:"out_dir_files"`
	Stdout      ObjectKey              `json:"stdout"`
	Stderr      ObjectKey              `json:"stderr"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// UnitPlan is the per-unit record produced by the planner and consumed by
// both the restore and save engines for a single invocation.
type UnitPlan struct {
	Hash                UnitHash             `json:"unit_hash"`
	Kind                Kind                 `json:"kind"`
	PackageName         string               `json:"package_name"`
	Target              Target               `json:"target_arch"`
	SrcPath             *hpath.QualifiedPath `json:"src_path,omitempty"`
	ExpectedOutputPaths []string             `json:"expected_output_paths"`
	FingerprintDirPath  string               `json:"fingerprint_dir_path"`

	// DepUnitHashes are the hashes of units this one depends on, in the
	// build plan's own invocation order, resolved from the raw plan's
	// per-invocation "deps" index list. Consumed by the Save Engine to
	// assemble a fresh unit's Fingerprint.Edges.
	DepUnitHashes []UnitHash `json:"dep_unit_hashes,omitempty"`
}

// Restored tracks which units and which CAS objects have already been
// materialized during a restore, so the Save Engine can elide re-uploads.
// MarkUnit and MarkFile are safe for concurrent use by restore workers;
// the Has methods and the maps are read once restore has finished.
type Restored struct {
	Units map[UnitHash]struct{}
	Files map[ObjectKey]struct{}

	mu sync.Mutex
}

// NewRestored returns an empty Restored set.
func NewRestored() *Restored {
	return &Restored{
		Units: make(map[UnitHash]struct{}),
		Files: make(map[ObjectKey]struct{}),
	}
}

func (r *Restored) MarkUnit(h UnitHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Units[h] = struct{}{}
}

func (r *Restored) MarkFile(k ObjectKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Files[k] = struct{}{}
}

func (r *Restored) HasUnit(h UnitHash) bool { _, ok := r.Units[h]; return ok }
func (r *Restored) HasFile(k ObjectKey) bool { _, ok := r.Files[k]; return ok }
