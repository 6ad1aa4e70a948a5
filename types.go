// Package hurry plans a build of a package-based native-code compiler
// ecosystem, restores previously cached compilation units into the local
// build directory, and after the compiler runs, harvests freshly built
// units for upload to a remote content-addressed store and unit-index
// service.
package hurry

import "fmt"

// UnitHash is the upstream build tool's opaque identity for one
// compilation unit. It is treated as an immutable string identifier;
// equality is string equality.
type UnitHash string

func (h UnitHash) String() string { return string(h) }

// Target distinguishes whether a unit runs on the host (build scripts,
// proc-macros) or is cross-compiled for the requested target triple. The
// distinction governs which profile directory a unit's paths are resolved
// against (spec §4.1). It does not select the libc version that gates a
// restore: every unit is filtered against the host's libc version.
type Target struct {
	// Triple is the target triple string, e.g. "x86_64-unknown-linux-gnu".
	// Empty means "implicit host" (Host is true).
	Triple string
	Host   bool
}

func (t Target) String() string {
	if t.Host {
		return "host"
	}
	return t.Triple
}

// Equal reports whether two targets name the same compilation target.
func (t Target) Equal(o Target) bool {
	if t.Host != o.Host {
		return false
	}
	return t.Host || t.Triple == o.Triple
}

// Kind enumerates the three unit kinds the planner can produce.
type Kind string

const (
	KindLibrary             Kind = "library"
	KindBuildScriptCompile  Kind = "build_script_compile"
	KindBuildScriptExecute  Kind = "build_script_execute"
)

func (k Kind) String() string { return string(k) }

// Profile is the build profile, e.g. "debug" or "release".
type Profile string

const (
	ProfileDebug   Profile = "debug"
	ProfileRelease Profile = "release"
)

// ErrUnitTypeMismatch is returned when a SavedUnit's variant does not match
// the UnitPlan.Kind it is being restored against.
type ErrUnitTypeMismatch struct {
	Hash UnitHash
	Want Kind
	Got  Kind
}

func (e *ErrUnitTypeMismatch) Error() string {
	return fmt.Sprintf("unit %s: expected kind %s, saved unit is kind %s", e.Hash, e.Want, e.Got)
}
