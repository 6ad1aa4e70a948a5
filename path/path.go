// Package path classifies filesystem paths captured by the upstream build
// tool into a portable representation and reconstructs them on another
// machine. See cargo/path.rs in the original implementation: a path
// embedded in compiler metadata (dep-info, build-script output,
// fingerprints) is classified once at save time against the roots known on
// the saving machine, and rebuilt at restore time against the roots known
// on the restoring machine.
package path

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Kind tags which portability class a QualifiedPath belongs to.
type Kind string

const (
	Rootless         Kind = "Rootless"
	TargetRelative   Kind = "TargetRelative"
	RegistryRelative Kind = "RegistryRelative"
	Absolute         Kind = "Absolute"
)

// QualifiedPath is a tagged union over the four portability classes a
// captured path can fall into. It serializes as {"t": <Kind>, "c": <rel>}
// to match the wire surface in spec §6.2.
type QualifiedPath struct {
	Kind Kind   `json:"t"`
	Path string `json:"c"`
}

// InvalidPathError is returned when a path cannot be represented portably,
// e.g. because it contains bytes that are not valid UTF-8.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path for portable encoding: %q", e.Path)
}

// Roots holds the two filesystem roots a path may be expressed relative to:
// the unit's profile directory (host or target, see cargo.Workspace.Roots) and the
// user's package-registry root (Cargo's CARGO_HOME/registry equivalent).
type Roots struct {
	ProfileDir   string
	RegistryRoot string
}

// Classify implements spec §4.1's classification rules: the first matching
// rule wins. Relative paths are classified by probing for the file's
// existence under each candidate root (this mirrors the original's
// behavior of actually checking fs::exists rather than doing pure string
// matching, since a relative path with no root context is ambiguous).
// Absolute paths are classified purely by prefix match, no existence check
// required.
func Classify(p string, roots Roots) (QualifiedPath, error) {
	if !utf8.ValidString(p) {
		return QualifiedPath{}, &InvalidPathError{Path: p}
	}

	if !filepath.IsAbs(p) {
		if roots.ProfileDir != "" && exists(filepath.Join(roots.ProfileDir, p)) {
			return QualifiedPath{Kind: TargetRelative, Path: filepath.ToSlash(p)}, nil
		}
		if roots.RegistryRoot != "" && exists(filepath.Join(roots.RegistryRoot, p)) {
			return QualifiedPath{Kind: RegistryRelative, Path: filepath.ToSlash(p)}, nil
		}
		return QualifiedPath{Kind: Rootless, Path: filepath.ToSlash(p)}, nil
	}

	if roots.ProfileDir != "" {
		if rel, ok := stripPrefix(p, roots.ProfileDir); ok {
			return QualifiedPath{Kind: TargetRelative, Path: rel}, nil
		}
	}
	if roots.RegistryRoot != "" {
		if rel, ok := stripPrefix(p, roots.RegistryRoot); ok {
			return QualifiedPath{Kind: RegistryRelative, Path: rel}, nil
		}
	}
	return QualifiedPath{Kind: Absolute, Path: filepath.ToSlash(p)}, nil
}

// Reconstruct is the inverse of Classify: it rebuilds a machine-local path
// from a portable QualifiedPath, given the roots known on this machine.
func Reconstruct(qp QualifiedPath, roots Roots) (string, error) {
	rel := filepath.FromSlash(qp.Path)
	switch qp.Kind {
	case Rootless:
		return rel, nil
	case TargetRelative:
		if roots.ProfileDir == "" {
			return "", errors.Errorf("cannot reconstruct target-relative path %q: no profile dir known", qp.Path)
		}
		return filepath.Join(roots.ProfileDir, rel), nil
	case RegistryRelative:
		if roots.RegistryRoot == "" {
			return "", errors.Errorf("cannot reconstruct registry-relative path %q: no registry root known", qp.Path)
		}
		return filepath.Join(roots.RegistryRoot, rel), nil
	case Absolute:
		return rel, nil
	default:
		return "", errors.Errorf("unknown qualified path kind %q", qp.Kind)
	}
}

func stripPrefix(p, root string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
