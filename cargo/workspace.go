// Package cargo loads the workspace the upstream build tool is about to
// build: workspace root, build directory, host/target triples, the
// package-registry root, and the set of cacheable third-party
// dependencies. Grounded on cargo/workspace.rs in the original
// implementation (Workspace::from_argv, the default-registry dependency
// filter) and cargo/path.rs's use of ws.target_arch/target_profile_dir/
// host_profile_dir/cargo_home.
package cargo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/attunehq/hurry"
	hpath "github.com/attunehq/hurry/path"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml"
)

// Dependency is a third-party, default-registry package this invocation
// may cache, identified well enough to key a cache entry: name, version,
// checksum, and the target it was resolved for.
type Dependency struct {
	Name     string
	Version  string
	Checksum string
	Target   string
}

// Key derives the dependency's cache key, mirroring Dependency::key in
// the original: name, version, checksum, and target uniquely identify an
// instance of a third-party crate for caching purposes.
func (d Dependency) Key() hurry.ObjectKey {
	return hurry.HashObject([]byte(fmt.Sprintf("%s@%s#%s#%s", d.Name, d.Version, d.Checksum, d.Target)))
}

// RustcMetadata is parsed rustc toolchain info relevant to cache
// portability: the host triple and libc version. Only a glibc version
// string (from `ldd --version`) is captured; a musl, Windows or macOS host
// reports an empty LibcVersion and is never subject to libc filtering.
type RustcMetadata struct {
	HostTriple  string
	LibcVersion string
}

// Workspace is a loaded Cargo workspace: enough state to classify paths,
// invoke the upstream build tool, and key cacheable dependencies.
type Workspace struct {
	Root     string
	BuildDir string

	Rustc        RustcMetadata
	TargetTriple string // empty means "implicit host"
	Profile      hurry.Profile

	// RegistryRoot is the package-registry root (Cargo's CARGO_HOME/registry
	// equivalent) that RegistryRelative paths are rebased against.
	RegistryRoot string

	Dependencies map[hurry.ObjectKey]Dependency
}

// Target returns the hurry.Target this workspace resolves unit U's
// profile directory against, given whether U runs on the host.
func (w *Workspace) Target(host bool) hurry.Target {
	if host {
		return hurry.Target{Host: true}
	}
	return hurry.Target{Triple: w.effectiveTarget()}
}

func (w *Workspace) effectiveTarget() string {
	if w.TargetTriple != "" {
		return w.TargetTriple
	}
	return w.Rustc.HostTriple
}

// HostProfileDir is where host-run units (build scripts, proc macros)
// place their artifacts: always target/<profile>, independent of any
// --target flag.
func (w *Workspace) HostProfileDir() string {
	return filepath.Join(w.BuildDir, string(w.Profile))
}

// TargetProfileDir is where target-compiled units place their artifacts.
// Equal to HostProfileDir unless a target triple other than the host's
// was requested, in which case it is target/<triple>/<profile>.
func (w *Workspace) TargetProfileDir() string {
	if w.TargetTriple == "" || w.TargetTriple == w.Rustc.HostTriple {
		return w.HostProfileDir()
	}
	return filepath.Join(w.BuildDir, w.TargetTriple, string(w.Profile))
}

// Roots resolves the path.Roots a unit's embedded paths should be
// classified or reconstructed against, per cargo/path.rs's
// unit_profile_dir: RustcTarget::Specified matching ws.target_arch uses
// TargetProfileDir, RustcTarget::ImplicitHost uses HostProfileDir.
func (w *Workspace) Roots(t hurry.Target) hpath.Roots {
	dir := w.TargetProfileDir()
	if t.Host {
		dir = w.HostProfileDir()
	}
	return hpath.Roots{ProfileDir: dir, RegistryRoot: w.RegistryRoot}
}

// cargoMetadata is the subset of `cargo metadata --format-version=1`
// output this loader needs.
type cargoMetadata struct {
	WorkspaceRoot   string `json:"workspace_root"`
	TargetDirectory string `json:"target_directory"`
}

// lockfile is the subset of Cargo.lock this loader reads.
type lockfile struct {
	Package []lockPackage `toml:"package"`
}

type lockPackage struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Source   string `toml:"source"`
	Checksum string `toml:"checksum"`
}

const defaultRegistrySource = "registry+https://github.com/rust-lang/crates.io-index"

// Load resolves the workspace named by argv (the build-tool CLI argument
// vector this invocation wraps), reading --manifest-path if present and
// falling back to the current directory. It reads `cargo metadata` for
// the workspace root and target directory, parses Cargo.lock for
// cacheable dependencies, and queries rustc for host triple and libc
// version.
func Load(ctx context.Context, argv []string, targetTriple string, profile hurry.Profile) (*Workspace, error) {
	manifestPath := readArgValue(argv, "--manifest-path")

	meta, err := readCargoMetadata(ctx, manifestPath)
	if err != nil {
		return nil, &hurry.ConfigurationError{Err: fmt.Errorf("read cargo metadata: %w", err)}
	}

	rustc, err := readRustcMetadata(ctx)
	if err != nil {
		return nil, &hurry.ConfigurationError{Err: fmt.Errorf("read rustc metadata: %w", err)}
	}

	deps, err := readDependencies(filepath.Join(meta.WorkspaceRoot, "Cargo.lock"), rustc.HostTriple)
	if err != nil {
		return nil, &hurry.ConfigurationError{Err: fmt.Errorf("read Cargo.lock: %w", err)}
	}

	return &Workspace{
		Root:         meta.WorkspaceRoot,
		BuildDir:     meta.TargetDirectory,
		Rustc:        rustc,
		TargetTriple: targetTriple,
		Profile:      profile,
		RegistryRoot: registryRoot(),
		Dependencies: deps,
	}, nil
}

// readDependencies filters Cargo.lock to third-party, default-registry
// packages: first-party workspace members have no source/checksum and
// are excluded, matching the original's "only cache third party,
// default-registry" rule (first-party caching and non-default registries
// are explicitly out of scope).
func readDependencies(path, target string) (map[hurry.ObjectKey]Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock lockfile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse Cargo.lock: %w", err)
	}

	deps := make(map[hurry.ObjectKey]Dependency)
	for _, pkg := range lock.Package {
		if pkg.Source != defaultRegistrySource || pkg.Checksum == "" {
			continue
		}
		dep := Dependency{Name: pkg.Name, Version: pkg.Version, Checksum: pkg.Checksum, Target: target}
		deps[dep.Key()] = dep
	}
	return deps, nil
}

func readCargoMetadata(ctx context.Context, manifestPath string) (cargoMetadata, error) {
	args := []string{"metadata", "--format-version=1", "--no-deps"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}
	out, err := exec.CommandContext(ctx, "cargo", args...).Output()
	if err != nil {
		return cargoMetadata{}, err
	}
	var meta cargoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return cargoMetadata{}, err
	}
	return meta, nil
}

func readRustcMetadata(ctx context.Context) (RustcMetadata, error) {
	out, err := exec.CommandContext(ctx, "rustc", "-vV").Output()
	if err != nil {
		return RustcMetadata{}, err
	}
	meta := RustcMetadata{}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "host":
			meta.HostTriple = value
		}
	}
	meta.LibcVersion = readLibcVersion()
	return meta, nil
}

// readLibcVersion shells out to `ldd --version` on glibc hosts; any
// failure (musl, non-Linux) leaves LibcVersion empty, which the unit
// index client then omits from its restore request, so no libc filtering
// applies.
func readLibcVersion() string {
	out, err := exec.Command("ldd", "--version").Output()
	if err != nil {
		return ""
	}
	lines := strings.SplitN(string(out), "\n", 2)
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func registryRoot() string {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return filepath.Join(home, "registry", "src")
	}
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".cargo", "registry", "src")
	}
	return ""
}

func readArgValue(argv []string, flag string) string {
	for i, a := range argv {
		if a == flag && i+1 < len(argv) {
			return argv[i+1]
		}
		if v, ok := strings.CutPrefix(a, flag+"="); ok {
			return v
		}
	}
	return ""
}
