// Package plan implements the Unit Planner: it walks a raw cargo build
// plan and produces typed UnitPlan records, one per compilation unit, in
// the same topological order the build plan itself is in. Grounded on
// cargo/build_plan.rs in the original implementation.
package plan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	hpath "github.com/attunehq/hurry/path"
)

// unitHashPattern matches the upstream compiler's filename stem
// convention for an output artifact: "<crate-name>-<unit-hash>[.ext]",
// where the unit hash is a fixed-width hex suffix.
var unitHashPattern = regexp.MustCompile(`^(.+)-([0-9a-f]{16})(?:\.[^.]+)?$`)

// Plan walks ws's build plan invocations and classifies each one into a
// typed UnitPlan, per spec §4.6: a rustc invocation building a
// custom-build target is BuildScriptCompile, any other rustc invocation
// is Library, and an invocation whose program lives under the build
// directory is BuildScriptExecute.
func Plan(ws *cargo.Workspace, raw *cargo.BuildPlan) ([]hurry.UnitPlan, error) {
	units := make([]hurry.UnitPlan, 0, len(raw.Invocations))
	unitInvIndex := make([]int, 0, len(raw.Invocations))
	invUnit := make(map[int]hurry.UnitHash, len(raw.Invocations))

	for i, inv := range raw.Invocations {
		unit, ok, err := classify(ws, inv)
		if err != nil {
			return nil, &hurry.MalformedCacheInputError{Err: err}
		}
		if !ok {
			continue
		}
		invUnit[i] = unit.Hash
		units = append(units, unit)
		unitInvIndex = append(unitInvIndex, i)
	}

	for j, i := range unitInvIndex {
		for _, depIdx := range raw.Invocations[i].Deps {
			if depHash, ok := invUnit[depIdx]; ok {
				units[j].DepUnitHashes = append(units[j].DepUnitHashes, depHash)
			}
		}
	}

	return units, nil
}

func classify(ws *cargo.Workspace, inv cargo.Invocation) (hurry.UnitPlan, bool, error) {
	switch {
	case isRustc(inv.Program) && isCustomBuild(inv):
		return buildScriptCompileUnit(ws, inv)
	case isRustc(inv.Program):
		return libraryUnit(ws, inv)
	case isUnderBuildDir(ws, inv.Program):
		return buildScriptExecuteUnit(ws, inv)
	default:
		// Not a unit this cache engine tracks (e.g. linker invocations,
		// doc builds); the planner only emits compile/execute units.
		return hurry.UnitPlan{}, false, nil
	}
}

func isRustc(program string) bool {
	base := filepath.Base(program)
	return base == "rustc" || base == "rustc.exe"
}

func isCustomBuild(inv cargo.Invocation) bool {
	for _, k := range inv.TargetKind {
		if k == "custom-build" {
			return true
		}
	}
	return inv.CompileMode == "build-script-build" || inv.CompileMode == "run-custom-build"
}

func isUnderBuildDir(ws *cargo.Workspace, program string) bool {
	rel, err := filepath.Rel(ws.BuildDir, program)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

func libraryUnit(ws *cargo.Workspace, inv cargo.Invocation) (hurry.UnitPlan, bool, error) {
	hash, crate, err := unitHashFromOutputs(inv.Outputs)
	if err != nil {
		return hurry.UnitPlan{}, false, err
	}
	target := ws.Target(false)
	srcPath, err := hpath.Classify(inv.Cwd, ws.Roots(target))
	if err != nil {
		return hurry.UnitPlan{}, false, err
	}
	return hurry.UnitPlan{
		Hash:                hash,
		Kind:                hurry.KindLibrary,
		PackageName:         firstNonEmpty(inv.PackageName, crate),
		Target:              target,
		SrcPath:             &srcPath,
		ExpectedOutputPaths: inv.Outputs,
		FingerprintDirPath:  fingerprintDir(ws, target, hash, crate),
	}, true, nil
}

func buildScriptCompileUnit(ws *cargo.Workspace, inv cargo.Invocation) (hurry.UnitPlan, bool, error) {
	hash, crate, err := unitHashFromOutputs(inv.Outputs)
	if err != nil && len(inv.Outputs) > 0 {
		// The build-script binary is usually named plainly
		// (build/<crate>-<hash>/build-script-build), with the unit hash
		// carried by its parent directory instead.
		hash, crate, err = unitHashFromName(filepath.Base(filepath.Dir(inv.Outputs[0])))
	}
	if err != nil {
		return hurry.UnitPlan{}, false, err
	}
	target := ws.Target(true)
	return hurry.UnitPlan{
		Hash:                hash,
		Kind:                hurry.KindBuildScriptCompile,
		PackageName:         firstNonEmpty(inv.PackageName, crate),
		Target:              target,
		ExpectedOutputPaths: inv.Outputs,
		FingerprintDirPath:  fingerprintDir(ws, target, hash, crate),
	}, true, nil
}

func buildScriptExecuteUnit(ws *cargo.Workspace, inv cargo.Invocation) (hurry.UnitPlan, bool, error) {
	outDir := inv.Env["OUT_DIR"]
	if outDir == "" {
		return hurry.UnitPlan{}, false, fmt.Errorf("build script execute invocation missing OUT_DIR")
	}
	// The compiled build-script binary itself follows the unit hash
	// convention: build/<crate>-<hash>/build-script-build.
	dir := filepath.Base(filepath.Dir(inv.Program))
	hash, crate, err := unitHashFromName(dir)
	if err != nil {
		return hurry.UnitPlan{}, false, err
	}
	target := ws.Target(true)
	return hurry.UnitPlan{
		Hash:                hash,
		Kind:                hurry.KindBuildScriptExecute,
		PackageName:         crate,
		Target:              target,
		ExpectedOutputPaths: []string{outDir},
		FingerprintDirPath:  fingerprintDir(ws, target, hash, crate),
	}, true, nil
}

// unitHashFromOutputs extracts the unit hash from the filename stem
// convention "<crate>-<unit_hash>" shared across a unit's output files,
// using the first output that matches.
func unitHashFromOutputs(outputs []string) (hurry.UnitHash, string, error) {
	for _, out := range outputs {
		if hash, crate, err := unitHashFromName(filepath.Base(out)); err == nil {
			return hash, crate, nil
		}
	}
	return "", "", fmt.Errorf("no output matched the <crate>-<hash> naming convention: %v", outputs)
}

func unitHashFromName(name string) (hurry.UnitHash, string, error) {
	m := unitHashPattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("name %q does not match <crate>-<hash> convention", name)
	}
	return hurry.UnitHash(m[2]), m[1], nil
}

func fingerprintDir(ws *cargo.Workspace, target hurry.Target, hash hurry.UnitHash, crate string) string {
	dir := ws.HostProfileDir()
	if !target.Host {
		dir = ws.TargetProfileDir()
	}
	return filepath.Join(dir, ".fingerprint", fmt.Sprintf("%s-%s", crate, hash))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
