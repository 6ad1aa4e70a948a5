package cargo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Invocation is one step of the raw build plan: one compiler or
// build-script-binary execution.
type Invocation struct {
	PackageName string            `json:"package_name"`
	TargetKind  []string          `json:"target_kind"`
	Kind        *string           `json:"kind"`
	CompileMode string            `json:"compile_mode"`
	Program     string            `json:"program"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	Cwd         string            `json:"cwd"`
	Outputs     []string          `json:"outputs"`
	Links       map[string]string `json:"links"`

	// Deps are indices into the build plan's own Invocations slice,
	// naming this invocation's dependency edges in the upstream tool's
	// own structured build plan output.
	Deps []int `json:"deps"`
}

// BuildPlan is the raw structured build plan as emitted by the upstream
// build tool's "print build plan" flag, already normalized to host paths
// if it was produced inside a sandboxed container.
type BuildPlan struct {
	Invocations []Invocation `json:"invocations"`
}

// containerBuildDirEnv, when set, names the path the build directory is
// mounted at inside a sandboxed build container (e.g. "/target" for
// `cross`). Paths reported by the build plan under this prefix are
// rewritten to the real host build directory before the plan is handed
// to the planner. Supplements the teacher's container-path handling
// (docker_client_linux.go) with the original's cross/workspace.rs
// container-to-host path conversion, generalized from a hardcoded
// "/target" to an operator-supplied env var since hurry is not coupled
// to any one specific sandboxing tool.
const containerBuildDirEnv = "HURRY_CONTAINER_BUILD_DIR"

// BuildPlan invokes the upstream build tool with its unstable
// "dump build plan as structured JSON" flag and parses the result,
// rewriting any container-mounted paths back to host paths first.
//
// Emitting the build plan also writes to the build directory; to avoid
// clobbering a valid incremental state, the existing build directory is
// renamed aside before the invocation and restored afterward.
func (w *Workspace) BuildPlan(ctx context.Context, extraArgs []string) (*BuildPlan, error) {
	restore, err := w.renameBuildDirAside()
	if err != nil {
		return nil, fmt.Errorf("rename build dir aside: %w", err)
	}
	defer restore()

	args := append([]string{"build", "-Z", "unstable-options", "--build-plan"}, extraArgs...)
	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = w.Root
	cmd.Env = append(os.Environ(), "RUSTC_BOOTSTRAP=1")

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run cargo build --build-plan: %w", err)
	}

	var plan BuildPlan
	if err := json.Unmarshal(out, &plan); err != nil {
		return nil, fmt.Errorf("parse build plan: %w", err)
	}

	if prefix := os.Getenv(containerBuildDirEnv); prefix != "" {
		w.convertContainerPaths(&plan, prefix)
	}

	return &plan, nil
}

// renameBuildDirAside moves w.BuildDir to a sibling temp name if it
// exists, returning a restore func that moves it back. If w.BuildDir did
// not exist, restore is a no-op (the empty directory the build-plan
// invocation created is left in place, matching cargo's own behavior).
func (w *Workspace) renameBuildDirAside() (restore func(), err error) {
	if _, err := os.Stat(w.BuildDir); os.IsNotExist(err) {
		return func() {}, nil
	} else if err != nil {
		return nil, err
	}

	temp := filepath.Join(w.Root, fmt.Sprintf("target.backup.%s", uuid.NewString()))
	if err := os.Rename(w.BuildDir, temp); err != nil {
		return nil, err
	}
	return func() {
		_ = os.RemoveAll(w.BuildDir)
		_ = os.Rename(temp, w.BuildDir)
	}, nil
}

func (w *Workspace) convertContainerPaths(plan *BuildPlan, containerPrefix string) {
	convert := func(p string) string {
		if rest, ok := strings.CutPrefix(p, containerPrefix); ok {
			return w.BuildDir + rest
		}
		return p
	}

	for i := range plan.Invocations {
		inv := &plan.Invocations[i]
		for j, out := range inv.Outputs {
			inv.Outputs[j] = convert(out)
		}
		links := make(map[string]string, len(inv.Links))
		for target, link := range inv.Links {
			links[convert(target)] = link
		}
		inv.Links = links
		inv.Program = convert(inv.Program)
		if outDir, ok := inv.Env["OUT_DIR"]; ok {
			inv.Env["OUT_DIR"] = convert(outDir)
		}
	}
}
