package cargo_test

import (
	"testing"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
)

func newTestWorkspace() *cargo.Workspace {
	return &cargo.Workspace{
		Root:         "/home/user/project",
		BuildDir:     "/home/user/project/target",
		Rustc:        cargo.RustcMetadata{HostTriple: "x86_64-unknown-linux-gnu"},
		TargetTriple: "",
		Profile:      hurry.ProfileDebug,
		RegistryRoot: "/home/user/.cargo/registry/src",
	}
}

func TestHostProfileDirIsIndependentOfTarget(t *testing.T) {
	ws := newTestWorkspace()
	ws.TargetTriple = "aarch64-unknown-linux-gnu"

	if ws.HostProfileDir() != "/home/user/project/target/debug" {
		t.Fatalf("unexpected host profile dir %q", ws.HostProfileDir())
	}
}

func TestTargetProfileDirMatchesHostWhenNoCrossTarget(t *testing.T) {
	ws := newTestWorkspace()
	if ws.TargetProfileDir() != ws.HostProfileDir() {
		t.Fatal("expected target profile dir to equal host profile dir with no explicit --target")
	}
}

func TestTargetProfileDirDiffersWhenCrossCompiling(t *testing.T) {
	ws := newTestWorkspace()
	ws.TargetTriple = "aarch64-unknown-linux-gnu"

	want := "/home/user/project/target/aarch64-unknown-linux-gnu/debug"
	if ws.TargetProfileDir() != want {
		t.Fatalf("expected %q, got %q", want, ws.TargetProfileDir())
	}
}

func TestRootsSelectsProfileDirByHostFlag(t *testing.T) {
	ws := newTestWorkspace()
	ws.TargetTriple = "aarch64-unknown-linux-gnu"

	hostRoots := ws.Roots(hurry.Target{Host: true})
	if hostRoots.ProfileDir != ws.HostProfileDir() {
		t.Fatal("expected host target to resolve host profile dir")
	}

	targetRoots := ws.Roots(hurry.Target{Triple: ws.TargetTriple})
	if targetRoots.ProfileDir != ws.TargetProfileDir() {
		t.Fatal("expected cross target to resolve target profile dir")
	}
}

func TestDependencyKeyDeterministic(t *testing.T) {
	a := cargo.Dependency{Name: "serde", Version: "1.0.0", Checksum: "abc", Target: "x86_64-unknown-linux-gnu"}
	b := a
	if a.Key() != b.Key() {
		t.Fatal("expected identical dependencies to key identically")
	}

	c := a
	c.Version = "1.0.1"
	if a.Key() == c.Key() {
		t.Fatal("expected distinct versions to key distinctly")
	}
}
