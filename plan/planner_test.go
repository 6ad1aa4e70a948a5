package plan_test

import (
	"testing"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/plan"
)

func testWorkspace() *cargo.Workspace {
	return &cargo.Workspace{
		Root:         "/ws",
		BuildDir:     "/ws/target",
		Rustc:        cargo.RustcMetadata{HostTriple: "x86_64-unknown-linux-gnu"},
		Profile:      hurry.ProfileDebug,
		RegistryRoot: "/home/user/.cargo/registry/src",
	}
}

func TestPlanClassifiesLibraryUnit(t *testing.T) {
	ws := testWorkspace()
	raw := &cargo.BuildPlan{Invocations: []cargo.Invocation{
		{
			PackageName: "serde",
			Program:     "/usr/bin/rustc",
			Cwd:         "/home/user/.cargo/registry/src/serde-1.0.0",
			Outputs:     []string{"/ws/target/debug/deps/libserde-0123456789abcdef.rlib"},
		},
	}}

	units, err := plan.Plan(ws, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].Kind != hurry.KindLibrary {
		t.Fatalf("expected Library kind, got %v", units[0].Kind)
	}
	if units[0].Hash != "0123456789abcdef" {
		t.Fatalf("unexpected hash %v", units[0].Hash)
	}
}

func TestPlanClassifiesBuildScriptCompile(t *testing.T) {
	ws := testWorkspace()
	raw := &cargo.BuildPlan{Invocations: []cargo.Invocation{
		{
			PackageName: "openssl-sys",
			Program:     "/usr/bin/rustc",
			TargetKind:  []string{"custom-build"},
			Outputs:     []string{"/ws/target/debug/build/openssl-sys-fedcba9876543210/build-script-build"},
		},
	}}

	units, err := plan.Plan(ws, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Kind != hurry.KindBuildScriptCompile {
		t.Fatalf("expected 1 BuildScriptCompile unit, got %+v", units)
	}
}

func TestPlanClassifiesBuildScriptExecute(t *testing.T) {
	ws := testWorkspace()
	raw := &cargo.BuildPlan{Invocations: []cargo.Invocation{
		{
			Program: "/ws/target/debug/build/openssl-sys-fedcba9876543210/build-script-build",
			Env:     map[string]string{"OUT_DIR": "/ws/target/debug/build/openssl-sys-fedcba9876543210/out"},
		},
	}}

	units, err := plan.Plan(ws, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Kind != hurry.KindBuildScriptExecute {
		t.Fatalf("expected 1 BuildScriptExecute unit, got %+v", units)
	}
	if units[0].Hash != "fedcba9876543210" {
		t.Fatalf("unexpected hash %v", units[0].Hash)
	}
}

func TestPlanResolvesDepUnitHashes(t *testing.T) {
	ws := testWorkspace()
	raw := &cargo.BuildPlan{Invocations: []cargo.Invocation{
		{
			PackageName: "libc",
			Program:     "/usr/bin/rustc",
			Cwd:         "/home/user/.cargo/registry/src/libc-0.2.0",
			Outputs:     []string{"/ws/target/debug/deps/liblibc-1111111111111111.rlib"},
		},
		{
			PackageName: "serde",
			Program:     "/usr/bin/rustc",
			Cwd:         "/home/user/.cargo/registry/src/serde-1.0.0",
			Outputs:     []string{"/ws/target/debug/deps/libserde-0123456789abcdef.rlib"},
			Deps:        []int{0},
		},
	}}

	units, err := plan.Plan(ws, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if len(units[0].DepUnitHashes) != 0 {
		t.Fatalf("expected no deps on libc unit, got %v", units[0].DepUnitHashes)
	}
	if len(units[1].DepUnitHashes) != 1 || units[1].DepUnitHashes[0] != "1111111111111111" {
		t.Fatalf("expected serde unit to depend on libc's hash, got %v", units[1].DepUnitHashes)
	}
}

func TestPlanSkipsUnrecognizedInvocations(t *testing.T) {
	ws := testWorkspace()
	raw := &cargo.BuildPlan{Invocations: []cargo.Invocation{
		{Program: "/usr/bin/cc", Outputs: []string{"/ws/target/debug/deps/libfoo.so"}},
	}}

	units, err := plan.Plan(ws, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Fatalf("expected linker invocation to be skipped, got %+v", units)
	}
}
