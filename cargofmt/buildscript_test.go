package cargofmt

import (
	"encoding/json"
	"testing"

	hpath "github.com/attunehq/hurry/path"
)

func TestParseBuildScriptOutputRoundTrip(t *testing.T) {
	roots := hpath.Roots{}
	content := "cargo:rustc-link-lib=foo\ncargo:rerun-if-changed=build.rs\ncargo:rerun-if-env-changed=FOO"

	out, err := ParseBuildScriptOutput(content, roots)
	if err != nil {
		t.Fatal(err)
	}

	got, err := out.Reconstruct(roots)
	if err != nil {
		t.Fatal(err)
	}
	if got != content {
		t.Fatalf("Reconstruct = %q, want %q", got, content)
	}
}

func TestParseBuildScriptOutputClassifiesRerunIfChanged(t *testing.T) {
	roots := hpath.Roots{}
	out, err := ParseBuildScriptOutput("cargo:rerun-if-changed=build.rs", roots)
	if err != nil {
		t.Fatal(err)
	}

	if len(out.lines) != 1 || !out.lines[0].isPath {
		t.Fatalf("expected the rerun-if-changed directive to be classified as a path, got %+v", out.lines)
	}
	if out.lines[0].path.Path != "build.rs" {
		t.Fatalf("classified path = %q, want build.rs", out.lines[0].path.Path)
	}
}

func TestParseBuildScriptOutputOtherDirectivesPassThrough(t *testing.T) {
	roots := hpath.Roots{}
	line := "cargo:rustc-env=FOO=bar"
	out, err := ParseBuildScriptOutput(line, roots)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.lines) != 1 || out.lines[0].isPath {
		t.Fatalf("expected an opaque passthrough line, got %+v", out.lines)
	}
	if out.lines[0].opaque != line {
		t.Fatalf("opaque = %q, want %q", out.lines[0].opaque, line)
	}
}

func TestBuildScriptOutputJSONRoundTrip(t *testing.T) {
	roots := hpath.Roots{}
	content := "cargo:rerun-if-changed=build.rs\ncargo:rustc-link-lib=foo"

	out, err := ParseBuildScriptOutput(content, roots)
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}

	var decoded BuildScriptOutput
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatal(err)
	}

	got, err := decoded.Reconstruct(roots)
	if err != nil {
		t.Fatal(err)
	}
	if got != content {
		t.Fatalf("Reconstruct after JSON round-trip = %q, want %q", got, content)
	}
}

func TestParseRootOutputRoundTrip(t *testing.T) {
	roots := hpath.Roots{}
	content := "target/debug/build/foo-abc123/out\n"

	r, err := ParseRootOutput(content, roots)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Reconstruct(roots)
	if err != nil {
		t.Fatal(err)
	}
	if got != "target/debug/build/foo-abc123/out" {
		t.Fatalf("Reconstruct = %q, want %q", got, "target/debug/build/foo-abc123/out")
	}
}
