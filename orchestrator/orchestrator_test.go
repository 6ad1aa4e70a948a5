package orchestrator

import (
	"sort"
	"testing"

	"github.com/attunehq/hurry"
)

func TestUnitHashesCollectsSetKeys(t *testing.T) {
	restored := hurry.NewRestored()
	restored.MarkUnit("aaaa")
	restored.MarkUnit("bbbb")

	got := unitHashes(restored.Units)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []hurry.UnitHash{"aaaa", "bbbb"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unitHashes() = %v, want %v", got, want)
	}
}

func TestObjectKeysCollectsSetKeys(t *testing.T) {
	restored := hurry.NewRestored()
	restored.MarkFile("key-a")

	got := objectKeys(restored.Files)
	if len(got) != 1 || got[0] != "key-a" {
		t.Fatalf("objectKeys() = %v, want [key-a]", got)
	}
}

func TestNewAssignsFreshInvocationID(t *testing.T) {
	a := New(nil, nil)
	b := New(nil, nil)
	if a.InvocationID == "" || b.InvocationID == "" {
		t.Fatal("expected non-empty invocation ids")
	}
	if a.InvocationID == b.InvocationID {
		t.Fatal("expected distinct invocation ids across Orchestrators")
	}
	if a.State != StateLoading {
		t.Fatalf("expected initial state %q, got %q", StateLoading, a.State)
	}
}
