package unitindex_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/unitindex"
)

func TestSaveThenRestore(t *testing.T) {
	saved := map[hurry.UnitHash]hurry.SavedUnit{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cache/unit/save":
			var records []unitindex.SaveRecord
			if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
				t.Fatal(err)
			}
			for _, rec := range records {
				saved[rec.UnitHash] = rec.SavedUnit
			}
			w.WriteHeader(http.StatusOK)
		case "/cache/unit/restore":
			var req struct {
				UnitHashes []hurry.UnitHash `json:"unit_hashes"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatal(err)
			}
			out := map[hurry.UnitHash]hurry.SavedUnit{}
			for _, h := range req.UnitHashes {
				if su, ok := saved[h]; ok {
					out[h] = su
				}
			}
			json.NewEncoder(w).Encode(out)
		}
	}))
	defer srv.Close()

	client := unitindex.New(srv.URL, nil)
	ctx := context.Background()

	unit := hurry.SavedUnit{Kind: hurry.KindLibrary, Library: &hurry.SavedLibrary{}}
	if err := client.SaveUnits(ctx, []unitindex.SaveRecord{{UnitHash: "h1", SavedUnit: unit, ResolvedTarget: "x86_64-unknown-linux-gnu"}}); err != nil {
		t.Fatal(err)
	}

	result, err := client.RestoreUnits(ctx, []hurry.UnitHash{"h1", "h2"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result["h1"]; !ok {
		t.Fatal("expected h1 to be present")
	}
	if _, ok := result["h2"]; ok {
		t.Fatal("expected h2 to be absent")
	}
}
