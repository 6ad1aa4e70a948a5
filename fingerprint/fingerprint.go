// Package fingerprint models the upstream compiler's dependency-fingerprint
// structure and the rechaining algorithm that lets artifacts restored from
// cache appear fresh on a new machine. Grounded on
// _examples/original_source/packages/hurry/src/cargo/cache.rs and
// cargo/cache/restore.rs.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"sort"

	hpath "github.com/attunehq/hurry/path"
	"lukechampine.com/blake3"
)

// DepEdge is one entry in a Fingerprint's dependency set: the dependency
// unit's name and the hash of its own fingerprint, as observed by this
// unit at the time it was compiled.
type DepEdge struct {
	DepUnitName string
	DepHash     uint64
}

// Fingerprint is the portable record of a unit's dependency set, as read
// from (or destined for) the compiler's on-disk fingerprint-json file.
type Fingerprint struct {
	UnitName string
	Kind     string
	SrcPath  hpath.QualifiedPath
	Edges    []DepEdge
}

// Hash computes the 64-bit fingerprint hash from the canonical
// serialization of the fingerprint: unit identity, source path, and edges
// sorted by dependency name so hash is independent of edge order.
func (f Fingerprint) Hash() uint64 {
	edges := append([]DepEdge(nil), f.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].DepUnitName < edges[j].DepUnitName })

	h := blake3.New(8, nil)
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", f.UnitName, f.Kind, f.SrcPath.Kind, f.SrcPath.Path)
	for _, e := range edges {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], e.DepHash)
		fmt.Fprintf(h, "%s\x00", e.DepUnitName)
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Rewrite returns a new Fingerprint with its self path replaced and each
// dependency edge's hash remapped through depHashes, keyed by the old
// (as-stored) dependency hash. If any edge's old hash is absent from
// depHashes, Rewrite returns a zero Fingerprint and false: the caller
// (Rechain) treats this as a reason to abort the whole unit, not silently
// keep the stale hash.
func (f Fingerprint) Rewrite(newSelfPath hpath.QualifiedPath, depHashes map[uint64]uint64) (Fingerprint, bool) {
	out := Fingerprint{
		UnitName: f.UnitName,
		Kind:     f.Kind,
		SrcPath:  newSelfPath,
		Edges:    make([]DepEdge, len(f.Edges)),
	}
	for i, e := range f.Edges {
		newHash, ok := depHashes[e.DepHash]
		if !ok {
			return Fingerprint{}, false
		}
		out.Edges[i] = DepEdge{DepUnitName: e.DepUnitName, DepHash: newHash}
	}
	return out, true
}
