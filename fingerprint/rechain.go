package fingerprint

import hpath "github.com/attunehq/hurry/path"

// Rechained is the outcome of rechaining a single unit's fingerprint.
type Rechained struct {
	Fingerprint Fingerprint
	Hash        uint64
}

// Chain carries the dep_map forward across the sequential rechaining pass
// described by the core algorithm: for each unit, in dependency-plan
// order, the cached fingerprint's edges are remapped through the hashes
// already produced for earlier (dependency) units, indexed by OLD hash so
// that later units can look their dependencies up by the hash the cached
// fingerprint itself recorded.
type Chain struct {
	byOldHash map[uint64]Rechained
}

// NewChain starts an empty rechaining pass.
func NewChain() *Chain {
	return &Chain{byOldHash: make(map[uint64]Rechained)}
}

// Rechain rewrites cached's self path to newSelfPath and remaps its
// dependency edges through hashes recorded earlier in this Chain. Returns
// ok=false if any dependency edge names an old hash this Chain has not
// seen yet — the caller treats the unit as a cache miss and proceeds with
// the rest of the plan, per spec.
func (c *Chain) Rechain(cached Fingerprint, newSelfPath hpath.QualifiedPath) (Rechained, bool) {
	oldHash := cached.Hash()

	depHashes := make(map[uint64]uint64, len(cached.Edges))
	for _, e := range cached.Edges {
		dep, ok := c.byOldHash[e.DepHash]
		if !ok {
			return Rechained{}, false
		}
		depHashes[e.DepHash] = dep.Hash
	}

	rewritten, ok := cached.Rewrite(newSelfPath, depHashes)
	if !ok {
		return Rechained{}, false
	}

	result := Rechained{Fingerprint: rewritten, Hash: rewritten.Hash()}
	c.byOldHash[oldHash] = result
	return result, true
}
