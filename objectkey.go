package hurry

import "lukechampine.com/blake3"

// ObjectKey is the 32-byte BLAKE3 content hash of a blob, encoded as 64
// lowercase hex characters per spec §3/§6.1. Two objects with equal
// ObjectKey are interchangeable bytes; CAS writes are idempotent under
// this invariant.
type ObjectKey string

// HashObject computes the ObjectKey of a blob's content. This is the only
// place the cache engine hashes bytes for content addressing; the save
// engine and cargo.Dependency.Key both call through here so the hash
// function stays in one place.
func HashObject(content []byte) ObjectKey {
	sum := blake3.Sum256(content)
	return ObjectKey(encodeHex(sum[:]))
}

const hexDigits = "0123456789abcdef"

func encodeHex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
