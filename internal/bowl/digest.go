package bowl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot separates snapshot digests from any other hash in the system.
// The version suffix allows the algorithm to change later.
const DomainSnapshot = "bowltrack/snapshot/v1"

// Digest fingerprints snap as SHA256(domain + 0x00 + canonical JSON).
// Strings are hashed as stored, so byte-distinct codes never collide.
//
// lastSync is excluded: it is stamped by the remote on every write and would
// make identical collections hash differently.
func Digest(snap Snapshot) (string, error) {
	snap = snap.Clone()
	snap.LastSync = nil

	canonical, err := MarshalExact(snap)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
