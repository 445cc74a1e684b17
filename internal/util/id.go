package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex id carrying an entity-kind prefix, e.g.
// "smp_3f2a..." for samples or "sg_..." for sequencing groups. The prefix
// makes ids self-describing in logs and audit rows; an empty prefix yields
// bare hex.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
