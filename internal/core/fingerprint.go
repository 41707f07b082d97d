package core

import "github.com/cespare/xxhash/v2"

// Fingerprint hashes a title with xxhash64. The same title always produces
// the same fingerprint, which is what makes cross-run duplicate suppression
// work.
func Fingerprint(title string) uint64 {
	return xxhash.Sum64String(title)
}
