// Package identity computes content fingerprints and deterministic
// identifiers for documents and chunks. Every function here is pure: the
// same inputs always produce the same output, across processes and
// restarts. Deduplication and idempotent chunk insertion both depend on
// this.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Fixed UUIDv5 namespaces. Changing either would silently re-identify
// every document and chunk in the store, so they are frozen.
var (
	documentNamespace = uuid.MustParse("b1e7c7a2-4f6e-4d11-9c2a-8a4f0d9e6c31")
	chunkNamespace    = uuid.MustParse("5d3a9f84-0b2c-47e6-8f15-c7d21a6b9e02")
)

// HashBytes returns the lowercase sha256 hex digest of raw document bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ValidContentHash reports whether s looks like a sha256 hex digest.
func ValidContentHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// DocumentID derives a document's identifier from its owner and content
// hash. Same owner + same bytes always yields the same ID; a different
// owner with the same bytes yields a different ID, so ownership is never
// shared through identity.
func DocumentID(ownerID, contentHash string) string {
	name := ownerID + "\x00" + contentHash
	return uuid.NewSHA1(documentNamespace, []byte(name)).String()
}

// ChunkID derives a chunk's identifier from its document, chunker
// configuration and ordinal. Re-chunking the same document with the same
// chunker version reproduces identical IDs; bumping the chunker version
// changes every ID so stale rows can never collide with new ones.
func ChunkID(documentID, chunkerName, chunkerVersion string, ordinal int) string {
	name := fmt.Sprintf("%s\x00%s\x00%s\x00%d", documentID, chunkerName, chunkerVersion, ordinal)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
