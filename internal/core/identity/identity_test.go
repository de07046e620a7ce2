package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes(t *testing.T) {
	h1 := HashBytes([]byte("hello world"))
	h2 := HashBytes([]byte("hello world"))
	h3 := HashBytes([]byte("hello worlds"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.True(t, ValidContentHash(h1))
}

func TestValidContentHash(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"real digest", HashBytes([]byte("x")), true},
		{"empty", "", false},
		{"too short", "abc123", false},
		{"uppercase", "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789", false},
		{"non-hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidContentHash(tt.in))
		})
	}
}

func TestDocumentIDDeterministic(t *testing.T) {
	hash := HashBytes([]byte("document bytes"))

	id1 := DocumentID("owner-a", hash)
	id2 := DocumentID("owner-a", hash)
	require.Equal(t, id1, id2)

	// Valid UUID so it can live in a uuid column.
	_, err := uuid.Parse(id1)
	require.NoError(t, err)
}

func TestDocumentIDOwnerScoped(t *testing.T) {
	hash := HashBytes([]byte("shared bytes"))

	// Same bytes, different owners: different identities. Ownership is
	// never shared through the ID.
	assert.NotEqual(t, DocumentID("owner-a", hash), DocumentID("owner-b", hash))

	// Same owner, different bytes: different identities.
	other := HashBytes([]byte("other bytes"))
	assert.NotEqual(t, DocumentID("owner-a", hash), DocumentID("owner-a", other))
}

func TestChunkIDDeterministic(t *testing.T) {
	docID := DocumentID("owner-a", HashBytes([]byte("doc")))

	id1 := ChunkID(docID, "token_window", "v1", 3)
	id2 := ChunkID(docID, "token_window", "v1", 3)
	assert.Equal(t, id1, id2)

	_, err := uuid.Parse(id1)
	require.NoError(t, err)
}

func TestChunkIDDistinguishesInputs(t *testing.T) {
	docID := DocumentID("owner-a", HashBytes([]byte("doc")))
	base := ChunkID(docID, "token_window", "v1", 0)

	assert.NotEqual(t, base, ChunkID(docID, "token_window", "v1", 1), "ordinal must change the ID")
	assert.NotEqual(t, base, ChunkID(docID, "token_window", "v2", 0), "chunker version must change the ID")
	assert.NotEqual(t, base, ChunkID(docID, "sentence", "v1", 0), "chunker name must change the ID")

	otherDoc := DocumentID("owner-b", HashBytes([]byte("doc")))
	assert.NotEqual(t, base, ChunkID(otherDoc, "token_window", "v1", 0), "document must change the ID")
}
