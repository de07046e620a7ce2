package pipeline

import "strings"

// Chunker configuration identity. Chunk IDs are derived from these, so any
// change to the chunking algorithm must bump ChunkerVersion: the same
// ordinal under a new version then gets a new ID and can never collide
// with rows produced by the old algorithm.
const (
	ChunkerName    = "token_window"
	ChunkerVersion = "v1"
)

// chunkText is one chunk of parsed text before persistence.
//
// Ordinal:    stable, zero-based position of the chunk inside the document.
// Text:       chunk content (built from one or more fragments).
// TokenCount: approximate token count (used for batching and overlap math).
type chunkText struct {
	Ordinal    int
	Text       string
	TokenCount int
}

// Chunker groups a document's text fragments into token-bounded chunks
// with optional overlap. Splitting is fully deterministic: the same text
// and configuration always produce the same chunk sequence.
type Chunker struct {
	TargetTokens  int
	OverlapTokens int
}

func NewChunker(targetTokens, overlapTokens int) Chunker {
	if targetTokens <= 0 {
		targetTokens = 500
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return Chunker{TargetTokens: targetTokens, OverlapTokens: overlapTokens}
}

// Split breaks parsed text into chunks. Fragments are the non-empty lines
// of the text; consecutive fragments accumulate until the target token
// count is reached, then a chunk is emitted and a token tail is kept as
// the seed of the next chunk.
func (c Chunker) Split(text string) []chunkText {
	var (
		out    []chunkText
		buf    []string
		tokSum int
		pos    int
	)

	flush := func() {
		if tokSum == 0 {
			return
		}
		out = append(out, chunkText{
			Ordinal:    pos,
			Text:       strings.Join(buf, "\n"),
			TokenCount: tokSum,
		})
		pos++

		// Keep a tail whose token sum is roughly OverlapTokens as the seed
		// of the next chunk.
		if c.OverlapTokens > 0 {
			keep := []string{}
			remain := c.OverlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...) // prepend to keep original order
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		buf = append(buf, line)
		tokSum += approxTokens(line)

		if tokSum >= c.TargetTokens {
			flush()
		}
	}

	// Emit the remaining tail, unless it is pure overlap of an already
	// emitted chunk.
	if tokSum > 0 && (pos == 0 || strings.Join(buf, "\n") != overlapTail(out, c.OverlapTokens)) {
		out = append(out, chunkText{
			Ordinal:    pos,
			Text:       strings.Join(buf, "\n"),
			TokenCount: tokSum,
		})
	}

	return out
}

// overlapTail reconstructs the tail the last flush would have carried
// over, so Split can tell a genuine remainder from pure overlap.
func overlapTail(out []chunkText, overlapTokens int) string {
	if len(out) == 0 || overlapTokens <= 0 {
		return ""
	}
	lines := strings.Split(out[len(out)-1].Text, "\n")
	keep := []string{}
	remain := overlapTokens
	for j := len(lines) - 1; j >= 0 && remain > 0; j-- {
		keep = append([]string{lines[j]}, keep...)
		remain -= approxTokens(lines[j])
	}
	return strings.Join(keep, "\n")
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
