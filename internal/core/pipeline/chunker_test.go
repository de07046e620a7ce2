package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line returns a fragment of exactly 20 runes (5 approx tokens).
func line(i int) string {
	return fmt.Sprintf("fragment-%04d-filler", i)
}

func linesText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(line(i))
		b.WriteString("\n")
	}
	return b.String()
}

func TestSplitDeterministic(t *testing.T) {
	c := NewChunker(10, 5)
	text := linesText(9)

	first := c.Split(text)
	second := c.Split(text)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestSplitOrdinalsSequential(t *testing.T) {
	c := NewChunker(10, 0)
	chunks := c.Split(linesText(7))

	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.NotEmpty(t, ch.Text)
		assert.Positive(t, ch.TokenCount)
	}
}

func TestSplitGroupsByTargetTokens(t *testing.T) {
	// 5 tokens per line, target 10: every chunk closes after two lines.
	c := NewChunker(10, 0)
	chunks := c.Split(linesText(6))

	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, line(2*i)+"\n"+line(2*i+1), ch.Text)
	}
}

func TestSplitCoversEveryFragment(t *testing.T) {
	c := NewChunker(10, 5)
	n := 11
	chunks := c.Split(linesText(n))

	all := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		all = append(all, ch.Text)
	}
	joined := strings.Join(all, "\n")
	for i := 0; i < n; i++ {
		assert.Contains(t, joined, line(i), "fragment %d must land in some chunk", i)
	}
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	// Overlap of 5 tokens carries exactly the last line of each chunk into
	// the next one.
	c := NewChunker(10, 5)
	chunks := c.Split(linesText(5))

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prevLines := strings.Split(chunks[i-1].Text, "\n")
		carried := prevLines[len(prevLines)-1]
		assert.True(t, strings.HasPrefix(chunks[i].Text, carried),
			"chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

func TestSplitNoPureOverlapTrailer(t *testing.T) {
	// 4 lines at target 10 flush three times; the leftover buffer after the
	// last flush is pure overlap and must not become a fourth chunk.
	c := NewChunker(10, 5)
	chunks := c.Split(linesText(4))

	require.Len(t, chunks, 3)
	assert.Equal(t, line(2)+"\n"+line(3), chunks[2].Text)
}

func TestSplitEmptyInput(t *testing.T) {
	c := NewChunker(10, 5)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n\t \n"))
}

func TestSplitSingleShortFragment(t *testing.T) {
	c := NewChunker(500, 50)
	chunks := c.Split("just one short line")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, "just one short line", chunks[0].Text)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 1, approxTokens("abcd"))
	assert.Equal(t, 2, approxTokens("abcde"))
	assert.Equal(t, 5, approxTokens(strings.Repeat("x", 20)))
}
