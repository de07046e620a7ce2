package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/solenne-labs/corpora/internal/core"
)

var _ core.Parser = (*DocconvParser)(nil)

// DocconvParser implements core.Parser using sajari/docconv.
type DocconvParser struct {
	useReadability bool
}

func NewDocconvParser(useReadability bool) *DocconvParser {
	return &DocconvParser{useReadability: useReadability}
}

// Parse extracts plain text from raw bytes based on content type. A
// conversion that "succeeds" but yields empty or whitespace-only text
// returns ErrEmptyParse: some converters report success while producing no
// usable output, and that must not advance the pipeline.
func (p *DocconvParser) Parse(ctx context.Context, raw []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(raw), contentType, p.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %q: %w", contentType, err)
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("docconv %q: %w", contentType, core.ErrEmptyParse)
	}
	return text, nil
}
