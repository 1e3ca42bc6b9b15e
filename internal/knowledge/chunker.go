package knowledge

// Chunker splits document content into fixed-size overlapping windows.
//
// Boundaries are computed over runes, not bytes, so a window never splits a
// UTF-8 sequence. For each step:
//
//	start = max(0, position - overlap)
//	end   = min(len, position + windowSize)
//	position += windowSize
//
// terminating once position >= len(content). Empty content produces zero
// chunks.
type Chunker struct {
	windowSize int
	overlap    int
}

// NewChunker creates a chunker. windowSize must be positive and overlap
// must be smaller than windowSize; out-of-range values fall back to the
// 500/50 defaults.
func NewChunker(windowSize, overlap int) *Chunker {
	if windowSize <= 0 {
		windowSize = 500
	}
	if overlap < 0 || overlap >= windowSize {
		overlap = 50
		if overlap >= windowSize {
			overlap = 0
		}
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}
}

// Split returns the overlapping windows of content, in order.
func (c *Chunker) Split(content string) []string {
	if content == "" {
		return nil
	}

	runes := []rune(content)
	var chunks []string

	for position := 0; position < len(runes); position += c.windowSize {
		start := position - c.overlap
		if start < 0 {
			start = 0
		}
		end := position + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}

// WindowSize returns the configured window size.
func (c *Chunker) WindowSize() int { return c.windowSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }
