// Package chunk implements the Chunker (spec §4.5): splits text at
// semantic boundaries with overlap, in byte offsets.
package chunk

import "strings"

// Chunk is one slice of a larger source document.
type Chunk struct {
	Index int
	Text  string
	Start int // byte offset, inclusive.
	End   int // byte offset, exclusive.
}

// Split implements chunk(text, size_chars, overlap_chars) -> sequence<Chunk>
// per spec §4.5. size_chars and overlap_chars operate on bytes here — the
// spec's offsets are byte offsets ("byte_offsets: [start, end)") and ASCII
// punctuation/newline boundaries are single bytes, so byte-based slicing
// satisfies the algorithm without requiring rune-aware indexing.
func Split(text string, sizeChars, overlapChars int) []Chunk {
	if sizeChars <= 0 {
		return nil
	}

	n := len(text)
	if n == 0 {
		return nil
	}

	var chunks []Chunk

	start := 0
	previousStart := -1
	index := 0

	for start < n {
		end := min(start+sizeChars, n)

		if end < n {
			if breakpoint, ok := lastBoundary(text, start, end); ok {
				end = breakpoint + 1
			}
		}

		trimmed := strings.TrimSpace(text[start:end])
		if trimmed != "" {
			chunks = append(chunks, Chunk{Index: index, Text: trimmed, Start: start, End: end})
			index++
		}

		previousStart = start
		start = end - overlapChars

		if start <= previousStart {
			start = end
		}
	}

	return chunks
}

// lastBoundary searches backward from end for the last '.' or '\n',
// returning its offset only if it falls after the midpoint of [start, end)
// — otherwise a hard cut at end is preferable to a boundary too close to
// the start of the window.
func lastBoundary(text string, start, end int) (int, bool) {
	midpoint := start + (end-start)/2

	for i := end - 1; i > midpoint; i-- {
		if text[i] == '.' || text[i] == '\n' {
			return i, true
		}
	}

	return 0, false
}
