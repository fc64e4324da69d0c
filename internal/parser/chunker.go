package parser

import "analyst-rag/internal/models"

// separators are tried in order, largest semantic unit first.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// Splitter cuts text into overlapping chunks of at most Size characters.
// Consecutive chunks share exactly Overlap characters, so dropping the first
// Overlap characters of every chunk after the first and concatenating gives
// back the original text.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = models.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the chunks of text in document order. Empty text yields none.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + s.Size
		if end >= n {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end = s.cut(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.Overlap
	}
	return chunks
}

// cut picks the end of the chunk starting at start. The cut lands right after
// the largest separator found in the back half of the window, and always
// leaves more than Overlap characters so the next chunk moves forward.
func (s Splitter) cut(runes []rune, start, end int) int {
	minCut := start + max(s.Overlap+1, s.Size/2)
	for _, sep := range separators {
		for i := end - len(sep); i+len(sep) >= minCut && i >= start; i-- {
			if hasPrefixAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
