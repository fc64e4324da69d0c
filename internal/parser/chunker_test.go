package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() string {
	var b strings.Builder
	for p := 0; p < 12; p++ {
		for s := 0; s < 9; s++ {
			fmt.Fprintf(&b, "Paragraph %d sentence %d talks about quarterly revenue in the west region. ", p, s)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// rebuild drops the overlap from every chunk after the first.
func rebuild(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, NewSplitter(1000, 200).Split(""))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	chunks := NewSplitter(1000, 200).Split("just a short note")
	assert.Equal(t, []string{"just a short note"}, chunks)
}

func TestSplit_CoverageAndSizeBound(t *testing.T) {
	texts := map[string]string{
		"paragraphs": sampleDocument(),
		"no spaces":  strings.Repeat("x", 4321),
		"words":      strings.Repeat("lorem ipsum dolor ", 400),
		"unicode":    strings.Repeat("Größe straße naïve café. ", 150),
		"lines":      strings.Repeat("line of a csv export\n", 300),
	}
	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			s := NewSplitter(1000, 200)
			chunks := s.Split(text)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				n := utf8.RuneCountInString(c)
				assert.LessOrEqual(t, n, 1000, "chunk %d too long", i)
				if i > 0 {
					assert.Greater(t, n, 200, "chunk %d does not move past the overlap", i)
				}
			}
			assert.Equal(t, text, rebuild(chunks, s.Overlap))
		})
	}
}

func TestSplit_ConsecutiveChunksShareOverlap(t *testing.T) {
	s := NewSplitter(300, 50)
	chunks := s.Split(sampleDocument())
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-50:]), string(cur[:50]))
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 700)
	second := strings.Repeat("b ", 400)
	text := first + "\n\n" + second

	chunks := NewSplitter(1000, 200).Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first+"\n\n", chunks[0])
}

func TestSplit_FallsBackToWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := NewSplitter(1000, 200).Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, " "), "chunk should end on a word boundary: %q", c[len(c)-10:])
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Equal(t, s.Split(sampleDocument()), s.Split(sampleDocument()))
}

func TestNewSplitter_Clamps(t *testing.T) {
	s := NewSplitter(100, 100)
	assert.Equal(t, 20, s.Overlap)

	s = NewSplitter(0, -1)
	assert.Equal(t, 1000, s.Size)
	assert.Equal(t, 0, s.Overlap)
}
