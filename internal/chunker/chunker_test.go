package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunk_TwoPages covers the basic one-chunk-per-short-page case.
func TestChunk_TwoPages(t *testing.T) {
	text := "[Page 1] The return policy allows 30 days.\n\n[Page 2] Contact support at help@example.com."

	chunks := NewChunker(WordTokenizer{}, 500).Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "[Page 1] The return policy allows 30 days.", chunks[0].Text())
	assert.Equal(t, "[Page 2] Contact support at help@example.com.", chunks[1].Text())
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestSplitPages(t *testing.T) {
	text := "preamble is dropped [Page 3] third page body\n\n[Page 10]tenth\n[Page x] not a marker"

	pages := SplitPages(text)

	require.Len(t, pages, 2)
	assert.Equal(t, Page{Number: 3, Text: "third page body"}, pages[0])
	// "[Page x]" is not a marker, so it stays in the body of page 10
	assert.Equal(t, Page{Number: 10, Text: "tenth\n[Page x] not a marker"}, pages[1])
}

func TestSplitPages_OverflowingNumberSkipped(t *testing.T) {
	text := "[Page 99999999999999999999999] huge [Page 2] ok"

	pages := SplitPages(text)

	require.Len(t, pages, 1)
	assert.Equal(t, 2, pages[0].Number)
	assert.Equal(t, "ok", pages[0].Text)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("  First one.  Second!\nThird?   trailing words ")

	assert.Equal(t, []string{"First one.", "Second!", "Third?", "trailing words"}, got)
	assert.Nil(t, SplitSentences(" \n\t "))
}

func TestSplitSentences_AbbreviationWithoutSpace(t *testing.T) {
	got := SplitSentences("Version 1.2.3 is out. Email a@b.com now.")

	assert.Equal(t, []string{"Version 1.2.3 is out.", "Email a@b.com now."}, got)
}

// TestChunk_PacksUntilBudget checks greedy packing and flush on overflow.
func TestChunk_PacksUntilBudget(t *testing.T) {
	// three sentences of 4 words each, budget 8 words
	text := "[Page 1] One two three four. Five six seven eight. Nine ten eleven twelve."

	chunks := NewChunker(WordTokenizer{}, 8).Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "One two three four. Five six seven eight.", chunks[0].Body)
	assert.Equal(t, "Nine ten eleven twelve.", chunks[1].Body)
}

// TestChunk_HardSplitLongSentence feeds a single sentence longer than the
// budget and expects ceil(tokens/budget) pieces with no word lost.
func TestChunk_HardSplitLongSentence(t *testing.T) {
	words := make([]string, 23)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	sentence := strings.Join(words, " ") + "."
	budget := 5

	chunks := NewChunker(WordTokenizer{}, budget).Chunk("[Page 4] " + sentence)

	require.Len(t, chunks, 5) // ceil(23/5)
	var rejoined []string
	for _, c := range chunks {
		assert.Equal(t, 4, c.Page)
		assert.LessOrEqual(t, WordTokenizer{}.Count(c.Body), budget)
		rejoined = append(rejoined, strings.Fields(c.Body)...)
	}
	assert.Equal(t, strings.Fields(sentence), rejoined)
}

func TestChunk_HardSplitFlushesPendingBuffer(t *testing.T) {
	text := "[Page 1] Short one. a b c d e f g h i j."

	chunks := NewChunker(WordTokenizer{}, 4).Chunk(text)

	bodies := make([]string, len(chunks))
	for i, c := range chunks {
		bodies[i] = c.Body
	}
	assert.Equal(t, []string{"Short one.", "a b c d", "e f g h", "i j."}, bodies)
}

func TestChunk_OversizedSingleWord(t *testing.T) {
	// one "word" whose token count exceeds the budget
	tok := fixedTokenizer{"enormous": 10}

	chunks := NewChunker(tok, 3).Chunk("[Page 1] tiny enormous tiny.")

	bodies := make([]string, len(chunks))
	for i, c := range chunks {
		bodies[i] = c.Body
	}
	assert.Equal(t, []string{"tiny", "enormous", "tiny."}, bodies)
	for _, b := range bodies {
		assert.NotEmpty(t, b)
	}
}

// TestChunk_LosslessAndOrdered checks that markers never decrease and that
// rejoining bodies per page reproduces the page text.
func TestChunk_LosslessAndOrdered(t *testing.T) {
	pages := []string{
		"Alpha beta gamma. Delta epsilon zeta eta! Theta iota kappa lambda mu? Nu xi omicron.",
		"Short page.",
		"One two three four five six seven eight nine ten eleven twelve thirteen. Fourteen.",
	}
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d] %s", i+1, p)
	}

	chunks := NewChunker(WordTokenizer{}, 6).Chunk(b.String())

	byPage := map[int][]string{}
	last := 0
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Page, last)
		last = c.Page
		assert.True(t, strings.HasPrefix(c.Text(), PageMarker(c.Page)+" "))
		byPage[c.Page] = append(byPage[c.Page], c.Body)
	}
	for i, p := range pages {
		assert.Equal(t, p, strings.Join(byPage[i+1], " "), "page %d", i+1)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := "[Page 1] Same input. Same output every time. Always."
	c := NewChunker(WordTokenizer{}, 3)

	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestChunk_EmptyInput(t *testing.T) {
	assert.Empty(t, NewChunker(nil, 0).Chunk(""))
	assert.Empty(t, NewChunker(nil, 0).Chunk("no markers at all"))
	assert.Empty(t, NewChunker(nil, 0).Chunk("[Page 1]   "))
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(nil, 0)

	assert.Equal(t, DefaultMaxTokens, c.MaxTokens())
}

func TestTiktokenTokenizer(t *testing.T) {
	tok, err := NewTiktokenTokenizer("")
	require.NoError(t, err)

	assert.Equal(t, 2, tok.Count("hello world"))
	assert.Equal(t, 0, tok.Count(""))
}

type fixedTokenizer map[string]int

func (f fixedTokenizer) Count(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if c, ok := f[strings.Trim(w, ".")]; ok {
			n += c
			continue
		}
		n++
	}
	return n
}
