// Package chunker splits page-tagged document text into sentence-aligned,
// token-bounded passages that never cross a page boundary.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMaxTokens is the per-chunk token budget.
const DefaultMaxTokens = 500

var (
	pageMarkerRe  = regexp.MustCompile(`\[Page\s+(\d+)\]\s*`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)
)

// Chunk is one retrievable passage.
type Chunk struct {
	Index int    `json:"index"` // Position in the collection (0, 1, 2...)
	Page  int    `json:"page"`  // Source page number
	Body  string `json:"body"`  // Passage text without the page marker
}

// Text returns the chunk as stored and embedded: "[Page N] body".
func (c Chunk) Text() string {
	return PageMarker(c.Page) + " " + c.Body
}

// PageMarker formats the marker that prefixes a page's text.
func PageMarker(page int) string {
	return fmt.Sprintf("[Page %d]", page)
}

// Page is a page number with its text.
type Page struct {
	Number int
	Text   string
}

// Chunker packs sentences into chunks of at most maxTokens tokens.
type Chunker struct {
	tokenizer Tokenizer
	maxTokens int
}

// NewChunker creates a chunker. If maxTokens is 0, DefaultMaxTokens is used.
func NewChunker(tokenizer Tokenizer, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	return &Chunker{
		tokenizer: tokenizer,
		maxTokens: maxTokens,
	}
}

// MaxTokens returns the configured budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk splits page-tagged text into chunks in page order.
func (c *Chunker) Chunk(text string) []Chunk {
	var chunks []Chunk
	for _, page := range SplitPages(text) {
		for _, body := range c.pageChunks(page.Text) {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Page:  page.Number,
				Body:  body,
			})
		}
	}
	return chunks
}

// pageChunks greedily packs the sentences of one page.
func (c *Chunker) pageChunks(text string) []string {
	var (
		out []string
		buf []string
		cur int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, strings.Join(buf, " "))
		buf, cur = nil, 0
	}

	for _, sentence := range SplitSentences(text) {
		n := c.tokenizer.Count(sentence)
		if cur+n <= c.maxTokens {
			buf = append(buf, sentence)
			cur += n
			continue
		}

		flush()
		if n > c.maxTokens {
			out = append(out, c.hardSplit(sentence)...)
			continue
		}
		buf, cur = []string{sentence}, n
	}
	flush()

	return out
}

// hardSplit breaks a single over-budget sentence on word boundaries. A piece
// is emitted as soon as the next word would push it over budget. A lone word
// larger than the budget becomes its own piece.
func (c *Chunker) hardSplit(sentence string) []string {
	var (
		out []string
		tmp []string
	)
	for _, word := range strings.Fields(sentence) {
		tmp = append(tmp, word)
		if len(tmp) > 1 && c.tokenizer.Count(strings.Join(tmp, " ")) > c.maxTokens {
			out = append(out, strings.Join(tmp[:len(tmp)-1], " "))
			tmp = []string{word}
		}
	}
	if len(tmp) > 0 {
		out = append(out, strings.Join(tmp, " "))
	}
	return out
}

// SplitPages recovers (page, body) pairs from page-tagged text. Text before
// the first marker is ignored, as are markers whose number does not parse.
func SplitPages(text string) []Page {
	locs := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	pages := make([]Page, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}

		number, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue // digits that overflow int
		}
		pages = append(pages, Page{
			Number: number,
			Text:   strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return pages
}

// SplitSentences collapses whitespace and splits after '.', '!' or '?'
// followed by whitespace.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// keep the punctuation, drop the whitespace
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
