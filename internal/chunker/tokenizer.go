package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE used by the OpenAI text-embedding-3 models.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens the way the embedding model does.
type Tokenizer interface {
	Count(text string) int
}

var loaderOnce sync.Once

// TiktokenTokenizer counts tokens with a tiktoken encoding. Encodings are
// loaded from the embedded offline BPE tables, so no network is needed.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding (DefaultEncoding if empty).
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// WordTokenizer counts whitespace-separated words. Deterministic and cheap,
// used in tests and as a fallback when no BPE table is wanted.
type WordTokenizer struct{}

// Count returns the number of words in text.
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
