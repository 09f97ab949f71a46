// Package ragtest provides deterministic stand-ins for the external
// embedding and completion services, and sample documents, for use in tests.
package ragtest

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// DefaultDim is the vector size of KeywordService.
const DefaultDim = 512

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// KeywordService embeds text as a bag of words: every distinct lowercase
// word gets its own dimension, in order of first appearance. Texts sharing
// no words score 0 against each other.
type KeywordService struct {
	dim int

	mu    sync.Mutex
	vocab map[string]int
	calls int
	err   error
}

// NewKeywordService creates a service with DefaultDim dimensions.
func NewKeywordService() *KeywordService {
	return &KeywordService{dim: DefaultDim, vocab: make(map[string]int)}
}

// FailWith makes every following call return err (nil restores normal behavior).
func (s *KeywordService) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns the number of EmbedBatch calls.
func (s *KeywordService) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *KeywordService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dim)
		for _, w := range wordRe.FindAllString(strings.ToLower(t), -1) {
			d, ok := s.vocab[w]
			if !ok {
				d = len(s.vocab) % s.dim
				s.vocab[w] = d
			}
			v[d]++
		}
		out[i] = v
	}
	return out, nil
}

// Completer records prompts and returns a canned reply.
type Completer struct {
	Reply string
	Err   error

	mu      sync.Mutex
	systems []string
	users   []string
}

func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systems = append(c.systems, system)
	c.users = append(c.users, user)
	return c.Reply, c.Err
}

// Calls returns the number of completions requested.
func (c *Completer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

// LastSystem returns the most recent system message, or "".
func (c *Completer) LastSystem() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.systems) == 0 {
		return ""
	}
	return c.systems[len(c.systems)-1]
}
