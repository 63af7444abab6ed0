package llm

import (
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCharsPerToken approximates English prose for most providers.
const DefaultCharsPerToken = 4.0

// TokenEstimator approximates token counts before a request is sent.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

var defaultEstimator TokenEstimator = NewCharacterTokenEstimator(DefaultCharsPerToken)

// CharacterTokenEstimator divides the rune count by a fixed ratio,
// rounding up so non-empty text never estimates to zero.
type CharacterTokenEstimator struct{ charsPerToken float64 }

// NewCharacterTokenEstimator creates a character estimator. A non-positive
// ratio uses DefaultCharsPerToken.
func NewCharacterTokenEstimator(charsPerToken float64) *CharacterTokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &CharacterTokenEstimator{charsPerToken: charsPerToken}
}

// EstimateTokens implements TokenEstimator.
func (e *CharacterTokenEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := int(float64(n) / e.charsPerToken)
	if float64(tokens)*e.charsPerToken < float64(n) {
		tokens++
	}
	return tokens
}

// WordTokenEstimator multiplies the whitespace-separated word count by a
// fixed ratio.
type WordTokenEstimator struct{ tokensPerWord float64 }

// NewWordTokenEstimator creates a word estimator. A non-positive ratio uses
// 1.3 tokens per word.
func NewWordTokenEstimator(tokensPerWord float64) *WordTokenEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = 1.3
	}
	return &WordTokenEstimator{tokensPerWord: tokensPerWord}
}

// EstimateTokens implements TokenEstimator.
func (e *WordTokenEstimator) EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * e.tokensPerWord)
}

// CachingTokenEstimator memoizes another estimator in a bounded LRU. Safe
// for concurrent use.
type CachingTokenEstimator struct {
	next  TokenEstimator
	cache *lru.Cache[string, int]
}

// NewCachingTokenEstimator wraps next with an LRU of size entries. A
// non-positive size uses 1024.
func NewCachingTokenEstimator(next TokenEstimator, size int) *CachingTokenEstimator {
	if size <= 0 {
		size = 1024
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, int](size)
	return &CachingTokenEstimator{next: next, cache: cache}
}

// EstimateTokens implements TokenEstimator.
func (e *CachingTokenEstimator) EstimateTokens(text string) int {
	if n, ok := e.cache.Get(text); ok {
		return n
	}
	n := e.next.EstimateTokens(text)
	e.cache.Add(text, n)
	return n
}

// Len reports the number of cached estimates.
func (e *CachingTokenEstimator) Len() int { return e.cache.Len() }

// Purge drops every cached estimate.
func (e *CachingTokenEstimator) Purge() { e.cache.Purge() }
