package store

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"

	kerrors "github.com/knowtools/know/internal/errors"
)

// Analyzer tokenizes text for sparse indexing and querying. Both sides must
// use the identical chain: unicode word segmentation, lowercasing, English
// stop word removal, Porter stemming.
type Analyzer struct {
	chain *analysis.DefaultAnalyzer
}

// NewAnalyzer builds the analysis chain from the bleve registry.
func NewAnalyzer() (*Analyzer, error) {
	cache := registry.NewCache()

	tokenizer, err := cache.TokenizerNamed(unicode.Name)
	if err != nil {
		return nil, kerrors.New(kerrors.ErrCodeInternal, "cannot build tokenizer", err)
	}

	var filters []analysis.TokenFilter
	for _, name := range []string{lowercase.Name, en.StopName, porter.Name} {
		f, err := cache.TokenFilterNamed(name)
		if err != nil {
			return nil, kerrors.New(kerrors.ErrCodeInternal, "cannot build token filter "+name, err)
		}
		filters = append(filters, f)
	}

	return &Analyzer{
		chain: &analysis.DefaultAnalyzer{
			Tokenizer:    tokenizer,
			TokenFilters: filters,
		},
	}, nil
}

// Tokens analyzes text and returns the resulting terms in order.
func (a *Analyzer) Tokens(text string) []string {
	stream := a.chain.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}
