package tfidf

import (
	"math"
)

// Builder computes a Corpus from sources.
type Builder struct {
	tok *Tokenizer
}

// NewBuilder uses tok, or a default tokenizer when nil.
func NewBuilder(tok *Tokenizer) *Builder {
	if tok == nil {
		tok = NewTokenizer(TokenizerOptions{})
	}
	return &Builder{tok: tok}
}

// Build tokenizes every source and computes the full model:
//
//	idf(t)     = ln((N+1) / df(t))
//	w(d, t)    = tf(d, t) * idf(t)
//	|d|        = sqrt(Σ w(d, t)²)
//
// The +1 keeps terms present in every document (and every term of a
// one-document corpus) above zero. An empty input gives an empty corpus.
func (b *Builder) Build(sources []Source) *Corpus {
	docs := make([]*Document, 0, len(sources))
	df := make(map[string]int)

	for _, src := range sources {
		terms := b.tok.Tokenize(src.Content)
		tf := make(map[string]int)
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		docs = append(docs, &Document{
			URI:             src.URI,
			Path:            src.Path,
			TermFrequencies: tf,
			TermCount:       len(tf),
			RawTerms:        len(terms),
		})
	}

	n := float64(len(docs))
	idf := make(IDFTable, len(df))
	for t, f := range df {
		idf[t] = math.Log((n + 1) / float64(f))
	}

	for _, d := range docs {
		d.Magnitude = Magnitude(d.TermFrequencies, idf)
	}
	return NewCorpus(docs, idf)
}

// Magnitude is the L2 norm of the tf*idf vector of tf.
func Magnitude(tf map[string]int, idf IDFTable) float64 {
	var sum float64
	for t, f := range tf {
		w := float64(f) * idf[t]
		sum += w * w
	}
	return math.Sqrt(sum)
}
