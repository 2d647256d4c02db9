package tfidf

import (
	"sort"
)

// Source is one input document for Build.
type Source struct {
	// URI is scheme-qualified, e.g. file://main.go or knowledge://notes/a.md.
	URI     string
	Path    string
	Content string
}

// Document is the TF half of the model for one source.
type Document struct {
	URI  string
	Path string
	// TermFrequencies maps each distinct term to its raw count.
	TermFrequencies map[string]int
	// Magnitude is the L2 norm of the tf*idf vector; 0 for a document with
	// no terms.
	Magnitude float64
	// TermCount is the number of distinct terms.
	TermCount int
	// RawTerms is the number of tokens before counting.
	RawTerms int
}

// IDFTable maps term to inverse document frequency. Values are finite and
// strictly positive.
type IDFTable map[string]float64

// Corpus is a document set together with the IDF table computed over it.
// Documents are ordered by path.
type Corpus struct {
	docs   []*Document
	byPath map[string]*Document
	idf    IDFTable
}

// NewCorpus assembles a corpus from stored parts. Callers must pass an IDF
// table computed over docs.
func NewCorpus(docs []*Document, idf IDFTable) *Corpus {
	sorted := make([]*Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	byPath := make(map[string]*Document, len(sorted))
	for _, d := range sorted {
		byPath[d.Path] = d
	}
	if idf == nil {
		idf = IDFTable{}
	}
	return &Corpus{docs: sorted, byPath: byPath, idf: idf}
}

// Len is 0 for a nil corpus.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.docs)
}

// Documents returns the documents in path order. The slice must not be modified.
func (c *Corpus) Documents() []*Document {
	if c == nil {
		return nil
	}
	return c.docs
}

// Document looks up a document by relative path.
func (c *Corpus) Document(path string) (*Document, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.byPath[path]
	return d, ok
}

// IDF returns the table. It must not be modified.
func (c *Corpus) IDF() IDFTable {
	if c == nil {
		return IDFTable{}
	}
	return c.idf
}
