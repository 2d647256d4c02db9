// Package tfidf builds a term-frequency / inverse-document-frequency model
// over a set of documents and ranks documents against free-text queries by
// cosine similarity.
//
// The model is rebuilt wholesale from its sources: a Corpus pairs a
// document set with the IDF table computed over exactly that set, and is
// immutable once built.
package tfidf
