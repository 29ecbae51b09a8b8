// Package similarity maintains feature vectors for recorded interactions
// and answers top-K similar-interaction queries.
//
// The default feature extraction is lexical: tokens are case-folded,
// stopwords dropped, and hashed into a fixed-dimension term-frequency
// vector. Scores are cosine similarity in [0,1]. A denser embedding
// backend can replace the vectorizer without changing the index contract.
package similarity

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dim is the dimensionality of the hashed term-frequency vectors.
const Dim = 256

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"what": {}, "how": {}, "why": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "i": {}, "you": {},
	"my": {}, "your": {}, "me": {}, "we": {}, "as": {}, "if": {},
}

// Tokenize splits text into lowercase terms, stripping punctuation and
// stopwords. Single-character terms are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Keywords returns up to max distinctive terms from text, in order of
// first appearance. Used for pattern tracking and suggestions.
func Keywords(text string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		if len(tok) < 4 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) >= max {
			break
		}
	}
	return out
}

// Vectorize maps text to an L2-normalized hashed term-frequency vector
// of dimension Dim. Deterministic: the same text always produces the
// same vector.
func Vectorize(text string) []float32 {
	vec := make([]float32, Dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// Cosine computes cosine similarity between two vectors. With the
// non-negative vectors produced by Vectorize the result is in [0,1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
