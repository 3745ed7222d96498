// Copyright 2026 The Segidx Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schema

// Token is one occurrence of a term at a particular position in a text
// field, the capability the segment writer consumes from an external
// tokenizer. Carries only what indexing needs: text and position, not
// byte offsets or token type.
type Token struct {
	Term         string
	PositionIncr int
}

// TokenStream is produced by a Tokenizer for one or more joined texts. The
// tokenizer registry itself lives above this core; callers hand the writer
// an already-resolved Tokenizer.
type TokenStream interface {
	// Next returns the next token and true, or the zero Token and false
	// once the stream is exhausted.
	Next() (Token, bool)
}

// Tokenizer turns one or more input texts into a single TokenStream. Text
// fields with multiple values are tokenized jointly (texts joined with an
// implementation-defined position gap) so that positions keep advancing
// across values.
type Tokenizer interface {
	TokenStreamTexts(texts []string) TokenStream
}

// sliceTokenStream adapts a pre-computed []Token to the TokenStream
// interface; production tokenizers may stream lazily instead.
type sliceTokenStream struct {
	tokens []Token
	pos    int
}

// NewSliceTokenStream wraps a fixed slice of tokens as a TokenStream, handy
// for tests and for facet tokenization where the whole stream is known
// up front.
func NewSliceTokenStream(tokens []Token) TokenStream {
	return &sliceTokenStream{tokens: tokens}
}

func (s *sliceTokenStream) Next() (Token, bool) {
	if s.pos >= len(s.tokens) {
		return Token{}, false
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, true
}

// FacetTokenStream tokenizes a single facet path into tokens for every
// ancestor prefix, shallowest first, input path last.
func FacetTokenStream(path string) TokenStream {
	ancestors := FacetAncestors(path)
	tokens := make([]Token, len(ancestors))
	for i, a := range ancestors {
		tokens[i] = Token{Term: a, PositionIncr: 1}
	}
	return NewSliceTokenStream(tokens)
}
