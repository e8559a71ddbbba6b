package reranker

import (
	"context"
	"strings"
)

// Lexical is a term-overlap cross-encoder stand-in: it scores each passage
// by the fraction of distinct query terms it contains. No model weights,
// no network call — useful as a default and in tests.
type Lexical struct{}

// NewLexical returns a Lexical reranker.
func NewLexical() *Lexical {
	return &Lexical{}
}

func (l *Lexical) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	queryTokens := tokenize(query)
	out := make([]float64, len(passages))
	if len(queryTokens) == 0 {
		return out, nil
	}

	for i, p := range passages {
		out[i] = float64(termOverlap(queryTokens, tokenize(p)))
	}
	return out, nil
}

func (l *Lexical) Close() error { return nil }

var _ Reranker = (*Lexical)(nil)

func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool { return !isAlphanumeric(r) })
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !isStopword(t) && len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true,
}

func isStopword(token string) bool {
	return stopwords[token]
}

func termOverlap(queryTokens, passageTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(passageTokens))
	for _, t := range passageTokens {
		set[t] = true
	}
	distinct := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		distinct[t] = true
	}
	count := 0
	for t := range distinct {
		if set[t] {
			count++
		}
	}
	return float32(count) / float32(len(distinct))
}
