package recall

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9]+`)

func normalizeSpan(s string) string {
	return strings.ToLower(strings.Join(tokenRe.FindAllString(s, -1), " "))
}

// candidateSpans returns the whole query, each individual word, and each
// adjacent word pair: most entity names are one or two words, and scanning
// every longer sub-span isn't worth the extra store round trips for a
// query-time lookup.
func candidateSpans(query string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(normalizeSpan(query))
	words := strings.Fields(query)
	for _, w := range words {
		add(normalizeSpan(w))
	}
	for i := 0; i+1 < len(words); i++ {
		add(normalizeSpan(words[i] + " " + words[i+1]))
	}
	return out
}

var entityTypes = []model.EntityType{
	model.EntityPerson, model.EntityOrganization, model.EntityPlace,
	model.EntityProduct, model.EntityConcept, model.EntityOther,
}

// lookupEntityCandidates resolves query tokens to known entity ids through
// exact normalized-name matches only. Recall is read-only with respect to
// the entity graph: an unmatched span is simply not a candidate, never a
// new entity.
func (e *Engine) lookupEntityCandidates(ctx context.Context, bankID, query string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, span := range candidateSpans(query) {
		for _, t := range entityTypes {
			ent, err := e.store.GetEntityByNormalizedName(ctx, bankID, span, t)
			if err != nil {
				if errors.Is(err, errs.NotFound) {
					continue
				}
				return nil, err
			}
			out[ent.ID] = 1.0
		}
	}
	return out, nil
}
