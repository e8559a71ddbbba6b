package recall

import (
	"context"
	"fmt"
	"sort"

	"github.com/hindsightdb/hindsight/internal/model"
)

// typeCoef weights how strongly each link type propagates activation.
// causal sits between entity and temporal: a directed, author-asserted
// relation propagates more than mere time proximity but less than a
// shared entity or a direct semantic neighbor. Not named by the budget
// table, so fixed here rather than made configurable.
var typeCoef = map[model.LinkType]float64{
	model.LinkSemantic: 1.0,
	model.LinkEntity:   0.8,
	model.LinkCausal:   0.6,
	model.LinkTemporal: 0.4,
}

// spreadActivation runs `rounds` of spreading activation over units,
// starting from seed, keeping only the top candidateK units by activation
// after each round. units is extended in place with any unit newly
// touched by a traversed link.
func (e *Engine) spreadActivation(ctx context.Context, bankID string, units map[string]model.MemoryUnit, seed map[string]float64, rounds, candidateK int, decay float64, trace *Trace) (map[string]float64, error) {
	activation := make(map[string]float64, len(seed))
	for k, v := range seed {
		activation[k] = v
	}
	activation = topK(activation, units, candidateK)

	for r := 1; r <= rounds; r++ {
		ids := make([]string, 0, len(activation))
		for id := range activation {
			ids = append(ids, id)
		}
		links, err := e.store.OutgoingLinks(ctx, bankID, ids)
		if err != nil {
			return nil, fmt.Errorf("outgoing links: %w", err)
		}

		next := make(map[string]float64, len(activation))
		for id, a := range activation {
			next[id] = decay * a
		}
		for _, l := range links {
			src, ok := activation[l.FromUnitID]
			if !ok {
				continue
			}
			next[l.ToUnitID] += src * l.Weight * typeCoef[l.Type]
			if trace != nil {
				trace.LinkInfo = append(trace.LinkInfo, LinkInfo{FromUnitID: l.FromUnitID, ToUnitID: l.ToUnitID, Type: string(l.Type), Weight: l.Weight})
			}
		}

		var missing []string
		for id := range next {
			if _, ok := units[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			fetched, err := e.store.GetUnitsByIDs(ctx, bankID, missing)
			if err != nil {
				return nil, fmt.Errorf("fetch activated units: %w", err)
			}
			for _, u := range fetched {
				units[u.ID] = u
			}
		}

		before := len(next)
		next = topK(next, units, candidateK)
		if trace != nil {
			trace.PruningDecisions = append(trace.PruningDecisions, PruningDecision{Stage: fmt.Sprintf("activation_round_%d", r), Before: before, After: len(next)})
			for id, a := range next {
				trace.NodeVisits = append(trace.NodeVisits, NodeVisit{Round: r, UnitID: id, Activation: a})
			}
		}
		activation = next
	}

	return activation, nil
}

// topK keeps the k highest-scoring entries, breaking ties on newer
// created_at then id ascending for determinism.
func topK(scores map[string]float64, units map[string]model.MemoryUnit, k int) map[string]float64 {
	if k <= 0 || len(scores) <= k {
		return scores
	}
	type entry struct {
		id    string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for id, s := range scores {
		entries = append(entries, entry{id, s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		ti, tj := units[entries[i].id].CreatedAt, units[entries[j].id].CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].id < entries[j].id
	})
	out := make(map[string]float64, k)
	for _, en := range entries[:k] {
		out[en.id] = en.score
	}
	return out
}
