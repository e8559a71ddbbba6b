package retain

import (
	"context"
	"fmt"
	"time"

	"github.com/hindsightdb/hindsight/internal/entityresolver"
	"github.com/hindsightdb/hindsight/internal/model"
)

// resolveAndLinkEntities resolves every entity mention across candidates in
// one batch call, then links each candidate's final unit id to its
// resolved entity ids.
func (p *Pipeline) resolveAndLinkEntities(ctx context.Context, bankID string, candidates []factCandidate, finalIDs []string) error {
	var mentions []entityresolver.Mention
	var owner []int // index into candidates, one per mention
	for i, c := range candidates {
		for _, e := range c.fact.Entities {
			if e.Text == "" {
				continue
			}
			mentions = append(mentions, entityresolver.Mention{Text: e.Text, Type: entityTypeOf(e.Type)})
			owner = append(owner, i)
		}
	}
	if len(mentions) == 0 {
		return nil
	}

	var context_ string
	var eventDate time.Time
	for _, c := range candidates {
		if c.item.Context != "" {
			context_ = c.item.Context
		}
		if c.item.EventDate != nil {
			eventDate = *c.item.EventDate
		}
	}

	entityIDs, err := p.resolver.ResolveBatch(ctx, bankID, mentions, context_, eventDate)
	if err != nil {
		return fmt.Errorf("resolve mentions: %w", err)
	}

	seen := make(map[[2]string]bool)
	var pairs []model.UnitEntityLink
	for i, entityID := range entityIDs {
		if entityID == "" {
			continue
		}
		unitID := finalIDs[owner[i]]
		key := [2]string{unitID, entityID}
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, model.UnitEntityLink{UnitID: unitID, EntityID: entityID})
	}
	if len(pairs) == 0 {
		return nil
	}
	return p.resolver.LinkUnitsToEntitiesBatch(ctx, bankID, pairs)
}

func entityTypeOf(s string) model.EntityType {
	switch model.EntityType(s) {
	case model.EntityPerson, model.EntityOrganization, model.EntityPlace, model.EntityProduct, model.EntityConcept, model.EntityOther:
		return model.EntityType(s)
	default:
		return model.EntityOther
	}
}

// synthesizeCausalLinks writes one LinkCausal edge per validated causal
// relation an extraction call emitted, translating chunk-local fact
// indices into the final unit ids the facts resolved to.
func (p *Pipeline) synthesizeCausalLinks(ctx context.Context, bankID string, results [][]extractedFact, finalIDs []string) error {
	var links []model.MemoryLink
	offset := 0
	for _, facts := range results {
		for i, f := range facts {
			for _, rel := range f.CausalRelations {
				links = append(links, model.MemoryLink{
					FromUnitID: finalIDs[offset+i],
					ToUnitID:   finalIDs[offset+rel.TargetFactIndex],
					Type:       model.LinkCausal,
					Weight:     1.0,
					Relation:   causalRelationOf(rel.RelationType),
				})
			}
		}
		offset += len(facts)
	}
	if len(links) == 0 {
		return nil
	}
	return p.store.UpsertLinks(ctx, bankID, links)
}

// synthesizeLinks writes entity, temporal, and semantic links for each
// newly inserted unit against the rest of the bank.
func (p *Pipeline) synthesizeLinks(ctx context.Context, bankID string, units []model.MemoryUnit) error {
	semanticK := p.cfg.SemanticK
	if semanticK <= 0 {
		semanticK = 10
	}
	semanticThreshold := p.cfg.SemanticLinkThreshold
	if semanticThreshold <= 0 {
		semanticThreshold = 0.78
	}
	temporalK := p.cfg.TemporalK
	if temporalK <= 0 {
		temporalK = 10
	}
	temporalWindow := time.Duration(p.cfg.TemporalWindowHours * float64(time.Hour))
	if temporalWindow <= 0 {
		temporalWindow = 72 * time.Hour
	}

	var links []model.MemoryLink
	for _, u := range units {
		entities, err := p.store.EntitiesForUnit(ctx, bankID, u.ID)
		if err != nil {
			return fmt.Errorf("entities for unit: %w", err)
		}
		for _, e := range entities {
			others, err := p.store.UnitsForEntity(ctx, bankID, e.ID, u.ID)
			if err != nil {
				return fmt.Errorf("units for entity: %w", err)
			}
			for _, otherID := range others {
				links = append(links, model.MemoryLink{
					FromUnitID: u.ID, ToUnitID: otherID, Type: model.LinkEntity, Weight: 1.0, EntityID: e.ID,
				})
			}
		}

		if u.EventDate != nil {
			near, err := p.store.UnitsNearTime(ctx, bankID, *u.EventDate, temporalWindow, temporalK, u.ID)
			if err != nil {
				return fmt.Errorf("units near time: %w", err)
			}
			for _, other := range near {
				links = append(links, model.MemoryLink{
					FromUnitID: u.ID, ToUnitID: other.ID, Type: model.LinkTemporal, Weight: temporalWeight(u, other, temporalWindow),
				})
			}
		}

		if len(u.Embedding) > 0 {
			neighbors, err := p.store.VectorSearchUnits(ctx, bankID, u.Embedding, semanticK+1, nil)
			if err != nil {
				return fmt.Errorf("semantic neighbors: %w", err)
			}
			for _, n := range neighbors {
				if n.Unit.ID == u.ID || n.Score < semanticThreshold {
					continue
				}
				links = append(links, model.MemoryLink{
					FromUnitID: u.ID, ToUnitID: n.Unit.ID, Type: model.LinkSemantic, Weight: n.Score,
				})
			}
		}
	}
	if len(links) == 0 {
		return nil
	}
	return p.store.UpsertLinks(ctx, bankID, links)
}

func temporalWeight(a, b model.MemoryUnit, window time.Duration) float64 {
	if a.EventDate == nil || b.EventDate == nil || window <= 0 {
		return 0.5
	}
	delta := a.EventDate.Sub(*b.EventDate)
	if delta < 0 {
		delta = -delta
	}
	w := 1.0 - float64(delta)/float64(window)
	if w < 0 {
		w = 0
	}
	return w
}
