// Package memstore is a process-local, in-memory implementation of
// store.Store. It backs unit tests so the whole engine can be exercised
// without a Postgres/Qdrant deployment. It
// keeps the same invariants (bank isolation, link uniqueness, cascade
// deletes) as the Postgres-backed implementation in internal/store/pg.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hindsightdb/hindsight/internal/errs"
	"github.com/hindsightdb/hindsight/internal/model"
	"github.com/hindsightdb/hindsight/internal/store"
)

type linkKey struct {
	from, to, typ, entity string
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex

	banks       map[string]*model.Bank
	units       map[string]map[string]*model.MemoryUnit // bankID -> unitID -> unit
	entities    map[string]map[string]*model.Entity      // bankID -> entityID -> entity
	unitEntities map[string]map[string]map[string]bool   // bankID -> unitID -> entityID set
	links       map[string]map[linkKey]*model.MemoryLink // bankID -> key -> link
	documents   map[string]map[string]*model.Document
	reflections map[string]map[string]*model.Reflection
	directives  map[string]map[string]*model.Directive
	operations  map[string]map[string]*model.Operation
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		banks:        make(map[string]*model.Bank),
		units:        make(map[string]map[string]*model.MemoryUnit),
		entities:     make(map[string]map[string]*model.Entity),
		unitEntities: make(map[string]map[string]map[string]bool),
		links:        make(map[string]map[linkKey]*model.MemoryLink),
		documents:    make(map[string]map[string]*model.Document),
		reflections:  make(map[string]map[string]*model.Reflection),
		directives:   make(map[string]map[string]*model.Directive),
		operations:   make(map[string]map[string]*model.Operation),
	}
}

// WithTx runs fn directly against s. It takes no lock of its own and does
// not roll back: writes fn made before returning an error remain.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, s)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ---- Bank ----

func (s *Store) CreateBank(ctx context.Context, bank model.Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banks[bank.BankID]; ok {
		return nil // idempotent: lazily-created banks should not error on re-create
	}
	if bank.CreatedAt.IsZero() {
		bank.CreatedAt = time.Now().UTC()
	}
	cp := bank
	s.banks[bank.BankID] = &cp
	s.units[bank.BankID] = make(map[string]*model.MemoryUnit)
	s.entities[bank.BankID] = make(map[string]*model.Entity)
	s.unitEntities[bank.BankID] = make(map[string]map[string]bool)
	s.links[bank.BankID] = make(map[linkKey]*model.MemoryLink)
	s.documents[bank.BankID] = make(map[string]*model.Document)
	s.reflections[bank.BankID] = make(map[string]*model.Reflection)
	s.directives[bank.BankID] = make(map[string]*model.Directive)
	s.operations[bank.BankID] = make(map[string]*model.Operation)
	return nil
}

func (s *Store) GetBank(ctx context.Context, bankID string) (*model.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[bankID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) SetBankMission(ctx context.Context, bankID, mission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	b.Mission = mission
	return nil
}

func (s *Store) SetBankDisposition(ctx context.Context, bankID string, d model.Disposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	b.Disposition = d
	return nil
}

func (s *Store) DeleteBank(ctx context.Context, bankID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banks, bankID)
	delete(s.units, bankID)
	delete(s.entities, bankID)
	delete(s.unitEntities, bankID)
	delete(s.links, bankID)
	delete(s.documents, bankID)
	delete(s.reflections, bankID)
	delete(s.directives, bankID)
	delete(s.operations, bankID)
	return nil
}

// ---- Units ----

func (s *Store) InsertUnits(ctx context.Context, bankID string, units []model.MemoryUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.units[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	for i := range units {
		u := units[i]
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		cp := u
		bucket[u.ID] = &cp
	}
	return nil
}

func (s *Store) GetUnit(ctx context.Context, bankID, unitID string) (*model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.units[bankID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	u, ok := bucket[unitID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "unit not found: "+unitID)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUnitsByIDs(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	out := make([]model.MemoryUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		if u, ok := bucket[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) DeleteUnitsByDocument(ctx context.Context, bankID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	var toDelete []string
	for id, u := range bucket {
		if u.DocumentID == documentID {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(bucket, id)
		delete(s.unitEntities[bankID], id)
	}
	for key := range s.links[bankID] {
		if contains(toDelete, key.from) || contains(toDelete, key.to) {
			delete(s.links[bankID], key)
		}
	}
	return nil
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) SetConsolidatedAt(ctx context.Context, bankID, unitID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	u, ok := bucket[unitID]
	if !ok {
		return errs.New(errs.KindNotFound, "unit not found: "+unitID)
	}
	t := at
	u.ConsolidatedAt = &t
	return nil
}

func (s *Store) WatermarkScan(ctx context.Context, bankID string) ([]model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	var out []model.MemoryUnit
	for _, u := range bucket {
		if (u.FactType == model.FactExperience || u.FactType == model.FactWorld) && u.ConsolidatedAt == nil {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func matchesFactTypes(ft model.FactType, want []model.FactType) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if ft == w {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *Store) VectorSearchUnits(ctx context.Context, bankID string, embedding []float32, k int, factTypes []model.FactType) ([]store.ScoredUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	var scored []store.ScoredUnit
	for _, u := range bucket {
		if !matchesFactTypes(u.FactType, factTypes) {
			continue
		}
		scored = append(scored, store.ScoredUnit{Unit: *u, Score: cosine(embedding, u.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Unit.CreatedAt.After(scored[j].Unit.CreatedAt)
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}

func (s *Store) LexicalSearchUnits(ctx context.Context, bankID, query string, k int, factTypes []model.FactType) ([]store.ScoredUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil, nil
	}
	qSet := make(map[string]bool, len(qTokens))
	for _, t := range qTokens {
		qSet[t] = true
	}
	var scored []store.ScoredUnit
	for _, u := range bucket {
		if !matchesFactTypes(u.FactType, factTypes) {
			continue
		}
		docTokens := tokenize(u.Text)
		if len(docTokens) == 0 {
			continue
		}
		var hits float64
		for _, t := range docTokens {
			if qSet[t] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		// document-frequency-ish normalization: reward overlap density.
		score := hits / math.Sqrt(float64(len(docTokens)))
		scored = append(scored, store.ScoredUnit{Unit: *u, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Unit.CreatedAt.After(scored[j].Unit.CreatedAt)
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) RecentUnits(ctx context.Context, bankID string, k int, factTypes []model.FactType) ([]model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.units[bankID]
	var all []model.MemoryUnit
	for _, u := range bucket {
		if matchesFactTypes(u.FactType, factTypes) {
			all = append(all, *u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all, nil
}

func (s *Store) UnitsByEntityIDs(ctx context.Context, bankID string, entityIDs []string, factTypes []model.FactType) ([]model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = true
	}
	var out []model.MemoryUnit
	for unitID, ents := range s.unitEntities[bankID] {
		matched := false
		for eid := range ents {
			if want[eid] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if u, ok := s.units[bankID][unitID]; ok && matchesFactTypes(u.FactType, factTypes) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) UnitsNearTime(ctx context.Context, bankID string, center time.Time, window time.Duration, k int, excludeUnitID string) ([]model.MemoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type cand struct {
		u     model.MemoryUnit
		delta time.Duration
	}
	var cands []cand
	for id, u := range s.units[bankID] {
		if id == excludeUnitID || u.EventDate == nil {
			continue
		}
		d := u.EventDate.Sub(center)
		if d < 0 {
			d = -d
		}
		if d <= window {
			cands = append(cands, cand{u: *u, delta: d})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].delta < cands[j].delta })
	if k > 0 && len(cands) > k {
		cands = cands[:k]
	}
	out := make([]model.MemoryUnit, len(cands))
	for i, c := range cands {
		out[i] = c.u
	}
	return out, nil
}

func (s *Store) MentalModelsByEmbedding(ctx context.Context, bankID string, embedding []float32, k int) ([]store.ScoredUnit, error) {
	return s.VectorSearchUnits(ctx, bankID, embedding, k, []model.FactType{model.FactMentalModel})
}

func (s *Store) InsertMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error {
	return s.InsertUnits(ctx, bankID, []model.MemoryUnit{unit})
}

func (s *Store) UpdateMentalModel(ctx context.Context, bankID string, unit model.MemoryUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.units[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	if _, ok := bucket[unit.ID]; !ok {
		return errs.New(errs.KindNotFound, "mental model not found: "+unit.ID)
	}
	cp := unit
	bucket[unit.ID] = &cp
	return nil
}

// ---- Entities ----

func (s *Store) InsertEntity(ctx context.Context, bankID string, e model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.entities[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	cp := e
	bucket[e.ID] = &cp
	return nil
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, bankID string, ids []string) ([]model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.entities[bankID]
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := bucket[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func (s *Store) GetEntityByNormalizedName(ctx context.Context, bankID, normalizedName string, t model.EntityType) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities[bankID] {
		if e.Type == t && normalizeName(e.CanonicalName) == normalizedName {
			cp := *e
			return &cp, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "entity not found")
}

func (s *Store) VectorSearchEntities(ctx context.Context, bankID string, embedding []float32, k int, t model.EntityType) ([]store.ScoredEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var scored []store.ScoredEntity
	for _, e := range s.entities[bankID] {
		if t != "" && e.Type != t {
			continue
		}
		scored = append(scored, store.ScoredEntity{Entity: *e, Score: cosine(embedding, e.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) LinkUnitsToEntities(ctx context.Context, bankID string, pairs []model.UnitEntityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.unitEntities[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	for _, p := range pairs {
		if bucket[p.UnitID] == nil {
			bucket[p.UnitID] = make(map[string]bool)
		}
		bucket[p.UnitID][p.EntityID] = true
	}
	return nil
}

func (s *Store) EntitiesForUnit(ctx context.Context, bankID, unitID string) ([]model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Entity
	for eid := range s.unitEntities[bankID][unitID] {
		if e, ok := s.entities[bankID][eid]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) UnitsForEntity(ctx context.Context, bankID, entityID, excludeUnitID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for unitID, ents := range s.unitEntities[bankID] {
		if unitID == excludeUnitID {
			continue
		}
		if ents[entityID] {
			out = append(out, unitID)
		}
	}
	return out, nil
}

// ---- Links ----

func entityKeyOf(id string) string {
	if id == "" {
		return model.ZeroEntityID
	}
	return id
}

func (s *Store) UpsertLinks(ctx context.Context, bankID string, links []model.MemoryLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.links[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	for _, l := range links {
		key := linkKey{from: l.FromUnitID, to: l.ToUnitID, typ: string(l.Type), entity: entityKeyOf(l.EntityID)}
		if existing, ok := bucket[key]; ok {
			// Conflict is treated as success; keep the higher weight.
			if l.Weight > existing.Weight {
				existing.Weight = l.Weight
			}
			continue
		}
		cp := l
		bucket[key] = &cp
	}
	return nil
}

func (s *Store) OutgoingLinks(ctx context.Context, bankID string, unitIDs []string) ([]model.MemoryLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		want[id] = true
	}
	var out []model.MemoryLink
	for _, l := range s.links[bankID] {
		if want[l.FromUnitID] {
			out = append(out, *l)
		}
	}
	return out, nil
}

// ---- Documents ----

func (s *Store) UpsertDocument(ctx context.Context, bankID string, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.documents[bankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+bankID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = time.Now().UTC()
	cp := doc
	bucket[doc.ID] = &cp
	return nil
}

func (s *Store) GetDocument(ctx context.Context, bankID, documentID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[bankID][documentID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "document not found: "+documentID)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) DeleteDocument(ctx context.Context, bankID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents[bankID], documentID)
	return nil
}

// ---- Reflections ----

func (s *Store) CreateReflection(ctx context.Context, r model.Reflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.reflections[r.BankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+r.BankID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = time.Now().UTC()
	cp := r
	bucket[r.ID] = &cp
	return nil
}

func (s *Store) GetReflection(ctx context.Context, bankID, id string) (*model.Reflection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reflections[bankID][id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "reflection not found: "+id)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) UpdateReflection(ctx context.Context, r model.Reflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.reflections[r.BankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+r.BankID)
	}
	if _, ok := bucket[r.ID]; !ok {
		return errs.New(errs.KindNotFound, "reflection not found: "+r.ID)
	}
	r.UpdatedAt = time.Now().UTC()
	cp := r
	bucket[r.ID] = &cp
	return nil
}

func (s *Store) DeleteReflection(ctx context.Context, bankID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reflections[bankID], id)
	return nil
}

func tagsMatch(tags []string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func (s *Store) ListReflections(ctx context.Context, bankID string, tags []string) ([]model.Reflection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reflection
	for _, r := range s.reflections[bankID] {
		if tagsMatch(r.Tags, tags) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) VectorSearchReflections(ctx context.Context, bankID string, embedding []float32, k int, tags []string) ([]store.ScoredReflection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var scored []store.ScoredReflection
	for _, r := range s.reflections[bankID] {
		if !tagsMatch(r.Tags, tags) {
			continue
		}
		scored = append(scored, store.ScoredReflection{Reflection: *r, Score: cosine(embedding, r.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// ---- Directives ----

func (s *Store) CreateDirective(ctx context.Context, d model.Directive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.directives[d.BankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+d.BankID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = time.Now().UTC()
	cp := d
	bucket[d.ID] = &cp
	return nil
}

func (s *Store) GetDirective(ctx context.Context, bankID, id string) (*model.Directive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.directives[bankID][id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "directive not found: "+id)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) UpdateDirective(ctx context.Context, d model.Directive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.directives[d.BankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+d.BankID)
	}
	if _, ok := bucket[d.ID]; !ok {
		return errs.New(errs.KindNotFound, "directive not found: "+d.ID)
	}
	d.UpdatedAt = time.Now().UTC()
	cp := d
	bucket[d.ID] = &cp
	return nil
}

func (s *Store) DeleteDirective(ctx context.Context, bankID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.directives[bankID], id)
	return nil
}

func (s *Store) ListActiveDirectives(ctx context.Context, bankID string, tags []string) ([]model.Directive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Directive
	for _, d := range s.directives[bankID] {
		if d.IsActive && tagsMatch(d.Tags, tags) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ---- Operations ----

func (s *Store) CreateOperation(ctx context.Context, op model.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.operations[op.BankID]
	if !ok {
		return errs.New(errs.KindNotFound, "bank not found: "+op.BankID)
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.UpdatedAt = op.CreatedAt
	cp := op
	bucket[op.ID] = &cp
	return nil
}

func (s *Store) GetOperation(ctx context.Context, bankID, id string) (*model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[bankID][id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "operation not found: "+id)
	}
	cp := *op
	return &cp, nil
}

func (s *Store) UpdateOperationStatus(ctx context.Context, bankID, id string, status model.OperationStatus, result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[bankID][id]
	if !ok {
		return errs.New(errs.KindNotFound, "operation not found: "+id)
	}
	op.Status = status
	op.Result = result
	op.Error = errMsg
	op.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.Store = (*Store)(nil)
