package recall

import "time"

// QueryInfo is the trace's first section: what was asked and how it was
// resolved before seed gathering.
type QueryInfo struct {
	Query         string
	BankID        string
	Budget        string
	TemporalStart *time.Time
	TemporalEnd   *time.Time
}

// EntryPoint is one unit surfaced by a seed signal, with its normalized
// raw score.
type EntryPoint struct {
	UnitID   string
	Signal   string
	RawScore float64
}

// NodeVisit is one unit's activation value at the end of one spreading
// round.
type NodeVisit struct {
	Round      int
	UnitID     string
	Activation float64
}

// LinkInfo is one edge traversed during spreading activation.
type LinkInfo struct {
	FromUnitID string
	ToUnitID   string
	Type       string
	Weight     float64
}

// PruningDecision records a candidate-set size change at one pipeline
// boundary.
type PruningDecision struct {
	Stage  string
	Before int
	After  int
}

// PhaseMetric times one pipeline stage.
type PhaseMetric struct {
	Phase       string
	DurationMS  int64
	InputCount  int
	OutputCount int
}

// Summary is the trace's closing tally.
type Summary struct {
	SeedCount       int
	ShortlistCount  int
	FinalCount      int
	TotalDurationMS int64
}

// Trace is the stable nested structure recall emits when enable_trace is
// set. Every field is populated (with an empty slice/zero value, never
// nil-vs-absent) even when a stage produced nothing.
type Trace struct {
	QueryInfo        QueryInfo
	EntryPoints      []EntryPoint
	NodeVisits       []NodeVisit
	WeightComponents map[string]float64
	LinkInfo         []LinkInfo
	PruningDecisions []PruningDecision
	Summary          Summary
	PhaseMetrics     []PhaseMetric
}

func newTrace() *Trace {
	return &Trace{
		EntryPoints:      []EntryPoint{},
		NodeVisits:       []NodeVisit{},
		WeightComponents: map[string]float64{},
		LinkInfo:         []LinkInfo{},
		PruningDecisions: []PruningDecision{},
		PhaseMetrics:     []PhaseMetric{},
	}
}

func recordSeedTrace(trace *Trace, signals []seedSignal) {
	for _, sig := range signals {
		maxScore := 0.0
		for _, s := range sig.scores {
			if s > maxScore {
				maxScore = s
			}
		}
		trace.WeightComponents[sig.name] = maxScore
		for unitID, score := range sig.scores {
			trace.EntryPoints = append(trace.EntryPoints, EntryPoint{UnitID: unitID, Signal: sig.name, RawScore: score})
		}
	}
}
