package selector

import (
	"github.com/opsforge/execcore/pkg/domain"
)

// Mode is the user's stated preference, weighting which feature Stage B
// optimizes for.
type Mode string

const (
	ModeFast     Mode = "FAST"
	ModeAccurate Mode = "ACCURATE"
	ModeThorough Mode = "THOROUGH"
	ModeCheap    Mode = "CHEAP"
	ModeSimple   Mode = "SIMPLE"
	ModeBalanced Mode = "BALANCED"
)

// Candidate is one (tool, pattern) pair eligible for a decision, with
// the runtime context Stage B needs to evaluate its formulas.
type Candidate struct {
	Tool    domain.ToolSpec
	Pattern domain.PerformancePattern
}

// Request bundles the per-call inputs to Select (the required
// capabilities are a separate argument): the caller's preference mode, the
// execution environment, and runtime variables for formula evaluation (N,
// pages, p95_latency, ...).
type Request struct {
	Mode            Mode
	Environment     string
	AvailablePerms  []string
	Vars            map[string]float64
	MaxCostOverride float64 // 0 means "use the tool's own MaxCost"

	// ExecutionID, when non-empty, is threaded into any TIE_BREAK_FALLBACK
	// event Select emits so it lands on that execution's event stream.
	ExecutionID string
}

// Features holds the three formula-derived raw values plus the two
// passthrough quality scores, before normalization.
type Features struct {
	TimeMS       float64
	Cost         float64
	Complexity   float64
	Accuracy     float64
	Completeness float64
}

// ScoredCandidate is one candidate after normalization, policy
// filtering, and scoring.
type ScoredCandidate struct {
	Candidate Candidate
	Raw       Features
	Norm      Features
	Score     float64
	Rejected  string // non-empty if removed by a hard policy filter
}

// Result is Select's output: the chosen candidate, a ranked list for
// explainability, and whether the LLM tie-breaker was invoked.
type Result struct {
	Selected        Candidate
	Justification   string
	ExecutionHints  map[string]any
	Ranked          []ScoredCandidate
	TieBreakUsed    bool
	TieBreakReason  string
}
