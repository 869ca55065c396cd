package selector

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/selector/tiebreak"
)

// recordingFallbackSink records every RecordFallback call so tests can
// assert a TIE_BREAK_FALLBACK was (or wasn't) recorded.
type recordingFallbackSink struct {
	calls []string
}

func (s *recordingFallbackSink) RecordFallback(ctx context.Context, executionID, decisionIntent, reason string) {
	s.calls = append(s.calls, executionID+":"+reason)
}

func fastPattern(name string, timeMS, cost, complexity, accuracy, completeness float64) domain.PerformancePattern {
	return domain.PerformancePattern{
		Name:          name,
		TimeMsFormula: strconv.FormatFloat(timeMS, 'f', -1, 64),
		CostFormula:   strconv.FormatFloat(cost, 'f', -1, 64),
		Complexity:    complexity,
		Accuracy:      accuracy,
		Completeness:  completeness,
	}
}

func toolWithCapability(name string, capability string) domain.ToolSpec {
	return domain.ToolSpec{
		ToolName:     name,
		Enabled:      true,
		Capabilities: []string{capability},
		Policy:       domain.Policy{MaxCost: 100, ProductionSafe: true},
	}
}

func TestSelectPicksHighestScoringCandidateUnderFastMode(t *testing.T) {
	fastTool := toolWithCapability("fast_tool", "restart")
	slowTool := toolWithCapability("slow_tool", "restart")

	candidates := []Candidate{
		{Tool: fastTool, Pattern: fastPattern("default", 100, 1, 0.1, 0.9, 0.9)},
		{Tool: slowTool, Pattern: fastPattern("default", 50000, 1, 0.1, 0.9, 0.9)},
	}

	result, err := Select(context.Background(), Request{Mode: ModeFast}, candidates, []string{"restart"}, nil, "restart the service", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast_tool", result.Selected.Tool.ToolName)
	assert.False(t, result.TieBreakUsed)
}

func TestSelectFiltersCandidatesExceedingMaxCost(t *testing.T) {
	expensive := toolWithCapability("expensive_tool", "restart")
	expensive.Policy.MaxCost = 1

	candidates := []Candidate{
		{Tool: expensive, Pattern: fastPattern("default", 100, 5, 0.1, 0.9, 0.9)},
	}

	_, err := Select(context.Background(), Request{Mode: ModeCheap}, candidates, []string{"restart"}, nil, "restart", 0, nil)
	assert.Error(t, err)
}

func TestSelectRejectsNonProductionSafeToolInProduction(t *testing.T) {
	unsafe := toolWithCapability("unsafe_tool", "restart")
	unsafe.Policy.ProductionSafe = false

	candidates := []Candidate{
		{Tool: unsafe, Pattern: fastPattern("default", 100, 1, 0.1, 0.9, 0.9)},
	}

	_, err := Select(context.Background(), Request{Mode: ModeFast, Environment: "production"}, candidates, []string{"restart"}, nil, "restart", 0, nil)
	assert.Error(t, err)
}

type stubTieBreaker struct {
	result tiebreak.Result
	err    error
}

func (s stubTieBreaker) Break(ctx context.Context, req tiebreak.Request) (tiebreak.Result, error) {
	return s.result, s.err
}

func TestSelectInvokesTieBreakerWhenScoresAreClose(t *testing.T) {
	a := toolWithCapability("tool_a", "restart")
	b := toolWithCapability("tool_b", "restart")

	candidates := []Candidate{
		{Tool: a, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
		{Tool: b, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
	}

	tb := stubTieBreaker{result: tiebreak.Result{ChosenIndex: 1, Rationale: "prefers b"}}
	result, err := Select(context.Background(), Request{Mode: ModeBalanced}, candidates, []string{"restart"}, tb, "restart", 0, nil)
	require.NoError(t, err)
	assert.True(t, result.TieBreakUsed)
	assert.Equal(t, "tool_b", result.Selected.Tool.ToolName)
}

func TestSelectFallsBackToDeterministicTopOnTieBreakerError(t *testing.T) {
	a := toolWithCapability("tool_a", "restart")
	b := toolWithCapability("tool_b", "restart")

	candidates := []Candidate{
		{Tool: a, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
		{Tool: b, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
	}

	tb := stubTieBreaker{err: assertErr("timeout")}
	sink := &recordingFallbackSink{}
	result, err := Select(context.Background(), Request{Mode: ModeBalanced, ExecutionID: "exec-1"}, candidates, []string{"restart"}, tb, "restart", 0, sink)
	require.NoError(t, err)
	assert.False(t, result.TieBreakUsed)
	require.Len(t, sink.calls, 1, "a TIE_BREAK_FALLBACK must be recorded when the tie-breaker errors")
	assert.Equal(t, "exec-1:timeout", sink.calls[0])
}

func TestSelectSkipsFallbackEventWhenNoExecutionIDIsSet(t *testing.T) {
	a := toolWithCapability("tool_a", "restart")
	b := toolWithCapability("tool_b", "restart")

	candidates := []Candidate{
		{Tool: a, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
		{Tool: b, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
	}

	tb := stubTieBreaker{err: assertErr("timeout")}
	sink := &recordingFallbackSink{}
	_, err := Select(context.Background(), Request{Mode: ModeBalanced}, candidates, []string{"restart"}, tb, "restart", 0, sink)
	require.NoError(t, err)
	assert.Empty(t, sink.calls, "the stateless explain path has no execution to attach the event to")
}

// slowTieBreaker blocks until ctx is cancelled, so a positive llmTimeout
// is the only thing that can make it return in time.
type slowTieBreaker struct{}

func (slowTieBreaker) Break(ctx context.Context, req tiebreak.Request) (tiebreak.Result, error) {
	<-ctx.Done()
	return tiebreak.Result{}, ctx.Err()
}

func TestSelectEnforcesConfiguredLLMTimeout(t *testing.T) {
	a := toolWithCapability("tool_a", "restart")
	b := toolWithCapability("tool_b", "restart")

	candidates := []Candidate{
		{Tool: a, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
		{Tool: b, Pattern: fastPattern("default", 1000, 1, 0.1, 0.9, 0.9)},
	}

	sink := &recordingFallbackSink{}
	start := time.Now()
	result, err := Select(context.Background(), Request{Mode: ModeBalanced, ExecutionID: "exec-1"}, candidates, []string{"restart"}, slowTieBreaker{}, "restart", 20*time.Millisecond, sink)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, result.TieBreakUsed)
	assert.Less(t, elapsed, time.Second, "llmTimeout must bound the tie-breaker call rather than blocking indefinitely")
	require.Len(t, sink.calls, 1)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
