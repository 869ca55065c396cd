package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGuard struct {
	name      string
	log       *[]string
	failBefore bool
}

func (g *recordingGuard) Name() string { return g.name }

func (g *recordingGuard) Before(ctx context.Context, sc *StepContext) error {
	*g.log = append(*g.log, g.name+":before")
	if g.failBefore {
		return errors.New(g.name + " rejected")
	}
	return nil
}

func (g *recordingGuard) After(ctx context.Context, sc *StepContext, stepErr error) error {
	*g.log = append(*g.log, g.name+":after")
	return nil
}

func TestChainRunsGuardsInOrderAndUnwindsAfterInReverse(t *testing.T) {
	var log []string
	chain := NewChain(
		&recordingGuard{name: "a", log: &log},
		&recordingGuard{name: "b", log: &log},
		&recordingGuard{name: "c", log: &log},
	)

	err := chain.Run(context.Background(), &StepContext{}, func(ctx context.Context, sc *StepContext) error {
		log = append(log, "step")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "c:before", "step", "c:after", "b:after", "a:after"}, log)
}

func TestChainStopsAtFirstBeforeFailureButStillRunsAfterForStartedGuards(t *testing.T) {
	var log []string
	chain := NewChain(
		&recordingGuard{name: "a", log: &log},
		&recordingGuard{name: "b", log: &log, failBefore: true},
		&recordingGuard{name: "c", log: &log},
	)

	stepRan := false
	err := chain.Run(context.Background(), &StepContext{}, func(ctx context.Context, sc *StepContext) error {
		stepRan = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, stepRan, "step must never run once a guard's Before rejects it")
	assert.Equal(t, []string{"a:before", "b:before", "a:after"}, log, "c never started, so c.After must not run")
}

func TestChainPropagatesStepErrorOverAfterSuccess(t *testing.T) {
	var log []string
	chain := NewChain(&recordingGuard{name: "a", log: &log})
	stepErr := errors.New("step failed")

	err := chain.Run(context.Background(), &StepContext{}, func(ctx context.Context, sc *StepContext) error {
		return stepErr
	})
	assert.Equal(t, stepErr, err)
}
