package safety

import (
	"context"

	"github.com/opsforge/execcore/pkg/safety/secretwalk"
)

// SecretsGuard resolves {"type":"secret","path":...} leaves in a
// step's inputs before dispatch, and releases them after, per spec.md
// §4.2.4. Resolved plaintext lands only in StepContext.Resolved, never
// back into Inputs, so a logger that accidentally serializes Inputs
// cannot leak it; LogMasker is the backstop for everything that does
// reach a sink.
type SecretsGuard struct {
	resolver secretwalk.Resolver
}

func NewSecretsGuard(resolver secretwalk.Resolver) *SecretsGuard {
	return &SecretsGuard{resolver: resolver}
}

func (g *SecretsGuard) Name() string { return "secrets" }

func (g *SecretsGuard) Before(ctx context.Context, sc *StepContext) error {
	if len(sc.Inputs) == 0 {
		sc.Resolved = sc.Inputs
		return nil
	}
	resolved, err := secretwalk.Walk(ctx, map[string]any(sc.Inputs), g.resolver)
	if err != nil {
		return err
	}
	sc.Resolved = resolved.(map[string]any)
	return nil
}

// After releases resolved secret material by clearing the map so the
// step's StepContext value can't be read after the step has finished;
// the resolver itself owns any best-effort zeroization of secrets it
// handed out.
func (g *SecretsGuard) After(ctx context.Context, sc *StepContext, stepErr error) error {
	for k := range sc.Resolved {
		delete(sc.Resolved, k)
	}
	return nil
}
