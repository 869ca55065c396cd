package secretsbroker

import (
	"context"
	"strings"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// StepResolver adapts Broker to safety/secretwalk.Resolver: a secret
// reference's path is "<host>/<purpose>", looked up and redeemed
// in-process (no internal-key header hop, since the engine and the
// broker share a process or a trusted internal call here) so the
// plaintext lands directly in a step's resolved inputs.
type StepResolver struct {
	broker      *Broker
	internalKey string
	actor       string
}

// NewStepResolver builds a resolver bound to actor (recorded on every
// audit entry the lookup produces).
func NewStepResolver(broker *Broker, internalKey, actor string) *StepResolver {
	return &StepResolver{broker: broker, internalKey: internalKey, actor: actor}
}

func (r *StepResolver) Resolve(ctx context.Context, path string) (string, error) {
	host, purpose, ok := strings.Cut(path, "/")
	if !ok {
		return "", apperr.Newf(apperr.KindValidation, "secret reference %q must be host/purpose", path)
	}

	result, err := r.broker.Lookup(ctx, r.internalKey, r.actor, host, purpose)
	if err != nil {
		return "", err
	}
	plaintext, ok := r.broker.Resolve(result.Handle)
	if !ok {
		return "", apperr.New(apperr.KindInternal, "secret handle expired before redemption")
	}
	return plaintext, nil
}
