package secretwalk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	values map[string]string
}

func (r *stubResolver) Resolve(ctx context.Context, path string) (string, error) {
	return r.values[path], nil
}

func TestWalkResolvesNestedSecretReferences(t *testing.T) {
	resolver := &stubResolver{values: map[string]string{"vault://db/password": "hunter2"}}
	input := map[string]any{
		"host": "db.internal",
		"auth": map[string]any{
			"password": map[string]any{"type": "secret", "path": "vault://db/password"},
			"username": "svc-account",
		},
		"tags": []any{"prod", map[string]any{"type": "secret", "path": "vault://db/password"}},
	}

	out, err := Walk(context.Background(), input, resolver)
	require.NoError(t, err)

	resolved := out.(map[string]any)
	assert.Equal(t, "db.internal", resolved["host"])
	auth := resolved["auth"].(map[string]any)
	assert.Equal(t, "hunter2", auth["password"])
	assert.Equal(t, "svc-account", auth["username"])
	tags := resolved["tags"].([]any)
	assert.Equal(t, "hunter2", tags[1])
}

func TestWalkLeavesNonSecretMapsUntouched(t *testing.T) {
	resolver := &stubResolver{}
	input := map[string]any{"type": "secret"} // missing "path" — not a valid ref
	out, err := Walk(context.Background(), input, resolver)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}
