package secretsbroker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/secretsbroker/handle"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

func newTestBroker() (*Broker, *memstore.CredentialStore) {
	creds := memstore.NewCredentialStore()
	audit := memstore.NewAuditStore()
	b := NewBroker(creds, audit, handle.NewRegistry(0), "test-master-key", "correct-internal-key")
	return b, creds
}

func TestBrokerUpsertAndLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker()

	require.NoError(t, b.Upsert(ctx, "correct-internal-key", "actor-1", "host-1", "ssh", "svc_deploy", "s3cr3t", "CORP"))

	result, err := b.Lookup(ctx, "correct-internal-key", "actor-1", "host-1", "ssh")
	require.NoError(t, err)
	assert.Equal(t, "s*********", result.RedactedUsername)
	assert.NotEmpty(t, result.Handle)

	plaintext, ok := b.Resolve(result.Handle)
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", plaintext)

	_, ok = b.Resolve(result.Handle)
	assert.False(t, ok, "handle should be single-use")
}

func TestBrokerWrongInternalKeyLooksLikeNotFound(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker()
	require.NoError(t, b.Upsert(ctx, "correct-internal-key", "actor-1", "host-1", "ssh", "svc_deploy", "s3cr3t", "CORP"))

	_, err := b.Lookup(ctx, "wrong-key", "actor-1", "host-1", "ssh")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestBrokerLookupMissingCredentialIsNotFound(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker()

	_, err := b.Lookup(ctx, "correct-internal-key", "actor-1", "no-such-host", "ssh")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestBrokerDeleteRemovesCredential(t *testing.T) {
	ctx := context.Background()
	b, creds := newTestBroker()
	require.NoError(t, b.Upsert(ctx, "correct-internal-key", "actor-1", "host-1", "ssh", "svc_deploy", "s3cr3t", "CORP"))

	require.NoError(t, b.Delete(ctx, "correct-internal-key", "actor-1", "host-1", "ssh"))

	_, err := creds.Get(ctx, "host-1", "ssh")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTripAndTamperDetection(t *testing.T) {
	ciphertext, err := encrypt("master-key", "hunter2")
	require.NoError(t, err)

	plaintext, err := decrypt("master-key", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = decrypt("master-key", tampered)
	assert.Error(t, err)
}
