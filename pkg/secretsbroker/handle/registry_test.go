package handle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIssueAndRedeemIsSingleUse(t *testing.T) {
	r := NewRegistry(time.Minute)
	h := r.Issue("s3cr3t")

	plaintext, ok := r.Redeem(h)
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", plaintext)

	_, ok = r.Redeem(h)
	assert.False(t, ok)
}

func TestRegistryRedeemAfterExpiryFails(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	h := r.Issue("s3cr3t")

	time.Sleep(20 * time.Millisecond)
	_, ok := r.Redeem(h)
	assert.False(t, ok)
}

func TestRegistryPurgeRemovesExpiredEntries(t *testing.T) {
	r := NewRegistry(time.Millisecond)
	r.Issue("a")
	r.Issue("b")

	removed := r.Purge(time.Now().Add(time.Second))
	assert.Equal(t, 2, removed)
}
