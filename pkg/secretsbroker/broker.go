// Package secretsbroker implements the internal-only secrets broker from
// spec.md §4.6: AES-256-GCM storage keyed by (host, purpose), an
// internal-key-gated API whose every failure mode renders as 404 to
// avoid distinguishing "wrong key" from "not found", and an append-only
// audit trail of every upsert/lookup/delete.
package secretsbroker

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/opsforge/execcore/pkg/audit"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/secretsbroker/handle"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// LookupResult is what Lookup returns to a caller: never plaintext, a
// redacted username, and a short-lived handle the automation client
// resolves just-in-time at the target-host boundary.
type LookupResult struct {
	Handle           string
	RedactedUsername string
	Domain           string
}

// Broker is the secrets broker's public API. Every method requires a
// constant-time-compared internal key; a mismatch or empty key is
// rendered identically to NOT_FOUND by every method here, and it is the
// HTTP layer's job to never leak the distinction either.
type Broker struct {
	credentials repository.CredentialRepository
	audit       *audit.Log
	handles     *handle.Registry
	masterKey   string
	internalKey string
}

func NewBroker(credentials repository.CredentialRepository, auditRepo repository.AuditRepository, handles *handle.Registry, masterKey, internalKey string) *Broker {
	if handles == nil {
		handles = handle.NewRegistry(handle.DefaultTTL)
	}
	return &Broker{credentials: credentials, audit: audit.NewLog(auditRepo), handles: handles, masterKey: masterKey, internalKey: internalKey}
}

// checkInternalKey reports whether presented matches the broker's
// configured internal key, in constant time so a timing side-channel
// can't shorten a brute-force search.
func (b *Broker) checkInternalKey(presented string) bool {
	if presented == "" || b.internalKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(b.internalKey)) == 1
}

func errNotFound() error {
	return apperr.New(apperr.KindNotFound, "credential not found")
}

// Upsert stores username/plaintext encrypted under (host, purpose).
func (b *Broker) Upsert(ctx context.Context, internalKey, actor, host, purpose, username, plaintext, domainName string) error {
	if !b.checkInternalKey(internalKey) {
		b.record(ctx, actor, host, purpose, "upsert", "denied")
		return errNotFound()
	}
	ciphertext, err := encrypt(b.masterKey, plaintext)
	if err != nil {
		b.record(ctx, actor, host, purpose, "upsert", "error")
		return err
	}
	cred := &domain.Credential{
		Host: host, Purpose: purpose, Username: username,
		Ciphertext: ciphertext, Domain: domainName, UpdatedAt: time.Now(),
	}
	if err := b.credentials.Upsert(ctx, cred); err != nil {
		b.record(ctx, actor, host, purpose, "upsert", "error")
		return err
	}
	b.record(ctx, actor, host, purpose, "upsert", "ok")
	return nil
}

// Lookup returns a redacted view plus a one-time handle; the caller
// never sees plaintext directly.
func (b *Broker) Lookup(ctx context.Context, internalKey, actor, host, purpose string) (LookupResult, error) {
	if !b.checkInternalKey(internalKey) {
		b.record(ctx, actor, host, purpose, "lookup", "denied")
		return LookupResult{}, errNotFound()
	}
	cred, err := b.credentials.Get(ctx, host, purpose)
	if err != nil {
		b.record(ctx, actor, host, purpose, "lookup", "not_found")
		return LookupResult{}, errNotFound()
	}
	plaintext, err := decrypt(b.masterKey, cred.Ciphertext)
	if err != nil {
		b.record(ctx, actor, host, purpose, "lookup", "decrypt_error")
		return LookupResult{}, err
	}
	h := b.handles.Issue(plaintext)
	b.record(ctx, actor, host, purpose, "lookup", "ok")
	return LookupResult{Handle: h, RedactedUsername: redact(cred.Username), Domain: cred.Domain}, nil
}

// Delete removes the (host, purpose) credential.
func (b *Broker) Delete(ctx context.Context, internalKey, actor, host, purpose string) error {
	if !b.checkInternalKey(internalKey) {
		b.record(ctx, actor, host, purpose, "delete", "denied")
		return errNotFound()
	}
	if err := b.credentials.Delete(ctx, host, purpose); err != nil {
		b.record(ctx, actor, host, purpose, "delete", "error")
		return err
	}
	b.record(ctx, actor, host, purpose, "delete", "ok")
	return nil
}

// Resolve is the automation client's just-in-time call: it redeems a
// handle for the plaintext secret at the target-host boundary, never
// before. Handles are one-time use.
func (b *Broker) Resolve(h string) (string, bool) {
	return b.handles.Redeem(h)
}

func (b *Broker) record(ctx context.Context, actor, host, purpose, action, outcome string) {
	_ = b.audit.Record(ctx, actor, host, purpose, action, outcome)
}

// redact keeps only the first character of a username, e.g. "svc_deploy"
// -> "s*********", so logs and API responses never carry a full
// identifier that could itself be sensitive.
func redact(username string) string {
	if len(username) <= 1 {
		return username
	}
	runes := []rune(username)
	out := make([]rune, len(runes))
	out[0] = runes[0]
	for i := 1; i < len(runes); i++ {
		out[i] = '*'
	}
	return string(out)
}
