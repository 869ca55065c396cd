package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CredentialStore is an in-memory CredentialRepository keyed by
// (host, purpose). It stores only what the secrets broker already
// encrypted; memstore never sees plaintext.
type CredentialStore struct {
	mu    sync.Mutex
	byKey map[string]*domain.Credential
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{byKey: make(map[string]*domain.Credential)}
}

func credKey(host, purpose string) string { return host + ":" + purpose }

func (s *CredentialStore) Upsert(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	key := credKey(cred.Host, cred.Purpose)
	if existing, ok := s.byKey[key]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	cp := *cred
	cp.Ciphertext = append([]byte(nil), cred.Ciphertext...)
	s.byKey[key] = &cp
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, host, purpose string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byKey[credKey(host, purpose)]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "credential not found")
	}
	cp := *cred
	cp.Ciphertext = append([]byte(nil), cred.Ciphertext...)
	return &cp, nil
}

func (s *CredentialStore) Delete(ctx context.Context, host, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credKey(host, purpose)
	if _, ok := s.byKey[key]; !ok {
		return apperr.New(apperr.KindNotFound, "credential not found")
	}
	delete(s.byKey, key)
	return nil
}

// AuditStore is an in-memory, append-only AuditRepository for the secrets
// broker's access log.
type AuditStore struct {
	mu      sync.Mutex
	entries []repository.AuditEntry
}

func NewAuditStore() *AuditStore { return &AuditStore{} }

func (s *AuditStore) Append(ctx context.Context, entry repository.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.entries = append(s.entries, entry)
	return nil
}

// All returns a defensive copy of every recorded entry, in append order.
// Used by tests and by an operator-facing audit export; not part of
// repository.AuditRepository since no SPEC_FULL.md component reads the
// log back through that interface.
func (s *AuditStore) All() []repository.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.AuditEntry(nil), s.entries...)
}
