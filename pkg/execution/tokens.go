package execution

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/safety/cancellation"
)

// TokenManager owns the live cancellation.Token for every in-flight
// execution on this process, implementing safety.TokenLookup.
type TokenManager struct {
	mu     sync.Mutex
	tokens map[string]*cancellation.Token
}

func NewTokenManager() *TokenManager {
	return &TokenManager{tokens: make(map[string]*cancellation.Token)}
}

// Start creates a new token for executionID bounded by deadline (zero
// value means no deadline beyond explicit cancellation), derived from
// parentCtx so a worker-shutdown context cancels every token it owns.
func (m *TokenManager) Start(parentCtx context.Context, executionID string, deadline time.Time) *cancellation.Token {
	token := cancellation.New(parentCtx, deadline)
	m.mu.Lock()
	m.tokens[executionID] = token
	m.mu.Unlock()
	return token
}

// TokenFor implements safety.TokenLookup.
func (m *TokenManager) TokenFor(executionID string) (*cancellation.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[executionID]
	return token, ok
}

// Cancel triggers the named execution's token, if still tracked.
func (m *TokenManager) Cancel(executionID string, reason domain.CancellationReason) {
	m.mu.Lock()
	token, ok := m.tokens[executionID]
	m.mu.Unlock()
	if ok {
		token.Cancel(reason)
	}
}

// Release stops tracking executionID's token, called once it reaches a
// terminal status so the map doesn't grow unbounded.
func (m *TokenManager) Release(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, executionID)
}
