// Package cancellation implements the single-process CancellationToken
// described in spec.md §4.2.5/§9: one token per execution, multiplexing
// a user-cancel signal, a timeout-derived deadline, and a parent
// execution's token into a single context.Context every component
// observes cooperatively.
package cancellation

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
)

// Token is the per-execution cancellation handle.
type Token struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	reason domain.CancellationReason
}

// New derives a Token from parent, optionally bounded by a step/execution
// deadline. parent is itself a context.Context, so a parent-execution
// cancellation (ReasonParentCancelled) propagates automatically when the
// caller passes the parent execution's own Token.Context() in.
func New(parent context.Context, deadline time.Time) *Token {
	var ctx context.Context
	var cancel context.CancelFunc
	if deadline.IsZero() {
		ctx, cancel = context.WithCancel(parent)
	} else {
		ctx, cancel = context.WithDeadline(parent, deadline)
	}
	return &Token{ctx: ctx, cancel: cancel}
}

// Context returns the context.Context every blocking call should accept.
func (t *Token) Context() context.Context { return t.ctx }

// Cancel triggers cancellation with reason, idempotently: only the first
// call records the reason.
func (t *Token) Cancel(reason domain.CancellationReason) {
	t.mu.Lock()
	if t.reason == "" {
		t.reason = reason
	}
	t.mu.Unlock()
	t.cancel()
}

// Reason returns why the token was cancelled, or "" if it hasn't been.
func (t *Token) Reason() domain.CancellationReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Done reports whether the token has fired.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// CleanupFunc runs a bounded-time cleanup action for a cancelled step
// (e.g. kill a spawned subprocess, close an SSH channel).
type CleanupFunc func(ctx context.Context) error

// Drain runs cleanup with a fresh, short-lived context bounded by
// drainWindow, independent of the (already cancelled) token context, so
// cleanup can still make its own I/O calls.
func Drain(cleanup CleanupFunc, drainWindow time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), drainWindow)
	defer cancel()
	return cleanup(ctx)
}
