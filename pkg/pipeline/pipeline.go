// Package pipeline implements the turn-processing core: an ordered
// middleware chain over per-turn contexts, with interceptable outbound
// send/update/delete operations terminating in a channel transport.
package pipeline

import (
	"context"
)

// Handler processes one turn. The terminal handler at the bottom of the
// chain is where application logic runs.
type Handler func(ctx context.Context, tc *TurnContext) error

// Middleware observes and transforms a turn. It may run logic before and
// after invoking next, and may decline to invoke next to short-circuit
// the remainder of the chain.
type Middleware interface {
	OnTurn(ctx context.Context, tc *TurnContext, next Handler) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, tc *TurnContext, next Handler) error

func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *TurnContext, next Handler) error {
	return f(ctx, tc, next)
}

// Chain holds an ordered sequence of middleware. Order is significant:
// middleware run in registration order on the way in and in reverse order
// on the way out.
type Chain struct {
	stack []Middleware
}

// NewChain builds a chain from the given middleware, in order.
func NewChain(mw ...Middleware) *Chain {
	return &Chain{stack: append([]Middleware(nil), mw...)}
}

// Use appends middleware to the end of the chain.
func (c *Chain) Use(mw ...Middleware) *Chain {
	c.stack = append(c.stack, mw...)
	return c
}

// Len returns the number of registered middleware.
func (c *Chain) Len() int { return len(c.stack) }

// Run folds the chain right-to-left into a single handler wrapping
// terminal, then invokes it. A nil terminal is treated as a no-op. An
// error raised by any middleware aborts the remainder of the chain and
// propagates to the caller.
func (c *Chain) Run(ctx context.Context, tc *TurnContext, terminal Handler) error {
	h := terminal
	if h == nil {
		h = func(context.Context, *TurnContext) error { return nil }
	}
	for i := len(c.stack) - 1; i >= 0; i-- {
		mw, next := c.stack[i], h
		h = func(ctx context.Context, tc *TurnContext) error {
			return mw.OnTurn(ctx, tc, next)
		}
	}
	return h(ctx, tc)
}
