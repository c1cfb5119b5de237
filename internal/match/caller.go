package match

import (
	"context"
	"errors"
	"time"

	"github.com/agentduel/agents/internal/agent"
)

// errCallbackTimeout marks a callback that exceeded its deadline.
var errCallbackTimeout = errors.New("agent callback exceeded the turn timeout")

type callReply struct {
	action agent.Action
	err    error
}

type callRequest struct {
	ctx   context.Context
	fn    func(context.Context) (agent.Action, error)
	reply chan callReply
}

// caller serializes callbacks onto one agent. Each agent gets a dedicated
// worker goroutine, so a timed-out callback keeps running to completion on
// the worker while the driver proceeds, and the next callback cannot enter
// the agent until the stale one has returned. Agent state is therefore never
// touched concurrently.
type caller struct {
	requests chan callRequest
}

func newCaller() *caller {
	c := &caller{requests: make(chan callRequest)}
	go c.loop()
	return c
}

func (c *caller) loop() {
	for req := range c.requests {
		action, err := req.fn(req.ctx)
		req.reply <- callReply{action: action, err: err}
	}
}

// invoke runs one callback with a bounded deadline. The deadline covers
// queueing behind a stale call as well as the call itself, so the driver is
// never blocked past the timeout. Parent-context cancellation wins over the
// timeout in the returned error.
func (c *caller) invoke(ctx context.Context, timeout time.Duration, fn func(context.Context) (agent.Action, error)) (agent.Action, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := callRequest{ctx: callCtx, fn: fn, reply: make(chan callReply, 1)}
	select {
	case c.requests <- req:
	case <-callCtx.Done():
		return nil, expireErr(ctx)
	}
	select {
	case reply := <-req.reply:
		return reply.action, reply.err
	case <-callCtx.Done():
		return nil, expireErr(ctx)
	}
}

// close releases the worker once any in-flight callback returns.
func (c *caller) close() {
	close(c.requests)
}

func expireErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return errCallbackTimeout
}
