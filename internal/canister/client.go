package canister

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/wire"
)

// DefaultMaxInflight is the default bound on simultaneous in-flight
// canister calls.
const DefaultMaxInflight = 10

// rediscoverDebounce is the minimum interval between catalog refreshes
// triggered by a Canister.NotFound reject. golang.org/x/time/rate's token
// bucket gives the bridge a one-line "has enough time passed since the
// last refresh" check without hand-rolling a mutex and timestamp pair.
const rediscoverDebounce = 5 * time.Second

// Client is the typed RPC agent for one canister: one long-lived Transport, a
// fresh-every-call identity resolution, a per-call timeout and a FIFO
// semaphore bounding concurrent in-flight calls.
type Client struct {
	transport  Transport
	canisterID ids.CanisterId
	timeout    time.Duration
	sem        *semaphore.Weighted

	// refreshLimiter allows the bridge to ask "may I refresh the catalog now" at
	// most once per rediscoverDebounce without tracking timestamps itself.
	refreshLimiter *rate.Limiter
}

// NewClient constructs a Client bound to one canister, with maxInflight
// simultaneous calls permitted (DefaultMaxInflight if <= 0).
func NewClient(transport Transport, canisterID ids.CanisterId, timeout time.Duration, maxInflight int) *Client {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	return &Client{
		transport:      transport,
		canisterID:     canisterID,
		timeout:        timeout,
		sem:            semaphore.NewWeighted(int64(maxInflight)),
		refreshLimiter: rate.NewLimiter(rate.Every(rediscoverDebounce), 1),
	}
}

// ListTools performs the single query call returning the canister's tool
// metadata JSON blob.
func (c *Client) ListTools(ctx context.Context) (json.RawMessage, error) {
	v, err := c.callWithBudget(ctx, func(ctx context.Context) (wire.Value, error) {
		return c.transport.Query(ctx, c.canisterID.String(), "list_tools", wire.Null())
	})
	if err != nil {
		return nil, err
	}
	text, ok := v.AsText()
	if !ok {
		return nil, internalDecode(fmt.Errorf("list_tools: expected a text reply, got %s", v.Kind()))
	}
	return json.RawMessage(text), nil
}

// Call performs one typed canister call under the current identity,
// enforcing the per-call timeout and the in-flight concurrency bound. A
// successful reply whose value is a result variant is unwrapped: an Ok
// payload becomes the call's value, an Err payload a Canister.UserError.
func (c *Client) Call(ctx context.Context, method string, arg wire.Value) (wire.Value, error) {
	v, err := c.callWithBudget(ctx, func(ctx context.Context) (wire.Value, error) {
		return c.transport.Call(ctx, c.canisterID.String(), method, arg)
	})
	if err != nil {
		return wire.Value{}, err
	}
	return unwrapResult(v)
}

// unwrapResult applies the result-variant convention to a successful reply:
// tool functions returning a result-like type reply with a Variant tagged
// "Ok" (payload is the success value) or "Err" (payload is the failure the
// canister wants the caller to see). Variants carrying any other tag are
// ordinary values and pass through untouched.
func unwrapResult(v wire.Value) (wire.Value, error) {
	tag, payload, ok := v.AsVariant()
	if !ok {
		return v, nil
	}
	switch tag {
	case "Ok", "ok":
		return payload, nil
	case "Err", "err":
		msg, isText := payload.AsText()
		if !isText {
			if j, err := wire.ToJSON(payload); err == nil {
				if raw, err := json.Marshal(j); err == nil {
					msg = string(raw)
				}
			}
		}
		return wire.Value{}, icaruserr.New(icaruserr.KindInternal, icaruserr.TagCanisterUserError, icaruserr.SeverityUser, msg)
	default:
		return v, nil
	}
}

// ShouldRediscover reports whether enough time has elapsed since the last
// catalog refresh to permit another one, consuming a token if so.
func (c *Client) ShouldRediscover() bool {
	return c.refreshLimiter.Allow()
}

// callWithBudget acquires a semaphore permit, observing ctx cancellation
// while waiting, then races fn against the per-call deadline and
// classifies a deadline loss as Transport.Timeout. A wait that exceeds
// half the call budget surfaces as Transport.Overloaded instead.
func (c *Client) callWithBudget(ctx context.Context, fn func(context.Context) (wire.Value, error)) (wire.Value, error) {
	waitCtx := ctx
	var cancelWait context.CancelFunc
	if c.timeout > 0 {
		waitCtx, cancelWait = context.WithTimeout(ctx, c.timeout/2)
		defer cancelWait()
	}
	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return wire.Value{}, icaruserr.New(icaruserr.KindTransport, icaruserr.TagTransportCancelled, icaruserr.SeverityUser, "call canceled while waiting for an in-flight slot")
		}
		return wire.Value{}, icaruserr.New(icaruserr.KindTransport, icaruserr.TagTransportOverloaded, icaruserr.SeverityRetryable, "in-flight semaphore saturated").
			WithRetryAfter(c.timeout.Milliseconds() / 2)
	}
	defer c.sem.Release(1)

	callCtx := ctx
	var cancelCall context.CancelFunc
	if c.timeout > 0 {
		callCtx, cancelCall = context.WithTimeout(ctx, c.timeout)
		defer cancelCall()
	}

	type result struct {
		v   wire.Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		// The transport may observe the canceled/expired context before
		// this select does; classify those the same way as a lost race.
		if r.err != nil && callCtx.Err() != nil {
			return wire.Value{}, c.classifyDeadline(ctx)
		}
		return r.v, r.err
	case <-callCtx.Done():
		return wire.Value{}, c.classifyDeadline(ctx)
	}
}

func (c *Client) classifyDeadline(ctx context.Context) *icaruserr.Error {
	if ctx.Err() != nil {
		return icaruserr.New(icaruserr.KindTransport, icaruserr.TagTransportCancelled, icaruserr.SeverityUser, "call canceled")
	}
	return icaruserr.New(icaruserr.KindTransport, icaruserr.TagTransportTimeout, icaruserr.SeverityRetryable, "canister call exceeded budget").
		WithRetryAfter(c.timeout.Milliseconds())
}
