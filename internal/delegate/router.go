// ABOUTME: RouterDelegator sends a directed command through the hub router and awaits
// ABOUTME: the commandResponse correlated by task ID, bounded by a configurable timeout.

package delegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/forge-hub/internal/protocol"
	"github.com/2389/forge-hub/internal/task"
)

// ErrTimeout indicates the worker did not answer within the deadline.
var ErrTimeout = errors.New("delegation timed out")

// ErrWorkerFailed indicates the worker answered with an error response.
var ErrWorkerFailed = errors.New("worker reported failure")

// Sender forwards a directed envelope to a named agent. The hub router
// satisfies this.
type Sender interface {
	RouteDirected(target string, env *protocol.Envelope) error
}

// RouterDelegator reaches the worker agent through the hub's router.
// Responses are matched to requests by task ID.
type RouterDelegator struct {
	sender  Sender
	worker  string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *protocol.Envelope
}

// NewRouterDelegator creates a delegator targeting the named worker agent.
func NewRouterDelegator(sender Sender, worker string, timeout time.Duration, logger *slog.Logger) *RouterDelegator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RouterDelegator{
		sender:  sender,
		worker:  worker,
		timeout: timeout,
		logger:  logger.With("component", "delegate"),
		pending: make(map[string]chan *protocol.Envelope),
	}
}

// Delegate sends the command envelope and blocks until the correlated
// response, a worker error, the timeout, or ctx cancellation.
func (d *RouterDelegator) Delegate(ctx context.Context, req *task.DelegationRequest) (*task.DelegationResult, error) {
	t := req.Task

	ch := make(chan *protocol.Envelope, 1)
	d.mu.Lock()
	d.pending[t.ID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, t.ID)
		d.mu.Unlock()
	}()

	env := protocol.New(protocol.TypeCommand)
	env.Target = d.worker
	env.Command = string(req.Action)
	env.TaskID = t.ID
	env.User = t.Owner
	env.Args = map[string]string{
		"name":        t.Name,
		"type":        t.Type,
		"network":     t.Network,
		"features":    t.Features,
		"editRequest": t.EditRequest,
		"version":     strconv.Itoa(t.Version),
	}
	if err := d.sender.RouteDirected(d.worker, env); err != nil {
		return nil, fmt.Errorf("sending %s command: %w", req.Action, err)
	}

	d.logger.Debug("delegation sent", "task_id", t.ID, "action", req.Action, "worker", d.worker)

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
	case resp := <-ch:
		if resp.Subtype == protocol.SubtypeError {
			return nil, fmt.Errorf("%w: %s", ErrWorkerFailed, resp.Text)
		}
		return &task.DelegationResult{
			Content:  resp.Content,
			FileName: resp.FileName,
			Response: resp.Text,
		}, nil
	}
}

// HandleResponse delivers a commandResponse from the worker to its waiting
// delegation. Uncorrelated responses are logged and discarded.
func (d *RouterDelegator) HandleResponse(env *protocol.Envelope) {
	d.mu.Lock()
	ch, ok := d.pending[env.TaskID]
	d.mu.Unlock()

	if !ok {
		d.logger.Warn("response for unknown delegation", "task_id", env.TaskID)
		return
	}
	select {
	case ch <- env:
	default:
		d.logger.Warn("duplicate delegation response dropped", "task_id", env.TaskID)
	}
}
