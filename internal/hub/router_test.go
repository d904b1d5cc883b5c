// ABOUTME: Tests for directed routing and broadcast over registry bindings.
// ABOUTME: Unknown targets and full buffers drop without disturbing other agents.

package hub

import (
	"errors"
	"testing"

	"github.com/2389/forge-hub/internal/protocol"
)

func TestRouteDirectedReachesOnlyTarget(t *testing.T) {
	r := NewRegistry(testLogger())
	router := NewRouter(r, testLogger())

	ui := &fakeSender{}
	builder := &fakeSender{}
	r.Register("ui", "frontend", ui)
	r.Register("builder", "worker", builder)

	env := protocol.New(protocol.TypeMessage)
	env.Target = "builder"
	if err := router.RouteDirected("builder", env); err != nil {
		t.Fatalf("RouteDirected() error = %v", err)
	}

	if got := len(builder.received()); got != 1 {
		t.Errorf("builder received %d envelopes, want 1", got)
	}
	if got := len(ui.received()); got != 0 {
		t.Errorf("ui received %d envelopes, want 0", got)
	}
}

func TestRouteDirectedUnknownTarget(t *testing.T) {
	r := NewRegistry(testLogger())
	router := NewRouter(r, testLogger())

	env := protocol.New(protocol.TypeMessage)
	err := router.RouteDirected("ghost", env)
	if !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("RouteDirected() error = %v, want ErrTargetNotFound", err)
	}
}

func TestRouteDirectedSendFailure(t *testing.T) {
	r := NewRegistry(testLogger())
	router := NewRouter(r, testLogger())

	stalled := &fakeSender{err: ErrSendBufferFull}
	r.Register("ui", "frontend", stalled)

	env := protocol.New(protocol.TypeMessage)
	err := router.RouteDirected("ui", env)
	if !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("RouteDirected() error = %v, want ErrSendBufferFull", err)
	}
}

func TestBroadcastReachesAll(t *testing.T) {
	r := NewRegistry(testLogger())
	router := NewRouter(r, testLogger())

	ui := &fakeSender{}
	builder := &fakeSender{}
	r.Register("ui", "frontend", ui)
	r.Register("builder", "worker", builder)

	env := protocol.New(protocol.TypeRegister)
	router.Broadcast(env)

	if got := len(ui.received()); got != 1 {
		t.Errorf("ui received %d envelopes, want 1", got)
	}
	if got := len(builder.received()); got != 1 {
		t.Errorf("builder received %d envelopes, want 1", got)
	}
}

func TestBroadcastSkipsStalledConsumer(t *testing.T) {
	r := NewRegistry(testLogger())
	router := NewRouter(r, testLogger())

	healthy := &fakeSender{}
	stalled := &fakeSender{err: ErrSendBufferFull}
	r.Register("ui", "frontend", healthy)
	r.Register("slow", "frontend", stalled)

	router.Broadcast(protocol.New(protocol.TypeRegister))

	// The stalled consumer's failure must not block delivery to the rest.
	if got := len(healthy.received()); got != 1 {
		t.Errorf("healthy agent received %d envelopes, want 1", got)
	}
}
