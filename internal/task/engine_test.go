// ABOUTME: Engine tests driving the full question flow with in-memory fakes.
// ABOUTME: Async delegation outcomes are observed by polling the store and sink.

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/forge-hub/internal/artifact"
	"github.com/2389/forge-hub/internal/protocol"
)

// memStore is an in-memory Store. Reads return copies so test goroutines
// never share record pointers with the engine.
type memStore struct {
	mu       sync.Mutex
	tasks    map[string]Task
	profiles map[string]Profile
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    make(map[string]Task),
		profiles: make(map[string]Profile),
	}
}

func (s *memStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := t
	return &cp, nil
}

func (s *memStore) PutTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *memStore) GetProfile(_ context.Context, identity string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := p
	return &cp, nil
}

func (s *memStore) PutProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Identity] = *p
	return nil
}

func (s *memStore) DeleteProfile(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, identity)
	return nil
}

// singleTask returns the only task in the store, failing if there isn't
// exactly one.
func (s *memStore) singleTask(t *testing.T) Task {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.tasks, 1)
	for _, task := range s.tasks {
		return task
	}
	panic("unreachable")
}

func (s *memStore) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type fakeDelegator struct {
	mu       sync.Mutex
	requests []DelegationRequest
	result   *DelegationResult
	err      error
}

func (d *fakeDelegator) Delegate(_ context.Context, req *DelegationRequest) (*DelegationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := *req.Task
	d.requests = append(d.requests, DelegationRequest{Action: req.Action, Task: &snapshot})
	return d.result, d.err
}

func (d *fakeDelegator) calls() []DelegationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DelegationRequest(nil), d.requests...)
}

type recordSink struct {
	mu   sync.Mutex
	envs []*protocol.Envelope
}

func (s *recordSink) Send(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *recordSink) all() []*protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Envelope(nil), s.envs...)
}

func (s *recordSink) bySubtype(sub protocol.Subtype) []*protocol.Envelope {
	var out []*protocol.Envelope
	for _, env := range s.all() {
		if env.Subtype == sub {
			out = append(out, env)
		}
	}
	return out
}

func (s *recordSink) lastText() string {
	envs := s.all()
	if len(envs) == 0 {
		return ""
	}
	return envs[len(envs)-1].Text
}

func newTestEngine(delegator Delegator) (*Engine, *memStore, *recordSink, *artifact.Cache) {
	store := newMemStore()
	sink := &recordSink{}
	cache := artifact.NewCache()
	engine := NewEngine(Config{
		Store:            store,
		Delegator:        delegator,
		Sink:             sink,
		Artifacts:        cache,
		ProgressInterval: 5 * time.Millisecond,
	})
	return engine, store, sink, cache
}

func seedTask(t *testing.T, store *memStore, task *Task) {
	t.Helper()
	require.NoError(t, store.PutTask(context.Background(), task))
}

func reviewTask(owner string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        "task-1",
		Owner:     owner,
		Step:      StepReview,
		Name:      "demo",
		Type:      "html",
		Features:  DefaultFeatures,
		Version:   1,
		Status:    StatusPendingReview,
		FileName:  "demo-v1.zip",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStartBuildAsksForName(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	engine.StartBuild(context.Background(), "alice")

	task := store.singleTask(t)
	assert.Equal(t, StepName, task.Step)
	assert.Equal(t, "alice", task.Owner)

	questions := sink.bySubtype(protocol.SubtypeQuestion)
	require.Len(t, questions, 1)
	assert.Equal(t, askName, questions[0].Text)
	assert.Equal(t, task.ID, questions[0].TaskID)
}

func TestNameAnswerSlugsAndAdvances(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	engine.StartBuild(ctx, "alice")
	id := store.singleTask(t).ID

	engine.HandleAnswer(ctx, id, "My Cool Site")

	task := store.singleTask(t)
	assert.Equal(t, "my-cool-site", task.Name)
	assert.Equal(t, StepType, task.Step)
	assert.Equal(t, askType, sink.lastText())
}

func TestEmptyNameReprompts(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	engine.StartBuild(ctx, "alice")
	id := store.singleTask(t).ID

	engine.HandleAnswer(ctx, id, "   ")

	task := store.singleTask(t)
	assert.Equal(t, StepName, task.Step)
	assert.Empty(t, task.Name)
	assert.Equal(t, askName, sink.lastText())
}

func TestUnknownTypeReprompts(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepType, Name: "demo", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "cobol")

	task := store.singleTask(t)
	assert.Equal(t, StepType, task.Step)
	assert.Empty(t, task.Type)
	assert.Contains(t, sink.lastText(), `"cobol"`)
}

func TestHTMLTypeGoesStraightToFeatures(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepType, Name: "demo", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "HTML")

	task := store.singleTask(t)
	assert.Equal(t, "html", task.Type)
	assert.Equal(t, StepFeatures, task.Step)
	assert.Equal(t, askFeatures, sink.lastText())
}

func TestFullStackOffersNetworkChoice(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepType, Name: "demo", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "full-stack")

	task := store.singleTask(t)
	assert.Equal(t, StepNetworkOrFeatures, task.Step)
	assert.Equal(t, askNetOrFt, sink.lastText())
}

func TestNetworkFlow(t *testing.T) {
	t.Run("configure network", func(t *testing.T) {
		engine, store, sink, _ := newTestEngine(&fakeDelegator{})
		ctx := context.Background()

		seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepNetworkOrFeatures, Name: "demo", Type: "full-stack", Version: 1, Status: StatusInProgress})
		engine.HandleAnswer(ctx, "task-1", "network")
		assert.Equal(t, StepNetwork, store.singleTask(t).Step)
		assert.Equal(t, askNetwork, sink.lastText())

		engine.HandleAnswer(ctx, "task-1", "mainnet")
		task := store.singleTask(t)
		assert.Equal(t, "mainnet", task.Network)
		assert.Equal(t, StepFeatures, task.Step)
	})

	t.Run("skip network with none", func(t *testing.T) {
		engine, store, _, _ := newTestEngine(&fakeDelegator{})
		ctx := context.Background()

		seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepNetwork, Name: "demo", Type: "full-stack", Version: 1, Status: StatusInProgress})
		engine.HandleAnswer(ctx, "task-1", "none")

		task := store.singleTask(t)
		assert.Empty(t, task.Network)
		assert.Equal(t, StepFeatures, task.Step)
	})

	t.Run("anything else goes to features", func(t *testing.T) {
		engine, store, sink, _ := newTestEngine(&fakeDelegator{})
		ctx := context.Background()

		seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepNetworkOrFeatures, Name: "demo", Type: "full-stack", Version: 1, Status: StatusInProgress})
		engine.HandleAnswer(ctx, "task-1", "features please")

		assert.Equal(t, StepFeatures, store.singleTask(t).Step)
		assert.Equal(t, askFeatures, sink.lastText())
	})
}

func TestBuildSuccess(t *testing.T) {
	delegator := &fakeDelegator{result: &DelegationResult{Content: "emlwLWJ5dGVz", Response: "done"}}
	engine, store, sink, cache := newTestEngine(delegator)
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepFeatures, Name: "demo", Type: "html", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "go")

	// The review question is the last effect of a successful delegation,
	// so everything else is settled once it shows up.
	require.Eventually(t, func() bool {
		qs := sink.bySubtype(protocol.SubtypeQuestion)
		return len(qs) > 0 && qs[len(qs)-1].Text == askReview
	}, 2*time.Second, 10*time.Millisecond)

	task := store.singleTask(t)
	assert.Equal(t, StepReview, task.Step)
	assert.Equal(t, DefaultFeatures, task.Features, "literal go should substitute the default feature set")
	assert.Equal(t, StatusPendingReview, task.Status)
	assert.Equal(t, "demo-v1.zip", task.FileName)

	calls := delegator.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ActionBuild, calls[0].Action)
	assert.Equal(t, "demo", calls[0].Task.Name)

	a, ok := cache.Last()
	require.True(t, ok)
	assert.Equal(t, "demo-v1.zip", a.FileName)
	assert.Equal(t, "emlwLWJ5dGVz", a.Content)

	downloads := sink.bySubtype(protocol.SubtypeDownload)
	require.Len(t, downloads, 1)
	assert.Equal(t, "demo-v1.zip", downloads[0].FileName)

	questions := sink.bySubtype(protocol.SubtypeQuestion)
	require.NotEmpty(t, questions)
	assert.Equal(t, askReview, questions[len(questions)-1].Text)

	var sawFull bool
	for _, env := range sink.all() {
		if env.Type == protocol.TypeProgress && env.Percent == 100 {
			sawFull = true
		}
	}
	assert.True(t, sawFull, "expected a 100%% progress event")
}

func TestBuildFailureAbandonsTask(t *testing.T) {
	delegator := &fakeDelegator{err: errors.New("worker exploded")}
	engine, store, sink, _ := newTestEngine(delegator)
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepFeatures, Name: "demo", Type: "html", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "a landing page")

	require.Eventually(t, func() bool {
		return len(sink.bySubtype(protocol.SubtypeError)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, store.taskCount(), "a failed build should delete the record")
	failures := sink.bySubtype(protocol.SubtypeError)
	assert.Contains(t, failures[len(failures)-1].Text, "abandoned")
}

func TestEditSuccess(t *testing.T) {
	delegator := &fakeDelegator{result: &DelegationResult{Content: "djItYnl0ZXM="}}
	engine, store, sink, _ := newTestEngine(delegator)
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))
	engine.HandleAnswer(ctx, "task-1", "edit")
	assert.Equal(t, StepEdit, store.singleTask(t).Step)
	assert.Equal(t, askEdit, sink.lastText())

	engine.HandleAnswer(ctx, "task-1", "make the header blue")

	require.Eventually(t, func() bool {
		task, err := store.GetTask(ctx, "task-1")
		return err == nil && task.Step == StepReview && task.FileName == "demo-v2.zip"
	}, 2*time.Second, 10*time.Millisecond)

	task := store.singleTask(t)
	assert.Equal(t, 2, task.Version)
	assert.Equal(t, "make the header blue", task.EditRequest)

	calls := delegator.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ActionEdit, calls[0].Action)
	assert.Equal(t, 2, calls[0].Task.Version)
}

func TestEditFailureRetainsTask(t *testing.T) {
	delegator := &fakeDelegator{err: errors.New("worker exploded")}
	engine, store, sink, _ := newTestEngine(delegator)
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))
	engine.HandleAnswer(ctx, "task-1", "edit")
	engine.HandleAnswer(ctx, "task-1", "make the header blue")

	require.Eventually(t, func() bool {
		return len(sink.bySubtype(protocol.SubtypeError)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// Unlike build failures, the record survives for a retry.
	task, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StepEdit, task.Step)
	assert.Equal(t, 2, task.Version)
	assert.Equal(t, "make the header blue", task.EditRequest)
}

func TestReviewDone(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))
	engine.HandleAnswer(ctx, "task-1", "done")

	assert.Equal(t, 0, store.taskCount())
	successes := sink.bySubtype(protocol.SubtypeSuccess)
	require.Len(t, successes, 1)
	assert.Contains(t, successes[0].Text, "demo")
}

func TestReviewAddMore(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))
	engine.HandleAnswer(ctx, "task-1", "add more")

	task := store.singleTask(t)
	assert.Equal(t, StepFeatures, task.Step)
	assert.Equal(t, StatusInProgress, task.Status)
	assert.Equal(t, askFeatures, sink.lastText())
}

func TestReviewUnknownAnswerReprompts(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))
	engine.HandleAnswer(ctx, "task-1", "ship it")

	assert.Equal(t, StepReview, store.singleTask(t).Step)
	assert.Equal(t, askReview, sink.lastText())
}

func TestAnswerWhileBuilding(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, &Task{ID: "task-1", Owner: "alice", Step: StepBuilding, Name: "demo", Type: "html", Version: 1, Status: StatusInProgress})
	engine.HandleAnswer(ctx, "task-1", "are you done yet?")

	assert.Equal(t, StepBuilding, store.singleTask(t).Step)
	assert.Contains(t, sink.lastText(), "Still building")
}

func TestAnswerForUnknownTask(t *testing.T) {
	engine, _, sink, _ := newTestEngine(&fakeDelegator{})
	engine.HandleAnswer(context.Background(), "task-gone", "hello")

	failures := sink.bySubtype(protocol.SubtypeError)
	require.Len(t, failures, 1)
	assert.Equal(t, "task-gone", failures[0].TaskID)
}

func TestRedownload(t *testing.T) {
	engine, _, sink, cache := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	env := protocol.New(protocol.TypeCommand)
	env.Command = "redownload"
	env.User = "alice"
	engine.HandleCommand(ctx, env)

	failures := sink.bySubtype(protocol.SubtypeError)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Text, "Nothing has been built")

	cache.SetLast(&artifact.Artifact{Content: "emlw", FileName: "demo-v1.zip", Type: "html", TaskName: "demo"})
	engine.HandleCommand(ctx, env)

	downloads := sink.bySubtype(protocol.SubtypeDownload)
	require.Len(t, downloads, 1)
	assert.Equal(t, "demo-v1.zip", downloads[0].FileName)
	assert.Equal(t, "emlw", downloads[0].Content)
}

func TestSetNamePersonalizesGreeting(t *testing.T) {
	engine, _, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	env := protocol.New(protocol.TypeCommand)
	env.Command = "setname"
	env.Args = map[string]string{"name": "Captain"}
	env.User = "alice"
	engine.HandleCommand(ctx, env)

	engine.HandleMessage(ctx, "alice", "hello")
	assert.Contains(t, sink.lastText(), "Captain")
}

func TestHandleMessageFirstContact(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	engine.HandleMessage(ctx, "alice", "hi")

	prof, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "there", prof.DisplayName)
	assert.Equal(t, "friendly", prof.Tone)
	assert.Contains(t, sink.lastText(), "there")
}

func TestHandleMessageBuildIntent(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	engine.HandleMessage(ctx, "alice", "please build me a website")

	require.Equal(t, 1, store.taskCount())
	questions := sink.bySubtype(protocol.SubtypeQuestion)
	require.Len(t, questions, 1)
	assert.Equal(t, askName, questions[0].Text)
}

func TestStopCommand(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	seedTask(t, store, reviewTask("alice"))

	env := protocol.New(protocol.TypeCommand)
	env.Command = "stop"
	env.TaskID = "task-1"
	env.User = "alice"
	engine.HandleCommand(ctx, env)

	assert.Equal(t, 0, store.taskCount())
	assert.Contains(t, sink.lastText(), "Stopped task-1")
}

func TestResetCommand(t *testing.T) {
	engine, store, sink, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	require.NoError(t, store.PutProfile(ctx, &Profile{Identity: "alice", DisplayName: "Captain", Tone: "formal"}))

	env := protocol.New(protocol.TypeCommand)
	env.Command = "reset"
	env.User = "alice"
	engine.HandleCommand(ctx, env)

	_, err := store.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Contains(t, sink.lastText(), "reset")
}

func TestUnknownCommand(t *testing.T) {
	engine, _, sink, _ := newTestEngine(&fakeDelegator{})

	env := protocol.New(protocol.TypeCommand)
	env.Command = "deploy"
	env.User = "alice"
	engine.HandleCommand(context.Background(), env)

	failures := sink.bySubtype(protocol.SubtypeError)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Text, `"deploy"`)
}

func TestConcurrentAnswersStaySerialized(t *testing.T) {
	engine, store, _, _ := newTestEngine(&fakeDelegator{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("task-%d", i)
		seedTask(t, store, &Task{ID: id, Owner: "alice", Step: StepName, Version: 1, Status: StatusInProgress})
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.HandleAnswer(ctx, fmt.Sprintf("task-%d", i), fmt.Sprintf("Project %d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		task, err := store.GetTask(ctx, fmt.Sprintf("task-%d", i))
		require.NoError(t, err)
		assert.Equal(t, StepType, task.Step)
		assert.True(t, strings.HasPrefix(task.Name, "project-"))
	}
}
