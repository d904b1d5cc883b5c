// ABOUTME: Workflow engine driving the per-task state machine and build/edit delegation.
// ABOUTME: Emits question/progress/error/download envelopes back through the hub's router.

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/forge-hub/internal/artifact"
	"github.com/2389/forge-hub/internal/protocol"
)

// Store is the durable key-value contract the engine persists through.
// The record under a task ID is the sole source of truth; the engine never
// caches task state across calls.
type Store interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	PutTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error

	GetProfile(ctx context.Context, identity string) (*Profile, error)
	PutProfile(ctx context.Context, p *Profile) error
	DeleteProfile(ctx context.Context, identity string) error
}

// Action selects the delegation mode.
type Action string

const (
	ActionBuild Action = "build"
	ActionEdit  Action = "edit"
)

// DelegationRequest asks a worker to generate or revise content for a task.
type DelegationRequest struct {
	Action Action
	Task   *Task
}

// DelegationResult carries the worker's artifact back to the engine.
type DelegationResult struct {
	Content  string // base64 payload
	FileName string // optional; engine derives one from the task if empty
	Response string
}

// Delegator issues a build/edit request and waits for the result or an
// error. Implementations do not retry.
type Delegator interface {
	Delegate(ctx context.Context, req *DelegationRequest) (*DelegationResult, error)
}

// Sink receives the envelopes the engine emits toward the UI agent.
type Sink interface {
	Send(env *protocol.Envelope)
}

const (
	askName     = "What should we call this project?"
	askType     = "What kind of project is it? (html, react, vue, node, python, full-stack)"
	askNetOrFt  = "Do you want to configure a network, or go straight to features? (network / features)"
	askNetwork  = "Which network should it target? (\"none\" to skip)"
	askFeatures = "Describe the features you want (\"go\" for a sensible default)."
	askReview   = "The build is ready. Say \"add more\", \"edit\", or \"done\"."
	askEdit     = "What should change?"
)

// Config wires an Engine.
type Config struct {
	Store            Store
	Delegator        Delegator
	Sink             Sink
	Artifacts        *artifact.Cache
	Logger           *slog.Logger
	ProgressInterval time.Duration
}

// Engine is the per-task finite state machine. All transitions for one task
// ID are serialized; delegations run as independent goroutines so a slow
// build never blocks the router or other tasks.
type Engine struct {
	store            Store
	delegator        Delegator
	sink             Sink
	artifacts        *artifact.Cache
	logger           *slog.Logger
	progressInterval time.Duration
	locks            *keyedMutex
}

// NewEngine creates an Engine. Pass nil Logger for the default.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Engine{
		store:            cfg.Store,
		delegator:        cfg.Delegator,
		sink:             cfg.Sink,
		artifacts:        cfg.Artifacts,
		logger:           logger.With("component", "engine"),
		progressInterval: interval,
		locks:            newKeyedMutex(),
	}
}

// StartBuild creates a new task for user and asks the first question.
func (e *Engine) StartBuild(ctx context.Context, user string) {
	t := NewTask(user)
	if err := e.store.PutTask(ctx, t); err != nil {
		e.storeFailure(user, "creating task", err)
		return
	}
	e.logger.Info("task created", "task_id", t.ID, "owner", user)
	e.sink.Send(protocol.Question(user, t.ID, askName))
}

// HandleMessage processes an untargeted free-text message from a user.
// First contact creates a default profile; a build-intent phrase starts a
// new task.
func (e *Engine) HandleMessage(ctx context.Context, user, text string) {
	prof, err := e.store.GetProfile(ctx, user)
	if errors.Is(err, ErrProfileNotFound) {
		prof = &Profile{Identity: user, DisplayName: "there", Tone: "friendly"}
		if err := e.store.PutProfile(ctx, prof); err != nil {
			e.storeFailure(user, "creating profile", err)
			return
		}
	} else if err != nil {
		e.storeFailure(user, "loading profile", err)
		return
	}

	if hasBuildIntent(text) {
		e.StartBuild(ctx, user)
		return
	}

	e.sink.Send(protocol.System(user, fmt.Sprintf(
		"Hi %s! Say \"build\" to start a new project, or \"redownload\" for the last artifact.",
		prof.DisplayName)))
}

// hasBuildIntent reports whether free text looks like a request to start a build.
func hasBuildIntent(text string) bool {
	t := strings.ToLower(text)
	for _, phrase := range []string{"build", "create", "make me", "new project"} {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// HandleCommand processes an explicit command envelope addressed to the hub.
func (e *Engine) HandleCommand(ctx context.Context, env *protocol.Envelope) {
	user := env.User
	switch env.Command {
	case "build", "start":
		e.StartBuild(ctx, user)

	case "redownload":
		a, ok := e.artifacts.Last()
		if !ok {
			e.sink.Send(protocol.Error(user, "Nothing has been built yet."))
			return
		}
		e.sink.Send(protocol.Download(user, "", a.FileName, a.Content))

	case "setname":
		name := strings.TrimSpace(env.Args["name"])
		if name == "" {
			name = strings.TrimSpace(env.Text)
		}
		if name == "" {
			e.sink.Send(protocol.Error(user, "Tell me the name to use."))
			return
		}
		e.updateProfile(ctx, user, func(p *Profile) { p.DisplayName = name })
		e.sink.Send(protocol.Success(user, fmt.Sprintf("Got it, I'll call you %s.", name)))

	case "tone":
		tone := strings.TrimSpace(env.Args["tone"])
		if tone == "" {
			e.sink.Send(protocol.Error(user, "Tell me the tone to use."))
			return
		}
		e.updateProfile(ctx, user, func(p *Profile) { p.Tone = tone })
		e.sink.Send(protocol.Success(user, "Tone updated."))

	case "reset":
		if err := e.store.DeleteProfile(ctx, user); err != nil && !errors.Is(err, ErrProfileNotFound) {
			e.storeFailure(user, "resetting profile", err)
			return
		}
		e.sink.Send(protocol.System(user, "Profile reset."))

	case "stop":
		e.stopTask(ctx, user, env.TaskID)

	default:
		e.sink.Send(protocol.Error(user, fmt.Sprintf("Unknown command %q.", env.Command)))
	}
}

// stopTask marks a task stopped and removes its record.
func (e *Engine) stopTask(ctx context.Context, user, taskID string) {
	if taskID == "" {
		e.sink.Send(protocol.Error(user, "Which task should I stop?"))
		return
	}
	unlock := e.locks.lock(taskID)
	defer unlock()

	t, err := e.store.GetTask(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		e.lostTask(user, taskID)
		return
	}
	if err != nil {
		e.storeFailure(user, "loading task", err)
		return
	}
	t.Status = StatusStopped
	if err := e.store.DeleteTask(ctx, t.ID); err != nil {
		e.storeFailure(user, "stopping task", err)
		return
	}
	e.logger.Info("task stopped", "task_id", t.ID)
	e.sink.Send(protocol.System(user, fmt.Sprintf("Stopped %s.", t.ID)))
}

// HandleAnswer applies a taskResponse to the task's current step. All
// read-modify-write cycles for one task ID run under its lock.
func (e *Engine) HandleAnswer(ctx context.Context, taskID, answer string) {
	unlock := e.locks.lock(taskID)
	defer unlock()

	t, err := e.store.GetTask(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		e.lostTask("", taskID)
		return
	}
	if err != nil {
		e.storeFailure("", "loading task", err)
		return
	}

	answer = strings.TrimSpace(answer)
	switch t.Step {
	case StepName:
		e.answerName(ctx, t, answer)
	case StepType:
		e.answerType(ctx, t, answer)
	case StepNetworkOrFeatures:
		e.answerNetworkOrFeatures(ctx, t, answer)
	case StepNetwork:
		e.answerNetwork(ctx, t, answer)
	case StepFeatures:
		e.answerFeatures(ctx, t, answer)
	case StepBuilding:
		e.sink.Send(protocol.System(t.Owner, "Still building — hang tight."))
	case StepReview:
		e.answerReview(ctx, t, answer)
	case StepEdit:
		e.answerEdit(ctx, t, answer)
	default:
		e.logger.Error("task at unknown step", "task_id", t.ID, "step", t.Step)
		e.sink.Send(protocol.Error(t.Owner, "Something went wrong with that task."))
	}
}

func (e *Engine) answerName(ctx context.Context, t *Task, answer string) {
	if answer == "" {
		e.sink.Send(protocol.Question(t.Owner, t.ID, askName))
		return
	}
	t.Name = Slugify(answer)
	if !e.advance(ctx, t, StepType) {
		return
	}
	e.sink.Send(protocol.Question(t.Owner, t.ID, askType))
}

func (e *Engine) answerType(ctx context.Context, t *Task, answer string) {
	answer = strings.ToLower(answer)
	if !ValidType(answer) {
		e.sink.Send(protocol.Question(t.Owner, t.ID,
			fmt.Sprintf("%q isn't a type I know. %s", answer, askType)))
		return
	}
	t.Type = answer
	next := StepFeatures
	question := askFeatures
	if answer == TypeFullStack {
		next = StepNetworkOrFeatures
		question = askNetOrFt
	}
	if !e.advance(ctx, t, next) {
		return
	}
	e.sink.Send(protocol.Question(t.Owner, t.ID, question))
}

func (e *Engine) answerNetworkOrFeatures(ctx context.Context, t *Task, answer string) {
	if strings.EqualFold(answer, "network") {
		if !e.advance(ctx, t, StepNetwork) {
			return
		}
		e.sink.Send(protocol.Question(t.Owner, t.ID, askNetwork))
		return
	}
	if !e.advance(ctx, t, StepFeatures) {
		return
	}
	e.sink.Send(protocol.Question(t.Owner, t.ID, askFeatures))
}

func (e *Engine) answerNetwork(ctx context.Context, t *Task, answer string) {
	if !strings.EqualFold(answer, "none") {
		t.Network = answer
	}
	if !e.advance(ctx, t, StepFeatures) {
		return
	}
	e.sink.Send(protocol.Question(t.Owner, t.ID, askFeatures))
}

func (e *Engine) answerFeatures(ctx context.Context, t *Task, answer string) {
	if answer == "" {
		e.sink.Send(protocol.Question(t.Owner, t.ID, askFeatures))
		return
	}
	if strings.EqualFold(answer, "go") {
		t.Features = DefaultFeatures
	} else {
		t.Features = answer
	}
	if !e.advance(ctx, t, StepBuilding) {
		return
	}
	e.sink.Send(protocol.System(t.Owner, fmt.Sprintf("Building %s — this can take a little while.", t.Name)))
	go e.runDelegation(ActionBuild, t.ID, t.Owner)
}

func (e *Engine) answerReview(ctx context.Context, t *Task, answer string) {
	switch strings.ToLower(answer) {
	case "add more":
		t.Status = StatusInProgress
		if !e.advance(ctx, t, StepFeatures) {
			return
		}
		e.sink.Send(protocol.Question(t.Owner, t.ID, askFeatures))

	case "edit":
		if !e.advance(ctx, t, StepEdit) {
			return
		}
		e.sink.Send(protocol.Question(t.Owner, t.ID, askEdit))

	case "done":
		t.Status = StatusCompleted
		if err := e.store.DeleteTask(ctx, t.ID); err != nil {
			e.storeFailure(t.Owner, "completing task", err)
			return
		}
		e.logger.Info("task completed", "task_id", t.ID, "name", t.Name, "version", t.Version)
		e.sink.Send(protocol.Success(t.Owner, fmt.Sprintf("%s is done. Enjoy!", t.Name)))

	default:
		e.sink.Send(protocol.Question(t.Owner, t.ID, askReview))
	}
}

func (e *Engine) answerEdit(ctx context.Context, t *Task, answer string) {
	if answer == "" {
		e.sink.Send(protocol.Question(t.Owner, t.ID, askEdit))
		return
	}
	t.EditRequest = answer
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	if err := e.store.PutTask(ctx, t); err != nil {
		e.storeFailure(t.Owner, "saving edit request", err)
		return
	}
	e.sink.Send(protocol.System(t.Owner, fmt.Sprintf("Revising %s (v%d)…", t.Name, t.Version)))
	go e.runDelegation(ActionEdit, t.ID, t.Owner)
}

// advance moves the task to next and persists it. Returns false if the
// transition is illegal or the write fails; nothing is emitted for the
// illegal case beyond a log line since it indicates an engine bug.
func (e *Engine) advance(ctx context.Context, t *Task, next Step) bool {
	if !t.Step.CanAdvance(next) {
		e.logger.Error("illegal step transition", "task_id", t.ID, "from", t.Step, "to", next)
		e.sink.Send(protocol.Error(t.Owner, "Something went wrong with that task."))
		return false
	}
	t.Step = next
	t.UpdatedAt = time.Now().UTC()
	if err := e.store.PutTask(ctx, t); err != nil {
		e.storeFailure(t.Owner, "saving task", err)
		return false
	}
	return true
}

// runDelegation performs a build or edit as an independent unit of work,
// reporting progress while the worker call is outstanding. Build failures
// are terminal (record deleted); edit failures leave the record at the edit
// step so the user can retry.
func (e *Engine) runDelegation(action Action, taskID, owner string) {
	ctx := context.Background()

	snapshot, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		e.storeFailure(owner, "loading task for delegation", err)
		return
	}

	done := make(chan struct{})
	go e.reportProgress(owner, taskID, done)

	res, delegErr := e.delegator.Delegate(ctx, &DelegationRequest{Action: action, Task: snapshot})
	close(done)

	unlock := e.locks.lock(taskID)
	defer unlock()

	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		e.storeFailure(owner, "reloading task after delegation", err)
		return
	}

	if delegErr != nil {
		e.delegationFailed(ctx, action, t, delegErr)
		return
	}

	fileName := res.FileName
	if fileName == "" {
		fileName = t.ArtifactName()
	}
	t.FileName = fileName
	t.Step = StepReview
	t.Status = StatusPendingReview
	t.UpdatedAt = time.Now().UTC()
	if err := e.store.PutTask(ctx, t); err != nil {
		e.storeFailure(owner, "saving build result", err)
		return
	}

	e.artifacts.SetLast(&artifact.Artifact{
		Content:  res.Content,
		FileName: fileName,
		Type:     t.Type,
		TaskName: t.Name,
	})

	e.logger.Info("delegation succeeded", "task_id", t.ID, "action", action, "version", t.Version)
	e.sink.Send(protocol.Progress(owner, taskID, 100))
	e.sink.Send(protocol.Download(owner, taskID, fileName, res.Content))
	e.sink.Send(protocol.Question(owner, taskID, askReview))
}

func (e *Engine) delegationFailed(ctx context.Context, action Action, t *Task, cause error) {
	e.logger.Error("delegation failed", "task_id", t.ID, "action", action, "error", cause)
	if action == ActionBuild {
		if err := e.store.DeleteTask(ctx, t.ID); err != nil {
			e.logger.Error("deleting failed task", "task_id", t.ID, "error", err)
		}
		e.sink.Send(protocol.Error(t.Owner,
			"The build failed and the task was abandoned. Start a fresh build when you're ready."))
		return
	}
	// Record stays at the edit step with its prior fields intact.
	e.sink.Send(protocol.Error(t.Owner,
		"That edit didn't take. The task is still here — describe the change again to retry."))
}

// reportProgress emits fixed-increment progress events for taskID until done
// closes. The UI overwrites prior progress for the same task ID.
func (e *Engine) reportProgress(owner, taskID string, done <-chan struct{}) {
	ticker := time.NewTicker(e.progressInterval)
	defer ticker.Stop()

	percent := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if percent < 90 {
				percent += 10
			}
			e.sink.Send(protocol.Progress(owner, taskID, percent))
		}
	}
}

func (e *Engine) updateProfile(ctx context.Context, user string, apply func(*Profile)) {
	prof, err := e.store.GetProfile(ctx, user)
	if errors.Is(err, ErrProfileNotFound) {
		prof = &Profile{Identity: user, DisplayName: "there", Tone: "friendly"}
	} else if err != nil {
		e.storeFailure(user, "loading profile", err)
		return
	}
	apply(prof)
	if err := e.store.PutProfile(ctx, prof); err != nil {
		e.storeFailure(user, "saving profile", err)
	}
}

func (e *Engine) lostTask(user, taskID string) {
	e.logger.Warn("answer for unknown task", "task_id", taskID)
	env := protocol.Error(user, "I lost track of that task. Start a new build.")
	env.TaskID = taskID
	e.sink.Send(env)
}

func (e *Engine) storeFailure(user, op string, err error) {
	e.logger.Error("store operation failed", "op", op, "error", err)
	e.sink.Send(protocol.Error(user, "Something went wrong on my end — please try that again."))
}
