// ABOUTME: Task record, Step enum with explicit transition table, and answer normalization helpers.
// ABOUTME: Invalid step transitions are unrepresentable; answers outside the allowed set re-prompt.

package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTaskNotFound is returned when a task ID does not resolve to a record.
// An event naming an unknown task is a terminal "lost task" error; the
// record is never silently recreated.
var ErrTaskNotFound = errors.New("task not found")

// ErrProfileNotFound is returned when no profile exists for an identity.
var ErrProfileNotFound = errors.New("profile not found")

// Step is the current state of a task's finite state machine.
type Step string

const (
	StepName              Step = "name"
	StepType              Step = "type"
	StepNetworkOrFeatures Step = "network-or-features"
	StepNetwork           Step = "network"
	StepFeatures          Step = "features"
	StepBuilding          Step = "building"
	StepReview            Step = "review"
	StepEdit              Step = "edit"
)

// transitions is the closed set of legal step moves. A transition absent
// from this table is a programming error, not a user input problem.
var transitions = map[Step][]Step{
	StepName:              {StepType},
	StepType:              {StepNetworkOrFeatures, StepFeatures},
	StepNetworkOrFeatures: {StepNetwork, StepFeatures},
	StepNetwork:           {StepFeatures},
	StepFeatures:          {StepBuilding},
	StepBuilding:          {StepReview},
	StepReview:            {StepFeatures, StepEdit},
	StepEdit:              {StepReview},
}

// CanAdvance reports whether moving from s to next is a legal transition.
func (s Step) CanAdvance(next Step) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a member of the step set.
func (s Step) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Status describes a task's overall lifecycle state.
type Status string

const (
	StatusInProgress    Status = "in_progress"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusStopped       Status = "stopped"
)

// Types is the allowed set of content types. Answers outside this set
// re-prompt the type step without mutating the record.
var Types = []string{"html", "react", "vue", "node", "python", "full-stack"}

// TypeFullStack is the only type that routes through the network question.
const TypeFullStack = "full-stack"

// ValidType reports whether answer names a supported content type.
func ValidType(answer string) bool {
	for _, t := range Types {
		if answer == t {
			return true
		}
	}
	return false
}

// DefaultFeatures is the placeholder description substituted when the user
// answers the features question with the literal "go".
const DefaultFeatures = "a clean landing page with a short project description"

// Task is the durable workflow record, persisted as a JSON blob under its ID.
type Task struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Step        Step      `json:"step"`
	Name        string    `json:"name,omitempty"`
	Type        string    `json:"type,omitempty"`
	Network     string    `json:"network,omitempty"`
	Features    string    `json:"features,omitempty"`
	EditRequest string    `json:"editRequest,omitempty"`
	Version     int       `json:"version"`
	Status      Status    `json:"status"`
	FileName    string    `json:"fileName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewTask creates a fresh record for an owner, positioned at the name step.
// IDs are time-based so concurrently created tasks stay distinct per owner.
func NewTask(owner string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        fmt.Sprintf("task-%d", now.UnixNano()),
		Owner:     owner,
		Step:      StepName,
		Version:   1,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ArtifactName returns the download filename for the task's current version.
func (t *Task) ArtifactName() string {
	return fmt.Sprintf("%s-v%d.zip", t.Name, t.Version)
}

// Profile is per-user presentation state, keyed by client-origin identity.
type Profile struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Tone        string `json:"tone"`
}

// Slugify converts free text into a task name slug: lower-cased, spaces
// collapsed to hyphens, everything outside [a-z0-9-] dropped.
func Slugify(s string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
