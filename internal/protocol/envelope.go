// ABOUTME: Envelope struct and the typed constants for message types and subtypes.
// ABOUTME: Constructors for the response envelopes the workflow engine emits.

package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an envelope on the wire.
type Type string

const (
	TypeRegister        Type = "register"
	TypeMessage         Type = "message"
	TypeCommand         Type = "command"
	TypeCommandResponse Type = "commandResponse"
	TypeTaskResponse    Type = "taskResponse"
	TypeTyping          Type = "typing"
	TypeProgress        Type = "progress"
)

// Subtype tells a UI client how to render a hub-originated envelope.
type Subtype string

const (
	SubtypeSystem   Subtype = "system"
	SubtypeSuccess  Subtype = "success"
	SubtypeError    Subtype = "error"
	SubtypeQuestion Subtype = "question"
	SubtypeProgress Subtype = "progress"
	SubtypeDownload Subtype = "download"
)

// Envelope is the single JSON message format exchanged over a connection.
// Fields are populated according to Type; unused fields are omitted.
type Envelope struct {
	ID        string            `json:"id,omitempty"`
	Type      Type              `json:"type"`
	Subtype   Subtype           `json:"subtype,omitempty"`
	Target    string            `json:"target,omitempty"`
	Source    string            `json:"source,omitempty"`
	Name      string            `json:"name,omitempty"`
	Role      string            `json:"role,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	TaskID    string            `json:"taskId,omitempty"`
	User      string            `json:"user,omitempty"`
	Text      string            `json:"text,omitempty"`
	Answer    string            `json:"answer,omitempty"`
	FileName  string            `json:"fileName,omitempty"`
	Content   string            `json:"content,omitempty"`
	Percent   int               `json:"percent,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitzero"`
}

// New returns an envelope of the given type with a fresh ID and timestamp.
func New(t Type) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// Register builds the registration envelope an agent sends on connect.
func Register(name, role string) *Envelope {
	env := New(TypeRegister)
	env.Name = name
	env.Role = role
	return env
}

// System builds a plain informational message for a user.
func System(user, text string) *Envelope {
	return response(SubtypeSystem, user, text)
}

// Success builds a success notice for a user.
func Success(user, text string) *Envelope {
	return response(SubtypeSuccess, user, text)
}

// Error builds a user-visible error. Failures travel on the conversational
// channel, never as a transport-level fault.
func Error(user, text string) *Envelope {
	return response(SubtypeError, user, text)
}

// Question builds a prompt that expects a taskResponse reply carrying the
// same task ID and the user's answer.
func Question(user, taskID, text string) *Envelope {
	env := response(SubtypeQuestion, user, text)
	env.TaskID = taskID
	return env
}

// Progress builds a progress update for a task. Clients overwrite any prior
// progress message carrying the same task ID instead of accumulating them.
func Progress(user, taskID string, percent int) *Envelope {
	env := New(TypeProgress)
	env.Subtype = SubtypeProgress
	env.User = user
	env.TaskID = taskID
	env.Percent = percent
	return env
}

// Download builds an artifact delivery envelope with a base64 payload.
func Download(user, taskID, fileName, content string) *Envelope {
	env := response(SubtypeDownload, user, "")
	env.TaskID = taskID
	env.FileName = fileName
	env.Content = content
	return env
}

func response(sub Subtype, user, text string) *Envelope {
	env := New(TypeMessage)
	env.Subtype = sub
	env.User = user
	env.Text = text
	return env
}
