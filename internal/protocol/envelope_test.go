// ABOUTME: Tests for envelope constructors and the wire field names.
// ABOUTME: Field names are a compatibility contract with connected agents.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsIDAndTimestamp(t *testing.T) {
	env := New(TypeMessage)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, TypeMessage, env.Type)
	assert.False(t, env.Timestamp.IsZero())

	// IDs must be unique per envelope
	assert.NotEqual(t, env.ID, New(TypeMessage).ID)
}

func TestRegister(t *testing.T) {
	env := Register("builder", "worker")

	assert.Equal(t, TypeRegister, env.Type)
	assert.Equal(t, "builder", env.Name)
	assert.Equal(t, "worker", env.Role)
}

func TestResponseConstructors(t *testing.T) {
	cases := []struct {
		name    string
		env     *Envelope
		subtype Subtype
	}{
		{"system", System("alice", "hello"), SubtypeSystem},
		{"success", Success("alice", "hello"), SubtypeSuccess},
		{"error", Error("alice", "hello"), SubtypeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, TypeMessage, tc.env.Type)
			assert.Equal(t, tc.subtype, tc.env.Subtype)
			assert.Equal(t, "alice", tc.env.User)
			assert.Equal(t, "hello", tc.env.Text)
		})
	}
}

func TestQuestion(t *testing.T) {
	env := Question("alice", "task-1", "What should we call this project?")

	assert.Equal(t, TypeMessage, env.Type)
	assert.Equal(t, SubtypeQuestion, env.Subtype)
	assert.Equal(t, "task-1", env.TaskID)
}

func TestProgress(t *testing.T) {
	env := Progress("alice", "task-1", 40)

	assert.Equal(t, TypeProgress, env.Type)
	assert.Equal(t, SubtypeProgress, env.Subtype)
	assert.Equal(t, 40, env.Percent)
	assert.Equal(t, "task-1", env.TaskID)
}

func TestDownload(t *testing.T) {
	env := Download("alice", "task-1", "demo-v1.zip", "emlw")

	assert.Equal(t, SubtypeDownload, env.Subtype)
	assert.Equal(t, "demo-v1.zip", env.FileName)
	assert.Equal(t, "emlw", env.Content)
}

func TestWireFieldNames(t *testing.T) {
	env := &Envelope{
		ID:       "abc",
		Type:     TypeCommandResponse,
		Subtype:  SubtypeSuccess,
		Target:   "ui",
		TaskID:   "task-1",
		User:     "alice",
		FileName: "demo-v1.zip",
		Content:  "emlw",
		Args:     map[string]string{"name": "demo"},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// Camel-cased keys are what agents on the other side parse
	for _, key := range []string{"id", "type", "subtype", "target", "taskId", "user", "fileName", "content", "args"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "TaskID")
	assert.Equal(t, "commandResponse", raw["type"])
}

func TestUnusedFieldsOmitted(t *testing.T) {
	env := &Envelope{Type: TypeTyping}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.NotContains(t, raw, "content")
	assert.NotContains(t, raw, "percent")
	assert.NotContains(t, raw, "timestamp")
}
