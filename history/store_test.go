package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskagent/deskagent/core"
)

func record(input, response string) core.ConversationRecord {
	return core.NewConversationRecord(input, []core.Message{
		core.NewUserMessage(input),
		core.NewAssistantMessage(response),
	})
}

func TestStore_AppendAndAll(t *testing.T) {
	s := New()
	assert.True(t, s.IsEmpty())

	s.Append(record("one", "first"))
	s.Append(record("two", "second"))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "one", all[0].RequestInput)
	assert.Equal(t, "two", all[1].RequestInput)

	// snapshot must be defensive
	all[0].Messages[0].Content = "mutated"
	fresh := s.All()
	assert.Equal(t, "one", fresh[0].Messages[0].Content)
}

func TestStore_Get(t *testing.T) {
	s := New()
	s.Append(record("q", "a"))

	rec, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "q", rec.RequestInput)

	_, err = s.Get(1)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = s.Get(-1)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestStore_Prefix(t *testing.T) {
	s := New()
	s.Append(record("a", "1"))
	s.Append(record("b", "2"))
	s.Append(record("c", "3"))

	assert.Len(t, s.Prefix(2), 2)
	assert.Len(t, s.Prefix(0), 0)
	assert.Len(t, s.Prefix(10), 3)
	assert.Len(t, s.Prefix(-1), 0)
}

func TestStore_UpdateMessage_ExplicitIndex(t *testing.T) {
	s := New()
	s.Append(record("q", "a"))

	idx := 1
	changed, err := s.UpdateMessage(0, &idx, core.RoleAssistant, "edited")
	require.NoError(t, err)
	assert.True(t, changed)

	rec, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "edited", rec.Messages[1].Content)
	// untouched sibling
	assert.Equal(t, "q", rec.Messages[0].Content)
}

func TestStore_UpdateMessage_ExplicitIndexOutOfRange(t *testing.T) {
	s := New()
	s.Append(record("q", "a"))

	idx := 5
	changed, err := s.UpdateMessage(0, &idx, core.RoleAssistant, "edited")
	assert.ErrorIs(t, err, ErrInvalidIndex)
	assert.False(t, changed)
}

func TestStore_UpdateMessage_LastWithRole(t *testing.T) {
	s := New()
	s.Append(core.NewConversationRecord("q", []core.Message{
		core.NewUserMessage("q"),
		core.NewAssistantMessage("a1"),
		core.NewAssistantMessage("a2"),
	}))

	changed, err := s.UpdateMessage(0, nil, core.RoleAssistant, "edited")
	require.NoError(t, err)
	assert.True(t, changed)

	rec, _ := s.Get(0)
	assert.Equal(t, "a1", rec.Messages[1].Content, "only the last assistant message may change")
	assert.Equal(t, "edited", rec.Messages[2].Content)
}

func TestStore_UpdateMessage_RoleMissing(t *testing.T) {
	s := New()
	s.Append(record("q", "a"))

	changed, err := s.UpdateMessage(0, nil, core.RoleTool, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, changed)
}

func TestStore_UpdateMessage_BadRecordIndex(t *testing.T) {
	s := New()
	_, err := s.UpdateMessage(0, nil, core.RoleUser, "x")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestStore_ReplaceRecord(t *testing.T) {
	s := New()
	s.Append(record("old", "old answer"))
	s.Append(record("keep", "kept"))

	err := s.ReplaceRecord(0, []core.Message{
		core.NewUserMessage("old"),
		core.NewAssistantMessage("new answer"),
	}, "old")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len(), "replace must not change length")
	rec, _ := s.Get(0)
	assert.Equal(t, "new answer", rec.Messages[1].Content)
	other, _ := s.Get(1)
	assert.Equal(t, "kept", other.Messages[1].Content)

	assert.ErrorIs(t, s.ReplaceRecord(7, nil, ""), ErrInvalidRecord)
}

func TestStore_Clear(t *testing.T) {
	s := New()
	s.Append(record("q", "a"))
	s.Clear()
	assert.True(t, s.IsEmpty())
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation_history.json")

	s := New(func(o *Options) { o.Path = path })
	s.Append(record("persisted", "yes"))

	reloaded := New(func(o *Options) { o.Path = path })
	require.Equal(t, 1, reloaded.Len())
	rec, err := reloaded.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "persisted", rec.RequestInput)
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New(func(o *Options) { o.Path = path })
	assert.True(t, s.IsEmpty())
}

func TestStore_PersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	// a directory at the file path makes every rename fail
	dir := t.TempDir()
	path := filepath.Join(dir, "history")
	require.NoError(t, os.Mkdir(path, 0o755))

	s := New(func(o *Options) { o.Path = path })
	s.Append(record("still here", "yes"))
	assert.Equal(t, 1, s.Len())
}
