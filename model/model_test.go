package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskagent/deskagent/core"
)

var _ Model = (*MockModel)(nil)

func collect(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var responses []Response
	for r := range respCh {
		responses = append(responses, r)
	}
	return responses, <-errCh
}

func TestMockModel_NonStreaming(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("hello", "hi there")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("hello")},
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Partial)
	assert.Equal(t, "hi there", responses[0].Text)
	assert.Equal(t, "stop", responses[0].FinishReason)
}

func TestMockModel_StreamingAccumulates(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("question", "one two three")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("question")},
		Stream:   true,
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.NotEmpty(t, responses)

	final := responses[len(responses)-1]
	assert.False(t, final.Partial)
	assert.Equal(t, "one two three", final.Text)

	var streamed string
	for _, r := range responses[:len(responses)-1] {
		assert.True(t, r.Partial)
		streamed += r.Text
	}
	assert.Equal(t, "one two three", streamed)
}

func TestMockModel_EmptyRequest(t *testing.T) {
	m := NewMockModel("test-model")
	respCh, errCh := m.Generate(context.Background(), Request{})
	responses, err := collect(t, respCh, errCh)
	assert.Empty(t, responses)
	assert.Error(t, err)
}

func TestMockModel_FailWith(t *testing.T) {
	boom := errors.New("provider down")
	m := NewMockModel("test-model")
	m.FailWith(boom)

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("hello")},
	})
	responses, err := collect(t, respCh, errCh)
	assert.Empty(t, responses)
	assert.ErrorIs(t, err, boom)
}
