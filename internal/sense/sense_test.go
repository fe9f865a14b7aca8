package sense

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

// mockClient implements llm.Client with canned responses.
type mockClient struct {
	dataJSON   string
	dataErr    error
	embeddings [][]float32
	embedErr   error

	dataCalls  int
	embedCalls int
	embedTexts []string
}

func (m *mockClient) GenerateText(_ context.Context, _ llm.Request) (string, error) {
	return "", errors.New("not used")
}

func (m *mockClient) GenerateData(_ context.Context, _ llm.Request, out any) error {
	m.dataCalls++
	if m.dataErr != nil {
		return m.dataErr
	}
	return json.Unmarshal([]byte(m.dataJSON), out)
}

func (m *mockClient) GenerateStream(_ context.Context, _ llm.Request, _ llm.StreamFunc) (string, error) {
	return "", errors.New("not used")
}

func (m *mockClient) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	m.embedCalls++
	m.embedTexts = texts
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if len(m.embeddings) >= len(texts) {
		return m.embeddings[:len(texts)], nil
	}
	return m.embeddings, nil
}

func TestSenseCombinesClassificationAndEmbedding(t *testing.T) {
	mock := &mockClient{
		dataJSON:   `{"sentiment":"anxious","language":"de","intensity":0.8,"urgency_level":6,"crisis_flag":false}`,
		embeddings: [][]float32{{0.1, 0.2}},
	}
	stage := New(mock, "googleai/gemini-2.5-flash", log.NewNop())

	r := stage.Sense(context.Background(), "Ich habe Angst vor meinem Chef")

	assert.Equal(t, "anxious", r.Sentiment)
	assert.Equal(t, "de", r.Language)
	assert.InDelta(t, 0.8, r.Intensity, 1e-9)
	assert.Equal(t, 6, r.UrgencyLevel)
	assert.False(t, r.CrisisFlag)
	assert.Equal(t, []float32{0.1, 0.2}, r.Embedding)
}

func TestSenseDegradesOnClassificationFailure(t *testing.T) {
	mock := &mockClient{
		dataErr:    errors.New("model unavailable"),
		embeddings: [][]float32{{0.5}},
	}
	stage := New(mock, "m", log.NewNop())

	r := stage.Sense(context.Background(), "hello")

	assert.Equal(t, "neutral", r.Sentiment)
	assert.Equal(t, DefaultLanguage, r.Language)
	assert.False(t, r.CrisisFlag)
	assert.Equal(t, []float32{0.5}, r.Embedding)
}

func TestSenseDegradesOnEmbeddingFailure(t *testing.T) {
	mock := &mockClient{
		dataJSON: `{"sentiment":"hopeful","language":"en","intensity":0.3,"urgency_level":1}`,
		embedErr: errors.New("embedder down"),
	}
	stage := New(mock, "m", log.NewNop())

	r := stage.Sense(context.Background(), "hello")

	assert.Equal(t, "hopeful", r.Sentiment)
	assert.Empty(t, r.Embedding)
}

func TestSenseCrisisFlagPropagates(t *testing.T) {
	mock := &mockClient{
		dataJSON:   `{"sentiment":"despairing","language":"en","intensity":0.95,"urgency_level":9,"crisis_flag":true}`,
		embeddings: [][]float32{{1}},
	}
	stage := New(mock, "m", log.NewNop())

	r := stage.Sense(context.Background(), "I can't go on")

	assert.True(t, r.CrisisFlag)
	assert.Equal(t, 9, r.UrgencyLevel)
}

func TestExpandUsesQ1Embedding(t *testing.T) {
	mock := &mockClient{
		dataJSON: `{"q1":"how to handle workplace anxiety","q2":"coping with stress at work"}`,
		embeddings: [][]float32{
			{0.1}, // original
			{0.2}, // q1
			{0.3}, // q2
		},
	}
	stage := New(mock, "m", log.NewNop())

	fallback := []float32{9}
	exp := stage.Expand(context.Background(), "my boss scares me", fallback)

	assert.Equal(t, "how to handle workplace anxiety", exp.Q1)
	assert.Equal(t, []float32{0.2}, exp.Vector)
	// One batched embed call over original + both rephrasings.
	assert.Equal(t, 1, mock.embedCalls)
	require.Len(t, mock.embedTexts, 3)
}

func TestExpandKeepsFallbackOnLLMFailure(t *testing.T) {
	mock := &mockClient{dataErr: errors.New("boom")}
	stage := New(mock, "m", log.NewNop())

	fallback := []float32{0.7}
	exp := stage.Expand(context.Background(), "q", fallback)

	assert.Equal(t, fallback, exp.Vector)
	assert.Empty(t, exp.Q1)
	assert.Equal(t, 0, mock.embedCalls)
}

func TestExpandKeepsFallbackOnEmbedFailure(t *testing.T) {
	mock := &mockClient{
		dataJSON: `{"q1":"alt one","q2":""}`,
		embedErr: errors.New("embed down"),
	}
	stage := New(mock, "m", log.NewNop())

	fallback := []float32{0.4}
	exp := stage.Expand(context.Background(), "q", fallback)

	assert.Equal(t, fallback, exp.Vector)
	assert.Equal(t, "alt one", exp.Q1)
}
