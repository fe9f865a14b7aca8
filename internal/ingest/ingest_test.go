package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/log"
)

type mockStore struct {
	chunks []knowledge.Chunk
	err    error
}

func (m *mockStore) AddChunk(_ context.Context, c knowledge.Chunk, _ []float32) (uuid.UUID, error) {
	if m.err != nil {
		return uuid.Nil, m.err
	}
	m.chunks = append(m.chunks, c)
	return uuid.New(), nil
}

type mockEmbedder struct {
	err   error
	calls int
	texts []string
	short bool // return one fewer vector than requested
}

func (m *mockEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	m.calls++
	m.texts = texts
	if m.err != nil {
		return nil, m.err
	}
	n := len(texts)
	if m.short {
		n--
	}
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = []float32{float32(i)}
	}
	return vecs, nil
}

func TestSplitTextPacksParagraphs(t *testing.T) {
	chunks := SplitText("first paragraph\n\nsecond paragraph\n\nthird", 100)

	require.Len(t, chunks, 1)
	assert.Equal(t, "first paragraph\n\nsecond paragraph\n\nthird", chunks[0])
}

func TestSplitTextRespectsMaxSize(t *testing.T) {
	a := strings.Repeat("a", 60)
	b := strings.Repeat("b", 60)
	chunks := SplitText(a+"\n\n"+b, 100)

	require.Len(t, chunks, 2)
	assert.Equal(t, a, chunks[0])
	assert.Equal(t, b, chunks[1])
}

func TestSplitTextHardSplitsOversizedParagraph(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunks := SplitText(long, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
}

func TestSplitTextEmptyContent(t *testing.T) {
	assert.Nil(t, SplitText("", 100))
	assert.Nil(t, SplitText("   \n\n  ", 100))
}

func TestIngestDocumentWritesSequentialIndices(t *testing.T) {
	store := &mockStore{}
	embedder := &mockEmbedder{}
	pid := uuid.New()
	ing := New(store, embedder, log.NewNop())

	// Each paragraph is too large to share a chunk with the next.
	a := strings.Repeat("a", 1500)
	b := strings.Repeat("b", 1500)
	c := strings.Repeat("c", 1500)
	n, err := ing.IngestDocument(context.Background(), Document{
		ProfileID: &pid,
		Title:     "Handbook",
		URL:       "https://example.com/handbook",
		Content:   a + "\n\n" + b + "\n\n" + c,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// One batched embedding call covering every chunk.
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, embedder.texts, 3)

	require.Len(t, store.chunks, 3)
	for i, ch := range store.chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, "Handbook", ch.SourceTitle)
		assert.Equal(t, "https://example.com/handbook", ch.SourceURL)
		require.NotNil(t, ch.ProfileID)
		assert.Equal(t, pid, *ch.ProfileID)
	}
}

func TestIngestDocumentGlobalScope(t *testing.T) {
	store := &mockStore{}
	ing := New(store, &mockEmbedder{}, log.NewNop())

	_, err := ing.IngestDocument(context.Background(), Document{
		Title:   "Shared Lessons",
		Content: "some shared wisdom",
	})

	require.NoError(t, err)
	require.Len(t, store.chunks, 1)
	assert.Nil(t, store.chunks[0].ProfileID)
}

func TestIngestDocumentRejectsMissingTitle(t *testing.T) {
	ing := New(&mockStore{}, &mockEmbedder{}, log.NewNop())

	_, err := ing.IngestDocument(context.Background(), Document{Content: "text"})

	assert.Error(t, err)
}

func TestIngestDocumentEmbeddingFailure(t *testing.T) {
	store := &mockStore{}
	ing := New(store, &mockEmbedder{err: errors.New("quota exhausted")}, log.NewNop())

	_, err := ing.IngestDocument(context.Background(), Document{Title: "T", Content: "text"})

	require.Error(t, err)
	assert.Empty(t, store.chunks, "nothing stored when embedding fails")
}

func TestIngestDocumentVectorCountMismatch(t *testing.T) {
	store := &mockStore{}
	ing := New(store, &mockEmbedder{short: true}, log.NewNop())

	_, err := ing.IngestDocument(context.Background(), Document{Title: "T", Content: "text"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectors")
	assert.Empty(t, store.chunks)
}

func TestIngestFileRejectsUnsupportedType(t *testing.T) {
	ing := New(&mockStore{}, &mockEmbedder{}, log.NewNop())

	_, err := ing.IngestFile(context.Background(), "notes.exe", nil, "")

	assert.Error(t, err)
}
