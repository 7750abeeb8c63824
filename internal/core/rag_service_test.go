package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/llm"
	"github.com/twinlab/digital-twin/internal/vector"
)

type fakeRetriever struct {
	matches  []vector.Match
	err      error
	requests []vector.QueryRequest
	info     *vector.IndexInfo
}

func (f *fakeRetriever) Query(_ context.Context, req vector.QueryRequest) ([]vector.Match, error) {
	f.requests = append(f.requests, req)
	return f.matches, f.err
}

func (f *fakeRetriever) Info(context.Context) (*vector.IndexInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeGenerator struct {
	text     string
	err      error
	chunks   []string
	requests []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.text, f.err
}

func (f *fakeGenerator) GenerateStream(_ context.Context, req llm.Request) (<-chan llm.Fragment, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.Fragment, len(f.chunks)+1)
	for _, c := range f.chunks {
		ch <- llm.Fragment{Kind: llm.FragmentData, Text: c}
	}
	ch <- llm.Fragment{Kind: llm.FragmentEnd}
	close(ch)
	return ch, nil
}

func match(id, title, content string) vector.Match {
	return vector.Match{ID: id, Score: 0.9, Metadata: vector.Metadata{"title": title, "content": content}}
}

func newTestRAG(t *testing.T, r Retriever, g Generator) *RAGService {
	return NewRAGService(r, g, 0, zaptest.NewLogger(t))
}

func TestAnswerUsesRetrievedContext(t *testing.T) {
	r := &fakeRetriever{matches: []vector.Match{match("chunk-3", "Education", "BSc Computer Science")}}
	g := &fakeGenerator{text: "I hold a BSc in Computer Science."}
	svc := newTestRAG(t, r, g)

	ans, err := svc.Answer(context.Background(), "Where did you study?")
	require.NoError(t, err)
	assert.Equal(t, "I hold a BSc in Computer Science.", ans.Text)
	assert.Equal(t, 1, ans.SourceCount)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "chunk-3", ans.Sources[0].ID)

	require.Len(t, r.requests, 1)
	assert.Equal(t, NumRelevantChunks, r.requests[0].TopK)
	assert.True(t, r.requests[0].IncludeMetadata)
	assert.Equal(t, "Where did you study?", r.requests[0].Text)

	require.Len(t, g.requests, 1)
	req := g.requests[0]
	assert.Contains(t, req.Prompt, "Education: BSc Computer Science")
	assert.Contains(t, req.Prompt, "Question: Where did you study?")
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, 500, req.MaxTokens)
}

func TestAnswerFallbackWithoutMatches(t *testing.T) {
	for _, matches := range [][]vector.Match{
		nil,
		{match("chunk-1", "Empty", "   "), {ID: "chunk-2"}},
	} {
		r := &fakeRetriever{matches: matches}
		g := &fakeGenerator{text: "should not be used"}
		svc := newTestRAG(t, r, g)

		ans, err := svc.Answer(context.Background(), "What is your favourite colour?")
		require.NoError(t, err)
		assert.Equal(t, FallbackAnswer, ans.Text)
		assert.Equal(t, 0, ans.SourceCount)
		assert.Empty(t, g.requests)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	r := &fakeRetriever{}
	g := &fakeGenerator{}
	svc := newTestRAG(t, r, g)

	for _, q := range []string{"", "  \n"} {
		_, err := svc.Answer(context.Background(), q)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}
	assert.Empty(t, r.requests)
	assert.Empty(t, g.requests)
}

func TestAnswerPropagatesErrorKinds(t *testing.T) {
	t.Run("retrieval", func(t *testing.T) {
		r := &fakeRetriever{err: apperr.New(apperr.KindRemoteCallFailed, "vector.query", "status 503")}
		svc := newTestRAG(t, r, &fakeGenerator{})

		_, err := svc.Answer(context.Background(), "hello")
		assert.ErrorIs(t, err, apperr.ErrRemoteCallFailed)
		assert.Equal(t, apperr.KindRemoteCallFailed, apperr.KindOf(err))
	})

	t.Run("generation", func(t *testing.T) {
		r := &fakeRetriever{matches: []vector.Match{match("chunk-1", "Skills", "Go")}}
		g := &fakeGenerator{err: apperr.New(apperr.KindRateLimited, "llm.generate", "rate limit exceeded")}
		svc := newTestRAG(t, r, g)

		_, err := svc.Answer(context.Background(), "hello")
		assert.ErrorIs(t, err, apperr.ErrRateLimited)
		assert.Contains(t, err.Error(), "rate limit exceeded")
	})
}

func TestBuildContext(t *testing.T) {
	matches := []vector.Match{
		match("chunk-2", "Experience", "Backend engineer at Acme"),
		match("chunk-5", "", "Go and Python"),
		match("chunk-7", "Hobbies", ""),
		match("chunk-1", "Education", "BSc Computer Science"),
	}

	text, sources := BuildContext(matches)
	assert.Equal(t,
		"Experience: Backend engineer at Acme\n\nInformation: Go and Python\n\nEducation: BSc Computer Science",
		text)
	require.Len(t, sources, 3)
	assert.Equal(t, []string{"chunk-2", "chunk-5", "chunk-1"}, []string{sources[0].ID, sources[1].ID, sources[2].ID})
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Education: BSc", "Where did you study?")
	assert.True(t, strings.HasPrefix(prompt, "Based on the following information about yourself, answer the question.\n"))
	assert.Contains(t, prompt, "Your Information:\nEducation: BSc\n\nQuestion: Where did you study?\n\n")
	assert.True(t, strings.HasSuffix(prompt, "Provide a helpful, professional response:"))
}

func TestAnswerStream(t *testing.T) {
	r := &fakeRetriever{matches: []vector.Match{match("chunk-1", "Skills", "Go, Python")}}
	g := &fakeGenerator{chunks: []string{"I write ", "Go."}}
	svc := newTestRAG(t, r, g)

	sa, err := svc.AnswerStream(context.Background(), "What languages?", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sa.SourceCount)
	assert.Equal(t, 2, r.requests[0].TopK)

	var b strings.Builder
	var last llm.Fragment
	for f := range sa.Fragments {
		if f.Kind == llm.FragmentData {
			b.WriteString(f.Text)
		}
		last = f
	}
	assert.Equal(t, "I write Go.", b.String())
	assert.Equal(t, llm.FragmentEnd, last.Kind)
}

func TestAnswerStreamFallback(t *testing.T) {
	svc := newTestRAG(t, &fakeRetriever{}, &fakeGenerator{})

	sa, err := svc.AnswerStream(context.Background(), "anything", 0)
	require.NoError(t, err)

	var frags []llm.Fragment
	for f := range sa.Fragments {
		frags = append(frags, f)
	}
	require.Len(t, frags, 2)
	assert.Equal(t, FallbackAnswer, frags[0].Text)
	assert.Equal(t, llm.FragmentEnd, frags[1].Kind)
}

func TestSearch(t *testing.T) {
	r := &fakeRetriever{matches: []vector.Match{
		{ID: "chunk-4", Score: 0.8, Metadata: vector.Metadata{"title": "Skills", "content": "Go", "category": "technical"}},
	}}
	svc := newTestRAG(t, r, &fakeGenerator{})

	sources, err := svc.Search(context.Background(), "languages", "technical", 5)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "technical", sources[0].Category)
	assert.Equal(t, "category = 'technical'", r.requests[0].Filter)
	assert.Equal(t, 5, r.requests[0].TopK)

	_, err = svc.Search(context.Background(), "languages", "", 0)
	require.NoError(t, err)
	assert.Empty(t, r.requests[1].Filter)
	assert.Equal(t, NumRelevantChunks, r.requests[1].TopK)

	_, err = svc.Search(context.Background(), " ", "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCategoryFilterEscapesQuotes(t *testing.T) {
	assert.Equal(t, `category = 'o\'brien'`, CategoryFilter("o'brien"))
}

func TestInfo(t *testing.T) {
	r := &fakeRetriever{info: &vector.IndexInfo{VectorCount: 7, Dimension: 1024}}
	svc := newTestRAG(t, r, &fakeGenerator{})

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, info.VectorCount)

	r.err = errors.New("down")
	_, err = svc.Info(context.Background())
	assert.Error(t, err)
}
