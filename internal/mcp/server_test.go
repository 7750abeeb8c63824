package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/core"
	"github.com/twinlab/digital-twin/internal/vector"
)

type fakeTwin struct {
	answer  *core.Answer
	sources []core.Source
	info    *vector.IndexInfo
	err     error

	calls       int
	gotTopK     int
	gotCategory string
}

func (f *fakeTwin) AnswerTopK(_ context.Context, _ string, topK int) (*core.Answer, error) {
	f.calls++
	f.gotTopK = topK
	return f.answer, f.err
}

func (f *fakeTwin) Search(_ context.Context, _ string, category string, topK int) ([]core.Source, error) {
	f.calls++
	f.gotTopK, f.gotCategory = topK, category
	return f.sources, f.err
}

func (f *fakeTwin) Info(context.Context) (*vector.IndexInfo, error) {
	f.calls++
	return f.info, f.err
}

func newTestServer(t *testing.T, twin *fakeTwin) *Server {
	t.Helper()
	s, err := NewServer(twin, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestQueryDigitalTwin(t *testing.T) {
	twin := &fakeTwin{answer: &core.Answer{Text: "I work with Go.", SourceCount: 3}}
	s := newTestServer(t, twin)

	res, out, err := s.queryDigitalTwin(context.Background(), nil, queryInput{Question: "What do you build with?"})
	require.NoError(t, err)
	assert.Equal(t, "I work with Go.", resultText(t, res))
	assert.Equal(t, queryOutput{Answer: "I work with Go.", Sources: 3}, out)
	assert.Equal(t, defaultTopK, twin.gotTopK)

	_, _, err = s.queryDigitalTwin(context.Background(), nil, queryInput{Question: "again", TopK: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, twin.gotTopK)
}

func TestQueryDigitalTwinValidation(t *testing.T) {
	testCases := []struct {
		name  string
		input queryInput
	}{
		{name: "empty_question", input: queryInput{}},
		{name: "blank_question", input: queryInput{Question: "  "}},
		{name: "negative_topk", input: queryInput{Question: "hi", TopK: -1}},
		{name: "topk_too_large", input: queryInput{Question: "hi", TopK: 21}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			twin := &fakeTwin{}
			s := newTestServer(t, twin)

			_, _, err := s.queryDigitalTwin(context.Background(), nil, tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
			assert.Zero(t, twin.calls)
		})
	}
}

func TestQueryDigitalTwinPropagatesErrors(t *testing.T) {
	twin := &fakeTwin{err: apperr.New(apperr.KindUnauthorized, "llm.generate", "invalid API key")}
	s := newTestServer(t, twin)

	_, _, err := s.queryDigitalTwin(context.Background(), nil, queryInput{Question: "hi"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestSearchProfile(t *testing.T) {
	twin := &fakeTwin{sources: []core.Source{
		{ID: "chunk-2", Score: 0.91, Title: "Experience", Content: "Backend engineer", Category: "experience"},
	}}
	s := newTestServer(t, twin)

	res, out, err := s.searchProfile(context.Background(), nil, searchInput{Query: "jobs", Category: "experience", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "jobs", out.Query)
	assert.Equal(t, "experience", twin.gotCategory)
	assert.Equal(t, 5, twin.gotTopK)
	assert.Contains(t, resultText(t, res), `"id": "chunk-2"`)

	_, _, err = s.searchProfile(context.Background(), nil, searchInput{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestGetDatabaseInfo(t *testing.T) {
	twin := &fakeTwin{info: &vector.IndexInfo{VectorCount: 9, Dimension: 1024, SimilarityFunction: "COSINE"}}
	s := newTestServer(t, twin)

	res, out, err := s.getDatabaseInfo(context.Background(), nil, infoInput{})
	require.NoError(t, err)
	assert.Equal(t, 9, out.VectorCount)
	assert.Contains(t, resultText(t, res), `"vectorCount": 9`)

	twin.err = apperr.New(apperr.KindRemoteCallFailed, "vector.info", "status 500")
	_, _, err = s.getDatabaseInfo(context.Background(), nil, infoInput{})
	assert.ErrorIs(t, err, apperr.ErrRemoteCallFailed)
}

func TestToolsOverInMemoryTransport(t *testing.T) {
	twin := &fakeTwin{answer: &core.Answer{Text: "Hello from the twin.", SourceCount: 1}}
	s := newTestServer(t, twin)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"query_digital_twin", "search_profile", "get_database_info"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "query_digital_twin",
		Arguments: map[string]any{"question": "Who are you?"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Hello from the twin.", resultText(t, res))
}
