// Package mcp exposes the digital twin as Model Context Protocol tools over
// stdio: query_digital_twin, search_profile and get_database_info.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/core"
	"github.com/twinlab/digital-twin/internal/vector"
)

const (
	ServerName    = "digital-twin-mcp-server"
	ServerVersion = "1.0.0"

	defaultTopK = core.NumRelevantChunks
	maxTopK     = 20
)

// TwinService is the subset of the orchestrator the tools call.
type TwinService interface {
	AnswerTopK(ctx context.Context, question string, topK int) (*core.Answer, error)
	Search(ctx context.Context, query, category string, topK int) ([]core.Source, error)
	Info(ctx context.Context) (*vector.IndexInfo, error)
}

type Server struct {
	mcp    *mcp.Server
	twin   TwinService
	logger *zap.Logger
}

type queryInput struct {
	Question string `json:"question" jsonschema:"The question to ask about the professional profile"`
	TopK     int    `json:"topK,omitempty" jsonschema:"Number of relevant results to retrieve (default: 3, max: 20)"`
}

type queryOutput struct {
	Answer  string `json:"answer" jsonschema:"Answer in the first person"`
	Sources int    `json:"sources" jsonschema:"Number of profile chunks used as context"`
}

type searchInput struct {
	Query    string `json:"query" jsonschema:"Search query"`
	Category string `json:"category,omitempty" jsonschema:"Filter by category (e.g. experience, skills, education)"`
	TopK     int    `json:"topK,omitempty" jsonschema:"Number of results to return (default: 3, max: 20)"`
}

type searchOutput struct {
	Query   string        `json:"query"`
	Results []core.Source `json:"results"`
	Count   int           `json:"count"`
}

type infoInput struct{}

func NewServer(twin TwinService, logger *zap.Logger) (*Server, error) {
	if twin == nil {
		return nil, fmt.Errorf("twin service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    ServerName,
				Version: ServerVersion,
			},
			nil,
		),
		twin:   twin,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_digital_twin",
		Description: "Ask questions about the person's professional background, skills, experience, and career goals. Uses RAG to provide accurate, context-aware responses.",
	}, s.queryDigitalTwin)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_profile",
		Description: "Search specific sections of the professional profile. Returns raw results without AI generation.",
	}, s.searchProfile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_database_info",
		Description: "Get information about the vector database including vector count and dimension.",
	}, s.getDatabaseInfo)
}

// Run serves on stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func resolveTopK(op string, topK int) (int, error) {
	switch {
	case topK == 0:
		return defaultTopK, nil
	case topK < 1 || topK > maxTopK:
		return 0, apperr.Newf(apperr.KindInvalidArgument, op, "topK must be between 1 and %d", maxTopK)
	}
	return topK, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) queryDigitalTwin(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, queryOutput, error) {
	if strings.TrimSpace(args.Question) == "" {
		return nil, queryOutput{}, apperr.New(apperr.KindInvalidArgument, "mcp.query", "question is required")
	}
	topK, err := resolveTopK("mcp.query", args.TopK)
	if err != nil {
		return nil, queryOutput{}, err
	}

	s.logger.Info("querying digital twin", zap.String("question", args.Question), zap.Int("top_k", topK))
	ans, err := s.twin.AnswerTopK(ctx, args.Question, topK)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		return nil, queryOutput{}, err
	}

	return textResult(ans.Text), queryOutput{Answer: ans.Text, Sources: ans.SourceCount}, nil
}

func (s *Server) searchProfile(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, searchOutput{}, apperr.New(apperr.KindInvalidArgument, "mcp.search", "query is required")
	}
	topK, err := resolveTopK("mcp.search", args.TopK)
	if err != nil {
		return nil, searchOutput{}, err
	}

	results, err := s.twin.Search(ctx, args.Query, args.Category, topK)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		return nil, searchOutput{}, err
	}

	out := searchOutput{Query: args.Query, Results: results, Count: len(results)}
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("marshal search results: %w", err)
	}
	return textResult(string(payload)), out, nil
}

func (s *Server) getDatabaseInfo(ctx context.Context, _ *mcp.CallToolRequest, _ infoInput) (*mcp.CallToolResult, vector.IndexInfo, error) {
	info, err := s.twin.Info(ctx)
	if err != nil {
		s.logger.Error("database info failed", zap.Error(err))
		return nil, vector.IndexInfo{}, err
	}

	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, vector.IndexInfo{}, fmt.Errorf("marshal index info: %w", err)
	}
	return textResult(string(payload)), *info, nil
}
