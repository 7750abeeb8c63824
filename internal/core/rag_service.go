package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/llm"
	"github.com/twinlab/digital-twin/internal/logging"
	"github.com/twinlab/digital-twin/internal/metrics"
	"github.com/twinlab/digital-twin/internal/vector"
)

const (
	NumRelevantChunks = 3 // Number of chunks to retrieve for context

	FallbackAnswer = "I don't have specific information about that topic."
	defaultTitle   = "Information"

	answerTemperature = 0.7
	answerMaxTokens   = 500

	promptTemplate = `Based on the following information about yourself, answer the question.
Speak in first person as if you are describing your own background.

Your Information:
%s

Question: %s

Provide a helpful, professional response:`
)

// Retriever is the read side of the vector store.
type Retriever interface {
	Query(ctx context.Context, req vector.QueryRequest) ([]vector.Match, error)
	Info(ctx context.Context) (*vector.IndexInfo, error)
}

// Generator produces the final answer text.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.Fragment, error)
}

// Source is one retrieved chunk as shown to callers.
type Source struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Category string  `json:"category,omitempty"`
}

// Answer is the shaped result of a question.
type Answer struct {
	Text        string   `json:"answer"`
	SourceCount int      `json:"sources"`
	Sources     []Source `json:"-"`
}

// StreamAnswer carries the sources up front and the text as fragments.
type StreamAnswer struct {
	Fragments   <-chan llm.Fragment
	SourceCount int
	Sources     []Source
}

type RAGService struct {
	retriever Retriever
	generator Generator
	topK      int
	logger    *zap.Logger
}

func NewRAGService(retriever Retriever, generator Generator, topK int, logger *zap.Logger) *RAGService {
	if topK <= 0 {
		topK = NumRelevantChunks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// TopK is the number of chunks retrieved when the caller does not choose.
func (s *RAGService) TopK() int {
	return s.topK
}

// BuildContext renders matches as "{title}: {content}" blocks separated by a
// blank line, in the order given. Matches without content are skipped. The
// returned sources are exactly the matches that contributed.
func BuildContext(matches []vector.Match) (string, []Source) {
	blocks := make([]string, 0, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		content := strings.TrimSpace(m.Metadata.Content())
		if content == "" {
			continue
		}
		title := strings.TrimSpace(m.Metadata.Title())
		if title == "" {
			title = defaultTitle
		}
		blocks = append(blocks, title+": "+content)
		sources = append(sources, Source{
			ID:       m.ID,
			Score:    m.Score,
			Title:    title,
			Content:  content,
			Category: m.Metadata.Category(),
		})
	}
	return strings.Join(blocks, "\n\n"), sources
}

// BuildPrompt embeds context and the verbatim question in the answer template.
func BuildPrompt(relevantContext, question string) string {
	return fmt.Sprintf(promptTemplate, relevantContext, question)
}

func answerRequest(prompt string) llm.Request {
	return llm.Request{
		Prompt:      prompt,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	}
}

func (s *RAGService) retrieve(ctx context.Context, op, question string, topK int) (string, []Source, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil, apperr.New(apperr.KindInvalidArgument, op, "question cannot be empty")
	}
	if topK <= 0 {
		topK = s.topK
	}

	matches, err := s.retriever.Query(ctx, vector.QueryRequest{
		Text:            question,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to search profile: %w", err)
	}

	relevantContext, sources := BuildContext(matches)
	s.logger.Debug("retrieved context",
		zap.String("question", logging.Preview(question, 50)),
		zap.Int("matches", len(matches)),
		zap.Int("sources", len(sources)),
	)
	return relevantContext, sources, nil
}

// Answer retrieves the default number of chunks and answers question.
func (s *RAGService) Answer(ctx context.Context, question string) (*Answer, error) {
	return s.AnswerTopK(ctx, question, s.topK)
}

// AnswerTopK answers question in first person using up to topK profile
// chunks. When nothing relevant is stored it returns FallbackAnswer without
// calling the model.
func (s *RAGService) AnswerTopK(ctx context.Context, question string, topK int) (*Answer, error) {
	relevantContext, sources, err := s.retrieve(ctx, "rag.answer", question, topK)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		s.logger.Info("no relevant context found", zap.String("question", logging.Preview(question, 50)))
		metrics.FallbackAnswersTotal.Inc()
		return &Answer{Text: FallbackAnswer, SourceCount: 0, Sources: []Source{}}, nil
	}

	text, err := s.generator.Generate(ctx, answerRequest(BuildPrompt(relevantContext, question)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Answer{Text: text, SourceCount: len(sources), Sources: sources}, nil
}

// AnswerStream is AnswerTopK with streamed generation.
func (s *RAGService) AnswerStream(ctx context.Context, question string, topK int) (*StreamAnswer, error) {
	relevantContext, sources, err := s.retrieve(ctx, "rag.stream", question, topK)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		metrics.FallbackAnswersTotal.Inc()
		ch := make(chan llm.Fragment, 2)
		ch <- llm.Fragment{Kind: llm.FragmentData, Text: FallbackAnswer}
		ch <- llm.Fragment{Kind: llm.FragmentEnd}
		close(ch)
		return &StreamAnswer{Fragments: ch, Sources: []Source{}}, nil
	}

	fragments, err := s.generator.GenerateStream(ctx, answerRequest(BuildPrompt(relevantContext, question)))
	if err != nil {
		return nil, fmt.Errorf("failed to start answer stream: %w", err)
	}
	return &StreamAnswer{Fragments: fragments, SourceCount: len(sources), Sources: sources}, nil
}

// Search returns matching profile chunks without generating an answer.
// A non-empty category restricts results to that metadata category.
func (s *RAGService) Search(ctx context.Context, query, category string, topK int) ([]Source, error) {
	const op = "rag.search"
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, op, "query cannot be empty")
	}
	if topK <= 0 {
		topK = s.topK
	}

	req := vector.QueryRequest{Text: query, TopK: topK, IncludeMetadata: true}
	if category = strings.TrimSpace(category); category != "" {
		req.Filter = CategoryFilter(category)
	}

	matches, err := s.retriever.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search profile: %w", err)
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		title := m.Metadata.Title()
		if title == "" {
			title = defaultTitle
		}
		sources = append(sources, Source{
			ID:       m.ID,
			Score:    m.Score,
			Title:    title,
			Content:  m.Metadata.Content(),
			Category: m.Metadata.Category(),
		})
	}
	return sources, nil
}

// CategoryFilter builds an Upstash metadata filter matching one category.
func CategoryFilter(category string) string {
	return fmt.Sprintf("category = '%s'", strings.ReplaceAll(category, "'", "\\'"))
}

// Info returns vector index diagnostics.
func (s *RAGService) Info(ctx context.Context) (*vector.IndexInfo, error) {
	info, err := s.retriever.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index info: %w", err)
	}
	return info, nil
}
