package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/apperr"
	"github.com/twinlab/digital-twin/internal/config"
	"github.com/twinlab/digital-twin/internal/logging"
	"github.com/twinlab/digital-twin/internal/metrics"
)

const defaultAttemptTimeout = 30 * time.Second

// Service generates text with one provider.
type Service struct {
	provider Provider
	model    string
	timeout  time.Duration
	policy   RetryPolicy
	logger   *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithModel sets the model used when a request does not name one.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithAttemptTimeout bounds each non-streaming attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(p Provider, opts ...Option) *Service {
	s := &Service{
		provider: p,
		model:    config.DefaultGroqModel,
		timeout:  defaultAttemptTimeout,
		policy:   DefaultRetryPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds the provider selected by cfg.LLMProvider. It fails
// with a configuration error before any network call when the key is missing.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	const op = "llm.new"
	key := strings.TrimSpace(cfg.LLMAPIKey())
	if key == "" {
		return nil, apperr.Missing(op, []string{cfg.LLMKeyName()})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var provider Provider
	switch cfg.LLMProvider {
	case config.ProviderGroq:
		provider = NewGroqProvider(key, cfg.GroqBaseURL, &http.Client{})
	case config.ProviderGemini:
		gp, err := NewGeminiProvider(ctx, key)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, op, "failed to initialize gemini", err)
		}
		provider = gp
	default:
		return nil, apperr.Newf(apperr.KindConfiguration, op, "unknown LLM provider %q", cfg.LLMProvider)
	}

	logger.Info("llm provider initialized", zap.String("provider", provider.Name()), zap.String("model", cfg.LLMModel))
	return NewService(provider,
		WithModel(cfg.LLMModel),
		WithAttemptTimeout(cfg.RequestTimeout),
		WithLogger(logger),
	), nil
}

// Provider returns the name of the underlying provider.
func (s *Service) Provider() string {
	return s.provider.Name()
}

// Close releases the provider's resources if it holds any.
func (s *Service) Close() error {
	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Service) prepare(req Request) (Request, error) {
	prepared, truncated, err := req.prepare(s.model)
	if err != nil {
		return prepared, err
	}
	if truncated {
		s.logger.Warn("prompt truncated", zap.Int("max_chars", MaxPromptChars))
	}
	return prepared, nil
}

func (s *Service) recordAttempt(err error) {
	outcome := "success"
	if err != nil {
		outcome = Classify(err).String()
	}
	metrics.GenerationAttemptsTotal.WithLabelValues(s.provider.Name(), outcome).Inc()
}

// Generate returns the complete response text. Failures are retried per the
// service's RetryPolicy; the returned error carries an apperr kind.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	const op = "llm.generate"
	req, err := s.prepare(req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues(s.provider.Name()).Observe(time.Since(start).Seconds())
	}()

	text, err := Retry(ctx, s.policy, op, func(ctx context.Context, attempt int) (string, error) {
		actx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		s.logger.Debug("generating response",
			zap.String("provider", s.provider.Name()),
			zap.String("model", req.Model),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.policy.withDefaults().MaxAttempts),
		)

		out, err := s.provider.Complete(actx, req)
		if err == nil {
			out = strings.TrimSpace(out)
			if out == "" {
				err = apperr.New(apperr.KindEmptyResponse, op, "provider returned empty response")
			}
		}
		s.recordAttempt(err)
		if err != nil {
			s.logger.Warn("generation attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return "", err
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("response generated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// GenerateStream opens a stream and returns its fragments. Failures while
// opening are retried and returned as errors. Once open, the channel yields
// Data fragments followed by one End, or one Error on a mid-stream failure,
// and is then closed. Cancel ctx to stop early.
func (s *Service) GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error) {
	const op = "llm.stream"
	req, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	stream, err := Retry(ctx, s.policy, op, func(ctx context.Context, attempt int) (TokenStream, error) {
		ts, err := s.provider.OpenStream(ctx, req)
		s.recordAttempt(err)
		if err != nil {
			s.logger.Warn("stream open failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return ts, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("streaming response initiated", zap.String("prompt", logging.Preview(req.Prompt, 50)))

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(f Fragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			text, err := stream.Next()
			if errors.Is(err, io.EOF) {
				send(Fragment{Kind: FragmentEnd})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				kind := Classify(err)
				if kind == apperr.KindUnknown {
					kind = apperr.KindGenerationFailed
				}
				s.logger.Error("streaming error", zap.Error(err))
				send(Fragment{Kind: FragmentError, Err: apperr.Wrap(kind, op, "stream interrupted", err)})
				return
			}
			if !send(Fragment{Kind: FragmentData, Text: text}) {
				return
			}
		}
	}()
	return out, nil
}

// Ping issues a minimal request to check connectivity and credentials.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.Generate(ctx, Request{Prompt: "Test", SystemPrompt: "Respond with 'OK'", MaxTokens: 10})
	return err
}
