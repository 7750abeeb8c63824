package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/config"
	"github.com/twinlab/digital-twin/internal/core"
	"github.com/twinlab/digital-twin/internal/llm"
	"github.com/twinlab/digital-twin/internal/logging"
	"github.com/twinlab/digital-twin/internal/vector"
)

// app is the read path shared by serve, ask, chat, search and mcp.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	vector *vector.Client
	llm    *llm.Service
	twin   *core.RAGService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	vc, err := vector.NewClient(cfg, vector.ReadOnly,
		vector.WithLogger(logger),
		vector.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector client: %w", err)
	}

	llmService, err := llm.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		vector: vc,
		llm:    llmService,
		twin:   core.NewRAGService(vc, llmService, cfg.TopK, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.llm.Close(); err != nil {
		a.logger.Warn("failed to close LLM service", zap.Error(err))
	}
	_ = a.logger.Sync()
}
