package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/store"
	"github.com/twinlab/digital-twin/internal/vector"
)

const defaultBatchSize = 100

// VectorWriter is the write side of the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, chunks []vector.Chunk) error
	Delete(ctx context.Context, ids []string) (int, error)
	Reset(ctx context.Context) error
	Info(ctx context.Context) (*vector.IndexInfo, error)
}

// Manifest remembers what was uploaded.
type Manifest interface {
	GetIngestedChunks() (map[string]store.IngestedChunk, error)
	SaveIngestedChunks(chunks []store.IngestedChunk) error
	DeleteIngestedChunks(ids []string) error
	ClearIngestedChunks() error
	CreateIngestionRun(source string) (*store.IngestionRun, error)
	FinishIngestionRun(run *store.IngestionRun) error
}

type Options struct {
	Reset  bool // wipe the index and manifest first
	Prune  bool // delete vectors no longer produced by the profile
	DryRun bool // compute the plan only
	Force  bool // upload every chunk even if unchanged
}

type Report struct {
	RunID       string   `json:"run_id,omitempty"`
	Source      string   `json:"source"`
	Total       int      `json:"total"`
	Upserted    int      `json:"upserted"`
	Unchanged   int      `json:"unchanged"`
	Deleted     int      `json:"deleted"`
	Stale       []string `json:"stale,omitempty"`
	Pending     []string `json:"pending,omitempty"`
	VectorCount int      `json:"vector_count"`
	DryRun      bool     `json:"dry_run"`
}

type Pipeline struct {
	writer    VectorWriter
	manifest  Manifest
	logger    *zap.Logger
	batchSize int
}

func NewPipeline(writer VectorWriter, manifest Manifest, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		writer:    writer,
		manifest:  manifest,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// ContentHash identifies a chunk's uploaded state: its text and metadata.
func ContentHash(c vector.Chunk) string {
	h := sha256.New()
	h.Write([]byte(c.Text))
	h.Write([]byte{0})
	meta, _ := json.Marshal(c.Metadata) // map keys are sorted
	h.Write(meta)
	return hex.EncodeToString(h.Sum(nil))
}

// RunFile loads the profile at path and ingests it.
func (p *Pipeline) RunFile(ctx context.Context, path string, opts Options) (*Report, error) {
	profile, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	chunks := Flatten(profile)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("profile %s produced no chunks", path)
	}
	p.logger.Info("profile loaded", zap.String("path", path), zap.Int("chunks", len(chunks)))
	return p.Ingest(ctx, path, chunks, opts)
}

// Ingest uploads chunks whose content changed since the last run.
func (p *Pipeline) Ingest(ctx context.Context, source string, chunks []vector.Chunk, opts Options) (*Report, error) {
	report := &Report{Source: source, Total: len(chunks), DryRun: opts.DryRun}

	existing := map[string]store.IngestedChunk{}
	if !opts.Reset {
		var err error
		existing, err = p.manifest.GetIngestedChunks()
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
	}

	var pending []vector.Chunk
	var records []store.IngestedChunk
	current := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := current[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %q", c.ID)
		}
		current[c.ID] = struct{}{}

		hash := ContentHash(c)
		if prev, ok := existing[c.ID]; ok && prev.ContentHash == hash && !opts.Force {
			report.Unchanged++
			continue
		}
		pending = append(pending, c)
		records = append(records, store.IngestedChunk{
			ID:          c.ID,
			ContentHash: hash,
			Title:       c.Metadata.Title(),
			Category:    c.Metadata.Category(),
		})
		report.Pending = append(report.Pending, c.ID)
	}

	for id := range existing {
		if _, ok := current[id]; !ok {
			report.Stale = append(report.Stale, id)
		}
	}
	sort.Strings(report.Stale)

	if opts.DryRun {
		p.logger.Info("dry run, nothing uploaded",
			zap.Int("pending", len(pending)),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("stale", len(report.Stale)),
		)
		return report, nil
	}

	run, err := p.manifest.CreateIngestionRun(source)
	if err != nil {
		return nil, fmt.Errorf("failed to record ingestion run: %w", err)
	}
	report.RunID = run.ID

	if opts.Reset {
		p.logger.Warn("resetting vector index")
		if err := p.writer.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset index: %w", err)
		}
		if err := p.manifest.ClearIngestedChunks(); err != nil {
			return nil, fmt.Errorf("failed to clear manifest: %w", err)
		}
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := min(start+p.batchSize, len(pending))
		if err := p.writer.Upsert(ctx, pending[start:end]); err != nil {
			return nil, fmt.Errorf("failed to upsert chunks %d-%d: %w", start+1, end, err)
		}
		if err := p.manifest.SaveIngestedChunks(records[start:end]); err != nil {
			return nil, fmt.Errorf("failed to update manifest: %w", err)
		}
		report.Upserted += end - start
	}

	if opts.Prune && len(report.Stale) > 0 {
		n, err := p.writer.Delete(ctx, report.Stale)
		if err != nil {
			return nil, fmt.Errorf("failed to delete stale chunks: %w", err)
		}
		if err := p.manifest.DeleteIngestedChunks(report.Stale); err != nil {
			return nil, fmt.Errorf("failed to update manifest: %w", err)
		}
		report.Deleted = n
	}

	run.Upserted, run.Deleted, run.Unchanged = report.Upserted, report.Deleted, report.Unchanged
	if err := p.manifest.FinishIngestionRun(run); err != nil {
		p.logger.Warn("failed to finish ingestion run", zap.String("run_id", run.ID), zap.Error(err))
	}

	if info, err := p.writer.Info(ctx); err != nil {
		p.logger.Warn("failed to read index info", zap.Error(err))
	} else {
		report.VectorCount = info.VectorCount
	}

	p.logger.Info("ingestion complete",
		zap.String("run_id", run.ID),
		zap.Int("upserted", report.Upserted),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("deleted", report.Deleted),
		zap.Int("vector_count", report.VectorCount),
	)
	return report, nil
}
