// Package app implements the portal's core operations: accepting uploads,
// running the background indexing pipeline, reporting indexing status, and
// answering grounded questions.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragportal/internal/chunker"
	"ragportal/internal/docstore"
	"ragportal/internal/extract"
	"ragportal/internal/queue"
	"ragportal/internal/status"
	"ragportal/internal/vectorindex"
	"ragportal/pkg/ai"
	"ragportal/pkg/domain"
)

const (
	minUploadBytes = 10
	maxDetailLen   = 300
)

// Config carries the indexing and retrieval tunables.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// App wires storage, scheduling, indexing and generation into the portal's
// operations.
type App struct {
	cfg       Config
	docs      docstore.Store
	registry  status.Registry
	scheduler queue.Scheduler
	index     *vectorindex.Manager
	splitter  *chunker.Splitter
	generator ai.TextGenerator
	logger    *slog.Logger
}

// New validates the tunables and builds the app.
func New(cfg Config, docs docstore.Store, registry status.Registry, scheduler queue.Scheduler, index *vectorindex.Manager, generator ai.TextGenerator, logger *slog.Logger) (*App, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 2200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 12
	}
	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunker config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:       cfg,
		docs:      docs,
		registry:  registry,
		scheduler: scheduler,
		index:     index,
		splitter:  splitter,
		generator: generator,
		logger:    logger,
	}, nil
}

// SubmitUpload stages the document and schedules its indexing job. It
// returns once the staged copy is saved, the status reads "queued", and the
// job is durably enqueued; the caller never waits for indexing itself.
// Re-uploading a filename restarts its lifecycle at "queued".
func (a *App) SubmitUpload(ctx context.Context, user, filename string, r io.Reader, size int64) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return fmt.Errorf("%w: filename required", domain.ErrValidation)
	}
	if !extract.SupportedExt(filename) {
		return fmt.Errorf("%w: unsupported file type %q", domain.ErrValidation, filename)
	}
	if size >= 0 && size < minUploadBytes {
		return fmt.Errorf("%w: file too small", domain.ErrValidation)
	}

	if err := a.docs.Save(ctx, user, filename, r, size); err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	if err := a.registry.Set(ctx, user, filename, domain.StateQueued, ""); err != nil {
		return fmt.Errorf("record queued status: %w", err)
	}
	job := domain.IngestJob{
		ID:       uuid.NewString(),
		User:     user,
		Filename: filename,
		Enqueued: time.Now().UTC(),
	}
	if err := a.scheduler.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("schedule indexing: %w", err)
	}
	a.logger.Info("upload accepted", "user", user, "filename", filename, "job", job.ID)
	return nil
}

// QueryStatus reports the indexing lifecycle state for (user, filename).
func (a *App) QueryStatus(ctx context.Context, user, filename string) (domain.StatusRecord, error) {
	return a.registry.Get(ctx, user, filename)
}

// ProcessJob runs one indexing job to a terminal state. Every failure path
// lands on the "error" state with a diagnostic detail; nothing is retried.
// The staged file is removed once the job reaches either terminal state.
func (a *App) ProcessJob(ctx context.Context, job domain.IngestJob) {
	logger := a.logger.With("user", job.User, "filename", job.Filename, "job", job.ID)
	if err := a.registry.Set(ctx, job.User, job.Filename, domain.StateProcessing, ""); err != nil {
		logger.Error("record processing status", "error", err)
	}

	if err := a.runIndexJob(ctx, job); err != nil {
		logger.Error("indexing failed", "error", err)
		if serr := a.registry.Set(ctx, job.User, job.Filename, domain.StateError, truncateDetail(err.Error())); serr != nil {
			logger.Error("record error status", "error", serr)
		}
	} else {
		logger.Info("indexing done")
		if serr := a.registry.Set(ctx, job.User, job.Filename, domain.StateDone, ""); serr != nil {
			logger.Error("record done status", "error", serr)
		}
	}

	if err := a.docs.Remove(ctx, job.User, job.Filename); err != nil {
		logger.Warn("remove staged file", "error", err)
	}
}

// runIndexJob converts panics from the indexing pipeline into ordinary
// errors. Nothing listens synchronously for a job's outcome, so a panic that
// escaped the worker goroutine would take the whole process down and leave
// the status record stuck at "processing".
func (a *App) runIndexJob(ctx context.Context, job domain.IngestJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: indexing aborted: %v", domain.ErrExtraction, r)
		}
	}()
	return a.indexDocument(ctx, job)
}

func (a *App) indexDocument(ctx context.Context, job domain.IngestJob) error {
	path, cleanup, err := a.docs.Fetch(ctx, job.User, job.Filename)
	if err != nil {
		return fmt.Errorf("fetch staged file: %w", err)
	}
	defer cleanup()

	pages, err := extract.PagedText(job.Filename, path)
	if err != nil {
		return err
	}

	var passages []domain.Passage
	seq := 0
	for _, page := range pages {
		for _, content := range a.splitter.Split(page.Text) {
			passages = append(passages, domain.Passage{
				ID:       uuid.NewString(),
				Filename: job.Filename,
				Page:     page.Number,
				Seq:      seq,
				Content:  content,
				Metadata: map[string]string{"upload_id": job.ID},
			})
			seq++
		}
	}
	if len(passages) == 0 {
		return fmt.Errorf("%w: document produced no indexable text", domain.ErrExtraction)
	}

	if err := a.index.AddPassages(ctx, job.User, passages); err != nil {
		return err
	}
	return nil
}

const answerSystemPrompt = "You are a careful assistant answering questions about the user's uploaded documents. " +
	"Answer using only the provided context passages. " +
	"If the context does not contain the answer, say that you cannot find it in the uploaded documents. " +
	"Do not invent sources or facts."

// Ask retrieves the most relevant passages from the user's own index and
// generates an answer grounded in them. Sources list the distinct
// (filename, page) pairs of the passages handed to the model, in
// first-retrieved order.
func (a *App) Ask(ctx context.Context, user, question string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, fmt.Errorf("%w: question required", domain.ErrValidation)
	}

	passages, err := a.index.Search(ctx, user, question, a.cfg.TopK)
	if err != nil {
		return domain.Answer{}, err
	}

	prompt, sources := buildPrompt(question, passages)
	text, err := a.generator.GenerateText(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("%w: generate answer: %v", domain.ErrUnavailable, err)
	}
	return domain.Answer{
		Text:      strings.TrimSpace(text),
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// buildPrompt formats the retrieved passages as tagged context blocks and
// collects the deduplicated citation list.
func buildPrompt(question string, passages []domain.ScoredPassage) (string, []domain.Source) {
	var b strings.Builder
	var sources []domain.Source
	seen := make(map[domain.Source]bool)

	if len(passages) == 0 {
		b.WriteString("Context: no passages were found in the user's documents.\n\n")
	} else {
		b.WriteString("Context passages:\n\n")
		for _, scored := range passages {
			// Pages are zero-based internally; citations are one-based.
			source := domain.Source{Filename: scored.Passage.Filename, Page: scored.Passage.Page + 1}
			if !seen[source] {
				seen[source] = true
				sources = append(sources, source)
			}
			fmt.Fprintf(&b, "[%s p.%d]\n%s\n\n", source.Filename, source.Page, scored.Passage.Content)
		}
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String(), sources
}

func truncateDetail(detail string) string {
	detail = strings.TrimSpace(detail)
	if len(detail) <= maxDetailLen {
		return detail
	}
	return detail[:maxDetailLen] + "..."
}
