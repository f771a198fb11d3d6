// Package vectorindex owns the per-user embedding indexes.
//
// Every user gets an isolated namespace: a dedicated table in Postgres or a
// dedicated directory on disk. A search can only ever touch the namespace it
// was issued against, so cross-user leakage is structurally impossible
// rather than filtered out at query time.
package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ragportal/pkg/ai"
	"ragportal/pkg/domain"
)

// Store is the black-box nearest-neighbor index, one namespace per user.
type Store interface {
	// AddPassages inserts passages with their embedding vectors into the
	// user's namespace, creating it lazily.
	AddPassages(ctx context.Context, user string, passages []domain.Passage, vectors [][]float32) error
	// Search returns up to k passages from the user's namespace ordered by
	// descending relevance. A missing namespace yields zero results.
	Search(ctx context.Context, user string, vector []float32, k int) ([]domain.ScoredPassage, error)
	// Persist flushes the user's namespace to durable storage.
	Persist(ctx context.Context, user string) error
}

// Manager combines the embedding service with a Store and serializes
// mutation per user so one job's add+persist sequence never interleaves
// with another's.
type Manager struct {
	store       Store
	embedder    ai.Embedder
	batchSize   int
	concurrency int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires a store and embedder. batchSize and concurrency bound the
// embedding calls made per indexing job.
func NewManager(store Store, embedder ai.Embedder, batchSize, concurrency int) *Manager {
	if batchSize <= 0 {
		batchSize = 16
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Manager{
		store:       store,
		embedder:    embedder,
		batchSize:   batchSize,
		concurrency: concurrency,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) userLock(user string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[user]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[user] = lock
	}
	return lock
}

// AddPassages embeds the passages and adds them to the user's namespace as
// one batch followed by a persist. Passages only become searchable once both
// steps completed.
func (m *Manager) AddPassages(ctx context.Context, user string, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	vectors, err := m.embedAll(ctx, passages)
	if err != nil {
		return err
	}

	lock := m.userLock(user)
	lock.Lock()
	defer lock.Unlock()
	if err := m.store.AddPassages(ctx, user, passages, vectors); err != nil {
		return fmt.Errorf("add passages: %w", err)
	}
	if err := m.store.Persist(ctx, user); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Search embeds the query and runs it against the user's namespace only.
func (m *Manager) Search(ctx context.Context, user, query string, k int) ([]domain.ScoredPassage, error) {
	vector, err := m.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrUnavailable, err)
	}
	results, err := m.store.Search(ctx, user, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return results, nil
}

func (m *Manager) embedAll(ctx context.Context, passages []domain.Passage) ([][]float32, error) {
	vectors := make([][]float32, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for start := 0; start < len(passages); start += m.batchSize {
		end := start + m.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		start, end := start, end
		g.Go(func() error {
			batch := passages[start:end]
			texts := make([]string, 0, len(batch))
			for _, passage := range batch {
				texts = append(texts, passage.Content)
			}
			embeddings, err := m.embedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: embed passages: %v", domain.ErrUnavailable, err)
			}
			if len(embeddings) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
			}
			copy(vectors[start:end], embeddings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (m *Manager) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if batcher, ok := m.embedder.(ai.BatchEmbedder); ok && len(texts) > 1 {
		return batcher.EmbedTexts(ctx, texts)
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		embedding, err := m.embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, embedding)
	}
	return out, nil
}
