package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"ragportal/internal/util"
	"ragportal/pkg/domain"
)

const localIndexFile = "index.json"

// LocalStore keeps one brute-force cosine index per user, persisted as a
// JSON file in the user's own directory under basePath. The persisted file
// is the durable source of truth: namespaces are reloaded lazily after a
// restart.
type LocalStore struct {
	basePath string

	mu     sync.Mutex
	spaces map[string]*localSpace
}

type localSpace struct {
	mu       sync.RWMutex
	Passages []domain.Passage `json:"passages"`
	Vectors  [][]float32      `json:"vectors"`
}

// NewLocalStore creates the base directory if missing.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("index base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &LocalStore{basePath: basePath, spaces: make(map[string]*localSpace)}, nil
}

func (s *LocalStore) indexPath(user string) string {
	return filepath.Join(s.basePath, util.UserSlug(user), localIndexFile)
}

// space loads or creates the user's namespace.
func (s *LocalStore) space(user string) (*localSpace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := util.UserSlug(user)
	if space, ok := s.spaces[slug]; ok {
		return space, nil
	}

	space := &localSpace{}
	data, err := os.ReadFile(s.indexPath(user))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, space); err != nil {
			return nil, fmt.Errorf("decode index for %s: %w", slug, err)
		}
	case os.IsNotExist(err):
		// First use of this namespace.
	default:
		return nil, fmt.Errorf("read index for %s: %w", slug, err)
	}
	s.spaces[slug] = space
	return space, nil
}

// AddPassages appends passages and vectors to the user's namespace.
func (s *LocalStore) AddPassages(ctx context.Context, user string, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages and vectors length mismatch: %d vs %d", len(passages), len(vectors))
	}
	space, err := s.space(user)
	if err != nil {
		return err
	}
	space.mu.Lock()
	defer space.mu.Unlock()
	space.Passages = append(space.Passages, passages...)
	space.Vectors = append(space.Vectors, vectors...)
	return nil
}

// Search ranks the user's passages by cosine similarity to the query vector.
func (s *LocalStore) Search(ctx context.Context, user string, vector []float32, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	space, err := s.space(user)
	if err != nil {
		return nil, err
	}
	space.mu.RLock()
	defer space.mu.RUnlock()

	type ranked struct {
		index int
		score float64
	}
	scores := make([]ranked, 0, len(space.Vectors))
	for i, candidate := range space.Vectors {
		scores = append(scores, ranked{index: i, score: cosineSimilarity(vector, candidate)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredPassage, 0, k)
	for _, r := range scores[:k] {
		results = append(results, domain.ScoredPassage{Passage: space.Passages[r.index], Score: r.score})
	}
	return results, nil
}

// Persist writes the namespace atomically: temp file then rename.
func (s *LocalStore) Persist(ctx context.Context, user string) error {
	space, err := s.space(user)
	if err != nil {
		return err
	}
	space.mu.RLock()
	data, err := json.Marshal(space)
	space.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	path := s.indexPath(user)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
