package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ragportal/internal/util"
	"ragportal/pkg/domain"
)

// PGStore implements Store on Postgres with pgvector. Each user namespace is
// a physically separate table (passages_<slug>), created lazily on first
// add, so a search statement can only ever reference the searching user's
// table.
type PGStore struct {
	db           *gorm.DB
	embeddingDim int

	mu       sync.Mutex
	migrated map[string]bool
}

// passageModel is the per-namespace row layout. The embedding column is
// altered to the configured dimension after migration.
type passageModel struct {
	ID        string           `gorm:"primaryKey"`
	Filename  string           `gorm:"not null;index"`
	Page      int              `gorm:"not null"`
	Seq       int              `gorm:"not null"`
	Content   string           `gorm:"type:text;not null"`
	Meta      datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time        `gorm:"not null;index"`
}

// scoredRow flattens a search hit together with its cosine distance.
type scoredRow struct {
	ID       string
	Filename string
	Page     int
	Seq      int
	Content  string
	Meta     datatypes.JSON
	Distance float64
}

// NewPGStore opens the database and installs the pgvector extension.
func NewPGStore(dsn string, embeddingDim int) (*PGStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dim required for postgres index")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("create pgvector extension: %w", err)
	}
	return &PGStore{db: db, embeddingDim: embeddingDim, migrated: make(map[string]bool)}, nil
}

func namespaceTable(user string) string {
	return "passages_" + util.UserSlug(user)
}

// ensureNamespace creates and shapes the user's table once per process.
func (s *PGStore) ensureNamespace(user string) (string, error) {
	table := namespaceTable(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated[table] {
		return table, nil
	}
	if err := s.db.Table(table).AutoMigrate(&passageModel{}); err != nil {
		return "", fmt.Errorf("migrate namespace %s: %w", table, err)
	}
	alter := fmt.Sprintf(`ALTER TABLE %q ALTER COLUMN embedding TYPE vector(%d)`, table, s.embeddingDim)
	if err := s.db.Exec(alter).Error; err != nil {
		return "", fmt.Errorf("alter embedding dimension for %s: %w", table, err)
	}
	s.migrated[table] = true
	return table, nil
}

// AddPassages inserts the batch into the user's table.
func (s *PGStore) AddPassages(ctx context.Context, user string, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages and vectors length mismatch: %d vs %d", len(passages), len(vectors))
	}
	table, err := s.ensureNamespace(user)
	if err != nil {
		return err
	}

	models := make([]passageModel, 0, len(passages))
	now := time.Now().UTC()
	for i, passage := range passages {
		if len(vectors[i]) != s.embeddingDim {
			return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vectors[i]), s.embeddingDim)
		}
		var meta datatypes.JSON
		if len(passage.Metadata) > 0 {
			encoded, err := json.Marshal(passage.Metadata)
			if err != nil {
				return fmt.Errorf("encode passage metadata: %w", err)
			}
			meta = datatypes.JSON(encoded)
		}
		vec := pgvector.NewVector(vectors[i])
		models = append(models, passageModel{
			ID:        passage.ID,
			Filename:  passage.Filename,
			Page:      passage.Page,
			Seq:       passage.Seq,
			Content:   passage.Content,
			Meta:      meta,
			Embedding: &vec,
			CreatedAt: now,
		})
	}
	if err := s.db.WithContext(ctx).Table(table).Create(&models).Error; err != nil {
		return fmt.Errorf("insert passages: %w", err)
	}
	return nil
}

// Search orders the user's table by cosine distance to the query vector.
// A namespace that was never created yields zero results.
func (s *PGStore) Search(ctx context.Context, user string, vector []float32, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	table := namespaceTable(user)
	if !s.db.Migrator().HasTable(table) {
		return nil, nil
	}
	vec := pgvector.NewVector(vector)

	var rows []scoredRow
	if err := s.db.WithContext(ctx).Table(table).
		Select("id, filename, page, seq, content, meta, (embedding <=> ?) AS distance", vec).
		Where("embedding IS NOT NULL").
		Order("distance ASC").
		Limit(k).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search namespace %s: %w", table, err)
	}

	results := make([]domain.ScoredPassage, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if len(row.Meta) > 0 {
			_ = json.Unmarshal(row.Meta, &metadata)
		}
		results = append(results, domain.ScoredPassage{
			Passage: domain.Passage{
				ID:       row.ID,
				Filename: row.Filename,
				Page:     row.Page,
				Seq:      row.Seq,
				Content:  row.Content,
				Metadata: metadata,
			},
			// Cosine distance is 0 for identical direction, 2 for opposite.
			Score: 1 - row.Distance,
		})
	}
	return results, nil
}

// Persist is a no-op: Postgres writes are durable at commit.
func (s *PGStore) Persist(ctx context.Context, user string) error {
	return nil
}
