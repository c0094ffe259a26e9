package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

// Document represents a knowledge document
type Document struct {
	ID         string
	Title      string
	Content    string
	FilePath   string
	ModTime    time.Time
	Similarity float32
}

// Service interface for knowledge base operations
type Service interface {
	LoadKnowledgeBase(ctx context.Context, dir string) error
	SearchDocuments(ctx context.Context, query string) ([]Document, error)
	GetAllDocuments() []Document
	RefreshKnowledgeBase(ctx context.Context) error
}

// VectorKnowledgeService indexes markdown documents in an embedded vector
// store and answers retrieval queries by embedding similarity.
type VectorKnowledgeService struct {
	documents    map[string]*Document
	documentsRW  sync.RWMutex
	knowledgeDir string
	topK         int

	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	logger     *logrus.Logger
}

const collectionName = "knowledge"

// NewVectorKnowledgeService creates the knowledge service. The embedding
// endpoint is the same OpenAI-compatible API the chat models use.
func NewVectorKnowledgeService(cfg *config.KnowledgeConfig, endpoint *config.ModelEndpoint, embeddingModel string, logger *logrus.Logger) (*VectorKnowledgeService, error) {
	var db *chromem.DB
	var err error
	if cfg.DBPath != "" {
		db, err = chromem.NewPersistentDB(cfg.DBPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := chromem.NewEmbeddingFuncOpenAICompat(
		strings.TrimSuffix(endpoint.BaseURL, "/"),
		endpoint.APIKey,
		embeddingModel,
		nil,
	)

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &VectorKnowledgeService{
		documents:  make(map[string]*Document),
		topK:       cfg.TopK,
		db:         db,
		collection: collection,
		embed:      embed,
		logger:     logger,
	}, nil
}

// LoadKnowledgeBase loads all markdown files from the specified directory
// and indexes them in the vector store.
func (s *VectorKnowledgeService) LoadKnowledgeBase(ctx context.Context, dir string) error {
	s.knowledgeDir = dir
	s.logger.WithField("dir", dir).Info("Loading knowledge base")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create knowledge directory: %w", err)
	}

	s.documentsRW.Lock()
	defer s.documentsRW.Unlock()

	s.documents = make(map[string]*Document)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip non-markdown files
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}

		doc, err := s.loadDocument(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to load document")
			return nil // Continue with other files
		}
		s.documents[doc.ID] = doc
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk knowledge directory: %w", err)
	}

	if err := s.indexDocuments(ctx); err != nil {
		return err
	}

	s.logger.WithField("count", len(s.documents)).Info("Knowledge base loaded")
	return nil
}

// indexDocuments pushes every loaded document into the vector collection.
// Already-indexed ids are overwritten so reloads stay idempotent.
func (s *VectorKnowledgeService) indexDocuments(ctx context.Context) error {
	if len(s.documents) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, chromem.Document{
			ID:      doc.ID,
			Content: doc.Content,
			Metadata: map[string]string{
				"title": doc.Title,
				"path":  doc.FilePath,
			},
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	return nil
}

// loadDocument loads a single markdown document
func (s *VectorKnowledgeService) loadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// Generate document ID from file path
	relPath, _ := filepath.Rel(s.knowledgeDir, path)
	id := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")

	doc := &Document{
		ID:       id,
		FilePath: path,
		Content:  string(content),
		ModTime:  info.ModTime(),
		Title:    extractTitle(string(content), path),
	}
	return doc, nil
}

// extractTitle takes the first level-1 markdown header, or the filename
func extractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title = strings.ReplaceAll(title, "_", " ")
	return strings.ReplaceAll(title, "-", " ")
}

// SearchDocuments returns the topK documents most similar to the query
func (s *VectorKnowledgeService) SearchDocuments(ctx context.Context, query string) ([]Document, error) {
	s.documentsRW.RLock()
	defer s.documentsRW.RUnlock()

	count := s.collection.Count()
	if count == 0 || strings.TrimSpace(query) == "" {
		return []Document{}, nil
	}

	n := s.topK
	if n > count {
		n = count
	}

	queryResults, err := s.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	results := make([]Document, 0, len(queryResults))
	for _, res := range queryResults {
		doc, ok := s.documents[res.ID]
		if !ok {
			// Indexed in a previous run but no longer on disk
			continue
		}
		copied := *doc
		copied.Similarity = res.Similarity
		results = append(results, copied)
	}

	return results, nil
}

// GetAllDocuments returns all loaded documents
func (s *VectorKnowledgeService) GetAllDocuments() []Document {
	s.documentsRW.RLock()
	defer s.documentsRW.RUnlock()

	docs := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, *doc)
	}
	return docs
}

// RefreshKnowledgeBase reloads the knowledge base
func (s *VectorKnowledgeService) RefreshKnowledgeBase(ctx context.Context) error {
	return s.LoadKnowledgeBase(ctx, s.knowledgeDir)
}
