package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/google/uuid"
)

// Item 是一条检索出的情景记忆，按相似度降序返回。
type Item struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// Store 基于 chromem-go 维护每个会话一个集合的情景记忆。
// chromem-go 是纯 Go 的内嵌向量数据库，向量由外部 Embedder 提供。
type Store struct {
	db          *chromem.DB
	embedder    Embedder
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewStore 创建向量记忆存储。
func NewStore(embedder Embedder) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

// AddTurn 将一轮完整对话写入会话的情景记忆。
func (s *Store) AddTurn(ctx context.Context, sessionID, userMessage, assistantMessage string, metadata map[string]string) error {
	col, err := s.getOrCreateCollection(sessionID)
	if err != nil {
		return err
	}

	combined := fmt.Sprintf("用户: %s\n偶像: %s", userMessage, assistantMessage)

	embedding, err := s.embedder.Embed(ctx, combined)
	if err != nil {
		return fmt.Errorf("embed turn: %w", err)
	}

	docMetadata := map[string]string{
		"session_id": sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		docMetadata[k] = v
	}

	doc := chromem.Document{
		ID:        uuid.NewString(),
		Content:   combined,
		Embedding: embedding,
		Metadata:  docMetadata,
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	return nil
}

// Search 按相似度检索会话内与查询相关的记忆，最多返回 k 条。
// 空集合是合法的空结果而非错误。
func (s *Store) Search(ctx context.Context, query, sessionID string, k int) ([]Item, error) {
	col, err := s.getOrCreateCollection(sessionID)
	if err != nil {
		return nil, err
	}

	// chromem 要求 nResults 不超过集合文档数。
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k < 1 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	items := make([]Item, 0, len(results))
	for _, result := range results {
		items = append(items, Item{
			Content:  result.Content,
			Metadata: result.Metadata,
			Score:    result.Similarity,
		})
	}

	log.Printf("[memory] retrieved %d items for session=%s", len(items), sessionID)
	return items, nil
}

// getOrCreateCollection 返回会话对应的集合，不存在则创建。
func (s *Store) getOrCreateCollection(sessionID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[sessionID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[sessionID]; exists {
		return col, nil
	}

	name := "session_" + sessionID
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[sessionID] = col
	return col, nil
}
