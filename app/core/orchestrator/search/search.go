package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/logger"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.25
)

// Service answers task lookups for the dialogue and the HTTP API.
type Service struct {
	store     task.Store
	embedder  llm.Embedder
	topK      int
	threshold float64
}

func NewService(store task.Store, embedder llm.Embedder, topK int, threshold float64) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		topK:      topK,
		threshold: threshold,
	}
}

func (s *Service) Filter(ctx context.Context, username string, filter task.Filter) ([]task.Task, error) {
	return s.store.Search(ctx, username, filter)
}

// Semantic ranks the user's tasks by cosine similarity to query. The
// embedding call outcome is returned so callers can tell "nothing similar"
// apart from "could not embed".
func (s *Service) Semantic(ctx context.Context, username string, query string) ([]task.Task, llm.Result[[]float64], error) {
	emb := llm.Embed(ctx, s.embedder, ExpandQuery(query))
	if !emb.OK() {
		return nil, emb, nil
	}
	items, err := s.store.SemanticSearch(ctx, emb.Value, username, s.topK, s.threshold)
	if err != nil {
		return nil, emb, fmt.Errorf("semantic search failed: %w", err)
	}
	return items, emb, nil
}

// Find tries semantic search and falls back to a substring search when the
// embedder is unavailable or nothing clears the threshold.
func (s *Service) Find(ctx context.Context, username string, query string) ([]task.Task, error) {
	items, emb, err := s.Semantic(ctx, username, query)
	if err != nil {
		return nil, err
	}
	if !emb.OK() {
		logger.Info("[Search] Embedding unavailable (%s), using substring search", emb.Failure)
	}
	if len(items) > 0 {
		return items, nil
	}
	return s.store.Search(ctx, username, task.Filter{Query: strings.TrimSpace(query)})
}

var healthTerms = regexp.MustCompile(`(?i)\b(?:health|medical|doctor|dentist|hospital|clinic|medicine|checkup|pharmacy|prescription|sick|therapy)\b`)

const healthExpansion = "doctor appointment medical checkup hospital clinic medicine health"

// ExpandQuery appends related vocabulary to health related queries so short
// queries like "medical stuff" still land near "dentist appointment".
func ExpandQuery(query string) string {
	if !healthTerms.MatchString(query) {
		return query
	}
	return query + " " + healthExpansion
}
