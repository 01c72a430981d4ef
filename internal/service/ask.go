package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/cache"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"go.uber.org/zap"
)

// DefaultTopK is used when a question does not say how many chunks to retrieve.
const DefaultTopK = 5

// SessionRecorder keeps the turns of a client session.
type SessionRecorder interface {
	Append(ctx context.Context, namespace, sessionID string, turn cache.SessionTurn) error
}

type AskInput struct {
	Namespace domain.Namespace
	Question  string
	TopK      int
	SessionID string
}

type AskResult struct {
	Answer  string
	Sources []domain.ChunkMetadata
	K       int
}

// AskService answers questions from the namespace's indexed chunks.
type AskService struct {
	index    *VectorIndex
	composer *AnswerComposer
	sessions SessionRecorder
}

// NewAskService creates an AskService. sessions may be nil.
func NewAskService(index *VectorIndex, composer *AnswerComposer, sessions SessionRecorder) *AskService {
	return &AskService{index: index, composer: composer, sessions: sessions}
}

func (s *AskService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if input.TopK < 1 {
		return nil, domain.ErrInvalidTopK
	}

	ns := input.Namespace
	ctx, span := telemetry.StartSpan(ctx, "AskService.Ask", telemetry.SpanAttributes{
		CustomerID: ns.CustomerID,
		ProjectID:  ns.ProjectID,
		Namespace:  ns.String(),
		Operation:  "ask",
	})
	defer span.End()

	searchCtx, searchSpan := telemetry.StartSpan(ctx, "ask.search", telemetry.SpanAttributes{Operation: "search"})
	results, err := s.index.ForNamespace(ns).SimilaritySearch(searchCtx, input.Question, input.TopK)
	searchSpan.SetData("results", len(results))
	searchSpan.End()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	genCtx, genSpan := telemetry.StartSpan(ctx, "ask.generate", telemetry.SpanAttributes{Operation: "generate"})
	answer, err := s.composer.Compose(genCtx, input.Question, results)
	genSpan.End()
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	metrics.Questions.Inc()

	if s.sessions != nil && input.SessionID != "" {
		turn := cache.SessionTurn{Question: input.Question, Answer: answer.Text, AskedAt: time.Now().UTC()}
		if err := s.sessions.Append(ctx, ns.String(), input.SessionID, turn); err != nil {
			logger.FromContext(ctx).Warn("failed to record session turn",
				zap.String("session_id", input.SessionID), zap.Error(err))
		}
	}

	return &AskResult{Answer: answer.Text, Sources: answer.Sources, K: input.TopK}, nil
}
