package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/llm"
	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

// maxChatContextChars bounds the report text stuffed into one chat
// prompt. Reports beyond the limit are cut at a record boundary.
const maxChatContextChars = 24000

// ChatConfig bounds the chatbot's conversation memory.
type ChatConfig struct {
	MaxTurns  int
	MemoryTTL time.Duration
	KeyPrefix string
}

// ChatService answers questions about the reports of a finished run,
// keeping a bounded per-session conversation memory in the cache.
type ChatService struct {
	reports studentReportStore
	client  generationClient
	cache   *CacheService
	logger  *zap.Logger
	cfg     ChatConfig
}

// NewChatService constructs the chat service.
func NewChatService(reports studentReportStore, client generationClient, cache *CacheService, cfg ChatConfig, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 12
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "chat"
	}
	return &ChatService{
		reports: reports,
		client:  client,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
	}
}

// Ask answers one question about a run's reports. The session keeps
// the last MaxTurns exchanges as context for follow-up questions.
func (s *ChatService) Ask(ctx context.Context, runID, sessionID, model, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "question is required")
	}
	if runID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "runId is required")
	}
	if sessionID == "" {
		sessionID = "default"
	}

	reports, err := s.reports.ListByRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.ErrNotFound
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	if len(reports) == 0 {
		return "", appErrors.Clone(appErrors.ErrNotFound, "run has no stored reports")
	}

	history := s.loadHistory(ctx, runID, sessionID)

	prompt := llm.BuildChatPrompt(reportContext(reports), history, question)
	answer, err := s.client.Generate(ctx, model, prompt)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "chat generation failed")
	}

	history = append(history, llm.ChatTurn{Question: question, Answer: answer})
	if len(history) > s.cfg.MaxTurns {
		history = history[len(history)-s.cfg.MaxTurns:]
	}
	if err := s.cache.Set(ctx, s.memoryKey(runID, sessionID), history, s.cfg.MemoryTTL); err != nil {
		s.logger.Warn("failed to persist chat memory", zap.Error(err))
	}

	return answer, nil
}

// Reset clears a session's conversation memory.
func (s *ChatService) Reset(ctx context.Context, runID, sessionID string) error {
	if sessionID == "" {
		sessionID = "default"
	}
	return s.cache.Invalidate(ctx, s.memoryKey(runID, sessionID))
}

func (s *ChatService) loadHistory(ctx context.Context, runID, sessionID string) []llm.ChatTurn {
	var history []llm.ChatTurn
	if hit, _ := s.cache.Get(ctx, s.memoryKey(runID, sessionID), &history); hit {
		return history
	}
	return nil
}

func (s *ChatService) memoryKey(runID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", s.cfg.KeyPrefix, runID, sessionID)
}

// reportContext concatenates report records up to the context budget.
func reportContext(reports []models.StudentReport) string {
	var b strings.Builder
	for _, r := range reports {
		record := fmt.Sprintf("Course %s, Student %s (%s):\n%s\n\n", r.CourseID, r.FullName, r.Category, r.Report)
		if b.Len()+len(record) > maxChatContextChars {
			break
		}
		b.WriteString(record)
	}
	return strings.TrimSpace(b.String())
}
