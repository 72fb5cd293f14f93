package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// NotConfiguredText is the answer text when no generation provider is usable.
const NotConfiguredText = "LLM not configured. Showing top contexts only."

// AnswerService composes grounded answers from retrieved contexts.
type AnswerService struct {
	search   driving.SearchService
	llm      driven.LLMService
	prompts  driven.PromptStore
	settings domain.AnswerSettings
	timeout  time.Duration
}

// NewAnswerService creates a new answer service.
// llm may be nil, in which case questions return contexts only.
func NewAnswerService(
	search driving.SearchService,
	llm driven.LLMService,
	prompts driven.PromptStore,
	settings domain.AnswerSettings,
	timeout time.Duration,
) *AnswerService {
	return &AnswerService{
		search:   search,
		llm:      llm,
		prompts:  prompts,
		settings: settings,
		timeout:  timeout,
	}
}

// Configured reports whether a generation provider is available.
func (s *AnswerService) Configured() bool {
	return s.llm != nil
}

// Ask retrieves contexts for the question and generates an answer from them.
// Retrieval errors are returned as errors. Generation outcomes are reported
// through Answer.Status; a failed generation also returns an error wrapping
// domain.ErrGeneration alongside the answer carrying the contexts.
func (s *AnswerService) Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	resp, err := s.search.Search(ctx, question, req.TopK)
	if err != nil {
		return nil, err
	}
	if resp.Note == EmptyIndexNote {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, EmptyIndexNote)
	}

	contexts := resp.Results
	if len(contexts) == 0 {
		return &domain.Answer{
			Status:   domain.AnswerNoContext,
			Text:     s.prompt(driven.PromptNoContext),
			Contexts: []domain.SearchResult{},
		}, nil
	}

	if s.llm == nil {
		return notConfigured(contexts), nil
	}

	messages := s.buildMessages(question, req, contexts)

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.llm.Chat(genCtx, messages, driven.ChatOptions{Temperature: 1})
	switch {
	case errors.Is(err, domain.ErrAuthInvalid):
		logger.Warn("generation credential rejected: %v", err)
		return notConfigured(contexts), nil
	case err != nil:
		return &domain.Answer{
			Status:   domain.AnswerFailed,
			Contexts: contexts,
		}, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	return &domain.Answer{
		Status:   domain.AnswerAnswered,
		Text:     strings.TrimSpace(text),
		Contexts: contexts,
	}, nil
}

// buildMessages assembles the prompt: persona, instruction and contexts as
// system messages, then recent history, then the question.
func (s *AnswerService) buildMessages(question string, req domain.AskRequest, contexts []domain.SearchResult) []driven.ChatMessage {
	messages := make([]driven.ChatMessage, 0, len(req.Persona)+3+s.settings.MaxHistoryTurns)

	for _, statement := range req.Persona {
		if statement = strings.TrimSpace(statement); statement != "" {
			messages = append(messages, driven.ChatMessage{Role: domain.RoleSystem, Content: statement})
		}
	}

	instruction := s.settings.Instruction
	if instruction == "" {
		instruction = s.prompt(driven.PromptAnswerInstruction)
	}
	messages = append(messages,
		driven.ChatMessage{Role: domain.RoleSystem, Content: instruction},
		driven.ChatMessage{Role: domain.RoleSystem, Content: FormatContexts(contexts)},
	)

	messages = append(messages, recentTurns(req.History, s.settings.MaxHistoryTurns)...)
	return append(messages, driven.ChatMessage{Role: domain.RoleUser, Content: question})
}

func (s *AnswerService) prompt(name string) string {
	if s.prompts == nil {
		return ""
	}
	text, err := s.prompts.Load(name)
	if err != nil {
		logger.Warn("load prompt %s: %v", name, err)
		return ""
	}
	return text
}

// FormatContexts renders ranked contexts as labelled passages.
func FormatContexts(contexts []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s p.%d\n%s", i+1, c.Document.Filename, c.Page, strings.TrimSpace(c.Content))
	}
	return b.String()
}

// recentTurns keeps the last n user and assistant turns, oldest first.
func recentTurns(history []domain.Turn, n int) []driven.ChatMessage {
	if n <= 0 {
		return nil
	}
	kept := make([]driven.ChatMessage, 0, n)
	for i := len(history) - 1; i >= 0 && len(kept) < n; i-- {
		turn := history[i]
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		kept = append(kept, driven.ChatMessage{Role: turn.Role, Content: content})
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func notConfigured(contexts []domain.SearchResult) *domain.Answer {
	return &domain.Answer{
		Status:   domain.AnswerNotConfigured,
		Text:     NotConfiguredText,
		Contexts: contexts,
	}
}
