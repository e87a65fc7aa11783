package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/ratelimit"
)

const defaultMaxMessageLen = 2000

// SessionProvider supplies the read-only configuration of a chat session.
type SessionProvider interface {
	GetSession(ctx context.Context, sessionID int64) (domain.SessionConfig, error)
}

// ContentProvider returns the reference-content snapshot for a session,
// already formatted with its begin/end markers. Empty string means there is
// nothing to include; it is not an error.
type ContentProvider interface {
	Fetch(ctx context.Context, sessionID int64, includeHidden bool) (string, error)
}

// GenerationProvider is the opaque text-completion capability. A single
// attempt per request; the gateway never retries, since a retry after a
// committed counter would double-charge the subject's quota.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error)
}

// ConversationLog appends the two records of a completed exchange for
// auditing, atomically so neither half can persist alone. Failures are
// non-fatal to the chat response.
type ConversationLog interface {
	AppendExchange(ctx context.Context, user, assistant domain.Exchange) error
}

// QuotaLimiter is the admit/deny and commit surface of the rate limiter.
type QuotaLimiter interface {
	Check(ctx context.Context, sessionID int64, subjectID string, cfg domain.RateLimit) (ratelimit.Decision, error)
	Commit(ctx context.Context, sessionID int64, subjectID string, cfg domain.RateLimit) (int, error)
	Sweep(ctx context.Context) error
}

// ChatService sequences one chat request: retention sweep, quota check,
// history-cap check, prompt assembly, generation, quota commit, audit log.
// It is stateless across requests; history arrives from the caller each time.
type ChatService struct {
	sessions      SessionProvider
	limiter       QuotaLimiter
	content       ContentProvider
	generator     GenerationProvider
	log           ConversationLog
	params        domain.GenerationParams
	logger        *slog.Logger
	maxMessageLen int

	now func() time.Time
}

type SendInput struct {
	SessionID int64
	SubjectID string
	Message   string
	History   []domain.ConversationTurn
}

type SendOutput struct {
	Reply     string
	Remaining int
}

func NewChatService(
	sessions SessionProvider,
	limiter QuotaLimiter,
	content ContentProvider,
	generator GenerationProvider,
	log ConversationLog,
	params domain.GenerationParams,
	logger *slog.Logger,
	maxMessageLen int,
) (*ChatService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session provider must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: limiter must not be nil")
	}
	if content == nil {
		return nil, errors.New("usecase: content provider must not be nil")
	}
	if generator == nil {
		return nil, errors.New("usecase: generation provider must not be nil")
	}
	if log == nil {
		return nil, errors.New("usecase: conversation log must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &ChatService{
		sessions:      sessions,
		limiter:       limiter,
		content:       content,
		generator:     generator,
		log:           log,
		params:        params,
		logger:        logger,
		maxMessageLen: maxMessageLen,
		now:           time.Now,
	}, nil
}

// Send processes one request end to end and returns exactly one terminal
// outcome: a reply with remaining quota, or an *Error. Quota is committed
// only after generation succeeds, so a failed generation never consumes it.
func (s *ChatService) Send(ctx context.Context, in SendInput) (SendOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return SendOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return SendOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return SendOutput{}, newError(ErrorInvalidInput, "empty_subject", nil)
	}

	// Opportunistic retention sweep; never blocks the request.
	if err := s.limiter.Sweep(ctx); err != nil {
		s.logger.Warn("usage sweep failed", "err", err)
	}

	cfg, err := s.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return SendOutput{}, newError(ErrorInternal, "session_load_error", err)
	}
	if err := cfg.Validate(); err != nil {
		return SendOutput{}, newError(ErrorInternal, "invalid_session_config", err)
	}

	decision, err := s.limiter.Check(ctx, cfg.SessionID, subjectID, cfg.RateLimit)
	if err != nil {
		return SendOutput{}, newError(ErrorInternal, "usage_read_error", err)
	}
	if !decision.Allowed {
		return SendOutput{}, newUserError(ErrorRateLimited, "quota_exhausted",
			rateLimitMessage(cfg.RateLimit.Count, cfg.RateLimit.Period), nil)
	}

	// Legacy per-session cap, counted in user+assistant pairs. Independent
	// of the rolling rate limit and never consumes quota.
	if cfg.MaxHistoryTurns > 0 && len(in.History) >= cfg.MaxHistoryTurns*2 {
		return SendOutput{}, newUserError(ErrorSessionLimit, "history_cap_reached", sessionLimitMessage, nil)
	}

	var referenceContent string
	if cfg.IncludeReferenceContent {
		referenceContent, err = s.content.Fetch(ctx, cfg.SessionID, cfg.IncludeHiddenReferenceContent)
		if err != nil {
			// Fail closed: a reply assembled without requested context
			// would silently answer from the wrong material.
			return SendOutput{}, newError(ErrorContent, "content_fetch_error", err)
		}
	}

	persona := cfg.Persona
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	prompt := AssemblePrompt(persona, referenceContent, in.History, message)

	reply, err := s.generator.Generate(ctx, prompt, s.params)
	if err != nil {
		return SendOutput{}, newUserError(ErrorUpstream, "generation_error", err.Error(), err)
	}

	remaining, err := s.limiter.Commit(ctx, cfg.SessionID, subjectID, cfg.RateLimit)
	if err != nil {
		return SendOutput{}, newError(ErrorInternal, "usage_write_error", err)
	}

	reply = strings.TrimSpace(reply)
	s.appendExchanges(ctx, cfg.SessionID, subjectID, message, reply)

	return SendOutput{Reply: reply, Remaining: remaining}, nil
}

// appendExchanges writes the audit copy of the completed exchange. The chat
// response already succeeded at this point, so failures are only logged.
func (s *ChatService) appendExchanges(ctx context.Context, sessionID int64, subjectID, message, reply string) {
	now := s.now()
	user := domain.Exchange{SessionID: sessionID, SubjectID: subjectID, Role: domain.RoleUser, Content: message, CreatedAt: now}
	assistant := domain.Exchange{SessionID: sessionID, SubjectID: subjectID, Role: domain.RoleAssistant, Content: reply, CreatedAt: now}
	if err := s.log.AppendExchange(ctx, user, assistant); err != nil {
		s.logger.Error("conversation log append failed",
			"session", sessionID, "subject", subjectID, "err", err)
	}
}
