// Package service provides the chat pipeline for the relay.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/responder"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/internal/store"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
	"github.com/capitalize-ai/realtime-relay/pkg/metrics"
	"github.com/capitalize-ai/realtime-relay/pkg/tracing"
)

const (
	// EmptyMessageReply answers a blank message.
	EmptyMessageReply = "Please send a non-empty message."

	// DegradedReply answers when no reply could be computed.
	DegradedReply = "Sorry, something went wrong on the server."

	// DefaultHistoryWindow is how many stored messages feed a model request.
	DefaultHistoryWindow = 8
)

// ErrDegraded marks a chat request that failed and was answered with
// DegradedReply.
var ErrDegraded = errors.New("chat reply unavailable")

// ChatService validates chat requests, computes replies with context from
// the conversation store and notifies the sender's room.
type ChatService struct {
	store     store.ConversationStore
	responder responder.Responder
	notifier  rooms.Notifier
	window    int
	locks     *threadLocks
	logger    *logger.Logger
}

// NewChatService creates a chat service. window <= 0 selects
// DefaultHistoryWindow.
func NewChatService(
	st store.ConversationStore,
	resp responder.Responder,
	notifier rooms.Notifier,
	window int,
	log *logger.Logger,
) *ChatService {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if log == nil {
		log = logger.Global()
	}
	return &ChatService{
		store:     st,
		responder: resp,
		notifier:  notifier,
		window:    window,
		locks:     newThreadLocks(),
		logger:    log.Component("chat"),
	}
}

// Responder returns the name of the configured responder.
func (s *ChatService) Responder() string {
	return s.responder.Name()
}

// Chat runs one request through the pipeline. On failure it returns the
// degraded response together with an error wrapping ErrDegraded; nothing is
// persisted in that case.
func (s *ChatService) Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		metrics.RecordChatReply(s.responder.Name(), "empty")
		return &model.ChatResponse{Reply: EmptyMessageReply}, nil
	}

	threadID := req.Thread()
	identity := req.Identity()

	ctx, span := tracing.Tracer("relay/chat").Start(ctx, "chat.reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.thread_id", threadID),
		attribute.String("chat.responder", s.responder.Name()),
	)

	reply, err := s.turn(ctx, threadID, req.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply failed")
		s.logger.Error("chat reply failed",
			zap.String("thread_id", threadID),
			zap.String("user_id", identity),
			zap.String("responder", s.responder.Name()),
			zap.Error(err),
		)
		metrics.RecordChatReply(s.responder.Name(), "error")
		return &model.ChatResponse{Reply: DegradedReply}, fmt.Errorf("%w: %v", ErrDegraded, err)
	}

	s.notify(identity)
	metrics.RecordChatReply(s.responder.Name(), "ok")

	return &model.ChatResponse{Reply: reply}, nil
}

// turn reads context, computes the reply and appends the turn while holding
// the thread lock, so turns on one thread never interleave.
func (s *ChatService) turn(ctx context.Context, threadID, message string) (reply string, err error) {
	release, err := s.locks.lock(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("waiting for thread: %w", err)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	history := s.store.RecentWindow(threadID, s.window)

	reply, err = s.responder.Reply(ctx, history, message)
	if err != nil {
		return "", err
	}

	s.store.AppendTurn(threadID, model.UserMessage(message), model.AssistantMessage(reply))
	return reply, nil
}

func (s *ChatService) notify(identity string) {
	if identity == "" || s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("chat notification failed",
				zap.String("user_id", identity),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	s.notifier.DeliverToIdentity(identity, model.Notification{Message: model.ChatAnswered})
}
