package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// DefaultMaxConcurrentHandlers bounds how many messages are handled at once
const DefaultMaxConcurrentHandlers = 16

// DefaultRegistrationPoll is how often WaitForChat checks the cache
const DefaultRegistrationPoll = 100 * time.Millisecond

var errHandlerPanic = errors.New("handler panic")

// Event is one inbound batch of Telegram updates with the entities attached to it
type Event struct {
	Chats    map[int64]entities.TelegramChat
	Users    map[int64]entities.TelegramUser
	Messages []entities.InboundMessage
}

// MessageHandler processes one private message. users holds the entities
// delivered with the message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg entities.InboundMessage, users map[int64]entities.TelegramUser) error
}

// Pipeline merges event metadata into the roster cache and fans messages out
// to the handler without waiting for it
type Pipeline struct {
	cache   *RosterCache
	handler MessageHandler
	sem     *semaphore.Weighted
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewPipeline creates a pipeline running at most maxConcurrent handlers at a time
func NewPipeline(cache *RosterCache, handler MessageHandler, maxConcurrent int, log *slog.Logger) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentHandlers
	}
	return &Pipeline{
		cache:   cache,
		handler: handler,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		log:     log,
	}
}

// WaitForChat blocks until the chat has been seen in some event. There is no
// timeout: only ctx ends the wait.
func (p *Pipeline) WaitForChat(ctx context.Context, chatID int64, interval time.Duration) (entities.TelegramChat, error) {
	if interval <= 0 {
		interval = DefaultRegistrationPoll
	}

	if chat, ok := p.cache.Chat(chatID); ok {
		return chat, nil
	}

	p.log.Info("awaiting target chat registration, post any message to it",
		slog.Int64("chat_id", chatID))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return entities.TelegramChat{}, ctx.Err()
		case <-ticker.C:
			if chat, ok := p.cache.Chat(chatID); ok {
				return chat, nil
			}
		}
	}
}

// Run consumes events until ctx is done or the channel is closed
func (p *Pipeline) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.Ingest(ctx, ev)
		}
	}
}

// Ingest merges one event into the cache and dispatches its messages.
// It never blocks on handler work.
func (p *Pipeline) Ingest(ctx context.Context, ev Event) {
	p.cache.Merge(ev.Chats, ev.Users)

	// In-flight handlers outlive shutdown; Drain decides how long to wait for them
	handlerCtx := context.WithoutCancel(ctx)

	for _, msg := range ev.Messages {
		p.wg.Add(1)
		go p.dispatch(handlerCtx, msg, ev.Users)
	}
}

func (p *Pipeline) dispatch(ctx context.Context, msg entities.InboundMessage, users map[int64]entities.TelegramUser) {
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	metrics.PipelineInFlight.Inc()
	defer metrics.PipelineInFlight.Dec()

	start := time.Now()
	err := p.safeHandle(ctx, msg, users)
	metrics.PipelineHandlerDuration.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		kind := "error"
		if errors.Is(err, errHandlerPanic) {
			kind = "panic"
		}
		metrics.PipelineHandlerFailures.WithLabelValues(kind).Inc()
		p.log.Error("failed to process telegram message",
			slog.Int64("telegram_id", msg.SenderID),
			slog.Int("message_id", msg.ID),
			slog.String("error", err.Error()))
	}
}

// safeHandle converts a handler panic into an error so one bad message cannot stop ingestion
func (p *Pipeline) safeHandle(ctx context.Context, msg entities.InboundMessage, users map[int64]entities.TelegramUser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in telegram message handler",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return p.handler.HandleMessage(ctx, msg, users)
}

// Drain waits for in-flight handlers until they finish or ctx is done
func (p *Pipeline) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
