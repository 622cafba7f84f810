package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// streamState tracks where an answer pipeline is, for logging and for
// reasoning about disconnects. Transitions are strictly forward.
type streamState int

const (
	stateReceived streamState = iota
	stateResolving
	stateStreaming
	statePersisting
	stateClosed
	stateErrored
)

func (s streamState) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateResolving:
		return "resolving"
	case stateStreaming:
		return "streaming"
	case statePersisting:
		return "persisting"
	case stateClosed:
		return "closed"
	case stateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// persistTimeout bounds the final transcript write after generation ends.
const persistTimeout = 30 * time.Second

// eventBuffer decouples the pipeline from a slow consumer for short bursts.
const eventBuffer = 16

// ThreadStore is the transcript persistence the controller needs.
// *thread.Store satisfies it.
type ThreadStore interface {
	Get(ctx context.Context, id uuid.UUID) (*thread.Thread, error)
	Append(ctx context.Context, threadID uuid.UUID, messages []*thread.Message) error
}

// Controller runs answer pipelines: one per thread at a time, each
// producing an ordered event stream that always terminates with done or
// error.
//
// Controller is safe for concurrent use by multiple goroutines.
type Controller struct {
	orch   *Orchestrator
	store  ThreadStore
	locks  *lockArena
	logger *slog.Logger
}

// NewController creates a controller.
func NewController(orch *Orchestrator, store ThreadStore, logger *slog.Logger) (*Controller, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("thread store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		orch:   orch,
		store:  store,
		locks:  newLockArena(),
		logger: logger,
	}, nil
}

// Stream answers a question on a thread. It validates, takes the thread's
// lock, and returns a channel of events; the pipeline runs in the
// background and closes the channel after the terminal event.
//
// Errors returned directly (ErrEmptyQuestion, ErrThreadBusy,
// thread.ErrNotFound) mean no pipeline started and nothing was persisted.
//
// ctx governs delivery, not generation: if the caller disconnects,
// events stop being forwarded but the answer is still generated to
// completion and persisted, so the transcript never loses a turn that was
// already underway.
func (c *Controller) Stream(ctx context.Context, threadID uuid.UUID, question string) (<-chan Event, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	t, err := c.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if !c.locks.acquire(t.ID) {
		return nil, fmt.Errorf("thread %s: %w", t.ID, ErrThreadBusy)
	}

	events := make(chan Event, eventBuffer)
	go c.run(ctx, t, question, events)
	return events, nil
}

// run is the pipeline goroutine. It owns the thread lock and the events
// channel.
func (c *Controller) run(ctx context.Context, t *thread.Thread, question string, events chan<- Event) {
	defer close(events)
	defer c.locks.release(t.ID)

	state := stateReceived
	setState := func(next streamState) {
		if next != state {
			c.logger.Debug("stream state", "thread_id", t.ID, "from", state, "to", next)
			state = next
		}
	}

	// Forward an event unless the consumer is gone.
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// Generation must survive a client disconnect.
	genCtx := context.WithoutCancel(ctx)

	setState(stateResolving)
	result, genErr := c.orch.Answer(genCtx, t, question, func(text string) error {
		setState(stateStreaming)
		emit(Event{Type: EventDelta, Text: text})
		return nil
	})

	setState(statePersisting)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if genErr != nil {
		c.logger.Error("answer pipeline failed",
			"thread_id", t.ID, "state", state, "error", genErr)

		// Keep the interrupted turn: the question, and whatever partial
		// answer already reached the client, marked failed.
		msgs := []*thread.Message{
			{Role: thread.RoleUser, Content: question},
			{
				Role:        thread.RoleAssistant,
				Content:     result.Answer,
				ContextRefs: result.ContextRefs,
				Status:      thread.StatusFailed,
			},
		}
		if err := c.store.Append(persistCtx, t.ID, msgs); err != nil {
			c.logger.Error("persisting failed turn", "thread_id", t.ID, "error", err)
		}

		setState(stateErrored)
		emit(Event{Type: EventError, Message: "answer generation failed"})
		return
	}

	msgs := []*thread.Message{
		{Role: thread.RoleUser, Content: question},
		{
			Role:        thread.RoleAssistant,
			Content:     result.Answer,
			ContextRefs: result.ContextRefs,
			Status:      thread.StatusCompleted,
		},
	}
	if err := c.store.Append(persistCtx, t.ID, msgs); err != nil {
		c.logger.Error("persisting turn", "thread_id", t.ID, "error", err)
		setState(stateErrored)
		emit(Event{Type: EventError, Message: "failed to save conversation"})
		return
	}

	setState(stateClosed)
	emit(Event{
		Type:        EventDone,
		Text:        result.Answer,
		ThreadID:    t.ID,
		MessageID:   msgs[1].ID,
		ContextRefs: result.ContextRefs,
		Refused:     result.Refused,
	})
}
