package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bushraturk/ragchatbot/internal/index"
	"github.com/Bushraturk/ragchatbot/internal/retrieval"
	"github.com/Bushraturk/ragchatbot/internal/testutil"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// memStore is an in-memory ThreadStore + HistoryStore.
type memStore struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*thread.Thread
	msgs    map[uuid.UUID][]*thread.Message
}

func newMemStore() *memStore {
	return &memStore{
		threads: make(map[uuid.UUID]*thread.Thread),
		msgs:    make(map[uuid.UUID][]*thread.Message),
	}
}

func (s *memStore) addThread(mode thread.Mode, pinned string) *thread.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &thread.Thread{ID: uuid.New(), Mode: mode, PinnedText: pinned}
	s.threads[t.ID] = t
	return t
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*thread.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, thread.ErrNotFound
	}
	return t, nil
}

func (s *memStore) Append(_ context.Context, threadID uuid.UUID, messages []*thread.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		m.ID = uuid.New()
		m.ThreadID = threadID
		m.SequenceNumber = len(s.msgs[threadID]) + 1
		if m.Status == "" {
			m.Status = thread.StatusCompleted
		}
		s.msgs[threadID] = append(s.msgs[threadID], m)
	}
	return nil
}

func (s *memStore) Recent(_ context.Context, threadID uuid.UUID, limit int) ([]*thread.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.msgs[threadID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*thread.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memStore) messages(threadID uuid.UUID) []*thread.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*thread.Message, len(s.msgs[threadID]))
	copy(out, s.msgs[threadID])
	return out
}

// fakeRetriever returns a scripted context, optionally blocking on gate.
type fakeRetriever struct {
	rc   *retrieval.Context
	err  error
	gate chan struct{}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, _ thread.Mode, _, _ string) (*retrieval.Context, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rc, nil
}

func groundedContext() *retrieval.Context {
	return &retrieval.Context{Snippets: []index.Snippet{
		{ID: "dune#1", Content: "Paul Atreides is the duke's son.", Similarity: 0.9},
	}}
}

type testRig struct {
	controller *Controller
	store      *memStore
	llm        *testutil.MockLLM
}

func newTestRig(t *testing.T, retriever Retriever) *testRig {
	t.Helper()

	g := genkit.Init(context.Background())
	llm := testutil.NewMockLLM("I cannot say.")
	llm.AddResponse("who is paul", "Paul Atreides is the Kwisatz Haderach of the Bene Gesserit breeding program.")

	store := newMemStore()
	orch, err := NewOrchestrator(g, llm.RegisterModel(g), retriever, store, Config{
		HistoryLimit: 20,
		Retry: RetryConfig{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}, testutil.DiscardLogger())
	require.NoError(t, err)

	controller, err := NewController(orch, store, testutil.DiscardLogger())
	require.NoError(t, err)

	return &testRig{controller: controller, store: store, llm: llm}
}

// collect drains the stream until it closes.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestStreamDeltasAssembleToFinalAnswer(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: groundedContext()})
	th := rig.store.addThread(thread.ModeFullBook, "")

	events, err := rig.controller.Stream(context.Background(), th.ID, "who is paul?")
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	done := got[len(got)-1]
	require.Equal(t, EventDone, done.Type)

	var assembled strings.Builder
	for _, ev := range got[:len(got)-1] {
		require.Equal(t, EventDelta, ev.Type)
		assembled.WriteString(ev.Text)
	}
	// The answer streams in more than one piece and the deltas
	// reassemble to exactly the final text.
	assert.Greater(t, len(got), 2)
	assert.Equal(t, done.Text, assembled.String())

	assert.Equal(t, th.ID, done.ThreadID)
	assert.Equal(t, []string{"dune#1"}, done.ContextRefs)
	assert.False(t, done.Refused)
	assert.NotEqual(t, uuid.Nil, done.MessageID)

	msgs := rig.store.messages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, thread.RoleUser, msgs[0].Role)
	assert.Equal(t, "who is paul?", msgs[0].Content)
	assert.Equal(t, thread.RoleAssistant, msgs[1].Role)
	assert.Equal(t, done.Text, msgs[1].Content)
	assert.Equal(t, []string{"dune#1"}, msgs[1].ContextRefs)
	assert.Equal(t, thread.StatusCompleted, msgs[1].Status)
}

func TestStreamRefusesWithoutInvokingModel(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: &retrieval.Context{}})
	th := rig.store.addThread(thread.ModeFullBook, "")

	events, err := rig.controller.Stream(context.Background(), th.ID, "what is the capital of france?")
	require.NoError(t, err)
	got := collect(t, events)

	// A refusal is one terminal done event, no deltas.
	require.Len(t, got, 1)
	assert.Equal(t, EventDone, got[0].Type)
	assert.Equal(t, RefusalText, got[0].Text)
	assert.True(t, got[0].Refused)
	assert.Empty(t, got[0].ContextRefs)

	assert.Zero(t, rig.llm.CallCount())

	msgs := rig.store.messages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, RefusalText, msgs[1].Content)
	assert.Equal(t, thread.StatusCompleted, msgs[1].Status)
}

func TestStreamRejectsEmptyQuestion(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: groundedContext()})
	th := rig.store.addThread(thread.ModeFullBook, "")

	_, err := rig.controller.Stream(context.Background(), th.ID, "   \n")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, rig.store.messages(th.ID))
}

func TestStreamUnknownThread(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: groundedContext()})

	_, err := rig.controller.Stream(context.Background(), uuid.New(), "hello?")
	assert.ErrorIs(t, err, thread.ErrNotFound)
}

func TestStreamRejectsConcurrentTurnsOnSameThread(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	rig := newTestRig(t, &fakeRetriever{rc: groundedContext(), gate: gate})
	th := rig.store.addThread(thread.ModeFullBook, "")

	first, err := rig.controller.Stream(context.Background(), th.ID, "who is paul?")
	require.NoError(t, err)

	_, err = rig.controller.Stream(context.Background(), th.ID, "second question")
	assert.ErrorIs(t, err, ErrThreadBusy)

	close(gate)
	collect(t, first)

	// The lock is released once the first turn finishes.
	again, err := rig.controller.Stream(context.Background(), th.ID, "who is paul?")
	require.NoError(t, err)
	collect(t, again)
}

func TestStreamModelFailurePersistsFailedTurn(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: groundedContext()})
	rig.llm.FailNext(errors.New("400 malformed request"))
	th := rig.store.addThread(thread.ModeFullBook, "")

	events, err := rig.controller.Stream(context.Background(), th.ID, "who is paul?")
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Type)
	assert.NotEmpty(t, last.Message)
	assert.Nil(t, testFindDone(got))

	msgs := rig.store.messages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, thread.StatusFailed, msgs[1].Status)
}

func TestStreamRetrievalFailureEmitsError(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{err: retrieval.ErrRetrievalFailed})
	th := rig.store.addThread(thread.ModeFullBook, "")

	events, err := rig.controller.Stream(context.Background(), th.ID, "who is paul?")
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Type)
	assert.Zero(t, rig.llm.CallCount())
}

func TestStreamDisconnectStillFinishesAndPersists(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, &fakeRetriever{rc: groundedContext()})
	th := rig.store.addThread(thread.ModeFullBook, "")

	ctx, cancel := context.WithCancel(context.Background())
	events, err := rig.controller.Stream(ctx, th.ID, "who is paul?")
	require.NoError(t, err)

	// Client goes away immediately.
	cancel()

	// The pipeline closes the channel only after persisting, so waiting
	// for close is waiting for the turn to be durable.
	collect(t, events)

	msgs := rig.store.messages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, thread.StatusCompleted, msgs[1].Status)
	assert.NotEmpty(t, msgs[1].Content)
}

func testFindDone(events []Event) *Event {
	for i := range events {
		if events[i].Type == EventDone {
			return &events[i]
		}
	}
	return nil
}
