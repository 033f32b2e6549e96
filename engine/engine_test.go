package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Sochinenie/assignment"
	"Sochinenie/core"
	"Sochinenie/gate"
	"Sochinenie/storage"
)

type fakeAssistant struct {
	mu            sync.Mutex
	relevant      bool
	relevantErr   error
	relevantGate  chan struct{} // when set, IsRelevant blocks until it is closed
	extracted     string
	feedbackCalls int
}

func (f *fakeAssistant) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.extracted, nil
}

func (f *fakeAssistant) IsRelevant(_ context.Context, _, _ string) (bool, error) {
	if f.relevantGate != nil {
		<-f.relevantGate
	}
	return f.relevant, f.relevantErr
}

func (f *fakeAssistant) GenerateFeedback(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbackCalls++
	return "Sehr gut geschrieben!", nil
}

type sentMessage struct {
	chatID  int64
	text    string
	actions []core.Action
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	cleared []int
	media   map[string][]byte
	nextID  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{media: map[string][]byte{}, nextID: 1000}
}

func (f *fakeTransport) SendText(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) SendTextWithActions(chatID int64, text string, actions ...core.Action) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, actions: actions})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) ClearActions(_ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, messageID)
	return nil
}

func (f *fakeTransport) DownloadMedia(ref string) ([]byte, error) {
	if data, ok := f.media[ref]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no media %s", ref)
}

func (f *fakeTransport) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestEngine(t *testing.T, assistant *fakeAssistant) (*Engine, *storage.MemoryStorage, *fakeTransport) {
	t.Helper()

	store := storage.NewMemoryStorage()
	store.SetTopics([]storage.Topic{
		{ID: "t-1", Prompt: "Thema eins", Active: true, Title: map[core.Language]string{core.LangEN: "Topic one"}},
		{ID: "t-2", Prompt: "Thema zwei", Active: true, Title: map[core.Language]string{core.LangEN: "Topic two"}},
		{ID: "t-3", Prompt: "Thema drei", Active: true, Title: map[core.Language]string{core.LangEN: "Topic three"}},
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	assignments := assignment.NewServiceWithRand(store, log, rand.New(rand.NewSource(1)))
	validator := assignment.NewValidator(10, 4000, assistant)
	transport := newFakeTransport()

	eng := New(log, store, assignments, validator, gate.NewMemory(), assistant, transport)
	return eng, store, transport
}

func origin(userID int64) core.Origin {
	return core.Origin{UserID: userID, ChatID: userID * 10, Username: "tester"}
}

func currentAssignment(t *testing.T, store *storage.MemoryStorage, userID int64) storage.Assignment {
	t.Helper()
	active, err := store.ActiveAssignments(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	return active[0]
}

// gateHeld probes whether the user's slot is taken without leaving the
// probe's own acquisition behind.
func gateHeld(eng *Engine, userID int64) bool {
	if eng.gate.TryAcquire(userID) {
		eng.gate.Release(userID)
		return false
	}
	return true
}

func TestFullConversationFlow(t *testing.T) {
	assistant := &fakeAssistant{relevant: true}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(1)

	// /start: language choice, no assignment yet.
	eng.Handle(ctx, core.StartEvent{Origin: o})
	require.Len(t, transport.last().actions, 3, "language prompt carries three options")
	active, err := store.ActiveAssignments(ctx, o.UserID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Choosing German: confirmation, announcement, first assignment.
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangDE, MessageID: 1})
	user, err := store.GetUser(ctx, o.UserID)
	require.NoError(t, err)
	assert.Equal(t, core.LangDE, user.Language)

	first := currentAssignment(t, store, o.UserID)
	assert.Equal(t, storage.StateActive, first.State)
	assert.NotZero(t, first.MessageID, "assignment message ref recorded")
	require.Len(t, transport.last().actions, 1, "assignment carries the continue button")

	// A valid 20-character submission: SUBMITTED, feedback with button.
	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("ab", 10)})
	submitted := currentAssignment(t, store, o.UserID)
	assert.Equal(t, storage.StateSubmitted, submitted.State)
	assert.Equal(t, 1, assistant.feedbackCalls)
	assert.Contains(t, transport.last().text, "Sehr gut geschrieben!")
	require.Len(t, transport.last().actions, 1)
	assert.Contains(t, transport.cleared, first.MessageID, "old assignment keyboard stripped")

	// Continue: old one DONE, fresh unseen topic ACTIVE.
	eng.Handle(ctx, core.ContinueEvent{Origin: o, MessageID: submitted.MessageID})
	next := currentAssignment(t, store, o.UserID)
	assert.Equal(t, storage.StateActive, next.State)
	assert.NotEqual(t, first.TopicID, next.TopicID)

	seen, err := store.SeenTopicIDs(ctx, o.UserID)
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestRejectionLeavesStateUnchanged(t *testing.T) {
	assistant := &fakeAssistant{relevant: false}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(2)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	before := currentAssignment(t, store, o.UserID)

	// Too short: rejected before the relevance service is consulted.
	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: "short"})
	assert.Contains(t, transport.last().text, "too short")

	// Long enough but off topic.
	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("x", 50)})
	assert.Contains(t, transport.last().text, "doesn't seem to be about")

	after := currentAssignment(t, store, o.UserID)
	assert.Equal(t, storage.StateActive, after.State)
	assert.Equal(t, before.ID, after.ID)
	assert.Zero(t, assistant.feedbackCalls)
}

func TestRelevanceFailureIsNotAVerdict(t *testing.T) {
	assistant := &fakeAssistant{relevantErr: fmt.Errorf("service down")}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(3)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})

	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("x", 50)})
	assert.Contains(t, transport.last().text, "try again")
	assert.Equal(t, storage.StateActive, currentAssignment(t, store, o.UserID).State)
	assert.Zero(t, assistant.feedbackCalls, "no feedback on a failed relevance check")
}

func TestConcurrentSubmissionDropped(t *testing.T) {
	assistant := &fakeAssistant{relevant: true, relevantGate: make(chan struct{})}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(4)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	sentBefore := transport.count()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("ab", 10)})
	}()

	// Wait until the first submission is parked inside the relevance call.
	require.Eventually(t, func() bool {
		return gateHeld(eng, o.UserID)
	}, time.Second, 5*time.Millisecond)

	// The second one must be dropped: no reply, no state change.
	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("cd", 10)})
	assert.Equal(t, sentBefore, transport.count(), "a gated-out event gets no reply")

	close(assistant.relevantGate)
	wg.Wait()

	assert.Equal(t, 1, assistant.feedbackCalls, "feedback generated exactly once")
	assert.Equal(t, storage.StateSubmitted, currentAssignment(t, store, o.UserID).State)

	// The slot is free again afterwards.
	assert.True(t, eng.gate.TryAcquire(o.UserID))
	eng.gate.Release(o.UserID)
}

func TestDifferentUsersRunInParallel(t *testing.T) {
	assistant := &fakeAssistant{relevant: true, relevantGate: make(chan struct{})}
	eng, _, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	alice, bob := origin(5), origin(6)

	for _, o := range []core.Origin{alice, bob} {
		eng.Handle(ctx, core.StartEvent{Origin: o})
		eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Handle(ctx, core.SubmissionEvent{Origin: alice, Text: strings.Repeat("ab", 10)})
	}()
	require.Eventually(t, func() bool {
		return gateHeld(eng, alice.UserID)
	}, time.Second, 5*time.Millisecond)

	// Alice being in flight must not gate Bob.
	assert.True(t, eng.gate.TryAcquire(bob.UserID))
	eng.gate.Release(bob.UserID)

	close(assistant.relevantGate)
	wg.Wait()
	_ = transport
}

func TestPhotoSubmission(t *testing.T) {
	assistant := &fakeAssistant{relevant: true, extracted: strings.Repeat("text ", 10)}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(7)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	transport.media["photo-1"] = []byte{0xff, 0xd8}

	eng.Handle(ctx, core.SubmissionEvent{Origin: o, PhotoRef: "photo-1"})
	assert.Equal(t, storage.StateSubmitted, currentAssignment(t, store, o.UserID).State)
	assert.Equal(t, 1, assistant.feedbackCalls)
}

func TestPhotoWithoutTextRejected(t *testing.T) {
	assistant := &fakeAssistant{relevant: true, extracted: ""}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(8)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	transport.media["photo-2"] = []byte{0xff, 0xd8}

	eng.Handle(ctx, core.SubmissionEvent{Origin: o, PhotoRef: "photo-2"})
	assert.Contains(t, transport.last().text, "extract text")
	assert.Equal(t, storage.StateActive, currentAssignment(t, store, o.UserID).State)
}

func TestDeclineCancelsAndReassigns(t *testing.T) {
	assistant := &fakeAssistant{relevant: true}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(9)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	first := currentAssignment(t, store, o.UserID)

	// Pressing the button on an ACTIVE assignment abandons it.
	eng.Handle(ctx, core.ContinueEvent{Origin: o, MessageID: first.MessageID})
	next := currentAssignment(t, store, o.UserID)
	assert.NotEqual(t, first.ID, next.ID)
	assert.NotEqual(t, first.TopicID, next.TopicID)
	_ = transport
}

func TestCatalogExhaustionTellsTheUser(t *testing.T) {
	assistant := &fakeAssistant{relevant: true}
	eng, store, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(10)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})

	// Burn through the whole catalog of three.
	for i := 0; i < 3; i++ {
		a := currentAssignment(t, store, o.UserID)
		eng.Handle(ctx, core.ContinueEvent{Origin: o, MessageID: a.MessageID})
	}

	assert.Contains(t, transport.last().text, "every topic")
	active, err := store.ActiveAssignments(ctx, o.UserID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUnknownUserSubmissionTriggersOnboarding(t *testing.T) {
	assistant := &fakeAssistant{relevant: true}
	eng, _, transport := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(11)

	eng.Handle(ctx, core.SubmissionEvent{Origin: o, Text: strings.Repeat("ab", 10)})
	require.Len(t, transport.last().actions, 3, "unknown user is sent to language selection")
	assert.Zero(t, assistant.feedbackCalls)
}

func TestLanguageReselectKeepsAssignment(t *testing.T) {
	assistant := &fakeAssistant{relevant: true}
	eng, store, _ := newTestEngine(t, assistant)
	ctx := context.Background()
	o := origin(12)

	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangEN, MessageID: 1})
	first := currentAssignment(t, store, o.UserID)

	// /language later: switch to Russian, current assignment untouched.
	eng.Handle(ctx, core.StartEvent{Origin: o})
	eng.Handle(ctx, core.LanguageSelectEvent{Origin: o, Language: core.LangRU, MessageID: 2})

	user, err := store.GetUser(ctx, o.UserID)
	require.NoError(t, err)
	assert.Equal(t, core.LangRU, user.Language)
	assert.Equal(t, first.ID, currentAssignment(t, store, o.UserID).ID)
}
