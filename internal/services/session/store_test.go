package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/storage"
	"github.com/campusmate/tutor/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type countingStorage struct {
	storage.Storage
	mu   sync.Mutex
	sets int
	fail bool
}

func (c *countingStorage) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return c.Storage.Set(ctx, key, value)
}

func (c *countingStorage) Sets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func testOptions() Options {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	n := 0
	var mu sync.Mutex
	return Options{
		Debounce: time.Hour,
		Now:      clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

func newTestStore(t *testing.T) (*Store, *countingStorage) {
	t.Helper()
	kv := &countingStorage{Storage: storage.NewMemoryStorage(nil)}
	return Open(context.Background(), "alice", kv, logger.Discard(), testOptions()), kv
}

func userMsg(text string) models.Message {
	return models.Message{Text: text, Sender: models.SenderUser}
}

func botMsg(text string) models.Message {
	return models.Message{Text: text, Sender: models.SenderBot}
}

func TestOpenStartsWithGreeting(t *testing.T) {
	s, _ := newTestStore(t)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderBot, msgs[0].Sender)
	assert.Contains(t, msgs[0].Text, "Starting a fresh chat")
	assert.Empty(t, s.Sessions())
}

func TestGreetingUsesProfileName(t *testing.T) {
	assert.Equal(t,
		"Vanakkam Priya! 👋 Starting a fresh chat. How can I help you now?",
		DefaultGreeting(models.UserContext{Name: "Priya"}))
}

func TestGreetingOnlySessionIsNotSaved(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Flush(ctx))
	_, err := s.NewSession(ctx)
	require.NoError(t, err)
	assert.Zero(t, kv.Sets())
	assert.Empty(t, s.Sessions())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	q := s.Append(userMsg("What is a linked list?"))
	_, err := s.AppendReply(q.ID, botMsg("A chain of nodes."))
	require.NoError(t, err)
	s.Append(userMsg("draw one"))
	s.Append(models.Message{
		Text:      "Here you go",
		Sender:    models.SenderBot,
		Type:      models.TypeImage,
		ModelUsed: "pollinations/flux",
		Meta:      models.ImageMeta{ImageURL: "https://img.example/p.png", ImagePrompt: "linked list", ImageModel: "Flux"},
	})
	s.Append(models.Message{
		Text:   "Try a game",
		Sender: models.SenderBot,
		Type:   models.TypeGameSuggestion,
		Meta:   models.GameMeta{SuggestedGame: "snake", AutoOpen: true},
	})
	s.Append(models.Message{
		Text:   "```go\ntype Node struct{}\n```",
		Sender: models.SenderBot,
		Type:   models.TypeCode,
		Meta:   models.CodeMeta{Languages: []string{"go"}},
	})
	want := s.Messages()
	first := s.ActiveID()

	_, err = s.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, s.ActiveID())

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, "What is a linked list?", sessions[0].Title)

	// a fresh store sees the persisted history
	reopened := Open(ctx, "alice", kv, logger.Discard(), testOptions())
	loaded, err := reopened.LoadSession(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, reopened.ActiveID())
	assertSameMessages(t, want, loaded.Messages)
	assertSameMessages(t, want, reopened.Messages())
}

// assertSameMessages compares logs field by field, with timestamps compared
// as instants.
func assertSameMessages(t *testing.T, want, got []models.Message) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt), "message %d created at %v, want %v", i, g.CreatedAt, w.CreatedAt)
		w.CreatedAt, g.CreatedAt = time.Time{}, time.Time{}
		assert.Equal(t, w, g, "message %d", i)
	}
}

func TestSwitchingKeepsUnsavedSession(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	q := s.Append(userMsg("unsaved question"))
	_, err := s.AppendReply(q.ID, botMsg("unsaved answer"))
	require.NoError(t, err)
	active := s.ActiveID()

	kv.mu.Lock()
	kv.fail = true
	kv.mu.Unlock()

	_, err = s.NewSession(ctx)
	assert.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, active, s.ActiveID())
	assert.Len(t, s.Messages(), 3)

	_, err = s.LoadSession(ctx, "anything")
	assert.ErrorIs(t, err, ErrUnsaved)
	assert.Equal(t, active, s.ActiveID())

	kv.mu.Lock()
	kv.fail = false
	kv.mu.Unlock()

	require.NoError(t, s.Flush(ctx))
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, active, sessions[0].ID)
	assert.Len(t, sessions[0].Messages, 3)

	_, err = s.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, active, s.ActiveID())
}

func TestSessionsNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, q := range []string{"first", "second", "third"} {
		s.Append(userMsg(q))
		ids = append(ids, s.ActiveID())
		_, err := s.NewSession(ctx)
		require.NoError(t, err)
	}

	sessions := s.Sessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]},
		[]string{sessions[0].ID, sessions[1].ID, sessions[2].ID})
}

func TestResavingUpdatesInPlace(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Append(userMsg("hello"))
	require.NoError(t, s.Flush(ctx))
	s.Append(userMsg("again"))
	require.NoError(t, s.Flush(ctx))

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Messages, 3)
}

func TestTitle(t *testing.T) {
	long := strings.Repeat("அ", 40)
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{"no user message", []models.Message{botMsg("hi")}, "New Conversation"},
		{"short", []models.Message{botMsg("hi"), userMsg("Explain DBMS")}, "Explain DBMS"},
		{"exactly limit", []models.Message{userMsg(strings.Repeat("a", 30))}, strings.Repeat("a", 30)},
		{"long ascii", []models.Message{userMsg(strings.Repeat("b", 31))}, strings.Repeat("b", 30) + "..."},
		{"long unicode", []models.Message{userMsg(long)}, strings.Repeat("அ", 30) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.messages))
		})
	}
}

func TestDebouncedSaveCoalesces(t *testing.T) {
	kv := &countingStorage{Storage: storage.NewMemoryStorage(nil)}
	opts := testOptions()
	opts.Debounce = 50 * time.Millisecond
	s := Open(context.Background(), "bob", kv, logger.Discard(), opts)

	for i := 0; i < 5; i++ {
		s.Append(userMsg(fmt.Sprintf("message %d", i)))
	}
	assert.Zero(t, kv.Sets())

	require.Eventually(t, func() bool { return kv.Sets() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, kv.Sets())

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Messages, 6)
}

func TestFlushCancelsPendingSave(t *testing.T) {
	kv := &countingStorage{Storage: storage.NewMemoryStorage(nil)}
	opts := testOptions()
	opts.Debounce = 30 * time.Millisecond
	s := Open(context.Background(), "bob", kv, logger.Discard(), opts)

	s.Append(userMsg("question"))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, kv.Sets())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, kv.Sets())
}

func TestAppendReplyKeepsPairs(t *testing.T) {
	s, _ := newTestStore(t)

	q1 := s.Append(userMsg("q1"))
	q2 := s.Append(userMsg("q2"))

	// second question answered first
	_, err := s.AppendReply(q2.ID, botMsg("a2"))
	require.NoError(t, err)
	_, err = s.AppendReply(q1.ID, botMsg("a1"))
	require.NoError(t, err)

	var texts []string
	for _, m := range s.Messages()[1:] {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, texts)
}

func TestAppendReplyAfterSessionSwitch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	q := s.Append(userMsg("slow question"))
	_, err := s.NewSession(ctx)
	require.NoError(t, err)

	_, err = s.AppendReply(q.ID, botMsg("late answer"))
	assert.ErrorIs(t, err, ErrSessionChanged)
	assert.Len(t, s.Messages(), 1)
}

func TestLoadSessionUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.LoadSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Append(userMsg("keep me"))
	keep := s.ActiveID()
	_, err := s.NewSession(ctx)
	require.NoError(t, err)
	s.Append(userMsg("drop me"))
	drop := s.ActiveID()
	_, err = s.NewSession(ctx)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, drop))
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, keep, sessions[0].ID)

	assert.ErrorIs(t, s.DeleteSession(ctx, drop), ErrSessionNotFound)
}

func TestDeleteActiveSessionStartsFresh(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Append(userMsg("current"))
	require.NoError(t, s.Flush(ctx))
	active := s.ActiveID()

	require.NoError(t, s.DeleteSession(ctx, active))
	assert.NotEqual(t, active, s.ActiveID())
	assert.Len(t, s.Messages(), 1)
	assert.Empty(t, s.Sessions())
}

func TestFailedSaveKeepsCache(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	s.Append(userMsg("saved"))
	require.NoError(t, s.Flush(ctx))

	kv.mu.Lock()
	kv.fail = true
	kv.mu.Unlock()

	s.Append(userMsg("lost"))
	assert.Error(t, s.Flush(ctx))
	require.Len(t, s.Sessions(), 1)
	assert.Len(t, s.Sessions()[0].Messages, 2)
}

func TestCorruptHistoryIsDiscarded(t *testing.T) {
	kv := storage.NewMemoryStorage(nil)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, HistoryKey("carol"), "{not json"))
	require.NoError(t, kv.Set(ctx, ProfileKey("carol"), "[]"))

	s := Open(ctx, "carol", kv, logger.Discard(), testOptions())
	assert.Empty(t, s.Sessions())
	assert.Equal(t, models.UserContext{}, s.Profile())
	assert.Len(t, s.Messages(), 1)
}

func TestProfilePersistence(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetProfile(ctx, models.UserContext{Department: "CSE"}))
	assert.Zero(t, kv.Sets())
	assert.Equal(t, "CSE", s.Profile().Department)

	profile := models.UserContext{Name: "Priya", Semester: "5", Department: "CSE"}
	require.NoError(t, s.SetProfile(ctx, profile))
	assert.Equal(t, 1, kv.Sets())

	reopened := Open(ctx, "alice", kv, logger.Discard(), testOptions())
	assert.Equal(t, profile, reopened.Profile())
	assert.Contains(t, reopened.Messages()[0].Text, "Priya")
}

func TestManagerReusesStores(t *testing.T) {
	m := NewManager(storage.NewMemoryStorage(nil), logger.Discard(), testOptions())
	ctx := context.Background()

	a := m.Store(ctx, "a")
	assert.Same(t, a, m.Store(ctx, "a"))
	assert.NotSame(t, a, m.Store(ctx, "b"))
	assert.Equal(t, 2, m.Clients())

	a.Append(userMsg("pending"))
	require.NoError(t, m.Close(ctx))
	assert.Len(t, a.Sessions(), 1)
}

func TestManagerEvictsIdleStores(t *testing.T) {
	kv := &countingStorage{Storage: storage.NewMemoryStorage(nil)}
	opts := testOptions()
	opts.IdleTimeout = time.Hour
	m := NewManager(kv, logger.Discard(), opts)
	ctx := context.Background()
	defer m.Close(ctx)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	old := m.Store(ctx, "old")
	old.Append(userMsg("left pending"))
	now = now.Add(2 * time.Hour)
	fresh := m.Store(ctx, "fresh")

	assert.Equal(t, 1, m.evictIdle(ctx))
	assert.Equal(t, 1, m.Clients())
	assert.Same(t, fresh, m.Store(ctx, "fresh"))
	assert.Equal(t, 1, kv.Sets())

	// the evicted client's history comes back from storage
	reopened := m.Store(ctx, "old")
	assert.NotSame(t, old, reopened)
	require.Len(t, reopened.Sessions(), 1)
	assert.Len(t, reopened.Sessions()[0].Messages, 2)
}

func TestManagerKeepsStoreWhenFlushFails(t *testing.T) {
	kv := &countingStorage{Storage: storage.NewMemoryStorage(nil)}
	m := NewManager(kv, logger.Discard(), testOptions())
	ctx := context.Background()
	defer m.Close(ctx)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := m.Store(ctx, "a")
	s.Append(userMsg("pending"))
	kv.mu.Lock()
	kv.fail = true
	kv.mu.Unlock()

	now = now.Add(2 * time.Hour)
	assert.Zero(t, m.evictIdle(ctx))
	assert.Same(t, s, m.Store(ctx, "a"))
}

func TestWelcomeOpensFirstSessionOnly(t *testing.T) {
	opts := testOptions()
	opts.Welcome = func(models.UserContext) string { return "intro" }
	s := Open(context.Background(), "dan", storage.NewMemoryStorage(nil), logger.Discard(), opts)
	assert.Equal(t, "intro", s.Messages()[0].Text)

	_, err := s.NewSession(context.Background())
	require.NoError(t, err)
	assert.Contains(t, s.Messages()[0].Text, "Starting a fresh chat")
}
