package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionChanged is returned for a reply whose question is no longer
	// in the active session.
	ErrSessionChanged = errors.New("reply belongs to another session")
	// ErrUnsaved is returned when the active session could not be written
	// before switching away from it. The session stays active and pending.
	ErrUnsaved = errors.New("active session could not be saved")
)

const (
	titleLimit   = 30
	defaultTitle = "New Conversation"
	writeTimeout = 5 * time.Second
)

// Options tune a Store; zero values pick the defaults.
type Options struct {
	Debounce time.Duration
	Now      func() time.Time
	NewID    func() string
	Greeting func(models.UserContext) string
	// Welcome opens the first session of a store; Greeting is used when it is nil.
	Welcome func(models.UserContext) string
	// IdleTimeout is how long a Manager keeps an unused store open.
	IdleTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newID
	}
	if o.Greeting == nil {
		o.Greeting = DefaultGreeting
	}
	if o.Welcome == nil {
		o.Welcome = o.Greeting
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Hour
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DefaultGreeting opens a fresh chat.
func DefaultGreeting(profile models.UserContext) string {
	if profile.Name == "" {
		return "Vanakkam! 👋 Starting a fresh chat. How can I help you now?"
	}
	return fmt.Sprintf("Vanakkam %s! 👋 Starting a fresh chat. How can I help you now?", profile.Name)
}

// Store holds one client's active conversation, its saved sessions and its
// profile. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	clientID string
	kv       storage.Storage
	logger   *logrus.Entry
	opts     Options
	debounce func(func())

	activeID string
	messages []models.Message
	history  []models.ChatSession
	profile  models.UserContext
	dirty    bool
}

// HistoryKey and ProfileKey name the persisted records of a client.
func HistoryKey(clientID string) string { return clientID + ":history" }
func ProfileKey(clientID string) string { return clientID + ":profile" }

// Open loads a client's saved sessions and profile and starts a new session.
// Corrupt records are logged and treated as absent.
func Open(ctx context.Context, clientID string, kv storage.Storage, logger *logrus.Logger, opts Options) *Store {
	opts.defaults()
	s := &Store{
		clientID: clientID,
		kv:       kv,
		logger:   logger.WithField("client_id", clientID),
		opts:     opts,
		debounce: debounce.New(opts.Debounce),
	}

	s.history = s.loadHistory(ctx)
	s.profile = s.loadProfile(ctx)
	s.startLocked(s.opts.Welcome(s.profile))
	return s
}

func (s *Store) loadHistory(ctx context.Context) []models.ChatSession {
	raw, err := s.kv.Get(ctx, HistoryKey(s.clientID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read session history")
		return nil
	}

	var history []models.ChatSession
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.WithError(err).Warn("Discarding unreadable session history")
		return nil
	}
	sortSessions(history)
	return history
}

func (s *Store) loadProfile(ctx context.Context) models.UserContext {
	raw, err := s.kv.Get(ctx, ProfileKey(s.clientID))
	if errors.Is(err, storage.ErrNotFound) {
		return models.UserContext{}
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read profile")
		return models.UserContext{}
	}

	var profile models.UserContext
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.logger.WithError(err).Warn("Discarding unreadable profile")
		return models.UserContext{}
	}
	return profile
}

func (s *Store) resetLocked() {
	s.startLocked(s.opts.Greeting(s.profile))
}

func (s *Store) startLocked(greeting string) {
	now := s.opts.Now()
	s.activeID = s.opts.NewID()
	s.messages = []models.Message{{
		ID:        s.opts.NewID(),
		Text:      greeting,
		Sender:    models.SenderBot,
		Timestamp: displayTime(now),
		CreatedAt: now,
		Type:      models.TypeText,
	}}
	s.dirty = false
}

func displayTime(t time.Time) string {
	return t.Format("03:04 PM")
}

// ActiveID is the id of the session being written to.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a copy of the active log.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// NewSession saves the current session if needed and starts an empty one
// holding only a greeting. When the save fails the current session stays
// active and ErrUnsaved is returned.
func (s *Store) NewSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveBeforeSwitchLocked(ctx); err != nil {
		return s.activeID, err
	}
	s.resetLocked()
	return s.activeID, nil
}

func (s *Store) saveBeforeSwitchLocked(ctx context.Context) error {
	if err := s.flushLocked(ctx); err != nil {
		// keep a save pending so the log is retried later
		s.debounce(s.persistLater)
		return fmt.Errorf("%w: %v", ErrUnsaved, err)
	}
	return nil
}

// Append adds msg to the end of the active log and schedules a save.
func (s *Store) Append(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg = s.stampLocked(msg)
	s.messages = append(s.messages, msg)
	s.changedLocked()
	return msg
}

// AppendReply inserts a bot reply right after the user message it answers
// (and after earlier replies to it), so overlapping requests keep their
// question/answer pairing whatever order they complete in.
func (s *Store) AppendReply(replyTo string, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, m := range s.messages {
		if m.ID == replyTo {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Message{}, ErrSessionChanged
	}

	at := idx + 1
	for at < len(s.messages) && s.messages[at].Sender == models.SenderBot {
		at++
	}

	msg = s.stampLocked(msg)
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[at+1:], s.messages[at:])
	s.messages[at] = msg
	s.changedLocked()
	return msg, nil
}

func (s *Store) stampLocked(msg models.Message) models.Message {
	now := s.opts.Now()
	if msg.ID == "" {
		msg.ID = s.opts.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.Timestamp == "" {
		msg.Timestamp = displayTime(msg.CreatedAt)
	}
	if msg.Type == "" {
		msg.Type = models.TypeText
	}
	return msg
}

func (s *Store) changedLocked() {
	if len(s.messages) <= 1 {
		return
	}
	s.dirty = true
	s.debounce(s.persistLater)
}

func (s *Store) persistLater() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}

// Flush writes pending changes now instead of waiting for the debounce.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	// replace the pending save with a no-op
	s.debounce(func() {})
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if !s.dirty || len(s.messages) <= 1 {
		return nil
	}

	record := models.ChatSession{
		ID:        s.activeID,
		Title:     Title(s.messages),
		Timestamp: s.opts.Now(),
		Messages:  append([]models.Message(nil), s.messages...),
	}

	history := make([]models.ChatSession, 0, len(s.history)+1)
	history = append(history, record)
	for _, h := range s.history {
		if h.ID != record.ID {
			history = append(history, h)
		}
	}
	sortSessions(history)

	if err := s.writeHistory(ctx, history); err != nil {
		return err
	}
	s.history = history
	s.dirty = false
	s.logger.WithFields(logrus.Fields{
		"session_id": record.ID,
		"messages":   len(record.Messages),
	}).Debug("Session saved")
	return nil
}

func (s *Store) writeHistory(ctx context.Context, history []models.ChatSession) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	if err := s.kv.Set(ctx, HistoryKey(s.clientID), string(data)); err != nil {
		s.logger.WithError(err).Error("Failed to save session history")
		return fmt.Errorf("failed to save session history: %w", err)
	}
	return nil
}

// Sessions lists saved sessions, newest first.
func (s *Store) Sessions() []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatSession(nil), s.history...)
}

// LoadSession makes a saved session active, saving the current one first.
// Like NewSession it refuses to switch when that save fails.
func (s *Store) LoadSession(ctx context.Context, id string) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveBeforeSwitchLocked(ctx); err != nil {
		return models.ChatSession{}, err
	}
	for _, h := range s.history {
		if h.ID == id {
			s.activeID = h.ID
			s.messages = append([]models.Message(nil), h.Messages...)
			s.dirty = false
			return h, nil
		}
	}
	return models.ChatSession{}, ErrSessionNotFound
}

// DeleteSession removes a saved session. Deleting the active session starts
// a new one.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := id == s.activeID
	if active {
		s.debounce(func() {})
	}

	history := make([]models.ChatSession, 0, len(s.history))
	found := false
	for _, h := range s.history {
		if h.ID == id {
			found = true
			continue
		}
		history = append(history, h)
	}

	if found {
		if err := s.writeHistory(ctx, history); err != nil {
			return err
		}
		s.history = history
	}
	if active {
		s.resetLocked()
		return nil
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

// Profile returns the stored user context.
func (s *Store) Profile() models.UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile replaces the user context. It is written as a whole once it
// carries a name or a semester.
func (s *Store) SetProfile(ctx context.Context, profile models.UserContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profile = profile
	if !profile.Identified() {
		return nil
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.kv.Set(ctx, ProfileKey(s.clientID), string(data)); err != nil {
		s.logger.WithError(err).Error("Failed to save profile")
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close flushes pending changes.
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// Title derives a session title from its first user message.
func Title(messages []models.Message) string {
	for _, m := range messages {
		if m.Sender != models.SenderUser {
			continue
		}
		runes := []rune(m.Text)
		if len(runes) > titleLimit {
			return string(runes[:titleLimit]) + "..."
		}
		return m.Text
	}
	return defaultTitle
}

func sortSessions(history []models.ChatSession) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})
}
