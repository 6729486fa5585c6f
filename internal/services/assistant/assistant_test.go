package assistant

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

	"github.com/campusmate/tutor/internal/config"
	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/ai"
	"github.com/campusmate/tutor/internal/services/cache"
	"github.com/campusmate/tutor/internal/services/knowledge"
	"github.com/campusmate/tutor/internal/services/router"
	"github.com/campusmate/tutor/pkg/logger"
)

type fakeBackend struct {
	mu      sync.Mutex
	chats   []ai.ChatRequest
	reply   models.Message
	err     error
	catalog ai.ModelCatalog
}

func (b *fakeBackend) Chat(_ context.Context, req ai.ChatRequest) (models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats = append(b.chats, req)
	return b.reply, b.err
}

func (b *fakeBackend) Vision(_ context.Context, req ai.VisionRequest) (ai.VisionResponse, error) {
	if b.err != nil {
		return ai.VisionResponse{}, b.err
	}
	return ai.VisionResponse{Description: "A circuit diagram", ModelUsed: "vision-x", ModelName: "Vision X"}, nil
}

func (b *fakeBackend) Models(context.Context) (ai.ModelCatalog, error) {
	return b.catalog, b.err
}

type fakeProbe struct {
	healthy bool
	resets  int
}

func (p *fakeProbe) Healthy(context.Context) bool { return p.healthy }
func (p *fakeProbe) Reset()                        { p.resets++ }

type fakeCompleter struct {
	mu       sync.Mutex
	requests []ai.CompletionRequest
	text     string
	err      error
}

func (c *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (ai.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return ai.Completion{}, c.err
	}
	return ai.Completion{Text: c.text, Model: req.Model}, nil
}

func (c *fakeCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func newTestService(t *testing.T, backend Backend, probe Prober, completer ai.Completer) *Service {
	t.Helper()
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	require.NoError(t, err)
	syllabus, err := knowledge.NewKnowledgeService(logger.Discard())
	require.NoError(t, err)

	deps := Deps{
		Knowledge: syllabus,
		Completer: completer,
		Cache:     cache.NewCache(&config.CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 100}, logger.Discard()),
		Localizer: localizer,
		Logger:    logger.Discard(),
	}
	if backend != nil {
		deps.Backend = backend
		deps.Probe = probe
	}
	return NewService(deps)
}

func TestRespondGameIsLocal(t *testing.T) {
	backend := &fakeBackend{}
	completer := &fakeCompleter{}
	s := newTestService(t, backend, &fakeProbe{healthy: true}, completer)

	reply := s.Respond(context.Background(), Request{Message: "let's play snake"})
	assert.Equal(t, PathLocal, reply.Path)
	assert.Equal(t, models.TypeGameSuggestion, reply.Message.Type)
	assert.Equal(t, "local", reply.Message.ModelUsed)
	assert.Equal(t, "Game Suggester", reply.Message.ModelName)
	assert.Equal(t, models.GameMeta{SuggestedGame: "snake", AutoOpen: true}, reply.Message.Meta)
	assert.Contains(t, reply.Message.Text, "Let's play 🐍 Snake!")

	stressed := s.Respond(context.Background(), Request{Message: "exam stress is killing me"})
	meta, ok := stressed.Message.Meta.(models.GameMeta)
	require.True(t, ok)
	assert.Contains(t, meta.SuggestedGames, "breath")
	assert.Contains(t, stressed.Message.Text, "• **🧘 Breathing Exercise**")

	assert.Empty(t, backend.chats)
	assert.Zero(t, completer.calls())
}

func TestRespondUsesHealthyBackend(t *testing.T) {
	backend := &fakeBackend{reply: models.Message{
		Text: "Stacks are LIFO.", Sender: models.SenderBot, Type: models.TypeText,
		ModelUsed: router.ModelPrimary, ModelName: "LLaMA 3.3 70B",
	}}
	completer := &fakeCompleter{}
	s := newTestService(t, backend, &fakeProbe{healthy: true}, completer)

	profile := models.UserContext{Name: "Priya", Department: "CSE", Semester: "3"}
	reply := s.Respond(context.Background(), Request{Message: "explain stacks", Profile: profile})
	assert.Equal(t, PathBackend, reply.Path)
	assert.Equal(t, "Stacks are LIFO.", reply.Message.Text)
	require.Len(t, backend.chats, 1)
	assert.Equal(t, profile, backend.chats[0].Context)
	assert.Zero(t, completer.calls())
}

func TestRespondFallsBackWhenBackendDown(t *testing.T) {
	backend := &fakeBackend{}
	completer := &fakeCompleter{text: "A queue is FIFO."}
	s := newTestService(t, backend, &fakeProbe{healthy: false}, completer)

	reply := s.Respond(context.Background(), Request{Message: "what is a queue in data structures"})
	assert.Equal(t, PathDirect, reply.Path)
	assert.Equal(t, "A queue is FIFO.", reply.Message.Text)
	assert.Equal(t, models.TypeText, reply.Message.Type)
	assert.Empty(t, backend.chats)
	require.Equal(t, 1, completer.calls())
	assert.Equal(t, router.ModelPrimary, completer.requests[0].Model)
}

func TestRespondFallsBackOnUnreachableBackend(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("dial: %w", ai.ErrUnavailable)}
	probe := &fakeProbe{healthy: true}
	completer := &fakeCompleter{text: "Sure."}
	s := newTestService(t, backend, probe, completer)

	reply := s.Respond(context.Background(), Request{Message: "tell me about compilers please"})
	assert.Equal(t, PathDirect, reply.Path)
	assert.Equal(t, 1, probe.resets)
	assert.Equal(t, 1, completer.calls())
}

func TestRespondBackendErrorApologizes(t *testing.T) {
	backend := &fakeBackend{err: &ai.StatusError{Status: 429, Body: "slow down"}}
	completer := &fakeCompleter{text: "unused"}
	s := newTestService(t, backend, &fakeProbe{healthy: true}, completer)

	reply := s.Respond(context.Background(), Request{Message: "tell me about compilers please"})
	assert.True(t, reply.Failed)
	assert.Equal(t, "⏳ Rate limit reached. Please wait a moment and try again.", reply.Message.Text)
	assert.Zero(t, completer.calls())
}

func TestRespondImageIntent(t *testing.T) {
	completer := &fakeCompleter{}
	s := newTestService(t, nil, nil, completer)

	reply := s.Respond(context.Background(), Request{Message: "draw a cyberpunk city at night"})
	assert.Equal(t, models.TypeImage, reply.Message.Type)
	meta, ok := reply.Message.Meta.(models.ImageMeta)
	require.True(t, ok)
	assert.Equal(t, "draw a cyberpunk city at night", meta.ImagePrompt)
	assert.True(t, strings.HasPrefix(meta.ImageURL, "https://image.pollinations.ai/prompt/"))
	assert.True(t, strings.HasPrefix(reply.Message.ModelUsed, "pollinations/"))
	assert.True(t, strings.HasSuffix(reply.Message.ModelName, " Image Generator"))
	assert.Contains(t, reply.Message.Text, "Drawing it for you using")
	assert.Zero(t, completer.calls())
}

func TestRespondCodeReply(t *testing.T) {
	completer := &fakeCompleter{text: "Here you go:\n```python\nprint('hi')\n```"}
	s := newTestService(t, nil, nil, completer)

	reply := s.Respond(context.Background(), Request{Message: "write a python function to print hi"})
	assert.Equal(t, models.TypeCode, reply.Message.Type)
	assert.Equal(t, models.CodeMeta{Languages: []string{"python"}}, reply.Message.Meta)
	require.Equal(t, 1, completer.calls())

	req := completer.requests[0]
	assert.Equal(t, router.ModelCoder, req.Model)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 4096, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Text, "CODING MODE ACTIVATED")
}

func TestRespondDrawingReplyBecomesImage(t *testing.T) {
	completer := &fakeCompleter{text: "Sure, I'm drawing that for you!"}
	s := newTestService(t, nil, nil, completer)

	reply := s.Respond(context.Background(), Request{Message: "can you explain the water cycle visually", Model: router.ModelPrimary})
	assert.Equal(t, models.TypeImage, reply.Message.Type)
	assert.Equal(t, "Sure, I'm drawing that for you!", reply.Message.Text)
	meta := reply.Message.Meta.(models.ImageMeta)
	assert.Equal(t, "can you explain the water cycle visually", meta.ImagePrompt)
}

func TestRespondCachesCompletions(t *testing.T) {
	completer := &fakeCompleter{text: "Normalization removes redundancy."}
	s := newTestService(t, nil, nil, completer)

	req := Request{Message: "explain normalization in databases"}
	first := s.Respond(context.Background(), req)
	second := s.Respond(context.Background(), Request{Message: "  Explain normalization in databases "})
	assert.Equal(t, first.Message.Text, second.Message.Text)
	assert.Equal(t, 1, completer.calls())
}

func TestRespondDirectErrorApologizes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ai.StatusError{Status: 401}, "🔑 API key issue detected! Please check your configuration."},
		{context.DeadlineExceeded, "🔌 Cannot connect to the server. Please check your connection and try again."},
		{errors.New("boom"), "Machi, my brain is slightly overloaded. Can you try re-asking?"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestService(t, nil, nil, &fakeCompleter{err: tt.err})
			reply := s.Respond(context.Background(), Request{Message: "explain paging in operating systems"})
			assert.True(t, reply.Failed)
			assert.Equal(t, tt.want, reply.Message.Text)
			assert.Equal(t, models.SenderBot, reply.Message.Sender)
		})
	}
}

func TestVision(t *testing.T) {
	s := newTestService(t, &fakeBackend{}, &fakeProbe{healthy: true}, &fakeCompleter{})
	reply := s.Vision(context.Background(), "what is this?", "AAAA", "image/png")
	assert.Equal(t, models.TypeVisionResponse, reply.Message.Type)
	assert.Equal(t, "A circuit diagram", reply.Message.Text)
	assert.Equal(t, models.VisionMeta{Prompt: "what is this?", MimeType: "image/png"}, reply.Message.Meta)

	completer := &fakeCompleter{text: "A cat."}
	direct := newTestService(t, nil, nil, completer)
	reply = direct.Vision(context.Background(), "describe", "BBBB", "")
	assert.Equal(t, PathDirect, reply.Path)
	assert.Equal(t, "A cat.", reply.Message.Text)
	require.Equal(t, 1, completer.calls())
	assert.Equal(t, "data:image/jpeg;base64,BBBB", completer.requests[0].Messages[0].ImageURL)
}

func TestModelsFallsBackToLocalCatalog(t *testing.T) {
	remote := ai.ModelCatalog{"language": {"x": "y"}}
	s := newTestService(t, &fakeBackend{catalog: remote}, &fakeProbe{healthy: true}, &fakeCompleter{})
	assert.Equal(t, remote, s.Models(context.Background()))

	local := newTestService(t, nil, nil, &fakeCompleter{}).Models(context.Background())
	assert.Equal(t, router.ModelPrimary, local["language"]["llama33"])
	assert.Equal(t, "disabled", newTestService(t, nil, nil, nil).BackendStatus())
}

func TestGreetings(t *testing.T) {
	s := newTestService(t, nil, nil, nil)
	assert.Contains(t, s.Welcome(models.UserContext{}), "Murukku AI")
	assert.Equal(t, "Vanakkam Arun! 👋 Starting a fresh chat. How can I help you now?",
		s.NewChatGreeting(models.UserContext{Name: "Arun"}))
	assert.Equal(t, "Vanakkam! 👋 Starting a fresh chat. How can I help you now?",
		s.NewChatGreeting(models.UserContext{}))
}

func TestWantsImage(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		completion string
		want       bool
	}{
		{"drawing request", "draw the water cycle", "Sure, here it is.", true},
		{"reply offers a drawing", "how do volcanoes erupt", "I am drawing that for you now! 🎨", true},
		{"plain answer", "how do volcanoes erupt", "Magma rises through the crust.", false},
		{"too short", "hi", "I am drawing that for you now!", false},
		{"source code request", "show me the source code to draw a circle", "Here is the drawing logic.", false},
		{"fenced code reply", "generate a fibonacci function", "```python\ndef fib(n): ...\n```", false},
		{"drawer is not draw", "clean my drawer", "Start with the top shelf.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WantsImage(tt.message, tt.completion))
		})
	}
}
