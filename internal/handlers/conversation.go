package handlers

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/middleware"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/ai"
	"github.com/campusmate/tutor/internal/services/assistant"
	"github.com/campusmate/tutor/internal/services/imagegen"
	"github.com/campusmate/tutor/internal/services/render"
	"github.com/campusmate/tutor/internal/services/session"
	"github.com/campusmate/tutor/pkg/logger"
)

const (
	SurfaceHTTP      = "http"
	SurfaceWebSocket = "websocket"
	SurfaceTelegram  = "telegram"
)

// Assistant produces bot replies.
type Assistant interface {
	Respond(ctx context.Context, req assistant.Request) assistant.Reply
	Vision(ctx context.Context, prompt, image, mimeType string) assistant.Reply
	Models(ctx context.Context) ai.ModelCatalog
	GenerateImage(prompt string) imagegen.Result
	BackendStatus() string
}

// ChatInput is one chat send from any surface.
type ChatInput struct {
	Message       string `json:"message"`
	AttachedImage string `json:"attachedImage,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Model         string `json:"model,omitempty"`
}

// VisionInput asks for an image description.
type VisionInput struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image"`
	MimeType string `json:"mimeType,omitempty"`
}

// Exchange is a stored question and its rendered reply.
type Exchange struct {
	SessionID string           `json:"sessionId"`
	User      models.Message   `json:"userMessage"`
	Reply     models.Message   `json:"message"`
	Segments  []render.Segment `json:"segments"`
	// Stale is set when the session changed while the reply was produced;
	// the reply was then not stored.
	Stale bool `json:"stale,omitempty"`
}

// Conversation runs one chat turn for a client: validate, store the
// question, ask the assistant, store and render the reply. Every surface
// goes through it.
type Conversation struct {
	assistant Assistant
	sessions  *session.Manager
	renderer  *render.Renderer
	security  *middleware.SecurityMiddleware
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

func NewConversation(
	a Assistant,
	sessions *session.Manager,
	renderer *render.Renderer,
	security *middleware.SecurityMiddleware,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Conversation {
	return &Conversation{
		assistant: a,
		sessions:  sessions,
		renderer:  renderer,
		security:  security,
		metrics:   metrics,
		logger:    logger,
	}
}

// Store returns the session store of a client.
func (c *Conversation) Store(ctx context.Context, clientID string) *session.Store {
	store := c.sessions.Store(ctx, clientID)
	c.metrics.SetActiveClients(c.sessions.Clients())
	return store
}

// Send handles a chat message. Only validation errors are returned.
func (c *Conversation) Send(ctx context.Context, surface, clientID string, in ChatInput) (*Exchange, error) {
	c.metrics.RecordMessageReceived(surface)

	if err := c.security.ValidateInput(in.Message); err != nil {
		// an image alone is a valid question
		if !(in.AttachedImage != "" && errors.Is(err, middleware.ErrEmptyMessage)) {
			c.metrics.RecordMessageProcessed(surface, "invalid")
			return nil, err
		}
	}

	store := c.Store(ctx, clientID)
	question := store.Append(models.Message{Text: in.Message, Sender: models.SenderUser, Type: models.TypeText})

	reply := c.assistant.Respond(ctx, assistant.Request{
		Message:       in.Message,
		Profile:       store.Profile(),
		AttachedImage: in.AttachedImage,
		MimeType:      in.MimeType,
		Model:         in.Model,
	})
	return c.finish(surface, clientID, store, question, reply), nil
}

// Describe handles a vision request.
func (c *Conversation) Describe(ctx context.Context, surface, clientID string, in VisionInput) (*Exchange, error) {
	c.metrics.RecordMessageReceived(surface)
	if in.Image == "" {
		c.metrics.RecordMessageProcessed(surface, "invalid")
		return nil, errMissingImage
	}
	if in.Prompt == "" {
		in.Prompt = "Describe this image in detail."
	}
	if err := c.security.ValidateInput(in.Prompt); err != nil {
		c.metrics.RecordMessageProcessed(surface, "invalid")
		return nil, err
	}

	store := c.Store(ctx, clientID)
	question := store.Append(models.Message{Text: in.Prompt, Sender: models.SenderUser, Type: models.TypeText})
	reply := c.assistant.Vision(ctx, in.Prompt, in.Image, in.MimeType)
	return c.finish(surface, clientID, store, question, reply), nil
}

func (c *Conversation) finish(surface, clientID string, store *session.Store, question models.Message, reply assistant.Reply) *Exchange {
	log := logger.WithClient(c.logger, clientID, store.ActiveID())

	reply.Message.Text = c.security.SanitizeOutput(reply.Message.Text)
	doc := c.renderer.Render(reply.Message.Text)
	for kind, n := range doc.Degraded() {
		c.metrics.RecordRenderDegraded(string(kind), n)
	}

	ex := &Exchange{SessionID: store.ActiveID(), User: question, Segments: doc.Segments}
	saved, err := store.AppendReply(question.ID, reply.Message)
	if err != nil {
		log.WithError(err).Warn("Dropping reply for a closed session")
		ex.Stale = true
		ex.Reply = reply.Message
	} else {
		ex.Reply = saved
	}

	status := "success"
	if reply.Failed {
		status = "error"
	}
	c.metrics.RecordMessageProcessed(surface, status)
	log.WithFields(logrus.Fields{
		"surface": surface,
		"path":    reply.Path,
		"type":    ex.Reply.Type,
	}).Debug("Chat turn done")
	return ex
}
