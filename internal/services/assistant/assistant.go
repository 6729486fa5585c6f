// Package assistant turns one student message into one bot message. Game
// requests are answered locally; everything else goes to the backend when
// it is healthy and to the direct model path otherwise.
package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/middleware"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/ai"
	"github.com/campusmate/tutor/internal/services/cache"
	"github.com/campusmate/tutor/internal/services/games"
	"github.com/campusmate/tutor/internal/services/imagegen"
	"github.com/campusmate/tutor/internal/services/knowledge"
	"github.com/campusmate/tutor/internal/services/router"
)

const (
	PathLocal   = "local"
	PathBackend = "backend"
	PathDirect  = "direct"

	gameModelName = "Game Suggester"
)

// Backend is the primary completion collaborator.
type Backend interface {
	Chat(ctx context.Context, req ai.ChatRequest) (models.Message, error)
	Vision(ctx context.Context, req ai.VisionRequest) (ai.VisionResponse, error)
	Models(ctx context.Context) (ai.ModelCatalog, error)
}

// Prober remembers whether the backend is reachable.
type Prober interface {
	Healthy(ctx context.Context) bool
	Reset()
}

// Request is one student turn.
type Request struct {
	Message       string
	Profile       models.UserContext
	AttachedImage string
	MimeType      string
	Model         string
}

// Reply is the bot message plus how it was produced.
type Reply struct {
	Message   models.Message
	Path      string
	Detection *models.DetectionResult
	Failed    bool
}

// Deps are the collaborators of a Service. Backend and Probe may be nil to
// always use the direct path.
type Deps struct {
	Classifier *router.Classifier
	Images     *imagegen.Synthesizer
	Knowledge  knowledge.Service
	Backend    Backend
	Probe      Prober
	Completer  ai.Completer
	Cache      cache.Service
	Localizer  *i18n.Localizer
	Metrics    *middleware.Metrics
	Logger     *logrus.Logger
}

type Service struct {
	classifier *router.Classifier
	images     *imagegen.Synthesizer
	knowledge  knowledge.Service
	backend    Backend
	probe      Prober
	completer  ai.Completer
	cache      cache.Service
	localizer  *i18n.Localizer
	metrics    *middleware.Metrics
	logger     *logrus.Logger
}

func NewService(deps Deps) *Service {
	s := &Service{
		classifier: deps.Classifier,
		images:     deps.Images,
		knowledge:  deps.Knowledge,
		backend:    deps.Backend,
		probe:      deps.Probe,
		completer:  deps.Completer,
		cache:      deps.Cache,
		localizer:  deps.Localizer,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if s.classifier == nil {
		s.classifier = router.NewClassifier()
	}
	if s.images == nil {
		s.images = imagegen.NewSynthesizer("", 0, 0)
	}
	if s.backend == nil {
		s.probe = nil
	}
	return s
}

// Respond answers req. It never fails: errors become an apology message.
func (s *Service) Respond(ctx context.Context, req Request) Reply {
	log := s.logger.WithField("message_length", len(req.Message))

	detection := games.Detect(req.Message)
	if detection.IsGameRequest {
		s.metrics.RecordIntent(PathLocal)
		log.WithField("reason", detection.Reason).Debug("Answering game request locally")
		return Reply{Message: s.gameMessage(detection), Path: PathLocal}
	}

	if s.backendHealthy(ctx) {
		msg, err := s.viaBackend(ctx, req)
		if err == nil {
			return Reply{Message: msg, Path: PathBackend}
		}
		if !errors.Is(err, ai.ErrUnavailable) || s.completer == nil {
			log.WithError(err).Error("Backend chat failed")
			return s.apology(err)
		}
		log.WithError(err).Warn("Backend unreachable, using direct path")
		s.probe.Reset()
		s.metrics.RecordBackendFallback("backend_error")
	} else if s.backend != nil {
		s.metrics.RecordBackendFallback("health_check")
	}

	reply, err := s.direct(ctx, req)
	if err != nil {
		log.WithError(err).Error("Direct completion failed")
		return s.apology(err)
	}
	return reply
}

func (s *Service) backendHealthy(ctx context.Context) bool {
	return s.backend != nil && s.probe != nil && s.probe.Healthy(ctx)
}

func (s *Service) viaBackend(ctx context.Context, req Request) (models.Message, error) {
	start := time.Now()
	msg, err := s.backend.Chat(ctx, ai.ChatRequest{
		Message:       req.Message,
		Context:       req.Profile,
		Model:         req.Model,
		AttachedImage: req.AttachedImage,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCompletion(PathBackend, status, time.Since(start))
	if err != nil {
		return models.Message{}, err
	}

	if msg.Type == models.TypeText || msg.Type == models.TypeNotes {
		msg = s.postProcess(req.Message, msg.Text, msg.ModelUsed, msg.ModelName)
	}
	return msg, nil
}

func (s *Service) direct(ctx context.Context, req Request) (Reply, error) {
	hasImage := req.AttachedImage != ""
	detection := s.classifier.Classify(req.Message, hasImage)
	if req.Model != "" && !hasImage {
		detection.Model = req.Model
		detection.ModelName = router.DisplayName(req.Model)
		detection.IsImageGeneration = false
	}

	if detection.IsImageGeneration {
		s.metrics.RecordIntent(router.ImageGeneration)
		return Reply{Message: s.imageMessage(req.Message), Path: PathDirect, Detection: &detection}, nil
	}
	s.metrics.RecordIntent(detection.Model)

	policy := LengthPolicy(req.Message)
	prompt := SystemPrompt(req.Profile, detection.Model, policy, s.knowledge)

	user := ai.ChatMessage{Role: ai.RoleUser, Text: req.Message}
	if hasImage {
		user.ImageURL = ai.DataURL(req.MimeType, req.AttachedImage)
	}

	key := cache.Key{Model: detection.Model, Question: req.Message, Prompt: prompt}
	cacheable := s.cache != nil && !hasImage
	if cacheable {
		if text, ok := s.cache.Get(ctx, key); ok {
			s.metrics.RecordCacheHit()
			msg := s.postProcess(req.Message, text, detection.Model, detection.ModelName)
			return Reply{Message: msg, Path: PathDirect, Detection: &detection}, nil
		}
		s.metrics.RecordCacheMiss()
	}

	start := time.Now()
	completion, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Model:       detection.Model,
		Messages:    []ai.ChatMessage{{Role: ai.RoleSystem, Text: prompt}, user},
		Temperature: Temperature(detection.Model),
		MaxTokens:   policy.MaxTokens,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCompletion(detection.Model, status, time.Since(start))
	if err != nil {
		return Reply{}, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, completion.Text); err != nil {
			s.logger.WithError(err).Warn("Failed to cache completion")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"model":  detection.Model,
		"length": policy.Length.String(),
	}).Debug("Direct completion done")

	msg := s.postProcess(req.Message, completion.Text, detection.Model, detection.ModelName)
	return Reply{Message: msg, Path: PathDirect, Detection: &detection}, nil
}

// postProcess types a completion, turning drawing replies into image replies
// built from the student's own words.
func (s *Service) postProcess(message, text, model, modelName string) models.Message {
	if WantsImage(message, text) {
		img := s.images.Synthesize(message)
		if !drawingMention.MatchString(text) {
			text = "Drawing it for you now! 🎨\n\n" + text
		}
		return models.Message{
			Text:      text,
			Sender:    models.SenderBot,
			Type:      models.TypeImage,
			Meta:      models.ImageMeta{ImageURL: img.URL, ImagePrompt: message, ImageModel: img.ModelName},
			ModelUsed: model,
			ModelName: modelName,
		}
	}

	msg := models.Message{
		Text:      text,
		Sender:    models.SenderBot,
		Type:      ReplyType(text, model),
		ModelUsed: model,
		ModelName: modelName,
	}
	if msg.Type == models.TypeCode {
		msg.Meta = models.CodeMeta{Languages: CodeLanguages(text)}
	}
	return msg
}

func (s *Service) imageMessage(message string) models.Message {
	img := s.images.Synthesize(message)
	return models.Message{
		Text:      s.localizer.T(i18n.MsgImageReply, map[string]interface{}{"ModelName": img.ModelName}),
		Sender:    models.SenderBot,
		Type:      models.TypeImage,
		Meta:      models.ImageMeta{ImageURL: img.URL, ImagePrompt: message, ImageModel: img.ModelName},
		ModelUsed: "pollinations/" + img.Model,
		ModelName: img.ModelName + " Image Generator",
	}
}

func (s *Service) gameMessage(d games.Detection) models.Message {
	var text string
	if g, ok := d.Game(); ok {
		text = s.localizer.T(i18n.MsgGamesSingle, map[string]interface{}{
			"Name":        g.Name,
			"Description": g.Description,
		})
	} else {
		text = s.localizer.T(i18n.MsgGamesMulti, map[string]interface{}{
			"Games": games.BulletList(d.Games),
		})
	}
	return models.Message{
		Text:      text,
		Sender:    models.SenderBot,
		Type:      models.TypeGameSuggestion,
		Meta:      d.Meta(),
		ModelUsed: PathLocal,
		ModelName: gameModelName,
	}
}

func (s *Service) apology(err error) Reply {
	return Reply{
		Message: models.Message{
			Text:   s.localizer.T(apologyID(err), nil),
			Sender: models.SenderBot,
			Type:   models.TypeText,
		},
		Failed: true,
	}
}

// Vision describes an uploaded image.
func (s *Service) Vision(ctx context.Context, prompt, image, mimeType string) Reply {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	meta := models.VisionMeta{Prompt: prompt, MimeType: mimeType}

	if s.backendHealthy(ctx) {
		resp, err := s.backend.Vision(ctx, ai.VisionRequest{Prompt: prompt, Image: image, MimeType: mimeType})
		if err == nil {
			return Reply{Message: visionMessage(resp.Description, resp.ModelUsed, resp.ModelName, meta), Path: PathBackend}
		}
		if !errors.Is(err, ai.ErrUnavailable) || s.completer == nil {
			s.logger.WithError(err).Error("Backend vision failed")
			return s.apology(err)
		}
		s.probe.Reset()
		s.metrics.RecordBackendFallback("backend_error")
	}

	start := time.Now()
	completion, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Model:       router.ModelVision,
		Messages:    []ai.ChatMessage{{Role: ai.RoleUser, Text: prompt, ImageURL: ai.DataURL(mimeType, image)}},
		Temperature: Temperature(router.ModelVision),
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCompletion(router.ModelVision, status, time.Since(start))
	if err != nil {
		s.logger.WithError(err).Error("Direct vision failed")
		return s.apology(err)
	}
	return Reply{
		Message: visionMessage(completion.Text, router.ModelVision, router.DisplayName(router.ModelVision), meta),
		Path:    PathDirect,
	}
}

func visionMessage(text, model, name string, meta models.VisionMeta) models.Message {
	return models.Message{
		Text:      text,
		Sender:    models.SenderBot,
		Type:      models.TypeVisionResponse,
		Meta:      meta,
		ModelUsed: model,
		ModelName: name,
	}
}

// GenerateImage synthesizes an image request without creating a message.
func (s *Service) GenerateImage(prompt string) imagegen.Result {
	return s.images.Synthesize(prompt)
}

// Models lists the backend catalog, or the local one when the backend is
// down.
func (s *Service) Models(ctx context.Context) ai.ModelCatalog {
	if s.backendHealthy(ctx) {
		catalog, err := s.backend.Models(ctx)
		if err == nil && len(catalog) > 0 {
			return catalog
		}
		if err != nil {
			s.logger.WithError(err).Warn("Failed to list backend models")
		}
	}

	catalog := ai.ModelCatalog{}
	for category, infos := range router.Models() {
		entries := make(map[string]string, len(infos))
		for _, m := range infos {
			entries[m.Key] = m.ID
		}
		catalog[string(category)] = entries
	}
	return catalog
}

// BackendStatus reports the remembered health state.
func (s *Service) BackendStatus() string {
	if s.backend == nil {
		return "disabled"
	}
	if p, ok := s.probe.(interface{ Known() (bool, bool) }); ok {
		checked, healthy := p.Known()
		switch {
		case !checked:
			return "unknown"
		case healthy:
			return "ok"
		}
		return "down"
	}
	return "unknown"
}

// Welcome is the first bot message a client ever sees.
func (s *Service) Welcome(models.UserContext) string {
	return s.localizer.T(i18n.MsgGreeting, nil)
}

// NewChatGreeting opens every later session.
func (s *Service) NewChatGreeting(profile models.UserContext) string {
	if profile.Name == "" {
		return s.localizer.T(i18n.MsgNewChatAnonymous, nil)
	}
	return s.localizer.T(i18n.MsgNewChat, map[string]interface{}{"Name": profile.Name})
}
