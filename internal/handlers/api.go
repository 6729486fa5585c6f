package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/middleware"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/games"
	"github.com/campusmate/tutor/internal/services/render"
	"github.com/campusmate/tutor/internal/services/session"
	"github.com/campusmate/tutor/internal/services/speech"
)

const (
	ServiceName     = "tutor"
	DefaultClientID = "default"
	ClientIDHeader  = "X-Client-ID"

	maxBodyBytes = 12 << 20
)

var errMissingImage = errors.New("image is required")

// ClientID identifies the caller of a request.
func ClientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("client_id")); id != "" {
		return id
	}
	return DefaultClientID
}

// API serves the REST surface.
type API struct {
	conversation *Conversation
	assistant    Assistant
	renderer     *render.Renderer
	speech       *speech.Service
	security     *middleware.SecurityMiddleware
	limiter      middleware.RateLimiter
	metrics      *middleware.Metrics
	localizer    *i18n.Localizer
	logger       *logrus.Logger
	version      string
}

// APIDeps are the collaborators of an API.
type APIDeps struct {
	Conversation *Conversation
	Assistant    Assistant
	Renderer     *render.Renderer
	Speech       *speech.Service
	Security     *middleware.SecurityMiddleware
	Limiter      middleware.RateLimiter
	Metrics      *middleware.Metrics
	Localizer    *i18n.Localizer
	Logger       *logrus.Logger
	Version      string
}

func NewAPI(deps APIDeps) *API {
	return &API{
		conversation: deps.Conversation,
		assistant:    deps.Assistant,
		renderer:     deps.Renderer,
		speech:       deps.Speech,
		security:     deps.Security,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		localizer:    deps.Localizer,
		logger:       deps.Logger,
		version:      deps.Version,
	}
}

// Register mounts every REST route on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/", a.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/models", a.models).Methods(http.MethodGet)
	api.HandleFunc("/render", a.render).Methods(http.MethodPost)
	api.HandleFunc("/sessions", a.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", a.newSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", a.loadSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", a.deleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/messages", a.messages).Methods(http.MethodGet)
	api.HandleFunc("/profile", a.profile).Methods(http.MethodGet)
	api.HandleFunc("/profile", a.saveProfile).Methods(http.MethodPut)
	api.HandleFunc("/games", a.games).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}", a.game).Methods(http.MethodGet)
	api.HandleFunc("/speech/prepare", a.prepareSpeech).Methods(http.MethodPost)

	limited := api.NewRoute().Subrouter()
	limited.Use(middleware.RateLimit(a.limiter, a.metrics, ClientID, a.localizer.T(i18n.MsgRateLimitExceeded, nil)))
	limited.HandleFunc("/chat", a.chat).Methods(http.MethodPost)
	limited.HandleFunc("/vision", a.vision).Methods(http.MethodPost)
	limited.HandleFunc("/generate-image", a.generateImage).Methods(http.MethodGet)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
		"version": a.version,
		"backend": a.assistant.BackendStatus(),
	})
}

func (a *API) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": a.assistant.Models(r.Context())})
}

func (a *API) chat(w http.ResponseWriter, r *http.Request) {
	var in ChatInput
	if !a.decode(w, r, &in) {
		return
	}
	ex, err := a.conversation.Send(r.Context(), SurfaceHTTP, ClientID(r), in)
	if err != nil {
		a.inputError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (a *API) vision(w http.ResponseWriter, r *http.Request) {
	var in VisionInput
	if !a.decode(w, r, &in) {
		return
	}
	ex, err := a.conversation.Describe(r.Context(), SurfaceHTTP, ClientID(r), in)
	if err != nil {
		a.inputError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (a *API) generateImage(w http.ResponseWriter, r *http.Request) {
	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	writeJSON(w, http.StatusOK, a.assistant.GenerateImage(prompt))
}

func (a *API) render(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if !a.decode(w, r, &in) {
		return
	}
	doc := a.renderer.Render(in.Text)
	for kind, n := range doc.Degraded() {
		a.metrics.RecordRenderDegraded(string(kind), n)
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activeId": store.ActiveID(),
		"sessions": store.Sessions(),
	})
}

func (a *API) newSession(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	id, err := store.NewSession(r.Context())
	if err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": id,
		"messages":  store.Messages(),
	})
}

func (a *API) loadSession(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	s, err := store.LoadSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	if err := store.DeleteSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activeId": store.ActiveID(),
		"sessions": store.Sessions(),
	})
}

func (a *API) messages(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": store.ActiveID(),
		"messages":  store.Messages(),
	})
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	store := a.conversation.Store(r.Context(), ClientID(r))
	writeJSON(w, http.StatusOK, store.Profile())
}

func (a *API) saveProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserContext
	if !a.decode(w, r, &profile) {
		return
	}
	store := a.conversation.Store(r.Context(), ClientID(r))
	if err := store.SetProfile(r.Context(), profile); err != nil {
		a.logger.WithError(err).Error("Failed to save profile")
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, store.Profile())
}

func (a *API) games(w http.ResponseWriter, r *http.Request) {
	category := models.GameCategory(r.URL.Query().Get("category"))
	list := games.Catalog()
	if category != "" {
		list = games.ByCategory(category)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": list})
}

func (a *API) game(w http.ResponseWriter, r *http.Request) {
	g, err := games.Get(mux.Vars(r)["id"])
	if errors.Is(err, games.ErrUnknownGame) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) prepareSpeech(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text    string         `json:"text"`
		Options speech.Options `json:"options"`
	}
	if !a.decode(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, a.speech.Prepare(in.Text, in.Options))
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.logger.WithError(err).Debug("Rejected request body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *API) inputError(w http.ResponseWriter, err error) {
	if errors.Is(err, middleware.ErrMessageTooLong) {
		writeError(w, http.StatusRequestEntityTooLarge,
			a.localizer.T(i18n.MsgMessageTooLong, map[string]interface{}{"Max": a.security.MaxLength()}))
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (a *API) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, session.ErrUnsaved) {
		a.logger.WithError(err).Warn("Refusing to switch sessions")
		writeError(w, http.StatusServiceUnavailable, session.ErrUnsaved.Error())
		return
	}
	a.logger.WithError(err).Error("Session operation failed")
	writeError(w, http.StatusInternalServerError, "session operation failed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
