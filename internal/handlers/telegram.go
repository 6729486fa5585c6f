package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/middleware"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/games"
	"github.com/campusmate/tutor/internal/services/session"
	"github.com/campusmate/tutor/pkg/markdown"
)

const (
	telegramTextLimit = 4096
	photoFetchLimit   = 10 << 20
)

// Bot is the part of the Telegram API the handler uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramHandler serves chats and commands from one bot.
type TelegramHandler struct {
	bot          Bot
	username     string
	conversation *Conversation
	limiter      middleware.RateLimiter
	metrics      *middleware.Metrics
	localizer    *i18n.Localizer
	logger       *logrus.Logger
	httpClient   *http.Client
}

func NewTelegramHandler(
	bot Bot,
	username string,
	conversation *Conversation,
	limiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *TelegramHandler {
	return &TelegramHandler{
		bot:          bot,
		username:     username,
		conversation: conversation,
		limiter:      limiter,
		metrics:      metrics,
		localizer:    localizer,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// TelegramClientID maps a chat onto a session client.
func TelegramClientID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// HandleUpdate dispatches one update.
func (h *TelegramHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	if msg.IsCommand() {
		return h.HandleCommand(ctx, msg)
	}
	return h.HandleMessage(ctx, msg)
}

// HandleMessage answers a chat message. Group chats are only answered when
// the bot is mentioned.
func (h *TelegramHandler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	text := msg.Text
	if len(msg.Photo) > 0 {
		text = msg.Caption
	}
	if !h.shouldRespond(msg, text) {
		return nil
	}
	text = h.cleanMessage(text)

	chatID := msg.Chat.ID
	clientID := TelegramClientID(chatID)
	log := h.logger.WithFields(logrus.Fields{"chat_id": chatID, "client_id": clientID})

	if !h.limiter.Allow(clientID) {
		h.metrics.RecordRateLimitExceeded(SurfaceTelegram)
		return h.reply(msg, h.localizer.T(i18n.MsgRateLimitExceeded, nil))
	}

	if _, err := h.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.WithError(err).Debug("Failed to send typing action")
	}

	var (
		ex  *Exchange
		err error
	)
	if len(msg.Photo) > 0 {
		image, mime, ferr := h.fetchPhoto(ctx, msg.Photo)
		if ferr != nil {
			log.WithError(ferr).Error("Failed to fetch photo")
			return h.reply(msg, h.localizer.T(i18n.MsgApologyNetwork, nil))
		}
		ex, err = h.conversation.Describe(ctx, SurfaceTelegram, clientID, VisionInput{Prompt: text, Image: image, MimeType: mime})
	} else {
		ex, err = h.conversation.Send(ctx, SurfaceTelegram, clientID, ChatInput{Message: text})
	}
	if err != nil {
		log.WithError(err).Debug("Rejected message")
		return h.reply(msg, err.Error())
	}
	return h.sendReply(msg, ex.Reply)
}

func (h *TelegramHandler) shouldRespond(msg *tgbotapi.Message, text string) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	if h.username == "" {
		return false
	}
	if strings.Contains(strings.ToLower(text), "@"+strings.ToLower(h.username)) {
		return true
	}
	return msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		strings.EqualFold(msg.ReplyToMessage.From.UserName, h.username)
}

func (h *TelegramHandler) cleanMessage(text string) string {
	if h.username != "" {
		text = strings.ReplaceAll(text, "@"+h.username, "")
	}
	return strings.TrimSpace(text)
}

// fetchPhoto downloads the largest size of a photo as base64.
func (h *TelegramHandler) fetchPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) (string, string, error) {
	largest := sizes[len(sizes)-1]
	url, err := h.bot.GetFileDirectURL(largest.FileID)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve photo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("photo download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, photoFetchLimit))
	if err != nil {
		return "", "", fmt.Errorf("failed to read photo: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return base64.StdEncoding.EncodeToString(data), mime, nil
}

// sendReply sends a bot message. Image replies become a photo followed by
// the text.
func (h *TelegramHandler) sendReply(to *tgbotapi.Message, reply models.Message) error {
	if meta, ok := reply.Meta.(models.ImageMeta); ok && meta.ImageURL != "" {
		photo := tgbotapi.NewPhoto(to.Chat.ID, tgbotapi.FileURL(meta.ImageURL))
		photo.Caption = h.localizer.T(i18n.MsgTelegramImageCaption, map[string]interface{}{"Prompt": meta.ImagePrompt})
		photo.ReplyToMessageID = to.MessageID
		if _, err := h.bot.Send(photo); err != nil {
			h.logger.WithError(err).Warn("Failed to send photo, sending link")
			reply.Text += "\n\n" + meta.ImageURL
		}
	}
	return h.sendMarkdown(to, reply.Text)
}

// sendMarkdown sends text as Telegram HTML, falling back to plain text when
// Telegram rejects the markup or the message is too long.
func (h *TelegramHandler) sendMarkdown(to *tgbotapi.Message, text string) error {
	html := markdown.ToTelegramHTML(text)
	if len([]rune(html)) <= telegramTextLimit {
		msg := tgbotapi.NewMessage(to.Chat.ID, html)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyToMessageID = to.MessageID
		_, err := h.bot.Send(msg)
		if err == nil {
			return nil
		}
		h.logger.WithError(err).Warn("Failed to send HTML message, trying plain text")
	}

	plain, err := markdown.PlainText(text)
	if err != nil {
		plain = text
	}
	for _, chunk := range splitRunes(plain, telegramTextLimit) {
		msg := tgbotapi.NewMessage(to.Chat.ID, chunk)
		msg.ReplyToMessageID = to.MessageID
		if _, err := h.bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func (h *TelegramHandler) reply(to *tgbotapi.Message, text string) error {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := h.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// HandleCommand runs a slash command.
func (h *TelegramHandler) HandleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	store := h.conversation.Store(ctx, TelegramClientID(msg.Chat.ID))
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return h.sendMarkdown(msg, h.firstBotText(store.Messages())+"\n\n"+h.localizer.T(i18n.MsgTelegramHelp, nil))

	case "help":
		return h.reply(msg, h.localizer.T(i18n.MsgTelegramHelp, nil))

	case "new":
		if _, err := store.NewSession(ctx); err != nil {
			h.logger.WithError(err).Error("Failed to start a new session")
			return h.reply(msg, h.localizer.T(i18n.MsgApologyGeneric, nil))
		}
		return h.sendMarkdown(msg, h.firstBotText(store.Messages()))

	case "sessions":
		sessions := store.Sessions()
		if len(sessions) == 0 {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramSessionsEmpty, nil))
		}
		lines := make([]string, 0, len(sessions))
		for i, s := range sessions {
			lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, s.Title, s.Timestamp.Format("02 Jan 15:04")))
		}
		return h.reply(msg, strings.Join(lines, "\n"))

	case "load":
		id, ok := h.sessionArg(store.Sessions(), args)
		if !ok {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramMissing, nil))
		}
		s, err := store.LoadSession(ctx, id)
		if errors.Is(err, session.ErrUnsaved) {
			h.logger.WithError(err).Error("Failed to switch session")
			return h.reply(msg, h.localizer.T(i18n.MsgApologyGeneric, nil))
		}
		if err != nil {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramMissing, nil))
		}
		return h.reply(msg, h.localizer.T(i18n.MsgTelegramLoaded, map[string]interface{}{"Title": s.Title}))

	case "delete":
		id, ok := h.sessionArg(store.Sessions(), args)
		if !ok {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramMissing, nil))
		}
		if err := store.DeleteSession(ctx, id); err != nil {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramMissing, nil))
		}
		return h.reply(msg, h.localizer.T(i18n.MsgTelegramDeleted, nil))

	case "profile":
		if len(args) < 3 {
			return h.reply(msg, h.localizer.T(i18n.MsgTelegramProfileUsage, nil))
		}
		profile := store.Profile()
		profile.Name = args[0]
		profile.Department = strings.ToUpper(args[1])
		profile.Semester = args[2]
		if err := store.SetProfile(ctx, profile); err != nil {
			h.logger.WithError(err).Error("Failed to save profile")
			return h.reply(msg, h.localizer.T(i18n.MsgApologyGeneric, nil))
		}
		return h.reply(msg, h.localizer.T(i18n.MsgTelegramProfileSaved, map[string]interface{}{"Name": profile.Name}))

	case "games":
		return h.sendMarkdown(msg, h.localizer.T(i18n.MsgGamesMulti, map[string]interface{}{
			"Games": games.BulletList(games.Catalog()),
		}))
	}

	return h.reply(msg, h.localizer.T(i18n.MsgTelegramUnknown, nil))
}

// sessionArg resolves a 1-based list position or a session id.
func (h *TelegramHandler) sessionArg(sessions []models.ChatSession, args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(sessions) {
			return "", false
		}
		return sessions[n-1].ID, true
	}
	return args[0], true
}

func (h *TelegramHandler) firstBotText(messages []models.Message) string {
	for _, m := range messages {
		if m.Sender == models.SenderBot {
			return m.Text
		}
	}
	return h.localizer.T(i18n.MsgNewChatAnonymous, nil)
}

func splitRunes(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(chunks, string(runes))
}
