package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/campusmate/tutor/internal/config"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer loads the built-in message files, then any <lang>.json found
// in cfg.Directory on top of them.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	defaultLanguage := cfg.DefaultLanguage
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{defaultLanguage}
	}

	for _, lang := range languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		if _, err := fs.Stat(locales, path); err == nil {
			if _, err := bundle.LoadMessageFileFS(locales, path); err != nil {
				return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
			}
		}

		if cfg.Directory == "" {
			continue
		}
		override := filepath.Join(cfg.Directory, lang+".json")
		if _, err := os.Stat(override); err != nil {
			continue
		}
		if _, err := bundle.LoadMessageFile(override); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", override, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, defaultLanguage)
	}
	if _, ok := localizers[defaultLanguage]; !ok {
		localizers[defaultLanguage] = i18n.NewLocalizer(bundle, defaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// T localizes into the default language.
func (l *Localizer) T(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgGreeting              = "greeting"
	MsgNewChat               = "new_chat"
	MsgNewChatAnonymous      = "new_chat_anonymous"
	MsgApologyAuth           = "apology_auth"
	MsgApologyRateLimit      = "apology_rate_limit"
	MsgApologyNetwork        = "apology_network"
	MsgApologyGeneric        = "apology_generic"
	MsgImageReply            = "image_reply"
	MsgGamesMulti            = "games_multi"
	MsgGamesSingle           = "games_single"
	MsgRateLimitExceeded     = "rate_limit_exceeded"
	MsgMessageTooLong        = "message_too_long"
	MsgTelegramHelp          = "telegram_help"
	MsgTelegramSessionsEmpty = "telegram_sessions_empty"
	MsgTelegramLoaded        = "telegram_session_loaded"
	MsgTelegramDeleted       = "telegram_session_deleted"
	MsgTelegramMissing       = "telegram_session_missing"
	MsgTelegramProfileSaved  = "telegram_profile_saved"
	MsgTelegramProfileUsage  = "telegram_profile_usage"
	MsgTelegramUnknown       = "telegram_unknown_command"
	MsgTelegramImageCaption  = "telegram_image_caption"
)
