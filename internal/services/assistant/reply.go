package assistant

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/ai"
	"github.com/campusmate/tutor/internal/services/router"
)

const notesThreshold = 1200

var (
	drawReply    = regexp.MustCompile(`(?i)\bdraw(ing)?\b|drawing that for you`)
	drawRequest  = regexp.MustCompile(`(?i)\b(draw|generate|show me a picture of)\b`)
	syllabusWord = regexp.MustCompile(`(?i)\b(syllabus|units?)\b`)

	drawingMention = regexp.MustCompile(`(?i)drawing`)
)

// WantsImage reports whether a completion should be turned into an image
// reply. Source code exchanges never are.
func WantsImage(message, completion string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(message)) <= 3 || sourceCodeExchange(message, completion) {
		return false
	}
	return drawReply.MatchString(completion) || drawRequest.MatchString(message)
}

// sourceCodeExchange reports a request for source code, or a reply that
// answers with fenced code.
func sourceCodeExchange(message, completion string) bool {
	return strings.Contains(strings.ToLower(message), "source code") || strings.Contains(completion, "```")
}

// ReplyType classifies a plain completion.
func ReplyType(text, model string) models.MessageType {
	switch {
	case strings.Contains(text, "```") && router.IsCoder(model):
		return models.TypeCode
	case utf8.RuneCountInString(text) > notesThreshold || syllabusWord.MatchString(text):
		return models.TypeNotes
	}
	return models.TypeText
}

var fenceTag = regexp.MustCompile("```([A-Za-z0-9_+#-]+)")

// CodeLanguages lists the distinct fence tags of a reply in order.
func CodeLanguages(text string) []string {
	var langs []string
	seen := map[string]bool{}
	for _, m := range fenceTag.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}

// apologyID picks the apology for a failed turn. Typed errors are checked
// first, then the error text is sniffed the way upstream services word it.
func apologyID(err error) string {
	var netErr net.Error
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, ai.ErrRateLimited), strings.Contains(msg, "rate limit"):
		return i18n.MsgApologyRateLimit
	case errors.Is(err, ai.ErrAuth), strings.Contains(msg, "api key"):
		return i18n.MsgApologyAuth
	case errors.Is(err, ai.ErrUnavailable), errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr),
		strings.Contains(msg, "failed to fetch"), strings.Contains(msg, "networkerror"):
		return i18n.MsgApologyNetwork
	}
	return i18n.MsgApologyGeneric
}
