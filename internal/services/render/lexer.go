package render

import (
	"strings"
)

const fence = "```"

// TokenKind distinguishes prose from fenced blocks
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenFence
)

// Token is one lexical piece of a bot message
type Token struct {
	Kind     TokenKind
	Text     string
	Language string
}

// Lex splits text into prose and fenced blocks. An opening fence may carry a
// language tag and is closed by the next fence marker; an unclosed fence is
// left as prose.
func Lex(text string) []Token {
	var tokens []Token
	rest := text

	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}

		after := rest[open+len(fence):]
		lang := languageTag(after)
		body := after[len(lang):]
		if strings.HasPrefix(body, "\r\n") {
			body = body[2:]
		} else if strings.HasPrefix(body, "\n") {
			body = body[1:]
		}

		end := strings.Index(body, fence)
		if end < 0 {
			break
		}

		if open > 0 {
			tokens = append(tokens, Token{Kind: TokenText, Text: rest[:open]})
		}
		tokens = append(tokens, Token{Kind: TokenFence, Language: lang, Text: body[:end]})
		rest = body[end+len(fence):]
	}

	if rest != "" {
		tokens = append(tokens, Token{Kind: TokenText, Text: rest})
	}
	return tokens
}

// languageTag returns the tag at the start of s: letters, digits and _+#-.
func languageTag(s string) string {
	n := 0
	for n < len(s) {
		c := s[n]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '+' || c == '#' || c == '-' {
			n++
			continue
		}
		break
	}
	return s[:n]
}
