package markdown

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/russross/blackfriday/v2"
)

var (
	paragraphTag   = regexp.MustCompile(`<p>(.*?)</p>`)
	preCodeTag     = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	anyTag         = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagName        = regexp.MustCompile(`</?([a-zA-Z]+)`)
	extraNewlines  = regexp.MustCompile(`\n{3,}`)
	fencedBlock    = regexp.MustCompile("(?s)```.*?```")
	boldMarker     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicMarker   = regexp.MustCompile(`\*(.*?)\*`)
	linkMarker     = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	bulletMarker   = regexp.MustCompile(`[•\-]`)
	chatExtensions = blackfriday.CommonExtensions | blackfriday.HardLineBreak
)

var telegramTags = map[string]bool{"b": true, "i": true, "u": true, "s": true, "code": true, "pre": true, "a": true, "br": true}

// ToChatHTML renders a prose fragment of a bot reply for the web chat.
// Raw HTML in the input is dropped.
func ToChatHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.HrefTargetBlank | blackfriday.NoopenerLinks | blackfriday.NoreferrerLinks,
	})
	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(chatExtensions),
		blackfriday.WithRenderer(renderer),
	))

	html = strings.ReplaceAll(html, "<strong>", `<strong class="accent">`)
	html = strings.ReplaceAll(html, "•", `<span class="bullet">•</span>`)

	return strings.TrimSpace(html)
}

// ToTelegramHTML converts markdown to Telegram-compatible HTML
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return cleanHTMLForTelegram(html)
}

// cleanHTMLForTelegram cleans HTML to be compatible with Telegram
func cleanHTMLForTelegram(html string) string {
	html = paragraphTag.ReplaceAllString(html, "$1\n")

	html = strings.ReplaceAll(html, "<strong>", "<b>")
	html = strings.ReplaceAll(html, "</strong>", "</b>")
	html = strings.ReplaceAll(html, "<em>", "<i>")
	html = strings.ReplaceAll(html, "</em>", "</i>")

	html = preCodeTag.ReplaceAllString(html, "<pre>$1</pre>")

	// Telegram has no list markup
	html = strings.ReplaceAll(html, "<ul>", "")
	html = strings.ReplaceAll(html, "</ul>", "")
	html = strings.ReplaceAll(html, "<ol>", "")
	html = strings.ReplaceAll(html, "</ol>", "")
	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")

	html = anyTag.ReplaceAllStringFunc(html, func(match string) string {
		if m := tagName.FindStringSubmatch(match); len(m) > 1 && telegramTags[m[1]] {
			return match
		}
		return ""
	})

	html = extraNewlines.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

// PlainText renders markdown and returns only its visible text.
func PlainText(markdown string) (string, error) {
	html := blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, pre").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n"), nil
}

// SpeechText flattens a bot reply into something a voice can read aloud:
// fenced blocks are replaced by a short notice and markup is dropped.
func SpeechText(markdown, codeNotice string) string {
	text := fencedBlock.ReplaceAllString(markdown, codeNotice)
	text = boldMarker.ReplaceAllString(text, "$1")
	text = italicMarker.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "#", "")
	text = linkMarker.ReplaceAllString(text, "$1")
	text = bulletMarker.ReplaceAllString(text, ",")
	return strings.TrimSpace(text)
}
