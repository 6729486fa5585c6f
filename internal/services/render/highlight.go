package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter colours code blocks with chroma
type Highlighter struct {
	style     *chroma.Style
	formatter chroma.Formatter
	escape    bool
}

// NewHighlighter uses the named chroma formatter ("html", "terminal256", ...)
// and style, falling back to chroma's defaults for unknown names.
func NewHighlighter(formatterName, styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get(formatterName)
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return &Highlighter{
		style:     style,
		formatter: formatter,
		escape:    strings.HasPrefix(formatterName, "html"),
	}
}

// Highlight returns code formatted for language. When chroma fails the code
// comes back unhighlighted, escaped if the output is HTML.
func (h *Highlighter) Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return h.plain(code)
	}

	var buf strings.Builder
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return h.plain(code)
	}
	return buf.String()
}

func (h *Highlighter) plain(code string) string {
	if h.escape {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}
	return code
}
