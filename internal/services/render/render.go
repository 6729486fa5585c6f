package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/campusmate/tutor/pkg/markdown"
)

const (
	AlgorithmBanner   = "Algorithm"
	DiagramBanner     = "Workflow / Mind Map"
	DefaultChartTitle = "Data Visualization"

	DiagramNotice = "This diagram is too complex to display. Ask me in chat to explain it step by step."
	chartNotice   = "Error loading visualization. Raw data: "
)

// Renderer turns bot message text into a Document. Rendering is a pure
// function of the input text.
type Renderer struct {
	highlighter *Highlighter
	textHTML    func(string) string
}

type Option func(*Renderer)

// WithHighlighter replaces the default HTML highlighter.
func WithHighlighter(h *Highlighter) Option {
	return func(r *Renderer) { r.highlighter = h }
}

// WithTextRenderer replaces the markdown renderer used for prose segments.
func WithTextRenderer(fn func(string) string) Option {
	return func(r *Renderer) { r.textHTML = fn }
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		highlighter: NewHighlighter("html", "monokai"),
		textHTML:    markdown.ToChatHTML,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render splits text into segments and renders each one. A failing segment
// is replaced by a notice and never affects its neighbours.
func (r *Renderer) Render(text string) Document {
	tokens := Lex(text)
	doc := Document{Segments: make([]Segment, 0, len(tokens))}

	for _, tok := range tokens {
		if tok.Kind == TokenText {
			if strings.TrimSpace(tok.Text) == "" {
				continue
			}
			doc.Segments = append(doc.Segments, Segment{
				Kind:   KindText,
				Source: tok.Text,
				HTML:   r.textHTML(tok.Text),
			})
			continue
		}
		doc.Segments = append(doc.Segments, r.fenced(tok))
	}
	return doc
}

func (r *Renderer) fenced(tok Token) Segment {
	lang := strings.ToLower(tok.Language)

	switch lang {
	case "mermaid":
		return renderDiagram(tok.Text)
	case "workflow":
		return renderWorkflow(tok.Text)
	case "algorithm":
		body := strings.TrimSpace(tok.Text)
		return Segment{
			Kind:   KindAlgorithm,
			Source: tok.Text,
			Banner: AlgorithmBanner,
			HTML:   "<pre>" + html.EscapeString(body) + "</pre>",
		}
	case "chart":
		return renderChart(tok.Text)
	}

	label := "CODE"
	if lang == "" {
		lang = "text"
	} else {
		label = strings.ToUpper(tok.Language)
	}
	body := strings.Trim(tok.Text, "\n")
	return Segment{
		Kind:     KindCode,
		Source:   tok.Text,
		Language: lang,
		Label:    label,
		HTML:     r.highlighter.Highlight(body, lang),
	}
}

func renderChart(body string) Segment {
	spec, err := ParseChart(body)
	if err != nil {
		return Segment{
			Kind:     KindError,
			Source:   body,
			Degraded: true,
			Notice:   chartNotice + body,
		}
	}
	return Segment{
		Kind:   KindChart,
		Source: body,
		Banner: spec.Title,
		Chart:  spec,
	}
}

var errChartShape = errors.New("chart needs xAxisKey and at least one series")

// ParseChart decodes a chart fence body. Any type other than "line" is
// drawn as a bar chart.
func ParseChart(body string) (*ChartSpec, error) {
	var spec ChartSpec
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(body))))
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode chart: trailing data after object")
	}
	if spec.XAxisKey == "" || len(spec.Series) == 0 {
		return nil, errChartShape
	}
	for _, s := range spec.Series {
		if s.DataKey == "" {
			return nil, errChartShape
		}
	}
	if spec.Type != "line" {
		spec.Type = "bar"
	}
	if spec.Title == "" {
		spec.Title = DefaultChartTitle
	}
	if spec.Data == nil {
		spec.Data = []map[string]interface{}{}
	}
	return &spec, nil
}
