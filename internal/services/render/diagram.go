package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// Diagram headers the browser-side mermaid runtime can draw.
var diagramTypes = []string{
	"flowchart",
	"graph",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram-v2",
	"stateDiagram",
	"erDiagram",
	"gantt",
	"pie",
	"mindmap",
	"journey",
	"timeline",
	"gitGraph",
	"quadrantChart",
}

const maxDiagramLines = 200

var errEmptyDiagram = errors.New("empty diagram")

func renderDiagram(body string) Segment {
	kind, err := CheckDiagram(body)
	if err != nil {
		return Segment{
			Kind:     KindDiagram,
			Source:   body,
			Banner:   DiagramBanner,
			Degraded: true,
			Notice:   DiagramNotice,
		}
	}
	return Segment{
		Kind:        KindDiagram,
		Source:      body,
		Banner:      DiagramBanner,
		DiagramType: kind,
	}
}

// renderWorkflow shows a workflow or mind map as preformatted text under the
// diagram banner. Bodies that happen to be valid mermaid also carry their
// diagram type so clients may draw them.
func renderWorkflow(body string) Segment {
	seg := Segment{
		Kind:   KindDiagram,
		Source: body,
		Banner: DiagramBanner,
		HTML:   "<pre>" + html.EscapeString(strings.TrimSpace(body)) + "</pre>",
	}
	if kind, err := CheckDiagram(body); err == nil {
		seg.DiagramType = kind
	}
	return seg
}

// CheckDiagram reports the diagram type of a mermaid source, or why it
// cannot be drawn.
func CheckDiagram(body string) (string, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", errEmptyDiagram
	}
	if len(lines) > maxDiagramLines {
		return "", fmt.Errorf("diagram has %d lines", len(lines))
	}

	var header string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		header = line
		break
	}
	if header == "" {
		return "", errEmptyDiagram
	}

	kind := ""
	for _, t := range diagramTypes {
		if header == t || strings.HasPrefix(header, t+" ") || strings.HasPrefix(header, t+":") {
			kind = t
			break
		}
	}
	if kind == "" {
		return "", fmt.Errorf("unknown diagram header %q", header)
	}

	if err := checkBrackets(body); err != nil {
		return "", err
	}
	return kind, nil
}

func checkBrackets(body string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	inQuote := false
	for _, r := range body {
		switch {
		case r == '\n':
			inQuote = false
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '(' || r == '[' || r == '{':
			stack = append(stack, r)
		case r == ')' || r == ']' || r == '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("unbalanced %q", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}
