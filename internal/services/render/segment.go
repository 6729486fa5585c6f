package render

// Kind tags a rendered segment
type Kind string

const (
	KindText      Kind = "text"
	KindCode      Kind = "code"
	KindAlgorithm Kind = "algorithm"
	KindDiagram   Kind = "diagram"
	KindChart     Kind = "chart"
	KindError     Kind = "error"
)

// Segment is one render-ready piece of a message. Which fields are set
// depends on Kind.
type Segment struct {
	Kind Kind `json:"kind"`

	// Source is the untouched input of the segment.
	Source string `json:"source"`
	HTML   string `json:"html,omitempty"`

	// Language is the lowercased fence tag; Label is its display form.
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`

	Banner      string     `json:"banner,omitempty"`
	DiagramType string     `json:"diagramType,omitempty"`
	Chart       *ChartSpec `json:"chart,omitempty"`

	// Degraded marks a segment whose content could not be rendered and was
	// replaced by Notice.
	Degraded bool   `json:"degraded,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

// ChartSpec is the JSON body of a chart fence
type ChartSpec struct {
	Type     string                   `json:"type"`
	Data     []map[string]interface{} `json:"data"`
	XAxisKey string                   `json:"xAxisKey"`
	Series   []ChartSeries            `json:"series"`
	Title    string                   `json:"title,omitempty"`
}

type ChartSeries struct {
	DataKey string `json:"dataKey"`
	Color   string `json:"color,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Document is the rendered form of one message
type Document struct {
	Segments []Segment `json:"segments"`
}

// Degraded counts segments replaced by a placeholder or error note, by kind.
func (d Document) Degraded() map[Kind]int {
	out := make(map[Kind]int)
	for _, s := range d.Segments {
		if s.Degraded {
			out[s.Kind]++
		}
	}
	return out
}

// Languages lists the code languages in the document, first occurrence first.
func (d Document) Languages() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range d.Segments {
		if s.Kind != KindCode || seen[s.Language] {
			continue
		}
		seen[s.Language] = true
		out = append(out, s.Language)
	}
	return out
}
