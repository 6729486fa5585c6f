package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{"type":"bar","data":[{"x":1,"y":2}],"xAxisKey":"x","series":[{"dataKey":"y","color":"#fff","name":"Y"}]}`

func TestLex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Token
	}{
		{
			name: "plain",
			in:   "just text",
			want: []Token{{Kind: TokenText, Text: "just text"}},
		},
		{
			name: "prose around code",
			in:   "Here:\n```go\nfmt.Println(1)\n```\nDone",
			want: []Token{
				{Kind: TokenText, Text: "Here:\n"},
				{Kind: TokenFence, Language: "go", Text: "fmt.Println(1)\n"},
				{Kind: TokenText, Text: "\nDone"},
			},
		},
		{
			name: "no tag",
			in:   "```\nx\n```",
			want: []Token{{Kind: TokenFence, Text: "x\n"}},
		},
		{
			name: "tag with symbols",
			in:   "```c++\nint x;\n``````c#\nvar y;\n```",
			want: []Token{
				{Kind: TokenFence, Language: "c++", Text: "int x;\n"},
				{Kind: TokenFence, Language: "c#", Text: "var y;\n"},
			},
		},
		{
			name: "inline fence",
			in:   "run ```ls -la``` now",
			want: []Token{
				{Kind: TokenText, Text: "run "},
				{Kind: TokenFence, Language: "ls", Text: " -la"},
				{Kind: TokenText, Text: " now"},
			},
		},
		{
			name: "unclosed fence stays text",
			in:   "start\n```python\nprint(1)",
			want: []Token{{Kind: TokenText, Text: "start\n```python\nprint(1)"}},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lex(tt.in))
		})
	}
}

func TestRenderChart(t *testing.T) {
	doc := NewRenderer().Render("```chart\n" + chartBody + "\n```")

	require.Len(t, doc.Segments, 1)
	seg := doc.Segments[0]
	assert.Equal(t, KindChart, seg.Kind)
	require.NotNil(t, seg.Chart)
	assert.Equal(t, "bar", seg.Chart.Type)
	assert.Len(t, seg.Chart.Data, 1)
	assert.Equal(t, "x", seg.Chart.XAxisKey)
	assert.Equal(t, DefaultChartTitle, seg.Chart.Title)
	assert.False(t, seg.Degraded)
}

func TestRenderChartMalformed(t *testing.T) {
	bad := strings.TrimSuffix(chartBody, "}") + ",}"
	doc := NewRenderer().Render("Numbers:\n```chart\n" + bad + "\n```\nafter")

	require.Len(t, doc.Segments, 3)
	seg := doc.Segments[1]
	assert.Equal(t, KindError, seg.Kind)
	assert.True(t, seg.Degraded)
	assert.Contains(t, seg.Notice, bad)
	assert.Contains(t, seg.Source, bad)

	assert.Equal(t, KindText, doc.Segments[0].Kind)
	assert.Equal(t, KindText, doc.Segments[2].Kind)
	assert.Equal(t, map[Kind]int{KindError: 1}, doc.Degraded())
}

func TestParseChart(t *testing.T) {
	spec, err := ParseChart(`{"type":"pie","data":[],"xAxisKey":"m","series":[{"dataKey":"v"}],"title":"Marks"}`)
	require.NoError(t, err)
	assert.Equal(t, "bar", spec.Type)
	assert.Equal(t, "Marks", spec.Title)

	spec, err = ParseChart(`{"type":"line","xAxisKey":"m","series":[{"dataKey":"v"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "line", spec.Type)
	assert.NotNil(t, spec.Data)

	_, err = ParseChart(`{"type":"line","data":[]}`)
	assert.Error(t, err)

	_, err = ParseChart(`{"type":"line","xAxisKey":"m","series":[{"dataKey":"v"}]} {}`)
	assert.Error(t, err)
}

func TestRenderCode(t *testing.T) {
	doc := NewRenderer().Render("```Python\nprint('hi')\n```")

	require.Len(t, doc.Segments, 1)
	seg := doc.Segments[0]
	assert.Equal(t, KindCode, seg.Kind)
	assert.Equal(t, "python", seg.Language)
	assert.Equal(t, "PYTHON", seg.Label)
	assert.Contains(t, seg.HTML, "print")
	assert.Equal(t, []string{"python"}, doc.Languages())
}

func TestRenderCodeWithoutTag(t *testing.T) {
	doc := NewRenderer().Render("```\nplain words\n```")

	require.Len(t, doc.Segments, 1)
	assert.Equal(t, "text", doc.Segments[0].Language)
	assert.Equal(t, "CODE", doc.Segments[0].Label)
}

func TestRenderAlgorithm(t *testing.T) {
	doc := NewRenderer().Render("```ALGORITHM\n\n  Step 1: start <here>\n  Step 2: stop\n\n```")

	require.Len(t, doc.Segments, 1)
	seg := doc.Segments[0]
	assert.Equal(t, KindAlgorithm, seg.Kind)
	assert.Equal(t, AlgorithmBanner, seg.Banner)
	assert.Equal(t, "<pre>Step 1: start &lt;here&gt;\n  Step 2: stop</pre>", seg.HTML)
}

func TestRenderDiagram(t *testing.T) {
	r := NewRenderer()

	ok := r.Render("```mermaid\ngraph TD\n  A[Start] --> B{Valid?}\n  B -->|yes| C(Done)\n```")
	require.Len(t, ok.Segments, 1)
	assert.Equal(t, KindDiagram, ok.Segments[0].Kind)
	assert.Equal(t, "graph", ok.Segments[0].DiagramType)
	assert.Equal(t, DiagramBanner, ok.Segments[0].Banner)
	assert.False(t, ok.Segments[0].Degraded)

	workflow := r.Render("```workflow\nmindmap\n  root((Exams))\n```")
	require.Len(t, workflow.Segments, 1)
	assert.Equal(t, "mindmap", workflow.Segments[0].DiagramType)
	assert.False(t, workflow.Segments[0].Degraded)

	broken := r.Render("```mermaid\ngraph TD\n  A[Start --> B\n```\n**still here**")
	require.Len(t, broken.Segments, 2)
	assert.True(t, broken.Segments[0].Degraded)
	assert.Equal(t, DiagramNotice, broken.Segments[0].Notice)
	assert.Contains(t, broken.Segments[1].HTML, "still here")

	unknown := r.Render("```mermaid\nnot a diagram\n```")
	assert.True(t, unknown.Segments[0].Degraded)
}

func TestRenderPlainWorkflow(t *testing.T) {
	doc := NewRenderer().Render("```workflow\nStart -> Read input -> Process -> End\n```")
	require.Len(t, doc.Segments, 1)
	seg := doc.Segments[0]
	assert.Equal(t, KindDiagram, seg.Kind)
	assert.Equal(t, DiagramBanner, seg.Banner)
	assert.False(t, seg.Degraded)
	assert.Empty(t, seg.Notice)
	assert.Empty(t, seg.DiagramType)
	assert.Equal(t, "<pre>Start -&gt; Read input -&gt; Process -&gt; End</pre>", seg.HTML)
}

func TestCheckDiagram(t *testing.T) {
	kind, err := CheckDiagram("%% comment\nsequenceDiagram\n  Alice->>Bob: \"Hi (there\"\n")
	require.NoError(t, err)
	assert.Equal(t, "sequenceDiagram", kind)

	_, err = CheckDiagram("  \n ")
	assert.Error(t, err)

	_, err = CheckDiagram("graph LR\n A --> B)")
	assert.Error(t, err)
}

func TestRenderSkipsBlankText(t *testing.T) {
	doc := NewRenderer().Render("```go\nx\n```\n\n```go\ny\n```")
	require.Len(t, doc.Segments, 2)
	assert.Equal(t, KindCode, doc.Segments[0].Kind)
	assert.Equal(t, KindCode, doc.Segments[1].Kind)

	assert.Empty(t, NewRenderer().Render("").Segments)
}

func TestRenderTextMarkup(t *testing.T) {
	doc := NewRenderer().Render("**Key idea**\n• one\n• two")
	require.Len(t, doc.Segments, 1)
	assert.Contains(t, doc.Segments[0].HTML, `<strong class="accent">Key idea</strong>`)
	assert.Contains(t, doc.Segments[0].HTML, `<span class="bullet">•</span>`)
}

func TestRenderIdempotent(t *testing.T) {
	text := "Intro **bold**\n```chart\n" + chartBody + "\n```\n```mermaid\ngraph TD\nA-->B\n```\n```js\nlet a = 1\n```\ntail"
	r := NewRenderer()

	first := r.Render(text)
	second := r.Render(text)
	assert.Equal(t, first, second)
	assert.Len(t, first.Segments, 5)
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	text := "```algorithm\n  step\n```"
	orig := strings.Clone(text)
	NewRenderer().Render(text)
	assert.Equal(t, orig, text)
}

func TestRenderTerminalHighlighter(t *testing.T) {
	r := NewRenderer(
		WithHighlighter(NewHighlighter("noop", "monokai")),
		WithTextRenderer(strings.ToUpper),
	)
	doc := r.Render("hi\n```go\npackage main\n```")
	require.Len(t, doc.Segments, 2)
	assert.Equal(t, "HI\n", doc.Segments[0].HTML)
	assert.Equal(t, "package main", strings.TrimSpace(doc.Segments[1].HTML))
}
