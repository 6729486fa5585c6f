package imagegen

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Backend model identifiers understood by the image host
const (
	ModelFlux        = "flux"
	ModelSDXL        = "sdxl"
	ModelRealistic   = "realistic-vision-v5"
	ModelJuggernaut  = "juggernaut-xl"
	ModelDreamshaper = "dreamshaper-8"
)

const (
	DefaultBaseURL = "https://image.pollinations.ai/prompt"
	FallbackTopic  = "advanced future technology"
)

// Result is a synthesized image request
type Result struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	Topic     string `json:"topic"`
	Model     string `json:"model"`
	ModelName string `json:"modelName"`
}

type modelRule struct {
	pattern *regexp.Regexp
	model   string
	name    string
}

var modelRules = []modelRule{
	{regexp.MustCompile(`sdxl|stable diffusion`), ModelSDXL, "Stable Diffusion XL"},
	{regexp.MustCompile(`realistic|photo|portrait|person|face|human`), ModelRealistic, "Realistic Vision"},
	{regexp.MustCompile(`juggernaut|detailed|hyper`), ModelJuggernaut, "Juggernaut XL"},
	{regexp.MustCompile(`dream|fantasy|surreal|artistic|abstract|creative`), ModelDreamshaper, "DreamShaper"},
	{regexp.MustCompile(`anime|manga|ghibli|waifu|cartoon`), ModelFlux, "FLUX"},
}

type styleRule struct {
	pattern *regexp.Regexp
	style   string
	// forceFlux sends line-art subjects to the general-purpose backend
	forceFlux bool
}

var styleRules = []styleRule{
	{
		pattern:   regexp.MustCompile(`circuit|schematic|wiring|pcb|logic|gate`),
		style:     "professional electrical engineering schematic, clean black lines on white background, IEEE standard symbols, high resolution, labeled components, crisp vector style",
		forceFlux: true,
	},
	{
		pattern:   regexp.MustCompile(`flowchart|uml|process|algorithm|architecture`),
		style:     "clean professional software architecture diagram, white background, flat design, crisp text, logical flow, vector illustration style",
		forceFlux: true,
	},
	{
		pattern: regexp.MustCompile(`anime|manga|ghibli|waifu`),
		style:   "high quality anime illustration, studio ghibli style, vibrant colors, detailed scenery, 4k, masterpiece",
	},
	{
		pattern: regexp.MustCompile(`realistic|photo|portrait|landscape`),
		style:   "hyper-realistic photography, 8k, professional DSLR, perfect lighting, award winning, photorealistic",
	},
	{
		pattern: regexp.MustCompile(`dream|fantasy|surreal|artistic`),
		style:   "dreamlike surreal digital art, vibrant colors, imaginative, artistic masterpiece, ethereal",
	},
}

const defaultStyle = "hyper-realistic digital art, 8k, cinematic lighting, masterpiece, trending on artstation, unreal engine 5 render, highly detailed"

var stopwords = regexp.MustCompile(`(?i)\b(generate|create|draw|make|show|visualize|image|picture|photo|diagram|of|a|an|the|in|style|padam|varai|kattu|pic|show me|sdxl|stable diffusion|realistic|juggernaut|dreamshaper|flux)\b`)

var spaces = regexp.MustCompile(`\s+`)

// Synthesizer turns a chat message into an image host URL. It makes no
// network calls.
type Synthesizer struct {
	baseURL string
	width   int
	height  int
}

func NewSynthesizer(baseURL string, width, height int) *Synthesizer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	return &Synthesizer{baseURL: strings.TrimRight(baseURL, "/"), width: width, height: height}
}

// Synthesize picks a backend model and a style, strips filler words from
// message and builds the request URL.
func (s *Synthesizer) Synthesize(message string) Result {
	lower := strings.ToLower(message)

	model, modelName := ModelFlux, "FLUX"
	for _, r := range modelRules {
		if r.pattern.MatchString(lower) {
			model, modelName = r.model, r.name
			break
		}
	}

	style := defaultStyle
	for _, r := range styleRules {
		if r.pattern.MatchString(lower) {
			style = r.style
			if r.forceFlux {
				model, modelName = ModelFlux, "FLUX"
			}
			break
		}
	}

	topic := Topic(message)
	prompt := topic + ", " + style

	return Result{
		URL:       s.url(prompt, model),
		Prompt:    prompt,
		Topic:     topic,
		Model:     model,
		ModelName: modelName,
	}
}

func (s *Synthesizer) url(prompt, model string) string {
	q := url.Values{}
	q.Set("width", fmt.Sprint(s.width))
	q.Set("height", fmt.Sprint(s.height))
	q.Set("model", model)
	q.Set("nologo", "true")
	return s.baseURL + "/" + url.PathEscape(prompt) + "?" + q.Encode()
}

// Topic strips request verbs and filler from message, falling back to a
// fixed subject when too little is left.
func Topic(message string) string {
	topic := stopwords.ReplaceAllString(message, "")
	topic = strings.TrimSpace(spaces.ReplaceAllString(topic, " "))
	if len([]rune(topic)) < 2 {
		return FallbackTopic
	}
	return topic
}

// DecodePrompt extracts the prompt from a URL built by Synthesize.
func DecodePrompt(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	idx := strings.LastIndex(u.EscapedPath(), "/")
	prompt, err := url.PathUnescape(u.EscapedPath()[idx+1:])
	if err != nil {
		return "", fmt.Errorf("decode image prompt: %w", err)
	}
	return prompt, nil
}
