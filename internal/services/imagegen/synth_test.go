package imagegen

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeCircuitOverridesModel(t *testing.T) {
	s := NewSynthesizer("", 0, 0)
	res := s.Synthesize("draw a circuit diagram of a full adder")

	assert.Equal(t, ModelFlux, res.Model)
	assert.Equal(t, "FLUX", res.ModelName)
	assert.Equal(t, "circuit full adder", res.Topic)

	prompt, err := DecodePrompt(res.URL)
	require.NoError(t, err)
	assert.Equal(t, res.Prompt, prompt)
	assert.Contains(t, prompt, "full adder")
	assert.Contains(t, prompt, "professional electrical engineering schematic")

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "image.pollinations.ai", u.Host)
	assert.Equal(t, "1024", u.Query().Get("width"))
	assert.Equal(t, "1024", u.Query().Get("height"))
	assert.Equal(t, "flux", u.Query().Get("model"))
	assert.Equal(t, "true", u.Query().Get("nologo"))
}

func TestSynthesizeModelAndStyle(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		model     string
		modelName string
		style     string
		topic     string
	}{
		{
			name:      "portrait",
			message:   "generate a realistic portrait of an old man",
			model:     ModelRealistic,
			modelName: "Realistic Vision",
			style:     "hyper-realistic photography",
			topic:     "portrait old man",
		},
		{
			name:      "anime",
			message:   "draw an anime girl in ghibli style",
			model:     ModelFlux,
			modelName: "FLUX",
			style:     "high quality anime illustration",
			topic:     "anime girl ghibli",
		},
		{
			name:      "explicit sdxl keeps model, fantasy style",
			message:   "sdxl image of a dragon with fantasy wings",
			model:     ModelSDXL,
			modelName: "Stable Diffusion XL",
			style:     "dreamlike surreal digital art",
			topic:     "dragon with fantasy wings",
		},
		{
			name:      "flowchart overrides explicit model",
			message:   "create a flowchart for login process using stable diffusion",
			model:     ModelFlux,
			modelName: "FLUX",
			style:     "clean professional software architecture diagram",
			topic:     "flowchart for login process using",
		},
		{
			name:      "juggernaut default style",
			message:   "hyper detailed castle",
			model:     ModelJuggernaut,
			modelName: "Juggernaut XL",
			style:     "hyper-realistic digital art",
			topic:     "hyper detailed castle",
		},
		{
			name:      "dreamshaper",
			message:   "an abstract creative poster",
			model:     ModelDreamshaper,
			modelName: "DreamShaper",
			style:     "hyper-realistic digital art",
			topic:     "abstract creative poster",
		},
	}

	s := NewSynthesizer(DefaultBaseURL, 1024, 1024)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Synthesize(tt.message)
			assert.Equal(t, tt.model, res.Model)
			assert.Equal(t, tt.modelName, res.ModelName)
			assert.Equal(t, tt.topic, res.Topic)
			assert.True(t, strings.HasPrefix(res.Prompt, tt.topic+", "+tt.style), res.Prompt)
		})
	}
}

func TestTopicFallback(t *testing.T) {
	assert.Equal(t, FallbackTopic, Topic("draw"))
	assert.Equal(t, FallbackTopic, Topic("show a picture"))
	assert.Equal(t, FallbackTopic, Topic("  "))
	assert.Equal(t, FallbackTopic, Topic("draw a x"))
	assert.Equal(t, "ox", Topic("draw an ox"))
}

func TestSynthesizeCustomHost(t *testing.T) {
	s := NewSynthesizer("http://images.local/prompt/", 512, 256)
	res := s.Synthesize("draw a tree")

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "images.local", u.Host)
	assert.Equal(t, "512", u.Query().Get("width"))
	assert.Equal(t, "256", u.Query().Get("height"))
}
