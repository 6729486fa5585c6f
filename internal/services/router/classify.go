package router

import (
	"regexp"
	"sort"
	"strings"

	"github.com/campusmate/tutor/internal/models"
)

// Rule routes messages matching Pattern to Model. Rules are tried by
// descending Priority and the first match wins.
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	Model     string
	ModelName string
	Priority  int
}

var defaultRules = []Rule{
	{
		Name:      "code",
		Pattern:   regexp.MustCompile(`(?i)\b(code|coding|function|class|debug|error|bug|fix|algorithm|compile|syntax|javascript|python|java|c\+\+|typescript|html|css|react|node|sql|api|loop|array|variable|method|import|export|const|let|var|async|await|promise|callback|component|hook|useState|useEffect|npm|yarn|git|github|programming|developer|script|snippet)\b`),
		Model:     ModelCoder,
		ModelName: "Qwen3 Coder",
		Priority:  10,
	},
	{
		Name:      "image",
		Pattern:   regexp.MustCompile(`(?i)\b(draw|generate|create|show me|visualize|picture|image|photo|diagram|sketch|illustration|render|design|art|artwork|portrait|landscape|anime|cartoon|realistic|fantasy|sci-fi|generate an image|create an image|make an image|draw me)\b`),
		Model:     ImageGeneration,
		ModelName: "Image Generator",
		Priority:  9,
	},
	{
		Name:      "math",
		Pattern:   regexp.MustCompile(`(?i)\b(calculate|solve|equation|formula|math|algebra|calculus|statistics|probability|derivative|integral|proof|theorem|number|percentage|fraction|decimal|geometry|trigonometry|logarithm|exponent|matrix|vector|graph|plot)\b`),
		Model:     ModelReasoning,
		ModelName: "DeepSeek R1 Chimera",
		Priority:  8,
	},
	{
		Name:      "vision",
		Pattern:   regexp.MustCompile(`(?i)\b(analyze|describe|what is this|what's this|explain this|look at|identify|recognize|see|image shows|picture shows|in this image|in this photo|uploaded image|attached image)\b`),
		Model:     ModelVision,
		ModelName: "LLaMA 3.2 Vision 11B",
		Priority:  7,
	},
	{
		Name:      "academic",
		Pattern:   regexp.MustCompile(`(?i)\b(explain|syllabus|unit|exam|study|notes|concept|theory|definition|summary|chapter|lesson|course|subject|topic|learn|understand|meaning|what is|how does|why does|describe|elaborate|detail)\b`),
		Model:     ModelPrimary,
		ModelName: "LLaMA 3.3 70B",
		Priority:  5,
	},
}

// Classifier maps a message to a model. It holds no mutable state.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over the built-in rule table.
func NewClassifier() *Classifier {
	return NewClassifierWithRules(defaultRules)
}

// NewClassifierWithRules orders rules by priority, keeping table order for ties.
func NewClassifierWithRules(rules []Rule) *Classifier {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Classifier{rules: sorted}
}

// Rules returns the evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify picks a model for message. An attached image always routes to
// the vision model.
func (c *Classifier) Classify(message string, hasAttachedImage bool) models.DetectionResult {
	if hasAttachedImage {
		return models.DetectionResult{
			Model:      ModelVision,
			ModelName:  DisplayName(ModelVision),
			IsVision:   true,
			Confidence: models.ConfidenceHigh,
		}
	}

	lower := strings.ToLower(message)
	for _, rule := range c.rules {
		if !rule.Pattern.MatchString(lower) {
			continue
		}
		if rule.Model == ImageGeneration {
			return models.DetectionResult{
				Model:             ModelPrimary,
				ModelName:         rule.ModelName,
				IsImageGeneration: true,
				Confidence:        models.ConfidenceHigh,
			}
		}
		return models.DetectionResult{
			Model:      rule.Model,
			ModelName:  rule.ModelName,
			IsVision:   rule.Model == ModelVision,
			Confidence: models.ConfidenceHigh,
		}
	}

	return models.DetectionResult{
		Model:      ModelPrimary,
		ModelName:  DisplayName(ModelPrimary),
		Confidence: models.ConfidenceLow,
	}
}

// IsCoder reports whether id names a code-tuned model.
func IsCoder(id string) bool {
	id = strings.ToLower(id)
	return strings.Contains(id, "coder") || strings.Contains(id, "deepseek-chat") || strings.Contains(id, "devstral")
}

// IsReasoning reports whether id names a chain-of-thought model.
func IsReasoning(id string) bool {
	return strings.Contains(strings.ToLower(id), "r1")
}
