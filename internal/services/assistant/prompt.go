package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/knowledge"
	"github.com/campusmate/tutor/internal/services/router"
)

// Length is the reply length asked of the model.
type Length int

const (
	LengthModerate Length = iota
	LengthShort
	LengthDetailed
)

func (l Length) String() string {
	switch l {
	case LengthShort:
		return "short"
	case LengthDetailed:
		return "detailed"
	}
	return "moderate"
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|vanakkam|thanks|ok|bye|nandri|super|good|nice)\b`)
	detailPattern   = regexp.MustCompile(`(?i)explain|describe|how|why|what is|elaborate|detail|difference|compare|steps|process|algorithm`)
	codePattern     = regexp.MustCompile(`(?i)code|program|implement|write|function|script|syntax`)
)

// Policy is the length decision for one message.
type Policy struct {
	Length    Length
	Greeting  bool
	MaxTokens int
	Guidance  string
}

// LengthPolicy chooses a reply length from cheap signals in the message.
// Greetings and messages under five words get a short reply; explanation
// and code requests a detailed one.
func LengthPolicy(message string) Policy {
	trimmed := strings.TrimSpace(message)
	greeting := greetingPattern.MatchString(trimmed)
	words := len(strings.Fields(trimmed))

	p := Policy{Greeting: greeting}
	switch {
	case greeting || words < 5:
		p.Length = LengthShort
		p.Guidance = "RESPONSE LENGTH: Keep it SHORT (1-3 sentences). Be friendly and concise with Tamil flavor."
	case detailPattern.MatchString(message) || codePattern.MatchString(message):
		p.Length = LengthDetailed
		p.Guidance = "RESPONSE LENGTH: Be DETAILED. Use bullet points, examples, and structured format."
	default:
		p.Length = LengthModerate
		p.Guidance = "RESPONSE LENGTH: MODERATE (5-8 sentences). Clear and helpful."
	}

	// short messages that still ask for an explanation keep the larger budget
	switch {
	case greeting:
		p.MaxTokens = 256
	case detailPattern.MatchString(message) || codePattern.MatchString(message):
		p.MaxTokens = 4096
	default:
		p.MaxTokens = 2048
	}
	return p
}

// Temperature is lower for code and reasoning models.
func Temperature(model string) float64 {
	switch {
	case router.IsCoder(model):
		return 0.3
	case router.IsReasoning(model):
		return 0.2
	}
	return 0.7
}

const persona = `You are Murukku AI (முருக்கு AI) 🍘, an elite AI Academic Companion for Anna University students.

PERSONALITY & LANGUAGE:
- You're a friendly "அண்ணா" (Anna/Big Brother) who naturally mixes Tamil script (தமிழ்) with Tanglish
- Start with Tamil: வணக்கம் (Vanakkam), என்ன மாச்சி (Enna Machi), சூப்பர் (Super)
- Use encouragements: கலக்கல் (Kalakkal), செம்ம (Semma), அருமை (Arumai)
- End academic answers with: புரியுதா? (Puriyutha? - Understood?)`

const academicStyle = `ACADEMIC STYLE:
- **Bold** key terminology and definitions
- Use bullet points for clarity
- Add "📝 Exam Tip:" for important points
- Reference standard textbooks when relevant
- Put flowcharts in ` + "```mermaid" + ` blocks, step-by-step procedures in ` + "```algorithm" + ` blocks and small datasets in ` + "```chart" + ` blocks

TAMIL PHRASES TO USE:
- வணக்கம் (Vanakkam) - Hello | நன்றி (Nandri) - Thanks
- சூப்பர் (Super) - Great | கலக்கல் (Kalakkal) - Awesome
- செம்ம (Semma) - Fantastic | புரியுதா (Puriyutha) - Understood?
- சந்தேகம் கேளு (Sandhegam Kelu) - Ask doubts
- படிச்சா ஜெயி! (Padichaa Jeyi) - Study and win!`

const codingMode = `CODING MODE ACTIVATED:
- Provide clean, well-commented, production-ready code
- Use proper indentation and follow best practices
- Explain the logic step-by-step
- Include example usage where helpful
- Mention time/space complexity for algorithms`

const reasoningMode = `REASONING MODE ACTIVATED:
- Break down complex problems step by step
- Show your mathematical/logical work clearly
- Double-check calculations before final answers
- Use clear notation and formatting`

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// SystemPrompt builds the persona prompt for the direct path. The
// department line is only added when the syllabus knows the semester.
func SystemPrompt(profile models.UserContext, model string, policy Policy, syllabus knowledge.Service) string {
	var b strings.Builder
	b.WriteString(persona)

	b.WriteString("\n\nUSER PROFILE:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(profile.Name, "Machi"))
	fmt.Fprintf(&b, "- Style: %s\n", orDefault(string(profile.LearningStyle), "Visual"))
	fmt.Fprintf(&b, "- Goal: %s", orDefault(string(profile.CareerGoal), "Placement"))

	if profile.Department != "" && profile.Semester != "" && syllabus != nil {
		if sem, ok := syllabus.Semester(profile.Department, profile.Semester); ok {
			fmt.Fprintf(&b, "\nDEPT: %s, Sem: %s", profile.Department, profile.Semester)
			if sem.Focus != "" {
				fmt.Fprintf(&b, "\nFOCUS: %s", sem.Focus)
			}
			if len(sem.Subjects) > 0 {
				fmt.Fprintf(&b, "\nSUBJECTS: %s", strings.Join(sem.Subjects, ", "))
			}
		}
	}

	b.WriteString("\n\n")
	b.WriteString(policy.Guidance)
	b.WriteString("\n\n")
	b.WriteString(academicStyle)

	if router.IsCoder(model) {
		b.WriteString("\n\n")
		b.WriteString(codingMode)
	}
	if router.IsReasoning(model) {
		b.WriteString("\n\n")
		b.WriteString(reasoningMode)
	}
	return b.String()
}
