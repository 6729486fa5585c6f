// Package speech prepares bot replies for a client side text-to-speech engine.
package speech

import (
	"regexp"
	"strings"

	"github.com/campusmate/tutor/internal/config"
	"github.com/campusmate/tutor/pkg/markdown"
)

const CodeNotice = "Code block omitted."

// Options are the voice settings a client applies to an utterance.
type Options struct {
	Language string  `json:"language"`
	Voice    string  `json:"voice,omitempty"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
}

// Prepared is a reply ready to be spoken.
type Prepared struct {
	Text    string  `json:"text"`
	Options Options `json:"options"`
}

var spaces = regexp.MustCompile(`[ \t]+`)

type Service struct {
	defaults Options
}

func NewService(cfg *config.SpeechConfig) *Service {
	return &Service{defaults: normalize(Options{
		Language: cfg.Language,
		Voice:    cfg.Voice,
		Rate:     cfg.Rate,
		Pitch:    cfg.Pitch,
	}, Options{Language: "en-US", Rate: 1, Pitch: 1})}
}

// Defaults returns the configured voice options.
func (s *Service) Defaults() Options { return s.defaults }

// Prepare strips markup from text and merges overrides into the defaults.
// Out of range rate and pitch values are clamped.
func (s *Service) Prepare(text string, overrides Options) Prepared {
	spoken := markdown.SpeechText(text, CodeNotice)
	spoken = spaces.ReplaceAllString(spoken, " ")

	return Prepared{
		Text:    strings.TrimSpace(spoken),
		Options: normalize(overrides, s.defaults),
	}
}

func normalize(o, fallback Options) Options {
	if o.Language == "" {
		o.Language = fallback.Language
	}
	if o.Voice == "" {
		o.Voice = fallback.Voice
	}
	if o.Rate == 0 {
		o.Rate = fallback.Rate
	}
	if o.Pitch == 0 {
		o.Pitch = fallback.Pitch
	}
	o.Rate = clamp(o.Rate, 0.1, 10)
	o.Pitch = clamp(o.Pitch, 0, 2)
	return o
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
