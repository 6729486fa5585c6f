package games

import (
	"regexp"
	"strings"

	"github.com/campusmate/tutor/internal/models"
)

// Reason records which check produced a detection
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonNamed   Reason = "named"
	ReasonStress  Reason = "stress"
	ReasonBoredom Reason = "boredom"
	ReasonBreak   Reason = "break"
	ReasonGeneral Reason = "general"
)

// Detection is the outcome of Detect. Single is set when the user named one
// game; Games then holds exactly that game.
type Detection struct {
	IsGameRequest bool
	Reason        Reason
	Single        bool
	Games         []models.GameSuggestion
}

// Game returns the named game of a single-game detection.
func (d Detection) Game() (models.GameSuggestion, bool) {
	if !d.Single || len(d.Games) != 1 {
		return models.GameSuggestion{}, false
	}
	return d.Games[0], true
}

type keyword struct {
	word string
	game string
}

// Evaluated in order; "zen draw" must precede "draw".
var keywords = []keyword{
	{"snake", "snake"},
	{"tetris", "tetris"},
	{"2048", "tile-merge"},
	{"tile merge", "tile-merge"},
	{"clicker", "clicker"},
	{"breathing", "breath"},
	{"breath", "breath"},
	{"bubble", "bubble"},
	{"zen draw", "zen-draw"},
	{"draw", "zen-draw"},
	{"particle", "particles"},
	{"fidget", "fidget"},
	{"spinner", "fidget"},
	{"balloon", "balloon"},
	{"quote", "quote"},
	{"memory", "memory"},
	{"whack", "whack"},
	{"mole", "whack"},
	{"color", "color-spot"},
	{"reaction", "reaction"},
}

var actionVerbs = []string{"play", "game", "open"}

var (
	stressPattern  = regexp.MustCompile(`stress|anxious|anxiety|worried|tension|nervous|overwhelm|panic|pressure|deadline|exam stress|freaking out|can't sleep`)
	boredomPattern = regexp.MustCompile(`bored|boring|nothing to do|waste time|kill time|pass time|entertainment|fun game|addictive`)
	breakPattern   = regexp.MustCompile(`break|relax|chill|need a minute|cool down|take a breather|de-stress|unwind`)
	generalPattern = regexp.MustCompile(`play.*game|game.*play|show.*game|want.*game|let's play|wanna play|play something`)
)

// Detect decides whether message asks for a mini-game. Checks run in a fixed
// order and the first hit wins.
func Detect(message string) Detection {
	lower := strings.ToLower(message)

	if hasAction(lower) {
		for _, k := range keywords {
			if !strings.Contains(lower, k.word) {
				continue
			}
			if g, err := Get(k.game); err == nil {
				return Detection{IsGameRequest: true, Reason: ReasonNamed, Single: true, Games: []models.GameSuggestion{g}}
			}
		}
	}

	switch {
	case stressPattern.MatchString(lower):
		return Detection{IsGameRequest: true, Reason: ReasonStress, Games: ByCategory(models.CategoryStressRelief)}
	case boredomPattern.MatchString(lower):
		return Detection{IsGameRequest: true, Reason: ReasonBoredom, Games: ByCategory(models.CategoryAddictive, models.CategoryFun)}
	case breakPattern.MatchString(lower):
		return Detection{IsGameRequest: true, Reason: ReasonBreak, Games: Catalog()[:quickPicks]}
	case generalPattern.MatchString(lower):
		return Detection{IsGameRequest: true, Reason: ReasonGeneral, Games: Catalog()}
	}

	return Detection{}
}

func hasAction(lower string) bool {
	for _, v := range actionVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// Meta builds the message payload for a detection.
func (d Detection) Meta() models.GameMeta {
	if g, ok := d.Game(); ok {
		return models.GameMeta{SuggestedGame: g.Game, AutoOpen: true}
	}
	ids := make([]string, 0, len(d.Games))
	for _, g := range d.Games {
		ids = append(ids, g.Game)
	}
	return models.GameMeta{SuggestedGames: ids}
}

// BulletList renders the suggestions as markdown bullets.
func BulletList(games []models.GameSuggestion) string {
	lines := make([]string, 0, len(games))
	for _, g := range games {
		lines = append(lines, "• **"+g.Name+"** - "+g.Description)
	}
	return strings.Join(lines, "\n")
}
