package games

import (
	"errors"

	"github.com/campusmate/tutor/internal/models"
)

var ErrUnknownGame = errors.New("unknown game")

var catalog = []models.GameSuggestion{
	{Game: "breath", Name: "🧘 Breathing Exercise", Description: "Guided breathing to calm your mind", Category: models.CategoryStressRelief},
	{Game: "bubble", Name: "🫧 Bubble Pop", Description: "Pop bubbles - oddly satisfying!", Category: models.CategoryStressRelief},
	{Game: "zen-draw", Name: "🎨 Zen Draw", Description: "Draw freely to express yourself", Category: models.CategoryStressRelief},
	{Game: "particles", Name: "✨ Particle Play", Description: "Create beautiful particle effects", Category: models.CategoryStressRelief},
	{Game: "fidget", Name: "🌀 Fidget Spinner", Description: "Virtual fidget spinner", Category: models.CategoryStressRelief},
	{Game: "balloon", Name: "🎈 Balloon Inflate", Description: "Inflate virtual balloons", Category: models.CategoryStressRelief},
	{Game: "quote", Name: "💬 Calm Quotes", Description: "Inspirational quotes for peace", Category: models.CategoryStressRelief},

	{Game: "snake", Name: "🐍 Snake", Description: "Classic snake game - grow your tail!", Category: models.CategoryAddictive},
	{Game: "tetris", Name: "🧱 Tetris", Description: "Stack blocks, clear lines!", Category: models.CategoryAddictive},
	{Game: "tile-merge", Name: "🔢 2048", Description: "Merge tiles to reach 2048!", Category: models.CategoryAddictive},
	{Game: "clicker", Name: "🖱️ Clicker", Description: "Click to earn, upgrade to earn more!", Category: models.CategoryAddictive},

	{Game: "memory", Name: "🧠 Memory Match", Description: "Test your memory!", Category: models.CategoryFun},
	{Game: "whack", Name: "🔨 Whack-a-Mole", Description: "Quick reflexes needed!", Category: models.CategoryFun},
	{Game: "color-spot", Name: "🎯 Color Spot", Description: "Find the different color", Category: models.CategoryFun},
	{Game: "reaction", Name: "⚡ Reaction Test", Description: "Test your reaction speed", Category: models.CategoryFun},
}

// quickPicks is the size of the catalog prefix offered for short breaks.
const quickPicks = 6

// Catalog returns a copy of every game in display order.
func Catalog() []models.GameSuggestion {
	out := make([]models.GameSuggestion, len(catalog))
	copy(out, catalog)
	return out
}

// ByCategory returns the games in any of the given categories, in catalog order.
func ByCategory(categories ...models.GameCategory) []models.GameSuggestion {
	var out []models.GameSuggestion
	for _, g := range catalog {
		for _, c := range categories {
			if g.Category == c {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// Get looks up a game for the mini-game host.
func Get(id string) (models.GameSuggestion, error) {
	for _, g := range catalog {
		if g.Game == id {
			return g, nil
		}
	}
	return models.GameSuggestion{}, ErrUnknownGame
}
