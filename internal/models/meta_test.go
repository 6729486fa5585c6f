package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMetaDecodesByType(t *testing.T) {
	in := Message{
		ID:        "m1",
		Text:      "🎨 Drawing it for you",
		Sender:    SenderBot,
		Timestamp: "10:04 AM",
		CreatedAt: time.Date(2026, 3, 1, 10, 4, 0, 0, time.UTC),
		Type:      TypeImage,
		Meta:      ImageMeta{ImageURL: "https://img/x", ImagePrompt: "cat, style", ImageModel: "flux"},
		ModelUsed: "pollinations/flux",
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Message
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.IsType(t, ImageMeta{}, out.Meta)
}

func TestMessageMetaIgnoredOnText(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"1","text":"hi","sender":"user","type":"text","meta":{}}`), &m)
	require.NoError(t, err)
	assert.Nil(t, m.Meta)
}

func TestMessageMetaMalformed(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"1","type":"game_suggestion","meta":{"autoOpen":"yes"}}`), &m)
	assert.Error(t, err)
}

func TestMessageValidate(t *testing.T) {
	ok := Message{Sender: SenderBot, Type: TypeGameSuggestion, Meta: GameMeta{SuggestedGame: "snake"}}
	assert.NoError(t, ok.Validate())

	mismatched := Message{Sender: SenderBot, Type: TypeText, Meta: ImageMeta{}}
	assert.Error(t, mismatched.Validate())

	unknown := Message{Sender: SenderBot, Type: "video"}
	assert.Error(t, unknown.Validate())
}

func TestUserContextIdentified(t *testing.T) {
	assert.False(t, UserContext{Department: "CSE"}.Identified())
	assert.True(t, UserContext{Name: "Priya"}.Identified())
	assert.True(t, UserContext{Semester: "3"}.Identified())
}
