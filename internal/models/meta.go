package models

import (
	"encoding/json"
	"fmt"
)

// Meta is the renderer payload of a message. The concrete type is fixed by
// Message.Type; text and notes messages carry none.
type Meta interface {
	MessageType() MessageType
}

type ImageMeta struct {
	ImageURL    string `json:"imageUrl"`
	ImagePrompt string `json:"imagePrompt"`
	ImageModel  string `json:"imageModel,omitempty"`
}

func (ImageMeta) MessageType() MessageType { return TypeImage }

type GameMeta struct {
	SuggestedGames []string `json:"suggestedGames,omitempty"`
	SuggestedGame  string   `json:"suggestedGame,omitempty"`
	AutoOpen       bool     `json:"autoOpen,omitempty"`
}

func (GameMeta) MessageType() MessageType { return TypeGameSuggestion }

type VisionMeta struct {
	Prompt   string `json:"prompt,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func (VisionMeta) MessageType() MessageType { return TypeVisionResponse }

type CodeMeta struct {
	Languages []string `json:"languages,omitempty"`
}

func (CodeMeta) MessageType() MessageType { return TypeCode }

type AudioMeta struct {
	Transcript string  `json:"transcript,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

func (AudioMeta) MessageType() MessageType { return TypeAudio }

// Validate checks that the meta variant matches the message type
func (m Message) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.Sender != SenderUser && m.Sender != SenderBot {
		return fmt.Errorf("unknown sender %q", m.Sender)
	}
	if m.Meta != nil && m.Meta.MessageType() != m.Type {
		return fmt.Errorf("meta %T does not belong to a %s message", m.Meta, m.Type)
	}
	return nil
}

type messageAlias Message

type messageJSON struct {
	messageAlias
	Meta json.RawMessage `json:"meta,omitempty"`
}

// UnmarshalJSON decodes meta into the variant selected by the type field
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.messageAlias)
	m.Meta = nil

	if len(raw.Meta) == 0 || string(raw.Meta) == "null" {
		return nil
	}

	var meta Meta
	switch m.Type {
	case TypeImage:
		meta = &ImageMeta{}
	case TypeGameSuggestion:
		meta = &GameMeta{}
	case TypeVisionResponse:
		meta = &VisionMeta{}
	case TypeCode:
		meta = &CodeMeta{}
	case TypeAudio:
		meta = &AudioMeta{}
	default:
		// older records stored an empty bag on text messages
		return nil
	}
	if err := json.Unmarshal(raw.Meta, meta); err != nil {
		return fmt.Errorf("decode %s meta: %w", m.Type, err)
	}

	switch v := meta.(type) {
	case *ImageMeta:
		m.Meta = *v
	case *GameMeta:
		m.Meta = *v
	case *VisionMeta:
		m.Meta = *v
	case *CodeMeta:
		m.Meta = *v
	case *AudioMeta:
		m.Meta = *v
	}
	return nil
}
