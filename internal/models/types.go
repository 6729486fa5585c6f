package models

import (
	"time"
)

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// MessageType selects the renderer and the meta variant of a message
type MessageType string

const (
	TypeText           MessageType = "text"
	TypeNotes          MessageType = "notes"
	TypeImage          MessageType = "image"
	TypeCode           MessageType = "code"
	TypeGameSuggestion MessageType = "game_suggestion"
	TypeVisionResponse MessageType = "vision_response"
	TypeAudio          MessageType = "audio"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeNotes, TypeImage, TypeCode, TypeGameSuggestion, TypeVisionResponse, TypeAudio:
		return true
	}
	return false
}

// Message is one entry of a conversation log
type Message struct {
	ID        string             `json:"id"`
	Text      string             `json:"text"`
	Sender    Sender             `json:"sender"`
	Timestamp string             `json:"timestamp"`
	CreatedAt time.Time          `json:"createdAt"`
	Type      MessageType        `json:"type"`
	Meta      Meta               `json:"meta,omitempty"`
	ModelUsed string             `json:"modelUsed,omitempty"`
	ModelName string             `json:"modelName,omitempty"`
	Grounding *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GroundingMetadata lists the web sources a reply was grounded on
type GroundingMetadata struct {
	Web []WebSource `json:"web"`
}

type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ChatSession is one persisted conversation
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

type LearningStyle string

const (
	StyleVisual    LearningStyle = "visual"
	StyleTheory    LearningStyle = "theory"
	StylePractical LearningStyle = "practical"
	StyleExamCram  LearningStyle = "exam_cram"
)

type CareerGoal string

const (
	GoalPlacement     CareerGoal = "placement"
	GoalHigherStudies CareerGoal = "higher_studies"
	GoalGovtJob       CareerGoal = "govt_job"
	GoalEntrepreneur  CareerGoal = "entrepreneur"
	GoalJustPass      CareerGoal = "just_pass"
)

// UserContext is the student profile
type UserContext struct {
	Name          string        `json:"name,omitempty"`
	Year          string        `json:"year,omitempty"`
	Semester      string        `json:"semester,omitempty"`
	Department    string        `json:"department,omitempty"`
	LearningStyle LearningStyle `json:"learningStyle,omitempty"`
	CareerGoal    CareerGoal    `json:"careerGoal,omitempty"`
}

// Identified reports whether the profile carries enough to be worth saving
func (u UserContext) Identified() bool {
	return u.Name != "" || u.Semester != ""
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DetectionResult is the routing decision for one message
type DetectionResult struct {
	Model             string     `json:"model"`
	ModelName         string     `json:"modelName"`
	IsImageGeneration bool       `json:"isImageGeneration"`
	IsVision          bool       `json:"isVision"`
	Confidence        Confidence `json:"confidence"`
}

type GameCategory string

const (
	CategoryStressRelief GameCategory = "stress-relief"
	CategoryAddictive    GameCategory = "addictive"
	CategoryFun          GameCategory = "fun"
)

// GameSuggestion is a static mini-game catalog entry
type GameSuggestion struct {
	Game        string       `json:"game"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    GameCategory `json:"category"`
}

// CacheEntry represents a cached response
type CacheEntry struct {
	Question  string
	Answer    string
	Model     string
	CreatedAt time.Time
}
