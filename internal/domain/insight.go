package domain

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TriState is a boolean that may also be unknown.
type TriState int8

const (
	Unknown TriState = iota
	True
	False
)

// TriStateOf converts a bool.
func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// TriStateFromPtr converts a nullable bool as scanned from SQL.
func TriStateFromPtr(b *bool) TriState {
	if b == nil {
		return Unknown
	}
	return TriStateOf(*b)
}

// Ptr returns the nullable bool form, nil for Unknown.
func (t TriState) Ptr() *bool {
	switch t {
	case True:
		v := true
		return &v
	case False:
		v := false
		return &v
	default:
		return nil
	}
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON renders Unknown as null.
func (t TriState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Ptr())
}

func (t *TriState) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*t = TriStateFromPtr(b)
	return nil
}

// Emotion is the dominant emotion of a visitor in a conversation.
type Emotion string

const (
	EmotionAdmiration     Emotion = "admiration"
	EmotionAmusement      Emotion = "amusement"
	EmotionAnger          Emotion = "anger"
	EmotionAnnoyance      Emotion = "annoyance"
	EmotionApproval       Emotion = "approval"
	EmotionCaring         Emotion = "caring"
	EmotionConfusion      Emotion = "confusion"
	EmotionCuriosity      Emotion = "curiosity"
	EmotionDesire         Emotion = "desire"
	EmotionDisappointment Emotion = "disappointment"
	EmotionDisapproval    Emotion = "disapproval"
	EmotionDisgust        Emotion = "disgust"
	EmotionEmbarrassment  Emotion = "embarrassment"
	EmotionExcitement     Emotion = "excitement"
	EmotionFear           Emotion = "fear"
	EmotionGratitude      Emotion = "gratitude"
	EmotionGrief          Emotion = "grief"
	EmotionJoy            Emotion = "joy"
	EmotionLove           Emotion = "love"
	EmotionNervousness    Emotion = "nervousness"
	EmotionOptimism       Emotion = "optimism"
	EmotionPride          Emotion = "pride"
	EmotionRealization    Emotion = "realization"
	EmotionRelief         Emotion = "relief"
	EmotionRemorse        Emotion = "remorse"
	EmotionSadness        Emotion = "sadness"
	EmotionSurprise       Emotion = "surprise"
	EmotionNeutral        Emotion = "neutral"
)

// Emotions lists every accepted emotion in prompt order.
var Emotions = []Emotion{
	EmotionAdmiration, EmotionAmusement, EmotionAnger, EmotionAnnoyance, EmotionApproval,
	EmotionCaring, EmotionConfusion, EmotionCuriosity, EmotionDesire, EmotionDisappointment,
	EmotionDisapproval, EmotionDisgust, EmotionEmbarrassment, EmotionExcitement, EmotionFear,
	EmotionGratitude, EmotionGrief, EmotionJoy, EmotionLove, EmotionNervousness,
	EmotionOptimism, EmotionPride, EmotionRealization, EmotionRelief, EmotionRemorse,
	EmotionSadness, EmotionSurprise, EmotionNeutral,
}

// ParseEmotion normalizes s and falls back to neutral for anything outside the set.
func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Emotions {
		if e == known {
			return e
		}
	}
	return EmotionNeutral
}

// Insight is the structured summary of a closed session.
type Insight struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	ChatbotID      string    `json:"chatbot_id"`
	Name           string    `json:"name,omitempty"`
	Email          string    `json:"email,omitempty"`
	ProblemSummary string    `json:"problem_summary,omitempty"`
	BotSolved      TriState  `json:"bot_solved"`
	HumanNeeded    TriState  `json:"human_needed"`
	Emotion        Emotion   `json:"emotion"`
	CreatedAt      time.Time `json:"created_at"`
}

// Reconcile enforces that the bot never counts as having solved a
// conversation that needs a human. Human-needed wins.
func (i *Insight) Reconcile() {
	switch {
	case i.HumanNeeded == True:
		i.BotSolved = False
	case i.BotSolved == True:
		i.HumanNeeded = False
	}
	if i.Emotion == "" {
		i.Emotion = EmotionNeutral
	}
}

// InsightFilter narrows insight listings.
type InsightFilter struct {
	ChatbotID string
	Limit     int
	Offset    int
}

// InsightRepository defines the interface for insight storage
type InsightRepository interface {
	// Create stores the insight. Returns ErrInsightExists if the session already has one.
	Create(ctx context.Context, insight *Insight) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*Insight, error)
	List(ctx context.Context, filter InsightFilter) ([]Insight, error)
}
