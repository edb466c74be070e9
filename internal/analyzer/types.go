package analyzer

import (
	"strings"

	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// Keyword is a Stage 1 tag drawn from a controlled vocabulary.
type Keyword string

// KeywordFamily groups keywords for reporting.
type KeywordFamily string

const (
	FamilyStructural KeywordFamily = "structural"
	FamilyEmotional  KeywordFamily = "emotional"
	FamilyToxicity   KeywordFamily = "toxicity"
	FamilyUnknown    KeywordFamily = "unknown"
)

// Emotion is a Stage 2 emotion score category.
type Emotion string

const (
	EmotionJoy          Emotion = "joy"
	EmotionGratitude    Emotion = "gratitude"
	EmotionAdmiration   Emotion = "admiration"
	EmotionAnticipation Emotion = "anticipation"
	EmotionTrust        Emotion = "trust"
	EmotionSurprise     Emotion = "surprise"
	EmotionSadness      Emotion = "sadness"
	EmotionAnger        Emotion = "anger"
	EmotionFrustration  Emotion = "frustration"
	EmotionDisgust      Emotion = "disgust"
	EmotionFear         Emotion = "fear"
	EmotionContempt     Emotion = "contempt"
	EmotionNeutral      Emotion = "neutral"
)

// ModerationCategory is a Stage 2 moderation score category.
type ModerationCategory string

const (
	ModToxicity           ModerationCategory = "toxicity"
	ModInsult             ModerationCategory = "insult"
	ModHarassment         ModerationCategory = "harassment"
	ModProfanity          ModerationCategory = "profanity"
	ModObsceneGesture     ModerationCategory = "obscene_gesture"
	ModThreatViolence     ModerationCategory = "threat_violence"
	ModHateSpeech         ModerationCategory = "hate_speech"
	ModSexualExplicit     ModerationCategory = "sexual_explicit"
	ModSexualSolicitation ModerationCategory = "sexual_solicitation"
	ModSexualMinorRisk    ModerationCategory = "sexual_minor_risk"
	ModSelfHarm           ModerationCategory = "self_harm"
	ModDoxxing            ModerationCategory = "doxxing"
	ModSpam               ModerationCategory = "spam"
)

// Action is one token of an action recommendation.
type Action string

const (
	ActionNone         Action = "none"
	ActionWarn         Action = "warn"
	ActionManualReview Action = "manual_review"
	ActionSuspend      Action = "suspend"
)

// ActionRecommendation is a single action or a pipe-joined combination,
// e.g. "manual_review|suspend".
type ActionRecommendation string

// Actions splits the recommendation into its tokens.
func (a ActionRecommendation) Actions() []Action {
	if strings.TrimSpace(string(a)) == "" {
		return nil
	}
	parts := strings.Split(string(a), "|")
	out := make([]Action, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Action(p))
		}
	}
	return out
}

// KeywordRecord is Stage 1 output for one message.
type KeywordRecord struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Keywords []Keyword `json:"keywords"`
}

// Bundle is a message enriched with its Stage 1 keywords; the unit of Stage 2 input.
type Bundle struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Text     string    `json:"message"`
	Keywords []Keyword `json:"keywords"`
}

type Scores struct {
	Emotions    map[Emotion]int            `json:"emotions"`
	Moderation  map[ModerationCategory]int `json:"moderation"`
	OverallRisk int                        `json:"overall_risk"`
}

type RuleTrace struct {
	Rule   string `json:"rule"`
	Impact int    `json:"impact"`
}

type Explainability struct {
	TopMatchedKeywords []string    `json:"top_matched_keywords"`
	TopModifiers       []string    `json:"top_modifiers"`
	RuleTraces         []RuleTrace `json:"rule_traces"`
}

// SeverityRecord is Stage 2 output for one message.
type SeverityRecord struct {
	ID                   string               `json:"id"`
	Author               string               `json:"author"`
	Message              string               `json:"message,omitempty"`
	Keywords             []Keyword            `json:"keywords,omitempty"`
	Scores               Scores               `json:"scores"`
	Explainability       Explainability       `json:"explainability"`
	Escalate             bool                 `json:"escalate"`
	EscalationReasons    []string             `json:"escalation_reasons"`
	ActionRecommendation ActionRecommendation `json:"action_recommendation"`
}

// Result is the persisted and rendered unit of one classification.
type Result struct {
	Conversation []thread.Message `json:"conversation"`
	Keywords     []KeywordRecord  `json:"keywords"`
	Severity     []SeverityRecord `json:"severity"`
}

// KeywordsFor returns the keyword record for id, if Stage 1 produced one.
func (r *Result) KeywordsFor(id string) (KeywordRecord, bool) {
	for _, k := range r.Keywords {
		if k.ID == id {
			return k, true
		}
	}
	return KeywordRecord{}, false
}

// SeverityFor returns the severity record for id, if Stage 2 produced one.
func (r *Result) SeverityFor(id string) (SeverityRecord, bool) {
	for _, s := range r.Severity {
		if s.ID == id {
			return s, true
		}
	}
	return SeverityRecord{}, false
}

// Escalated returns the severity records flagged for escalation.
func (r *Result) Escalated() []SeverityRecord {
	var out []SeverityRecord
	for _, s := range r.Severity {
		if s.Escalate {
			out = append(out, s)
		}
	}
	return out
}

// MaxRisk returns the highest overall_risk across all severity records.
func (r *Result) MaxRisk() int {
	max := 0
	for _, s := range r.Severity {
		if s.Scores.OverallRisk > max {
			max = s.Scores.OverallRisk
		}
	}
	return max
}
