package analyzer

import (
	"log/slog"

	"github.com/MikeSquared-Agency/verdict/internal/policy"
)

var structuralKeywords = []Keyword{
	"announcement", "request", "question", "suggestion", "acknowledgement",
	"confirmation", "commitment", "casual", "storytelling", "information-sharing",
	"humor", "sarcasm", "defensive", "warning", "official",
}

var emotionalKeywords = []Keyword{
	"positive", "positive-feedback", "compliment", "encouragement", "supportive",
	"happy", "excited", "grateful", "curious", "relieved",
	"negative-feedback", "sad", "disappointed", "frustrated", "angry",
	"annoyed", "jealous", "anxious", "worried", "lonely",
	"sarcastic", "cynical", "hopeless", "confused", "shocked", "surprised",
}

var toxicityKeywords = []Keyword{
	"abusive", "harassment", "bullying", "sexual", "inappropriate-sexual",
	"threatening", "violent", "discriminatory", "hate-speech", "spam",
	"scam", "manipulative", "self-harm", "suicidal",
}

// Emotions lists every emotion category Stage 2 must score.
var Emotions = []Emotion{
	EmotionJoy, EmotionGratitude, EmotionAdmiration, EmotionAnticipation,
	EmotionTrust, EmotionSurprise, EmotionSadness, EmotionAnger,
	EmotionFrustration, EmotionDisgust, EmotionFear, EmotionContempt, EmotionNeutral,
}

// ModerationCategories lists every moderation category Stage 2 must score.
var ModerationCategories = []ModerationCategory{
	ModToxicity, ModInsult, ModHarassment, ModProfanity, ModObsceneGesture,
	ModThreatViolence, ModHateSpeech, ModSexualExplicit, ModSexualSolicitation,
	ModSexualMinorRisk, ModSelfHarm, ModDoxxing, ModSpam,
}

var (
	keywordFamilies = map[Keyword]KeywordFamily{}
	emotionSet      = map[Emotion]bool{}
	moderationSet   = map[ModerationCategory]bool{}
	actionSet       = map[Action]bool{ActionNone: true, ActionWarn: true, ActionManualReview: true, ActionSuspend: true}
)

func init() {
	for _, k := range structuralKeywords {
		keywordFamilies[k] = FamilyStructural
	}
	for _, k := range emotionalKeywords {
		keywordFamilies[k] = FamilyEmotional
	}
	for _, k := range toxicityKeywords {
		keywordFamilies[k] = FamilyToxicity
	}
	for _, e := range Emotions {
		emotionSet[e] = true
	}
	for _, m := range ModerationCategories {
		moderationSet[m] = true
	}
}

// Family reports which vocabulary family k belongs to.
func (k Keyword) Family() KeywordFamily {
	if f, ok := keywordFamilies[k]; ok {
		return f
	}
	return FamilyUnknown
}

func (k Keyword) Known() bool { return k.Family() != FamilyUnknown }

func (e Emotion) Known() bool { return emotionSet[e] }

func (m ModerationCategory) Known() bool { return moderationSet[m] }

func (a Action) Known() bool { return actionSet[a] }

// checkKeywords logs vocabulary drift in Stage 1 output. Unknown keywords are
// kept so the record still renders.
func checkKeywords(logger *slog.Logger, records []KeywordRecord) int {
	warnings := 0
	for _, rec := range records {
		for _, k := range rec.Keywords {
			if !k.Known() {
				warnings++
				logger.Warn("keyword outside controlled vocabulary", "id", rec.ID, "keyword", string(k))
			}
		}
		if n := len(rec.Keywords); n == 0 || n > 5 {
			warnings++
			logger.Warn("unexpected keyword count", "id", rec.ID, "count", n)
		}
	}
	return warnings
}

// checkSeverity logs vocabulary drift and contract violations in Stage 2
// output. Out-of-range scores are clamped in place.
func checkSeverity(logger *slog.Logger, records []SeverityRecord) int {
	warnings := 0
	for i := range records {
		rec := &records[i]
		for e, v := range rec.Scores.Emotions {
			if !e.Known() {
				warnings++
				logger.Warn("unknown emotion category", "id", rec.ID, "emotion", string(e))
			}
			if c := clampScore(v); c != v {
				warnings++
				logger.Warn("emotion score out of range", "id", rec.ID, "emotion", string(e), "score", v)
				rec.Scores.Emotions[e] = c
			}
		}
		for m, v := range rec.Scores.Moderation {
			if !m.Known() {
				warnings++
				logger.Warn("unknown moderation category", "id", rec.ID, "category", string(m))
			}
			if c := clampScore(v); c != v {
				warnings++
				logger.Warn("moderation score out of range", "id", rec.ID, "category", string(m), "score", v)
				rec.Scores.Moderation[m] = c
			}
		}
		if c := clampScore(rec.Scores.OverallRisk); c != rec.Scores.OverallRisk {
			warnings++
			logger.Warn("overall risk out of range", "id", rec.ID, "score", rec.Scores.OverallRisk)
			rec.Scores.OverallRisk = c
		}
		for _, a := range rec.ActionRecommendation.Actions() {
			if !a.Known() {
				warnings++
				logger.Warn("unknown action recommendation", "id", rec.ID, "action", string(a))
			}
		}
		for _, v := range policy.Check(contractInput(*rec)) {
			warnings++
			logger.Warn("severity record violates escalation contract", "id", rec.ID, "rule", v.Rule, "detail", v.Detail)
		}
	}
	return warnings
}

func contractInput(rec SeverityRecord) policy.Assessment {
	mod := make(map[string]int, len(rec.Scores.Moderation))
	for k, v := range rec.Scores.Moderation {
		mod[string(k)] = v
	}
	return policy.Assessment{
		OverallRisk:       rec.Scores.OverallRisk,
		Moderation:        mod,
		Escalate:          rec.Escalate,
		EscalationReasons: len(rec.EscalationReasons),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
